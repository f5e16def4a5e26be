// Package extract turns a raw HTML capture into the derived fields a
// Snapshot persists: title, cleaned content text, a short snippet,
// language, an archived-banner signal, and a content hash. It never
// returns an error for malformed HTML — callers get a best-effort,
// possibly-empty Result back, per spec §4.F ("extraction must never
// raise on malformed HTML; fall back to best effort and log a
// warning").
package extract

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"healtharchive/internal/model"
)

const (
	snippetMaxChars      = 280
	snippetMinChars      = 40
	contentTextMaxChars  = 4096
	snippetPunctuationRe = `[.!?。！？]`
)

var sentencePunctuation = regexp.MustCompile(snippetPunctuationRe)
var whitespaceRun = regexp.MustCompile(`\s+`)

// Result is the set of derived fields for one HTML capture.
type Result struct {
	Title       string
	ContentText string
	Snippet     string
	Language    model.Language
	IsArchived  model.TriState
	ContentHash string
	Warning     error
}

// Extract parses rawHTML (already UTF-8, replacement-decoded by the
// caller per spec §4.G step 6) and produces the derived Snapshot
// fields. headers carries the captured response headers, consulted for
// language hints (Content-Language) before falling back to the HTML
// lang attribute and stop-word heuristics.
func Extract(rawHTML []byte, headers http.Header) Result {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rawHTML))
	if err != nil {
		return Result{IsArchived: model.TriUnknown, Warning: err}
	}

	stripBoilerplate(doc)

	title := extractTitle(doc)
	root := selectContentRoot(doc)
	contentText := cleanedText(root)
	if len(contentText) > contentTextMaxChars {
		contentText = truncateRunes(contentText, contentTextMaxChars)
	}

	snippet := extractSnippet(root)
	language := detectLanguage(doc, headers, title+" "+contentText)
	archived := detectArchived(title, contentText)
	hash := contentHash(contentText)

	return Result{
		Title:       title,
		ContentText: contentText,
		Snippet:     snippet,
		Language:    language,
		IsArchived:  archived,
		ContentHash: hash,
	}
}

// stripBoilerplate removes script/style/noscript plus semantic
// boilerplate containers and ARIA-role-marked regions in place, so
// every downstream pass (title, content root, snippet) already sees a
// pruned tree (spec §4.F).
func stripBoilerplate(doc *goquery.Document) {
	for _, tag := range boilerplateContainers {
		doc.Find(tag).Remove()
	}
	for _, role := range boilerplateARIARoles {
		doc.Find(`[role="` + role + `"]`).Remove()
	}
}

// extractTitle prefers <title>, falling back to the first <h1>.
func extractTitle(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return collapseWhitespace(t)
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return collapseWhitespace(h1)
	}
	return ""
}

// selectContentRoot prefers <main>/[role=main], then <article>, then
// the best-scoring remaining container (spec §4.F).
func selectContentRoot(doc *goquery.Document) *goquery.Selection {
	if sel := doc.Find(`main, [role="main"]`).First(); sel.Length() > 0 {
		return sel
	}
	if sel := doc.Find("article").First(); sel.Length() > 0 {
		return sel
	}

	var best *goquery.Selection
	bestScore := -1.0
	doc.Find("div, section, body").Each(func(_ int, sel *goquery.Selection) {
		score := scoreContainer(sel)
		if score > bestScore {
			bestScore = score
			best = sel
		}
	})
	if best != nil {
		return best
	}
	return doc.Selection
}

// scoreContainer ranks a candidate content container by text length
// and punctuation density, penalized by link density and boilerplate-
// phrase matches (spec §4.F).
func scoreContainer(sel *goquery.Selection) float64 {
	text := collapseWhitespace(sel.Text())
	textLen := float64(len(text))
	if textLen == 0 {
		return 0
	}

	punctCount := float64(len(sentencePunctuation.FindAllString(text, -1)))

	linkText := 0
	sel.Find("a").Each(func(_ int, a *goquery.Selection) {
		linkText += len(collapseWhitespace(a.Text()))
	})
	linkDensity := float64(linkText) / textLen

	score := textLen + punctCount*20 - linkDensity*textLen

	if looksLikeBoilerplate(text) {
		score -= textLen * 0.5
	}
	return score
}

// cleanedText returns the content root's visible text, whitespace
// collapsed.
func cleanedText(sel *goquery.Selection) string {
	return collapseWhitespace(sel.Text())
}

// extractSnippet returns the first block in the content root meeting
// all of: length threshold, contains sentence punctuation, and does not
// open with a known boilerplate phrase, truncated to ~280 characters
// (spec §4.F).
func extractSnippet(root *goquery.Selection) string {
	var snippet string
	root.Find("p, li, div").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := collapseWhitespace(sel.Text())
		if len(text) < snippetMinChars {
			return true
		}
		if !sentencePunctuation.MatchString(text) {
			return true
		}
		if looksLikeBoilerplate(text) {
			return true
		}
		snippet = text
		return false
	})
	if snippet == "" {
		// Fall back to the root's own text if no block candidate
		// qualified (e.g. content with no <p>/<li> wrapping).
		text := collapseWhitespace(root.Text())
		if len(text) >= snippetMinChars {
			snippet = text
		}
	}
	return truncateRunes(snippet, snippetMaxChars)
}

// detectLanguage tries the Content-Language header, then the HTML
// lang attribute, then an EN/FR stop-word frequency heuristic.
func detectLanguage(doc *goquery.Document, headers http.Header, sample string) model.Language {
	if cl := headers.Get("Content-Language"); cl != "" {
		if lang, ok := normalizeLanguageTag(cl); ok {
			return lang
		}
	}
	if lang, ok := doc.Find("html").First().Attr("lang"); ok {
		if l, ok := normalizeLanguageTag(lang); ok {
			return l
		}
	}

	enScore := stopWordScore(sample, stopWordsEN)
	frScore := stopWordScore(sample, stopWordsFR)
	switch {
	case enScore == 0 && frScore == 0:
		return model.LanguageUnknown
	case enScore >= frScore:
		return model.LanguageEnglish
	default:
		return model.LanguageFrench
	}
}

func normalizeLanguageTag(tag string) (model.Language, bool) {
	lower := strings.ToLower(strings.TrimSpace(tag))
	switch {
	case strings.HasPrefix(lower, "en"):
		return model.LanguageEnglish, true
	case strings.HasPrefix(lower, "fr"):
		return model.LanguageFrench, true
	default:
		return model.LanguageUnknown, false
	}
}

// detectArchived returns TriTrue when title or content matches a
// conservative bilingual "archived page" banner phrase, TriUnknown
// otherwise (never TriFalse: absence of a signal is not proof of
// currency, per spec §4.F's tri-state design).
func detectArchived(title, content string) model.TriState {
	if looksArchived(title) || looksArchived(content) {
		return model.TriTrue
	}
	return model.TriUnknown
}

// contentHash is a stable SHA-256 over whitespace-collapsed,
// case-folded content text (spec §4.F / open question resolution in
// SPEC_FULL.md).
func contentHash(contentText string) string {
	normalized := strings.ToLower(collapseWhitespace(contentText))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
