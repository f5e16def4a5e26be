package extract

import "strings"

// boilerplateContainers are dropped from the content root wholesale
// before scoring/extraction (spec §4.F).
var boilerplateContainers = []string{"nav", "header", "footer", "aside", "form", "script", "style", "noscript"}

// boilerplateARIARoles are treated the same way as the tag blocklist,
// since government sites frequently mark up navigation as <div
// role="navigation"> rather than <nav>.
var boilerplateARIARoles = []string{"navigation", "banner", "contentinfo", "search"}

// skipPhrasesEN/FR catch common non-content openers (skip links,
// cookie banners, "menu"/"search" labels) that must not be chosen as
// the lead snippet even when they pass the length/punctuation filter.
var skipPhrasesEN = []string{
	"skip to main content",
	"skip to content",
	"skip navigation",
	"we use cookies",
	"this website uses cookies",
	"menu",
	"search",
	"main menu",
}

var skipPhrasesFR = []string{
	"passer au contenu principal",
	"passer au contenu",
	"nous utilisons des témoins",
	"ce site utilise des témoins",
	"menu",
	"recherche",
	"menu principal",
}

// archivedBannerPhrasesEN/FR are the conservative bilingual set of
// "this page has been archived" banner phrases used to set
// is_archived=true (spec §4.F).
var archivedBannerPhrasesEN = []string{
	"this page has been archived",
	"archived content",
	"information identified as archived",
	"this page is archived on the web",
}

var archivedBannerPhrasesFR = []string{
	"cette page a été archivée",
	"contenu archivé",
	"renseignements identifiés comme étant archivés",
}

func containsAnyFold(haystack string, phrases []string) bool {
	lower := strings.ToLower(haystack)
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func startsWithAnyFold(haystack string, phrases []string) bool {
	lower := strings.ToLower(strings.TrimSpace(haystack))
	for _, p := range phrases {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// looksLikeBoilerplate reports whether text opens with a known
// skip-link/cookie-banner/menu phrase in either language.
func looksLikeBoilerplate(text string) bool {
	return startsWithAnyFold(text, skipPhrasesEN) || startsWithAnyFold(text, skipPhrasesFR)
}

// looksArchived reports whether text matches a conservative archived-
// banner phrase in either language.
func looksArchived(text string) bool {
	return containsAnyFold(text, archivedBannerPhrasesEN) || containsAnyFold(text, archivedBannerPhrasesFR)
}

// stopWordsEN/FR back the lightweight language-detection heuristic: the
// language whose stop words appear more often in the content wins.
var stopWordsEN = []string{" the ", " and ", " of ", " to ", " in ", " is ", " for ", " you ", " your ", " with "}
var stopWordsFR = []string{" le ", " la ", " les ", " des ", " de ", " et ", " pour ", " vous ", " votre ", " avec "}

func stopWordScore(text string, words []string) int {
	padded := " " + strings.ToLower(text) + " "
	score := 0
	for _, w := range words {
		score += strings.Count(padded, w)
	}
	return score
}
