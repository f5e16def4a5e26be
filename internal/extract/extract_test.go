package extract

import (
	"net/http"
	"strings"
	"testing"

	"healtharchive/internal/model"
)

func TestExtractTitleAndContent(t *testing.T) {
	html := `<html lang="en"><head><title>COVID-19 vaccines</title></head>
	<body>
	<nav>Skip to main content</nav>
	<main>
	<h1>COVID-19 vaccines</h1>
	<p>Information about the mRNA vaccine and how it protects Canadians from COVID-19. This page explains eligibility and booking.</p>
	</main>
	<footer>Contact us</footer>
	</body></html>`

	res := Extract([]byte(html), http.Header{})
	if res.Warning != nil {
		t.Fatalf("unexpected warning: %v", res.Warning)
	}
	if res.Title != "COVID-19 vaccines" {
		t.Fatalf("expected title 'COVID-19 vaccines', got %q", res.Title)
	}
	if !strings.Contains(res.ContentText, "mRNA vaccine") {
		t.Fatalf("expected content text to mention mRNA vaccine, got %q", res.ContentText)
	}
	if strings.Contains(res.ContentText, "Contact us") {
		t.Fatalf("expected footer boilerplate stripped, got %q", res.ContentText)
	}
	if res.Language != model.LanguageEnglish {
		t.Fatalf("expected language en, got %q", res.Language)
	}
	if res.ContentHash == "" {
		t.Fatalf("expected non-empty content hash")
	}
}

func TestExtractSnippetSkipsBoilerplate(t *testing.T) {
	html := `<html><body><main>
	<p>Skip to main content.</p>
	<p>Vaccines remain the most effective way to prevent serious illness from COVID-19, and uptake has improved.</p>
	</main></body></html>`

	res := Extract([]byte(html), http.Header{})
	if strings.Contains(strings.ToLower(res.Snippet), "skip to main content") {
		t.Fatalf("expected snippet to skip boilerplate opener, got %q", res.Snippet)
	}
	if !strings.Contains(res.Snippet, "Vaccines remain the most effective") {
		t.Fatalf("expected snippet to pick the real content block, got %q", res.Snippet)
	}
}

func TestExtractDetectsArchivedBanner(t *testing.T) {
	html := `<html><body><main><p>This page has been archived and is no longer updated. Content history follows below for reference.</p></main></body></html>`
	res := Extract([]byte(html), http.Header{})
	if res.IsArchived != model.TriTrue {
		t.Fatalf("expected is_archived=true, got %q", res.IsArchived)
	}
}

func TestExtractMalformedHTMLNeverErrors(t *testing.T) {
	res := Extract([]byte("<html><body><p>unterminated"), http.Header{})
	if res.Warning != nil {
		t.Fatalf("goquery tolerates unterminated tags; did not expect a warning, got %v", res.Warning)
	}
}

func TestExtractContentHashStable(t *testing.T) {
	html := `<html><body><main><p>Same content, different case and   whitespace.</p></main></body></html>`
	a := Extract([]byte(html), http.Header{})

	html2 := `<html><body><main><p>SAME CONTENT,   DIFFERENT   CASE AND WHITESPACE.</p></main></body></html>`
	b := Extract([]byte(html2), http.Header{})

	if a.ContentHash != b.ContentHash {
		t.Fatalf("expected case/whitespace-insensitive content hash to match, got %q vs %q", a.ContentHash, b.ContentHash)
	}
}
