package search

import "testing"

func TestNormalizeURLLowercasesHostAndStripsWWW(t *testing.T) {
	got := NormalizeURL("https://WWW.Canada.ca/en/health.html")
	want := "https://canada.ca/en/health.html"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestNormalizeURLStripsFragment(t *testing.T) {
	got := NormalizeURL("https://canada.ca/en/health.html#section-2")
	want := "https://canada.ca/en/health.html"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestNormalizeURLDropsTrackingParamsButKeepsOthers(t *testing.T) {
	got := NormalizeURL("https://canada.ca/en/health.html?utm_source=x&lang=en")
	want := "https://canada.ca/en/health.html?lang=en"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestNormalizeURLNormalizesTrailingSlash(t *testing.T) {
	got := NormalizeURL("https://canada.ca/en/health/")
	want := "https://canada.ca/en/health"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	root := NormalizeURL("https://canada.ca/")
	if root != "https://canada.ca/" {
		t.Fatalf("expected root path to stay '/', got %q", root)
	}
}

func TestNormalizeURLIsIdempotent(t *testing.T) {
	raw := "https://WWW.Canada.ca/en/health.html?utm_campaign=foo&lang=en#top"
	once := NormalizeURL(raw)
	twice := NormalizeURL(once)
	if once != twice {
		t.Fatalf("expected idempotence: once=%q twice=%q", once, twice)
	}
}

func TestNormalizeURLIsPureForEqualInput(t *testing.T) {
	raw := "https://canada.ca/en/health.html"
	if NormalizeURL(raw) != NormalizeURL(raw) {
		t.Fatalf("expected deterministic output for identical input")
	}
}

func TestURLVariantsCoversSchemeAndWWW(t *testing.T) {
	variants := URLVariants("canada.ca/en/health.html")
	if len(variants) == 0 {
		t.Fatalf("expected at least one variant")
	}
	found := false
	for _, v := range variants {
		if v == "https://canada.ca/en/health.html" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected https variant without www, got %v", variants)
	}
}
