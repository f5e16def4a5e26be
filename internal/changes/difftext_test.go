package changes

import "testing"

func TestDiffContentTextNoChangeProducesZeroSections(t *testing.T) {
	text := "line one\nline two\nline three"
	summary := diffContentText(text, text)
	if summary.SectionsChanged != 0 || summary.LinesChanged != 0 {
		t.Fatalf("expected no changes for identical text, got %+v", summary)
	}
}

func TestDiffContentTextDetectsSingleChangedSection(t *testing.T) {
	from := "line one\nline two\nline three"
	to := "line one\nline TWO CHANGED\nline three"
	summary := diffContentText(from, to)
	if summary.SectionsChanged == 0 {
		t.Fatalf("expected at least one changed section, got %+v", summary)
	}
	if summary.LinesChanged == 0 {
		t.Fatalf("expected a nonzero line count, got %+v", summary)
	}
}

func TestDiffContentTextProducesArtifact(t *testing.T) {
	from := "alpha\nbeta\ngamma"
	to := "alpha\nBETA\ngamma"
	summary := diffContentText(from, to)
	if summary.Artifact == "" {
		t.Fatalf("expected a non-empty diff artifact")
	}
}
