package changes

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// diffSummary is the structured outcome spec §4.H asks the change
// tracker to persist: how many contiguous changed sections and how
// many lines differ between two content texts.
type diffSummary struct {
	SectionsChanged int
	LinesChanged    int
	Artifact        string
}

// diffContentText runs a Myers-style line diff (diff-match-patch's
// line mode: hash whole lines to single runes, diff those, then expand
// back) between two cleaned content texts, counting changed lines and
// contiguous changed sections. It also renders a unified-diff-style
// artifact string for storage/display.
func diffContentText(from, to string) diffSummary {
	dmp := diffmatchpatch.New()

	fromChars, toChars, lineArray := dmp.DiffLinesToChars(from, to)
	diffs := dmp.DiffMain(fromChars, toChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var linesChanged, sectionsChanged int
	inSection := false
	var artifact strings.Builder

	for _, d := range diffs {
		lineCount := countLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			inSection = false
			writePrefixedLines(&artifact, " ", d.Text)
		case diffmatchpatch.DiffInsert:
			linesChanged += lineCount
			if !inSection {
				sectionsChanged++
				inSection = true
			}
			writePrefixedLines(&artifact, "+", d.Text)
		case diffmatchpatch.DiffDelete:
			linesChanged += lineCount
			if !inSection {
				sectionsChanged++
				inSection = true
			}
			writePrefixedLines(&artifact, "-", d.Text)
		}
	}

	return diffSummary{
		SectionsChanged: sectionsChanged,
		LinesChanged:    linesChanged,
		Artifact:        artifact.String(),
	}
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

func writePrefixedLines(b *strings.Builder, prefix, text string) {
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	for _, line := range lines {
		if line == "" {
			continue
		}
		b.WriteString(prefix)
		b.WriteString(line)
		b.WriteByte('\n')
	}
}
