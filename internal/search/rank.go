package search

import (
	"math"
	"net/url"
	"strings"

	"healtharchive/internal/model"
)

// RankVersion selects a scoring formula (spec §4.I: "v1/v2 retained
// for rollback").
type RankVersion string

const (
	RankV1 RankVersion = "v1"
	RankV2 RankVersion = "v2"
	RankV3 RankVersion = "v3"
)

// archivedBannerPhrases are the EN/FR heuristic markers used when
// is_archived is unknown (spec §4.I: "a weaker heuristic penalty based
// on title/snippet banner phrases").
var archivedBannerPhrases = []string{
	"archived", "no longer in effect", "for reference only",
	"archivé", "n'est plus en vigueur", "à titre de référence seulement",
}

// scoreInput bundles what the ranker needs for one candidate, computed
// once per request rather than re-derived per snapshot.
type scoreInput struct {
	snapshot    model.Snapshot
	terms       []string
	matchScore  float64
	inlinkCount int
}

// Score computes the spec §4.I ranking value for one candidate. Higher
// is better. The match component is supplied by the caller; the engine
// always supplies the field-weighted substring score computed by
// matchScoreSubstring, also for rows returned by the FTS tier, so no
// backend FTS rank enters the score. Everything else is computed here identically
// across ranking versions, with v1/v2 omitting later-added components
// so operators can roll back a regression to an earlier formula.
func Score(in scoreInput, version RankVersion) float64 {
	score := in.matchScore

	if version == RankV1 {
		return score
	}

	if phraseInTitle(in.snapshot.Title, in.terms) {
		score += 2.0
	}
	score -= depthPenalty(in.snapshot.URL)
	score -= querystringPenalty(in.snapshot.URL)

	if version == RankV2 {
		return score
	}

	score -= archivedPenalty(in.snapshot)
	score += authorityBonus(in.inlinkCount)
	return score
}

// matchScoreSubstring computes a deterministic field-weighted
// substring score (title > URL > snippet). It is the match component for
// every execution tier, FTS included.
func matchScoreSubstring(snap model.Snapshot, terms []string) float64 {
	title := strings.ToLower(snap.Title)
	snippet := strings.ToLower(snap.Snippet)
	u := strings.ToLower(snap.URL)

	var score float64
	for _, term := range terms {
		t := strings.ToLower(term)
		if t == "" {
			continue
		}
		if strings.Contains(title, t) {
			score += 3.0
		}
		if strings.Contains(u, t) {
			score += 2.0
		}
		if strings.Contains(snippet, t) {
			score += 1.0
		}
	}
	return score
}

func phraseInTitle(title string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	phrase := strings.ToLower(strings.Join(terms, " "))
	return strings.Contains(strings.ToLower(title), phrase)
}

// depthPenalty grows with the number of path segments (spec: "URL path
// depth"), capped so very deep URLs don't dominate the score.
func depthPenalty(rawURL string) float64 {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	depth := 0
	for _, seg := range strings.Split(strings.Trim(u.Path, "/"), "/") {
		if seg != "" {
			depth++
		}
	}
	if depth > 10 {
		depth = 10
	}
	return float64(depth) * 0.1
}

func querystringPenalty(rawURL string) float64 {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	if u.RawQuery != "" {
		return 0.5
	}
	return 0
}

func archivedPenalty(snap model.Snapshot) float64 {
	switch snap.IsArchived {
	case model.TriTrue:
		return 3.0
	case model.TriFalse:
		return 0
	default:
		haystack := strings.ToLower(snap.Title + " " + snap.Snippet)
		for _, phrase := range archivedBannerPhrases {
			if strings.Contains(haystack, phrase) {
				return 1.5
			}
		}
		return 0
	}
}

// authorityBonus log-scales inlink_count and bounds the result so a
// single highly-linked page cannot swamp the match score.
func authorityBonus(inlinkCount int) float64 {
	if inlinkCount <= 0 {
		return 0
	}
	bonus := math.Log1p(float64(inlinkCount)) * 0.2
	if bonus > 1.5 {
		bonus = 1.5
	}
	return bonus
}
