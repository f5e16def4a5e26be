// Package search implements the public search engine (spec §4.I):
// query-mode selection, the boolean AST, URL normalization and variant
// lookup, and the v1/v2/v3 ranking formulas, running against whichever
// execution tier the store's declared Capabilities allow.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"healtharchive/internal/apperrors"
	"healtharchive/internal/model"
	"healtharchive/internal/store"
)

// candidateLimit bounds how many rows the substring/boolean/fallback
// tiers pull from the store before scoring in process; plenty for a
// per-source government-site archive, and a real ceiling against a
// runaway query.
const candidateLimit = 5000

// Params is the validated input to Search (spec §4.I "Public
// contract"). Date bounds are already-parsed; ParseDate converts raw
// strings and reports malformed input as a ValidationError.
type Params struct {
	Q             string
	SourceCode    string
	Sort          string
	View          string
	IncludeNon2xx bool
	From          *time.Time
	To            *time.Time
	Language      string
	Page          int
	PageSize      int
}

// ParseDate parses an inclusive UTC date bound, reporting malformed
// input as a ValidationError per spec §4.I.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, apperrors.Validationf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t.UTC(), nil
}

// applyDefaults fills in the sort/view defaults the spec names, before
// Validate runs. Page/pageSize are NOT defaulted here: a caller-visible
// 0 must fail validation per spec §4.I's boundary behavior
// (`pageSize=0 → 422`); distinguishing "omitted" from "explicitly 0" is
// the HTTP layer's job (apply its own default before constructing
// Params), since an int zero value can't carry that distinction here.
func (p *Params) applyDefaults() {
	if p.Sort == "" {
		if strings.TrimSpace(p.Q) != "" {
			p.Sort = "relevance"
		} else {
			p.Sort = "newest"
		}
	}
	if p.View == "" {
		p.View = "snapshots"
	}
}

// Validate checks paging, sort, view, and language against the
// enumerations spec §4.I fixes, returning a ValidationError.
func (p Params) Validate() error {
	if p.Page < 1 {
		return apperrors.Validationf("page must be >= 1")
	}
	if p.PageSize < 1 || p.PageSize > 100 {
		return apperrors.Validationf("pageSize must be between 1 and 100")
	}
	if p.Sort != "relevance" && p.Sort != "newest" {
		return apperrors.Validationf("unknown sort %q", p.Sort)
	}
	if p.View != "snapshots" && p.View != "pages" {
		return apperrors.Validationf("unknown view %q", p.View)
	}
	if p.Language != "" && p.Language != "en" && p.Language != "fr" {
		return apperrors.Validationf("unknown language %q", p.Language)
	}
	if p.From != nil && p.To != nil && p.From.After(*p.To) {
		return apperrors.Validationf("from must not be after to")
	}
	return nil
}

// SnapshotSummary is one search result row (spec §6 `/api/search`
// response shape).
type SnapshotSummary struct {
	ID                 uuid.UUID `json:"id"`
	Title              string    `json:"title"`
	SourceCode         string    `json:"sourceCode"`
	SourceName         string    `json:"sourceName"`
	Language           string    `json:"language"`
	CaptureDate        string    `json:"captureDate"`
	OriginalURL        string    `json:"originalUrl"`
	Snippet            string    `json:"snippet"`
	RawSnapshotURL     string    `json:"rawSnapshotUrl"`
	NormalizedURLGroup string    `json:"normalizedUrlGroup,omitempty"`
	PageSnapshotsCount int       `json:"pageSnapshotsCount"`
}

// Response is the full `/api/search` payload.
type Response struct {
	Results  []SnapshotSummary
	Total    int
	Page     int
	PageSize int
}

// Engine orchestrates query parsing, candidate retrieval, ranking, and
// pagination against a Store.
type Engine struct {
	Store         *store.Store
	RankingVersion RankVersion
}

// New builds an Engine. rankingVersion should be "v1", "v2", or "v3"
// (config.SearchRankingVersion); unrecognized values fall back to v3.
func New(s *store.Store, rankingVersion string) *Engine {
	v := RankVersion(rankingVersion)
	if v != RankV1 && v != RankV2 && v != RankV3 {
		v = RankV3
	}
	return &Engine{Store: s, RankingVersion: v}
}

// Search runs the full pipeline: mode selection, candidate retrieval,
// scoring, status partitioning, and pagination (spec §4.I).
func (e *Engine) Search(ctx context.Context, p Params) (Response, error) {
	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return Response{}, err
	}

	filter := store.SnapshotFilter{
		IncludeNon2xx: p.IncludeNon2xx,
		From:          p.From,
		To:            p.To,
		Language:      p.Language,
	}
	if p.SourceCode != "" {
		src, err := e.Store.GetSourceByCode(ctx, p.SourceCode)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return Response{Results: []SnapshotSummary{}, Total: 0, Page: p.Page, PageSize: p.PageSize}, nil
			}
			return Response{}, err
		}
		filter.SourceID = &src.ID
	}

	candidates, terms, err := e.gatherCandidates(ctx, p, filter)
	if err != nil {
		return Response{}, err
	}

	sources, err := e.sourceLookup(ctx)
	if err != nil {
		return Response{}, err
	}

	if p.View == "pages" {
		return e.buildPagesView(p, candidates, terms, sources), nil
	}
	return e.buildSnapshotsView(p, candidates, terms, sources), nil
}

// gatherCandidates selects a mode and returns the matching snapshots
// plus the term list used for title-phrase/substring scoring.
func (e *Engine) gatherCandidates(ctx context.Context, p Params, filter store.SnapshotFilter) ([]model.Snapshot, []string, error) {
	q := strings.TrimSpace(p.Q)
	if q == "" {
		snaps, err := e.Store.FilteredSnapshots(ctx, filter, candidateLimit)
		return snaps, nil, err
	}

	switch SelectMode(q) {
	case ModeURL:
		snaps, err := e.gatherURLMode(ctx, q, filter)
		return snaps, nil, err
	case ModeBoolean:
		snaps, err := e.gatherBooleanMode(ctx, q, filter)
		return snaps, extractTerms(q), err
	default:
		snaps, err := e.gatherPlaintextMode(ctx, p, q, filter)
		return snaps, extractTerms(q), err
	}
}

func (e *Engine) gatherURLMode(ctx context.Context, q string, filter store.SnapshotFilter) ([]model.Snapshot, error) {
	raw := strings.TrimPrefix(q, "url:")
	seen := map[string]bool{}
	var all []model.Snapshot
	for _, variant := range URLVariants(raw) {
		group := NormalizeURL(variant)
		if seen[group] {
			continue
		}
		seen[group] = true
		snaps, err := e.Store.ListSnapshotsByGroup(ctx, group)
		if err != nil {
			return nil, err
		}
		all = append(all, snaps...)
	}
	return applyFilterInMemory(all, filter), nil
}

func (e *Engine) gatherBooleanMode(ctx context.Context, q string, filter store.SnapshotFilter) ([]model.Snapshot, error) {
	candidates, err := e.Store.FilteredSnapshots(ctx, filter, candidateLimit)
	if err != nil {
		return nil, err
	}
	ast := ParseBoolean(q)
	return filterByAST(candidates, ast), nil
}

func (e *Engine) gatherPlaintextMode(ctx context.Context, p Params, q string, filter store.SnapshotFilter) ([]model.Snapshot, error) {
	caps := e.Store.Capabilities

	if p.Sort == "relevance" && caps.FTS {
		snaps, err := e.Store.FTSSearch(ctx, q, filter, candidateLimit)
		if err != nil {
			return nil, err
		}
		if len(snaps) > 0 {
			return snaps, nil
		}
	}

	// Tokenized substring fallback: implicit AND across all terms,
	// applied to title ∨ snippet ∨ url (spec: "Fall back to tokenized
	// substring match if FTS yields zero results").
	candidates, err := e.Store.FilteredSnapshots(ctx, filter, candidateLimit)
	if err != nil {
		return nil, err
	}
	ast := buildImplicitAnd(extractTerms(q))
	matched := filterByAST(candidates, ast)
	if len(matched) > 0 || !caps.Trigram {
		return matched, nil
	}

	// Last-resort fuzzy pass (spec: "run a fuzzy pass... as a last
	// resort"), only available on Postgres with pg_trgm.
	return e.Store.TrigramSearch(ctx, q, filter, candidateLimit)
}

func applyFilterInMemory(snaps []model.Snapshot, f store.SnapshotFilter) []model.Snapshot {
	out := make([]model.Snapshot, 0, len(snaps))
	for _, s := range snaps {
		if f.SourceID != nil && s.SourceID != *f.SourceID {
			continue
		}
		if !f.IncludeNon2xx && !is2xxOrUnknown(s.StatusCode) {
			continue
		}
		if f.From != nil && s.CaptureTimestamp.Before(*f.From) {
			continue
		}
		if f.To != nil && s.CaptureTimestamp.After(*f.To) {
			continue
		}
		if f.Language != "" && string(s.Language) != f.Language {
			continue
		}
		out = append(out, s)
	}
	return out
}

func is2xxOrUnknown(status *int) bool {
	return status == nil || (*status >= 200 && *status < 300)
}

func filterByAST(snaps []model.Snapshot, ast Node) []model.Snapshot {
	out := make([]model.Snapshot, 0, len(snaps))
	for _, s := range snaps {
		if ast.Eval(s.Title, s.Snippet, s.URL) {
			out = append(out, s)
		}
	}
	return out
}

func extractTerms(q string) []string {
	var terms []string
	for _, tok := range tokenize(q) {
		switch {
		case tok == "(" || tok == ")":
			continue
		case strings.EqualFold(tok, "AND") || strings.EqualFold(tok, "OR") || strings.EqualFold(tok, "NOT"):
			continue
		default:
			text := strings.TrimPrefix(tok, "-")
			for _, prefix := range []string{"title:", "snippet:", "url:"} {
				text = strings.TrimPrefix(text, prefix)
			}
			if text != "" {
				terms = append(terms, text)
			}
		}
	}
	return terms
}

func buildImplicitAnd(terms []string) Node {
	var node Node
	for _, t := range terms {
		term := termNode{field: FieldAny, text: t}
		if node == nil {
			node = term
		} else {
			node = andNode{node, term}
		}
	}
	if node == nil {
		return termNode{field: FieldAny, text: ""}
	}
	return node
}

// statusPartition orders 2xx first, then 3xx, then unknown, then
// 4xx/5xx (spec §4.I: "When includeNon2xx=true, results are
// partitioned").
func statusPartition(status *int) int {
	switch {
	case status == nil:
		return 2
	case *status >= 200 && *status < 300:
		return 0
	case *status >= 300 && *status < 400:
		return 1
	default:
		return 3
	}
}

func (e *Engine) scoreAndSort(p Params, snaps []model.Snapshot, terms []string, inlinks map[string]int) []model.Snapshot {
	type scored struct {
		snap  model.Snapshot
		score float64
	}
	rows := make([]scored, len(snaps))
	for i, s := range snaps {
		in := scoreInput{
			snapshot:    s,
			terms:       terms,
			matchScore:  matchScoreSubstring(s, terms),
			inlinkCount: inlinks[s.NormalizedURLGroup],
		}
		rows[i] = scored{snap: s, score: Score(in, e.RankingVersion)}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]

		if p.IncludeNon2xx {
			pa, pb := statusPartition(a.snap.StatusCode), statusPartition(b.snap.StatusCode)
			if pa != pb {
				return pa < pb
			}
		}

		if p.Sort == "relevance" {
			if a.score != b.score {
				return a.score > b.score
			}
		}

		if !a.snap.CaptureTimestamp.Equal(b.snap.CaptureTimestamp) {
			return a.snap.CaptureTimestamp.After(b.snap.CaptureTimestamp)
		}
		return a.snap.ID.String() > b.snap.ID.String()
	})

	out := make([]model.Snapshot, len(rows))
	for i, r := range rows {
		out[i] = r.snap
	}
	return out
}

func (e *Engine) buildSnapshotsView(p Params, candidates []model.Snapshot, terms []string, sources map[uuid.UUID]model.Source) Response {
	inlinks := e.inlinkCountsFor(candidates)
	ordered := e.scoreAndSort(p, candidates, terms, inlinks)

	total := len(ordered)
	page := paginate(ordered, p.Page, p.PageSize)

	results := make([]SnapshotSummary, len(page))
	for i, s := range page {
		results[i] = toSummary(s, sources, 0)
	}
	return Response{Results: results, Total: total, Page: p.Page, PageSize: p.PageSize}
}

func (e *Engine) buildPagesView(p Params, candidates []model.Snapshot, terms []string, sources map[uuid.UUID]model.Source) Response {
	groups := map[string][]model.Snapshot{}
	var order []string
	for _, s := range candidates {
		key := s.NormalizedURLGroup
		if key == "" {
			key = stripQueryAndFragment(s.URL)
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], s)
	}

	latest := make([]model.Snapshot, 0, len(order))
	counts := make(map[string]int, len(order))
	for _, key := range order {
		members := groups[key]
		sort.SliceStable(members, func(i, j int) bool {
			if !members[i].CaptureTimestamp.Equal(members[j].CaptureTimestamp) {
				return members[i].CaptureTimestamp.After(members[j].CaptureTimestamp)
			}
			return members[i].ID.String() > members[j].ID.String()
		})
		latest = append(latest, members[0])
		counts[members[0].ID.String()] = len(members)
	}

	inlinks := e.inlinkCountsFor(latest)
	ordered := e.scoreAndSort(p, latest, terms, inlinks)

	total := len(ordered)
	page := paginate(ordered, p.Page, p.PageSize)

	results := make([]SnapshotSummary, len(page))
	for i, s := range page {
		results[i] = toSummary(s, sources, counts[s.ID.String()])
	}
	return Response{Results: results, Total: total, Page: p.Page, PageSize: p.PageSize}
}

func (e *Engine) inlinkCountsFor(snaps []model.Snapshot) map[string]int {
	groups := make([]string, 0, len(snaps))
	seen := map[string]bool{}
	for _, s := range snaps {
		if !seen[s.NormalizedURLGroup] {
			seen[s.NormalizedURLGroup] = true
			groups = append(groups, s.NormalizedURLGroup)
		}
	}
	counts, err := e.Store.InlinkCounts(context.Background(), groups)
	if err != nil {
		return map[string]int{}
	}
	return counts
}

func (e *Engine) sourceLookup(ctx context.Context) (map[uuid.UUID]model.Source, error) {
	srcs, err := e.Store.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]model.Source, len(srcs))
	for _, s := range srcs {
		out[s.ID] = s
	}
	return out, nil
}

func paginate[T any](items []T, page, pageSize int) []T {
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func toSummary(s model.Snapshot, sources map[uuid.UUID]model.Source, pageCount int) SnapshotSummary {
	src := sources[s.SourceID]
	return SnapshotSummary{
		ID:                 s.ID,
		Title:              s.Title,
		SourceCode:         src.Code,
		SourceName:         src.Name,
		Language:           string(s.Language),
		CaptureDate:        s.CaptureTimestamp.UTC().Format(time.RFC3339),
		OriginalURL:        s.URL,
		Snippet:            s.Snippet,
		RawSnapshotURL:     fmt.Sprintf("/api/snapshots/raw/%s", s.ID),
		NormalizedURLGroup: s.NormalizedURLGroup,
		PageSnapshotsCount: pageCount,
	}
}

func stripQueryAndFragment(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
