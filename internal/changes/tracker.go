// Package changes computes change records between adjacent captures
// of the same normalized URL group (spec §4.H), off the request path:
// either right after a job finishes indexing, or as a scheduled sweep
// over recently touched groups.
package changes

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"healtharchive/internal/model"
	"healtharchive/internal/store"
)

// Tracker computes and persists SnapshotChange records.
type Tracker struct {
	Store        *store.Store
	ArtifactRoot string
	Logger       zerolog.Logger
}

// New builds a Tracker bound to s, writing diff artifacts under
// artifactRoot (empty disables artifact file writes; summary stats are
// always persisted regardless).
func New(s *store.Store, artifactRoot string, logger zerolog.Logger) *Tracker {
	return &Tracker{Store: s, ArtifactRoot: artifactRoot, Logger: logger}
}

// TrackGroup computes change records for every adjacent pair of
// snapshots in the given normalized URL group, skipping pairs already
// recorded (keyed by from/to snapshot id, the idempotence invariant
// spec §4.H names).
func (t *Tracker) TrackGroup(ctx context.Context, group string) (int, error) {
	snaps, err := t.Store.ListSnapshotsByGroup(ctx, group)
	if err != nil {
		return 0, fmt.Errorf("list snapshots for group %s: %w", group, err)
	}
	if len(snaps) < 2 {
		return 0, nil
	}

	created := 0
	for i := 0; i < len(snaps)-1; i++ {
		from, to := snaps[i], snaps[i+1]
		ok, err := t.trackPair(ctx, group, from, to)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// TrackGroups runs TrackGroup over each group, bounded by cap (spec
// §4.D step 6's "bounded by a batch cap"). It logs and continues past
// a single group's failure rather than aborting the whole sweep.
func (t *Tracker) TrackGroups(ctx context.Context, groups []string, batchCap int) (int, error) {
	if batchCap > 0 && len(groups) > batchCap {
		t.Logger.Warn().Int("groups", len(groups)).Int("cap", batchCap).
			Msg("change tracker batch cap exceeded, truncating this pass")
		groups = groups[:batchCap]
	}

	total := 0
	for _, g := range groups {
		n, err := t.TrackGroup(ctx, g)
		if err != nil {
			t.Logger.Error().Err(err).Str("group", g).Msg("change tracking failed for group")
			continue
		}
		total += n
	}
	return total, nil
}

func (t *Tracker) trackPair(ctx context.Context, group string, from, to model.Snapshot) (bool, error) {
	change := model.SnapshotChange{
		FromSnapshotID:     from.ID,
		ToSnapshotID:       to.ID,
		NormalizedURLGroup: group,
		FromTimestamp:      from.CaptureTimestamp,
		ToTimestamp:        to.CaptureTimestamp,
	}

	if from.ContentHash != "" && from.ContentHash == to.ContentHash {
		// Invariant I5: equal content hashes must yield sections_changed=0.
		change.SectionsChanged = 0
		change.LinesChanged = 0
	} else {
		summary := diffContentText(from.ContentText, to.ContentText)
		change.SectionsChanged = summary.SectionsChanged
		change.LinesChanged = summary.LinesChanged
		if t.ArtifactRoot != "" && summary.Artifact != "" {
			path, err := t.writeArtifact(from.ID.String(), to.ID.String(), summary.Artifact)
			if err != nil {
				t.Logger.Warn().Err(err).Msg("failed to write diff artifact, continuing without one")
			} else {
				change.DiffArtifactPath = path
			}
		}
	}

	return t.Store.InsertChangeIfAbsent(ctx, change)
}

func (t *Tracker) writeArtifact(fromID, toID, content string) (string, error) {
	name := fmt.Sprintf("%s_%s.diff", fromID, toID)
	path := filepath.Join(t.ArtifactRoot, name)
	if err := writeFile(path, content); err != nil {
		return "", err
	}
	return path, nil
}
