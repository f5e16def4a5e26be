package registry

import (
	"context"
	"fmt"
	"time"

	"healtharchive/internal/model"
	"healtharchive/internal/store"
)

// CreateJobForSource implements the `create_job_for_source(code,
// overrides)` operation: ensures the Source row exists, computes
// job_name and output_dir, and inserts a queued ArchiveJob.
func CreateJobForSource(ctx context.Context, s *store.Store, r *Registry, archiveRoot, code string, ov Overrides) (model.ArchiveJob, error) {
	tpl, ok := r.Get(code)
	if !ok {
		return model.ArchiveJob{}, fmt.Errorf("unknown source code %q", code)
	}

	src, err := s.UpsertSource(ctx, tpl.Code, tpl.Name, tpl.BaseURL)
	if err != nil {
		return model.ArchiveJob{}, fmt.Errorf("ensure source %s: %w", code, err)
	}

	cfg, err := ResolveConfig(tpl, ov)
	if err != nil {
		return model.ArchiveJob{}, err
	}

	now := time.Now().UTC()
	name := BuildJobName(tpl.NameTemplate, now)
	outputDir := fmt.Sprintf("%s/%s/%s__%s", archiveRoot, tpl.Code, now.Format("20060102T150405Z"), name)

	return s.CreateJob(ctx, src.ID, name, outputDir, cfg)
}
