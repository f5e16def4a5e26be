// Package registry holds per-source job templates: the seeds, tool
// options, and naming convention used to build a new ArchiveJob for a
// recognized source code (spec §4.B).
package registry

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"healtharchive/internal/apperrors"
	"healtharchive/internal/model"
)

// Template is the per-source job template. NameTemplate supports a
// single "{yyyymmdd}" placeholder substituted with the job's queue
// date.
type Template struct {
	Code                   string            `yaml:"code"`
	Name                   string            `yaml:"name"`
	BaseURL                string            `yaml:"baseUrl"`
	NameTemplate           string            `yaml:"nameTemplate"`
	DefaultSeeds           []string          `yaml:"defaultSeeds"`
	DefaultPassthroughArgs []string          `yaml:"defaultPassthroughArgs"`
	DefaultToolOptions     model.ToolOptions `yaml:"defaultToolOptions"`
}

// Registry is the loaded set of source templates, keyed by source code.
type Registry struct {
	templates map[string]Template
}

type fileFormat struct {
	Sources []Template `yaml:"sources"`
}

// defaultTemplates seeds the registry with the handful of sources
// HealthArchive ships against out of the box; operators can extend or
// override these via the YAML file at config.JobRegistryPath.
func defaultTemplates() []Template {
	return []Template{
		{
			Code:         "hc",
			Name:         "Health Canada",
			BaseURL:      "https://www.canada.ca/en/health-canada.html",
			NameTemplate: "hc-{yyyymmdd}",
			DefaultSeeds: []string{"https://www.canada.ca/en/health-canada.html"},
			DefaultToolOptions: model.ToolOptions{
				InitialWorkers: 4,
				Cleanup:        true,
				LogLevel:       "info",
			},
		},
		{
			Code:         "phac",
			Name:         "Public Health Agency of Canada",
			BaseURL:      "https://www.canada.ca/en/public-health.html",
			NameTemplate: "phac-{yyyymmdd}",
			DefaultSeeds: []string{"https://www.canada.ca/en/public-health.html"},
			DefaultToolOptions: model.ToolOptions{
				InitialWorkers: 4,
				Cleanup:        true,
				LogLevel:       "info",
			},
		},
	}
}

// Load builds a Registry from the built-in defaults, optionally
// overlaid with a YAML file (spec §4.B). A missing path is not an
// error; an unreadable or malformed existing file is.
func Load(path string) (*Registry, error) {
	r := &Registry{templates: map[string]Template{}}
	for _, t := range defaultTemplates() {
		r.templates[t.Code] = t
	}

	if strings.TrimSpace(path) == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("read job registry file %s: %w", path, err)
	}

	var parsed fileFormat
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse job registry file %s: %w", path, err)
	}

	for _, t := range parsed.Sources {
		if strings.TrimSpace(t.Code) == "" {
			return nil, fmt.Errorf("job registry file %s: source entry missing code", path)
		}
		r.templates[t.Code] = t
	}

	return r, nil
}

// Get returns the template for a source code.
func (r *Registry) Get(code string) (Template, bool) {
	t, ok := r.templates[code]
	return t, ok
}

// Codes returns all known source codes, for admin listing.
func (r *Registry) Codes() []string {
	out := make([]string, 0, len(r.templates))
	for c := range r.templates {
		out = append(out, c)
	}
	return out
}

// Validate enforces the cross-field rules from spec §4.B:
// adaptive_workers requires monitoring; vpn_rotation requires
// monitoring and a non-empty vpn_connect_command.
func Validate(opts model.ToolOptions) error {
	if opts.EnableAdaptiveWorkers && !opts.EnableMonitoring {
		return apperrors.Validationf("enableAdaptiveWorkers requires enableMonitoring")
	}
	if opts.EnableVPNRotation {
		if !opts.EnableMonitoring {
			return apperrors.Validationf("enableVpnRotation requires enableMonitoring")
		}
		if strings.TrimSpace(opts.VPNConnectCommand) == "" {
			return apperrors.Validationf("enableVpnRotation requires a non-empty vpnConnectCommand")
		}
	}
	return nil
}

// BuildJobName substitutes the "{yyyymmdd}" placeholder in a template's
// NameTemplate with the given reference time, formatted as UTC.
func BuildJobName(nameTemplate string, at time.Time) string {
	date := at.UTC().Format("20060102")
	return strings.ReplaceAll(nameTemplate, "{yyyymmdd}", date)
}

// Overrides lets a caller of CreateJobForSource replace any subset of
// a template's defaults.
type Overrides struct {
	Seeds           []string
	ToolOptions     *model.ToolOptions
	PassthroughArgs []string
}

// ResolveConfig merges a template's defaults with caller overrides and
// validates the resulting ToolOptions. It does not touch the store; the
// caller (CreateJobForSource in create.go) is responsible for computing
// the job name/output dir and persisting the row.
func ResolveConfig(tpl Template, ov Overrides) (model.JobConfig, error) {
	seeds := tpl.DefaultSeeds
	if len(ov.Seeds) > 0 {
		seeds = ov.Seeds
	}
	if len(seeds) == 0 {
		return model.JobConfig{}, apperrors.Validationf("source %s has no seeds configured", tpl.Code)
	}

	toolOpts := tpl.DefaultToolOptions
	if ov.ToolOptions != nil {
		toolOpts = *ov.ToolOptions
	}
	if err := Validate(toolOpts); err != nil {
		return model.JobConfig{}, err
	}

	passthrough := tpl.DefaultPassthroughArgs
	if ov.PassthroughArgs != nil {
		passthrough = ov.PassthroughArgs
	}

	return model.JobConfig{
		Seeds:           seeds,
		ToolOptions:     toolOpts,
		PassthroughArgs: passthrough,
	}, nil
}
