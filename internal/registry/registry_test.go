package registry

import (
	"testing"
	"time"

	"healtharchive/internal/model"
)

func TestLoadDefaultsIncludeHC(t *testing.T) {
	r, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	tpl, ok := r.Get("hc")
	if !ok {
		t.Fatalf("expected default template for source code 'hc'")
	}
	if len(tpl.DefaultSeeds) == 0 {
		t.Fatalf("expected hc template to have default seeds")
	}
}

func TestBuildJobNameSubstitutesDate(t *testing.T) {
	at := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	got := BuildJobName("hc-{yyyymmdd}", at)
	if got != "hc-20260305" {
		t.Fatalf("expected hc-20260305, got %s", got)
	}
}

func TestValidateAdaptiveWorkersRequiresMonitoring(t *testing.T) {
	opts := model.ToolOptions{EnableAdaptiveWorkers: true}
	if err := Validate(opts); err == nil {
		t.Fatalf("expected validation error when adaptive workers enabled without monitoring")
	}

	opts.EnableMonitoring = true
	if err := Validate(opts); err != nil {
		t.Fatalf("expected no error once monitoring enabled, got %v", err)
	}
}

func TestValidateVPNRotationRequiresMonitoringAndCommand(t *testing.T) {
	opts := model.ToolOptions{EnableVPNRotation: true}
	if err := Validate(opts); err == nil {
		t.Fatalf("expected validation error: vpn rotation without monitoring")
	}

	opts.EnableMonitoring = true
	if err := Validate(opts); err == nil {
		t.Fatalf("expected validation error: vpn rotation without connect command")
	}

	opts.VPNConnectCommand = "connect.sh"
	if err := Validate(opts); err != nil {
		t.Fatalf("expected no error once command set, got %v", err)
	}
}

func TestResolveConfigRequiresSeeds(t *testing.T) {
	tpl := Template{Code: "empty"}
	if _, err := ResolveConfig(tpl, Overrides{}); err == nil {
		t.Fatalf("expected error when no seeds are configured")
	}
}

func TestResolveConfigMergesOverrides(t *testing.T) {
	tpl := Template{
		Code:         "hc",
		DefaultSeeds: []string{"https://example.ca"},
	}
	cfg, err := ResolveConfig(tpl, Overrides{Seeds: []string{"https://override.ca"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Seeds) != 1 || cfg.Seeds[0] != "https://override.ca" {
		t.Fatalf("expected override seeds to win, got %v", cfg.Seeds)
	}
}
