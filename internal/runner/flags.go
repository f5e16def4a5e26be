package runner

import (
	"fmt"

	"healtharchive/internal/model"
)

// buildArgs translates a job's seeds, tool options, and passthrough
// args into the crawler CLI invocation spec §4.C describes: positional
// job identity, then flags derived from tool_options (only emitting
// flags whose enabling option is true), then a literal "--" separator,
// then passthrough_args verbatim.
func buildArgs(jobName string, seeds []string, opts model.ToolOptions, passthrough []string) []string {
	args := []string{jobName}
	args = append(args, seeds...)

	if opts.InitialWorkers > 0 {
		args = append(args, "--workers", fmt.Sprintf("%d", opts.InitialWorkers))
	}
	if opts.Cleanup {
		args = append(args, "--cleanup")
	}
	if opts.Overwrite {
		args = append(args, "--overwrite")
	}
	if opts.LogLevel != "" {
		args = append(args, "--log-level", opts.LogLevel)
	}

	if opts.EnableMonitoring {
		args = append(args, "--enable-monitoring")
		if opts.MonitorIntervalSeconds > 0 {
			args = append(args, "--monitor-interval", fmt.Sprintf("%d", opts.MonitorIntervalSeconds))
		}
		if opts.StallTimeoutMinutes > 0 {
			args = append(args, "--stall-timeout", fmt.Sprintf("%d", opts.StallTimeoutMinutes))
		}
		if opts.ErrorThresholdTimeout > 0 {
			args = append(args, "--error-threshold-timeout", fmt.Sprintf("%d", opts.ErrorThresholdTimeout))
		}
		if opts.ErrorThresholdHTTP > 0 {
			args = append(args, "--error-threshold-http", fmt.Sprintf("%d", opts.ErrorThresholdHTTP))
		}
	}

	if opts.EnableAdaptiveWorkers {
		args = append(args, "--enable-adaptive-workers")
		if opts.MinWorkers > 0 {
			args = append(args, "--min-workers", fmt.Sprintf("%d", opts.MinWorkers))
		}
		if opts.MaxWorkerReductions > 0 {
			args = append(args, "--max-worker-reductions", fmt.Sprintf("%d", opts.MaxWorkerReductions))
		}
	}

	if opts.EnableVPNRotation {
		args = append(args, "--enable-vpn-rotation")
		args = append(args, "--vpn-connect-command", opts.VPNConnectCommand)
		if opts.MaxVPNRotations > 0 {
			args = append(args, "--max-vpn-rotations", fmt.Sprintf("%d", opts.MaxVPNRotations))
		}
		if opts.VPNRotationFrequencyMinutes > 0 {
			args = append(args, "--vpn-rotation-frequency", fmt.Sprintf("%d", opts.VPNRotationFrequencyMinutes))
		}
	}

	if opts.BackoffDelayMinutes > 0 {
		args = append(args, "--backoff-delay", fmt.Sprintf("%d", opts.BackoffDelayMinutes))
	}
	if opts.RelaxPerms {
		args = append(args, "--relax-perms")
	}

	args = append(args, "--")
	args = append(args, passthrough...)
	return args
}
