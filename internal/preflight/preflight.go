package preflight

import (
	"context"

	"pickline/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunServer executes the checks that matter to picklined.
func RunServer(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	return []Result{
		CheckDirectoryAccess("Data directory", cfg.Server.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Server.LogDir),
		CheckOrdersFromConfig(ctx, cfg),
		CheckNotificationsFromConfig(ctx, cfg),
	}
}

// RunDevice executes the checks that matter to a handheld running the agent.
func RunDevice(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	return []Result{
		CheckDirectoryAccess("Device data directory", cfg.Device.DataDir),
		CheckServerFromConfig(ctx, cfg),
	}
}

// Failed returns only the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
