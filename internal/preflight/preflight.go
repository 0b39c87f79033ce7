package preflight

import (
	"context"

	"wikiseed/internal/config"
	"wikiseed/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Detail   string
	Required bool
}

// RunAll executes every applicable preflight check for the given config.
// kinds narrows which stage binaries are required; empty means all of them.
func RunAll(ctx context.Context, cfg *config.Config, kinds []string) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		required(CheckDirectoryAccess("Data directory", cfg.Paths.DataDir)),
		required(CheckDirectoryAccess("Log directory", cfg.Paths.LogDir)),
		required(CheckDirectoryAccess("Storage directory", cfg.Paths.StorageDir)),
	}

	for _, status := range deps.CheckBinaries(deps.KindRequirements(cfg, kinds)) {
		results = append(results, binaryResult(status))
	}

	if cfg.Notifications.NtfyTopic != "" {
		results = append(results, CheckNtfy(ctx, cfg.Notifications.NtfyTopic))
	}
	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Required && !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

func required(r Result) Result {
	r.Required = true
	return r
}

func binaryResult(status deps.Status) Result {
	name := status.Name + " command"
	if status.Available {
		return Result{Name: name, Passed: true, Detail: status.Detail, Required: !status.Optional}
	}
	return Result{Name: name, Detail: status.Detail, Required: !status.Optional}
}
