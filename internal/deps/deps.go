package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"wikiseed/internal/config"
)

// Requirement defines an external binary a job kind shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// LookPathFunc resolves a command name to an executable path.
type LookPathFunc func(string) (string, error)

// KindRequirements lists the command binaries configured for the given kinds.
// Kinds without a command are skipped; cleanup runs in-process when unset.
// Kinds that are not in the only list are marked optional.
func KindRequirements(cfg *config.Config, only []string) []Requirement {
	if cfg == nil {
		return nil
	}
	wanted := make(map[string]bool, len(only))
	for _, kind := range only {
		wanted[strings.ToLower(strings.TrimSpace(kind))] = true
	}
	var reqs []Requirement
	for _, kind := range cfg.KindNames() {
		policy := cfg.Kind(kind)
		if len(policy.Command) == 0 {
			continue
		}
		reqs = append(reqs, Requirement{
			Name:        kind,
			Command:     policy.Command[0],
			Description: fmt.Sprintf("Runs %s jobs", kind),
			Optional:    len(wanted) > 0 && !wanted[kind],
		})
	}
	return reqs
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	return CheckBinariesWith(exec.LookPath, requirements)
}

// CheckBinariesWith is CheckBinaries with an injectable resolver.
func CheckBinariesWith(lookPath LookPathFunc, requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch {
		case cmd == "":
			status.Detail = "command not configured"
		default:
			if path, err := lookPath(cmd); err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", cmd)
			} else {
				status.Available = true
				status.Detail = path
			}
		}
		results = append(results, status)
	}
	return results
}

// Missing returns the required statuses that are unavailable.
func Missing(statuses []Status) []Status {
	var out []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			out = append(out, s)
		}
	}
	return out
}
