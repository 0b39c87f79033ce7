package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"

	"wikiseed/internal/admission"
	"wikiseed/internal/config"
	"wikiseed/internal/grouping"
	"wikiseed/internal/logging"
	"wikiseed/internal/queue"
	"wikiseed/internal/services"
	"wikiseed/internal/stage"
)

// ErrLockHeld is returned when another process is already cleaning up.
var ErrLockHeld = fmt.Errorf("cleanup lock held by another process: %w", services.ErrTransient)

// UsageProbe reports current storage usage. admission.Controller satisfies it.
type UsageProbe interface {
	Usage() (admission.Usage, error)
}

// Result is the outcome of one cleanup run.
type Result struct {
	Removed    []string
	FreedBytes int64
	Errors     []Error
	Reason     string
}

// Error pairs a resource path with its deletion error.
type Error struct {
	Path  string
	Error error
}

// Payload converts the result into the job result document.
func (r Result) Payload() map[string]any {
	errs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		errs = append(errs, e.Path+": "+e.Error.Error())
	}
	return map[string]any{
		"removed":     len(r.Removed),
		"freed_bytes": r.FreedBytes,
		"errors":      errs,
		"reason":      r.Reason,
	}
}

// Stop reasons recorded in the result.
const (
	ReasonBelowTrigger   = "below_trigger"
	ReasonNoCandidates   = "no_candidates"
	ReasonLimitReached   = "limit_reached"
	ReasonOnlyReferenced = "only_referenced"
	ReasonInterrupted    = "interrupted"
)

// Handler is the stage.Handler for the cleanup kind.
type Handler struct {
	cfg      *config.Config
	grouping *grouping.Manager
	usage    UsageProbe
	logger   *slog.Logger
	lockPath string
}

var _ stage.Handler = (*Handler)(nil)

// New constructs the cleanup handler.
func New(cfg *config.Config, manager *grouping.Manager, usage UsageProbe, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:      cfg,
		grouping: manager,
		usage:    usage,
		logger:   logging.NewComponentLogger(logger, "cleanup"),
		lockPath: cfg.CleanupLockPath(),
	}
}

// Execute runs one cleanup pass under the host lock.
func (h *Handler) Execute(ctx context.Context, job *queue.Job) (stage.Result, error) {
	lock := flock.New(h.lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return stage.Result{}, services.Wrap(services.ErrTransient, "cleanup", "lock", h.lockPath, err)
	}
	if !ok {
		return stage.Result{}, ErrLockHeld
	}
	defer func() {
		_ = lock.Unlock()
	}()

	result, err := h.Run(ctx)
	if err != nil {
		return stage.Result{}, err
	}
	if len(result.Removed) == 0 && len(result.Errors) > 0 {
		return stage.Result{}, services.Wrap(services.ErrTransient, "cleanup", "delete",
			fmt.Sprintf("%d deletion(s) failed, nothing removed", len(result.Errors)), result.Errors[0].Error)
	}
	return stage.Result{Payload: result.Payload()}, nil
}

// Run walks cleanup candidates until usage drops below the cleanup trigger.
// Callers other than Execute must hold the cleanup lock themselves.
func (h *Handler) Run(ctx context.Context) (Result, error) {
	logger := logging.WithContext(ctx, h.logger)
	var result Result

	below, err := h.belowTrigger()
	if err != nil {
		return result, err
	}
	if below {
		result.Reason = ReasonBelowTrigger
		logger.Info("storage already below cleanup trigger", logging.String(logging.FieldEventType, "cleanup_skipped"))
		return result, nil
	}

	limit := h.cfg.Cleanup.MaxDeletions
	candidates, err := h.grouping.CleanupCandidates(ctx, limit)
	if err != nil {
		return result, services.Wrap(services.ErrTransient, "cleanup", "candidates", "", err)
	}
	result.Reason = ReasonNoCandidates

	for _, candidate := range candidates {
		if ctx.Err() != nil {
			result.Reason = ReasonInterrupted
			break
		}
		if candidate.RefCount > 0 {
			// Candidates are ordered unreferenced first; everything after this is linked into a bundle.
			result.Reason = ReasonOnlyReferenced
			break
		}
		if limit > 0 && len(result.Removed) >= limit {
			result.Reason = ReasonLimitReached
			break
		}

		res, err := h.grouping.Delete(ctx, candidate.ID)
		switch {
		case errors.Is(err, grouping.ErrResourceInUse), errors.Is(err, grouping.ErrResourceNotFound):
			logger.Debug("candidate no longer deletable", logging.String("path", candidate.Path), logging.Error(err))
			continue
		case err != nil && res == nil:
			result.Errors = append(result.Errors, Error{Path: candidate.Path, Error: err})
			continue
		case err != nil:
			// Row is gone but the file remains on disk.
			result.Errors = append(result.Errors, Error{Path: res.Path, Error: err})
			logging.WarnWithContext(logger, "resource row removed but file remains", "cleanup_remove_failed",
				logging.String("path", res.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check storage_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}

		result.Removed = append(result.Removed, res.Path)
		result.FreedBytes += res.SizeBytes
		logger.Info("removed redundant copy",
			logging.String("path", res.Path),
			logging.String("grouping_key", res.GroupingKey),
			logging.Int64("size_bytes", res.SizeBytes),
			logging.String(logging.FieldEventType, "cleanup_removed"),
		)

		below, err := h.belowTrigger()
		if err != nil {
			logger.Debug("usage probe failed after deletion", logging.Error(err))
			continue
		}
		if below {
			result.Reason = ReasonBelowTrigger
			break
		}
	}

	logger.Info("cleanup finished",
		logging.Int("removed", len(result.Removed)),
		logging.String("freed", humanize.IBytes(uint64(max(result.FreedBytes, 0)))),
		logging.Int("errors", len(result.Errors)),
		logging.String("reason", result.Reason),
		logging.String(logging.FieldEventType, "cleanup_finished"),
	)
	return result, nil
}

func (h *Handler) belowTrigger() (bool, error) {
	if h.usage == nil {
		return false, nil
	}
	usage, err := h.usage.Usage()
	if err != nil {
		return false, err
	}
	return usage.UsedPercent < h.cfg.Admission.CleanupTriggerPercent &&
		usage.FreeBytes >= h.cfg.SafetyMarginBytes(), nil
}

// HealthCheck reports the cleanup handler as ready when the lock directory exists.
func (h *Handler) HealthCheck(context.Context) stage.Health {
	if _, err := os.Stat(filepath.Dir(h.lockPath)); err != nil {
		return stage.Unhealthy("cleanup", err.Error())
	}
	return stage.Healthy("cleanup")
}
