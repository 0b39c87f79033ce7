package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"wikiseed/internal/config"
	"wikiseed/internal/database"
	"wikiseed/internal/logging"
	"wikiseed/internal/notifications"
	"wikiseed/internal/queue"
	"wikiseed/internal/services"
)

// Band is the admission state derived from storage usage.
type Band string

const (
	BandNormal        Band = "normal"
	BandCleanupActive Band = "cleanup_active"
	BandPaused        Band = "paused"
)

// CleanupTarget is the exclusive target of the cleanup job admission enqueues.
const CleanupTarget = "storage"

// ErrSafetyMargin cancels an in-flight job when free space drops below the
// configured floor. It is transient so the job is retried after cleanup.
var ErrSafetyMargin = fmt.Errorf("storage safety margin breached: %w", services.ErrTransient)

// Usage is a single storage probe result.
type Usage struct {
	Path        string
	TotalBytes  uint64
	FreeBytes   uint64
	UsedPercent float64
}

// StateStore persists the last observed band.
type StateStore interface {
	State(ctx context.Context, key string) (string, bool, error)
	SwapState(ctx context.Context, key, value string) (string, bool, error)
}

// Enqueuer accepts the cleanup job.
type Enqueuer interface {
	Enqueue(ctx context.Context, job queue.NewJob) (int64, error)
}

// Controller evaluates storage admission for gated kinds.
type Controller struct {
	cfg      *config.Config
	state    StateStore
	jobs     Enqueuer
	notifier notifications.Service
	logger   *slog.Logger
	probe    Probe
	interval time.Duration
}

// Option customizes a Controller.
type Option func(*Controller)

// WithProbe replaces the statfs probe.
func WithProbe(probe Probe) Option {
	return func(c *Controller) {
		if probe != nil {
			c.probe = probe
		}
	}
}

// WithCheckInterval overrides admission.check_interval for Watch.
func WithCheckInterval(interval time.Duration) Option {
	return func(c *Controller) {
		if interval > 0 {
			c.interval = interval
		}
	}
}

// New constructs a Controller. A nil notifier disables alerts.
func New(cfg *config.Config, state StateStore, jobs Enqueuer, notifier notifications.Service, logger *slog.Logger, opts ...Option) *Controller {
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	c := &Controller{
		cfg:      cfg,
		state:    state,
		jobs:     jobs,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "admission"),
		probe:    StatfsProbe,
		interval: time.Duration(cfg.Admission.CheckInterval) * time.Second,
	}
	if c.interval <= 0 {
		c.interval = 30 * time.Second
	}
	for _, opt := range opts {
		opt(c)
	}
	if cfg.Admission.Enabled && cfg.AdmissionInverted() {
		logging.WarnWithContext(c.logger, "cleanup trigger is not below pause trigger; cleanup band is empty", "admission_thresholds_inverted",
			logging.Float64("cleanup_trigger_percent", cfg.Admission.CleanupTriggerPercent),
			logging.Float64("pause_trigger_percent", cfg.Admission.PauseTriggerPercent),
			logging.String(logging.FieldErrorHint, "set admission.cleanup_trigger_percent below pause_trigger_percent"),
			logging.String(logging.FieldImpact, "cleanup only starts once gated kinds are already paused"),
		)
	}
	return c
}

// Usage probes the storage volume.
func (c *Controller) Usage() (Usage, error) {
	path := c.cfg.Paths.StorageDir
	total, free, err := c.probe(path)
	if err != nil {
		return Usage{}, services.Wrap(services.ErrTransient, "admission", "probe", path, err)
	}
	if total == 0 {
		return Usage{}, services.Wrap(services.ErrTransient, "admission", "probe", "volume reported zero capacity", nil)
	}
	if free > total {
		free = total
	}
	return Usage{
		Path:        path,
		TotalBytes:  total,
		FreeBytes:   free,
		UsedPercent: float64(total-free) / float64(total) * 100,
	}, nil
}

// State probes storage and returns the current band.
func (c *Controller) State(ctx context.Context) (Band, Usage, error) {
	if err := ctx.Err(); err != nil {
		return "", Usage{}, err
	}
	usage, err := c.Usage()
	if err != nil {
		return "", Usage{}, err
	}
	return Classify(c.cfg, usage), usage, nil
}

// LastBand returns the band most recently recorded by any worker.
func (c *Controller) LastBand(ctx context.Context) (Band, bool, error) {
	value, ok, err := c.state.State(ctx, database.StateAdmissionBand)
	if err != nil || !ok {
		return BandNormal, false, err
	}
	return Band(value), true, nil
}

// Classify maps a probe result onto a band. The safety margin forces Paused
// regardless of percentages.
func Classify(cfg *config.Config, usage Usage) Band {
	if margin := cfg.SafetyMarginBytes(); margin > 0 && usage.FreeBytes < margin {
		return BandPaused
	}
	switch {
	case usage.UsedPercent >= cfg.Admission.PauseTriggerPercent:
		return BandPaused
	case usage.UsedPercent >= cfg.Admission.CleanupTriggerPercent:
		return BandCleanupActive
	default:
		return BandNormal
	}
}

// Evaluate decides whether a gated kind may claim now. Outside the normal
// band it makes sure a cleanup job exists. The band is swapped into
// system_state and only the caller that observed the change into Paused
// publishes the alert.
func (c *Controller) Evaluate(ctx context.Context) (bool, Band, error) {
	if !c.cfg.Admission.Enabled {
		return true, BandNormal, nil
	}
	band, usage, err := c.State(ctx)
	if err != nil {
		return false, "", err
	}

	if band != BandNormal {
		if err := c.ensureCleanup(ctx, band, usage); err != nil {
			return false, band, err
		}
	}

	previous, changed, err := c.state.SwapState(ctx, database.StateAdmissionBand, string(band))
	if err != nil {
		return false, band, err
	}
	if changed {
		c.transition(ctx, Band(previous), band, usage)
	}
	return band != BandPaused, band, nil
}

func (c *Controller) ensureCleanup(ctx context.Context, band Band, usage Usage) error {
	id, err := c.jobs.Enqueue(ctx, queue.NewJob{
		Kind:   queue.KindCleanup,
		Target: CleanupTarget,
		Params: map[string]any{
			"band":         string(band),
			"used_percent": usage.UsedPercent,
			"free_bytes":   usage.FreeBytes,
		},
	})
	if errors.Is(err, queue.ErrDuplicateJob) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue cleanup: %w", err)
	}
	c.logger.Info("cleanup job enqueued",
		logging.Int64(logging.FieldJobID, id),
		logging.String("band", string(band)),
		logging.Float64("used_percent", usage.UsedPercent),
		logging.String(logging.FieldEventType, "admission_cleanup_enqueued"),
	)
	return nil
}

func (c *Controller) transition(ctx context.Context, previous, band Band, usage Usage) {
	attrs := []logging.Attr{
		logging.String("band", string(band)),
		logging.String("previous_band", string(previous)),
		logging.Float64("used_percent", usage.UsedPercent),
		logging.Uint64("free_bytes", usage.FreeBytes),
	}
	switch {
	case band == BandPaused:
		logging.WarnWithContext(c.logger, "storage admission paused", "admission_paused", append(attrs,
			logging.Alert("storage"),
			logging.String(logging.FieldErrorHint, "free space under "+c.cfg.Paths.StorageDir+" or raise admission thresholds"),
			logging.String(logging.FieldImpact, "gated job kinds stop claiming until usage drops"),
		)...)
		err := c.notifier.Publish(ctx, notifications.EventAdmissionPaused, notifications.Payload{
			"used_percent": usage.UsedPercent,
			"free_bytes":   usage.FreeBytes,
			"path":         usage.Path,
		})
		if err != nil {
			logging.WarnWithContext(c.logger, "paused alert failed", "notification_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "operator is not notified of the pause"),
			)
		}
	case previous == BandPaused:
		c.logger.Info("storage admission resumed", logging.Args(append(attrs,
			logging.String(logging.FieldEventType, "admission_resumed"))...)...)
	default:
		c.logger.Info("storage admission band changed", logging.Args(append(attrs,
			logging.String(logging.FieldEventType, "admission_band_changed"))...)...)
	}
}

// Describe renders usage for log lines and CLI output.
func (u Usage) Describe() string {
	return fmt.Sprintf("%.1f%% used, %s free of %s", u.UsedPercent, humanize.IBytes(u.FreeBytes), humanize.IBytes(u.TotalBytes))
}
