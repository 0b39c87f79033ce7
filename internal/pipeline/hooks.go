package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"wikiseed/internal/grouping"
	"wikiseed/internal/logging"
	"wikiseed/internal/queue"
	"wikiseed/internal/services"
	"wikiseed/internal/stage"
)

// Hooks records handler results in the grouping manager. Every step is an
// upsert or a no-op on repeat, so a retried attempt replays safely.
type Hooks struct {
	grouping *grouping.Manager
	logger   *slog.Logger
}

// NewHooks builds completion hooks backed by manager.
func NewHooks(manager *grouping.Manager, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Hooks{grouping: manager, logger: logging.NewComponentLogger(logger, "pipeline")}
}

// AfterExecute dispatches on the job kind. Kinds without a hook pass through.
func (h *Hooks) AfterExecute(ctx context.Context, job *queue.Job, result stage.Result) error {
	switch job.Kind {
	case queue.KindFetch:
		return h.registerFetched(ctx, job, result.Payload)
	case queue.KindBundle:
		return h.sealBundle(ctx, job, result.Payload)
	default:
		return nil
	}
}

func (h *Hooks) registerFetched(ctx context.Context, job *queue.Job, payload map[string]any) error {
	path := payloadString(payload, "local_path")
	if path == "" {
		return nil
	}
	size, ok := payloadInt64(payload, "size_bytes")
	if !ok {
		info, err := os.Stat(path)
		if err != nil {
			return services.Wrap(services.ErrValidation, "fetch", "register", "fetched file missing", err)
		}
		size = info.Size()
	}
	key := payloadString(payload, "grouping_key")
	if key == "" {
		key = job.Target
	}
	verification := grouping.VerificationUnverified
	if verified, ok := payload["verified"].(bool); ok {
		verification = grouping.VerificationMismatch
		if verified {
			verification = grouping.VerificationVerified
		}
	}

	res, err := h.grouping.RegisterResource(ctx, grouping.NewResource{
		GroupingKey:        key,
		Path:               path,
		SizeBytes:          size,
		MD5:                payloadString(payload, "md5"),
		SHA1:               payloadString(payload, "sha1"),
		VerificationStatus: verification,
	})
	if err != nil {
		return fmt.Errorf("register fetched resource: %w", err)
	}
	logging.WithContext(ctx, h.logger).Info("resource registered",
		logging.Int64("resource_id", res.ID),
		logging.String("grouping_key", res.GroupingKey),
		logging.Int64("size_bytes", res.SizeBytes),
		logging.String(logging.FieldEventType, "resource_registered"),
	)
	return nil
}

func (h *Hooks) sealBundle(ctx context.Context, job *queue.Job, payload map[string]any) error {
	name := payloadString(payload, "bundle")
	if name == "" {
		return nil
	}
	classification := payloadString(payload, "classification")
	if classification == "" {
		classification = "cycle"
	}
	members, err := payloadIDs(payload, "members")
	if err != nil {
		return services.Wrap(services.ErrValidation, "bundle", "members", "malformed member list", err)
	}

	bundle, err := h.grouping.CreateBundle(ctx, name, classification)
	if err != nil {
		return fmt.Errorf("create bundle %q: %w", name, err)
	}
	if bundle.BuildStatus != grouping.BuildBuilt {
		for _, id := range members {
			if _, err := h.grouping.Link(ctx, id, bundle.ID); err != nil {
				return fmt.Errorf("link resource %d into %q: %w", id, name, err)
			}
		}
	}
	artifact := payloadString(payload, "artifact_path")
	if err := h.grouping.SealBundle(ctx, bundle.ID, artifact); err != nil {
		return fmt.Errorf("seal bundle %q: %w", name, err)
	}
	logging.WithContext(ctx, h.logger).Info("bundle sealed",
		logging.String("bundle", name),
		logging.Int("members", len(members)),
		logging.String("artifact_path", artifact),
		logging.String(logging.FieldEventType, "bundle_sealed"),
	)
	return nil
}

func payloadString(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func payloadInt64(payload map[string]any, key string) (int64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

func payloadIDs(payload map[string]any, key string) ([]int64, error) {
	raw, ok := payload[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch list := raw.(type) {
	case []int64:
		return list, nil
	case []any:
		ids := make([]int64, 0, len(list))
		for i, item := range list {
			id, ok := payloadInt64(map[string]any{"id": item}, "id")
			if !ok || id <= 0 {
				return nil, fmt.Errorf("member %d is not a resource id: %v", i, item)
			}
			ids = append(ids, id)
		}
		return ids, nil
	default:
		return nil, fmt.Errorf("%s must be a list of resource ids", key)
	}
}
