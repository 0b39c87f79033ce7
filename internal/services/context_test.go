package services_test

import (
	"context"
	"testing"

	"wikiseed/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobID(ctx, 42)
	ctx = services.WithKind(ctx, "fetch")
	ctx = services.WithWorkerID(ctx, "host-1:fetch")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.JobIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("unexpected job id: %v %v", id, ok)
	}
	if kind, ok := services.KindFromContext(ctx); !ok || kind != "fetch" {
		t.Fatalf("unexpected kind: %v %v", kind, ok)
	}
	if worker, ok := services.WorkerIDFromContext(ctx); !ok || worker != "host-1:fetch" {
		t.Fatalf("unexpected worker id: %v %v", worker, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithKind(ctx, "")
	ctx = services.WithWorkerID(ctx, "")
	if _, ok := services.KindFromContext(ctx); ok {
		t.Fatal("expected no kind value")
	}
	if _, ok := services.WorkerIDFromContext(ctx); ok {
		t.Fatal("expected no worker value")
	}
}
