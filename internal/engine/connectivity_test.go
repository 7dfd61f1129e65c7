package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	fieldsync "github.com/inspectos/fieldsync/internal/sync"
)

type fakeProber struct {
	err error
}

func (f *fakeProber) Ping(ctx context.Context) error { return f.err }

func TestMonitor_ProbeTransitionsEngine(t *testing.T) {
	e, _ := newTestEngine(t, &syncBackend{})
	ctx := context.Background()

	prober := &fakeProber{err: errors.New("no route to host")}
	m := NewMonitor(prober, e, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))

	m.probe(ctx)
	if e.State(ctx).Status != fieldsync.StatusOffline {
		t.Fatalf("expected offline after failed probe, got %v", e.State(ctx).Status)
	}

	prober.err = nil
	m.probe(ctx)
	if e.State(ctx).Status == fieldsync.StatusOffline {
		t.Error("expected online after successful probe")
	}
}
