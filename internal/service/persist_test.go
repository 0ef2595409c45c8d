package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/transcode-dispatch/internal/data"
	"github.com/target/transcode-dispatch/internal/domain/model"
)

type failingSink struct {
	err error
}

func (f *failingSink) Write(*model.Snapshot) error { return f.err }

func TestNewPersistServiceValidation(t *testing.T) {
	store := data.NewMemoryStore(data.MemoryStoreConfig{})

	_, err := NewPersistService(PersistServiceOptions{Sink: &CountingSink{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SnapshotStore")

	_, err = NewPersistService(PersistServiceOptions{Source: store})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SnapshotSink")

	svc, err := NewPersistService(PersistServiceOptions{Source: store, Sink: &CountingSink{}})
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestPersistServiceSaveNowWritesSnapshot(t *testing.T) {
	ctx := context.Background()
	store := data.NewMemoryStore(data.MemoryStoreConfig{})

	now := time.Now().UTC()
	require.NoError(t, store.SaveJob(ctx, &model.Job{
		ID:        "job-1",
		SourceURL: "https://cdn.example.com/in.mov",
		Status:    model.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}))
	require.NoError(t, store.SaveEngine(ctx, &model.Engine{
		ID:            "engine-1",
		Status:        model.EngineStatusIdle,
		LastHeartbeat: now,
	}))

	sink := &CountingSink{}
	svc, err := NewPersistService(PersistServiceOptions{Source: store, Sink: sink})
	require.NoError(t, err)

	require.NoError(t, svc.SaveNow(ctx))

	assert.Equal(t, int64(1), sink.Writes())
	snap := sink.Last()
	require.NotNil(t, snap)
	assert.Len(t, snap.Jobs, 1)
	assert.Len(t, snap.Engines, 1)
}

func TestPersistServiceSaveNowSinkError(t *testing.T) {
	store := data.NewMemoryStore(data.MemoryStoreConfig{})
	sink := &failingSink{err: errors.New("disk full")}

	svc, err := NewPersistService(PersistServiceOptions{Source: store, Sink: sink})
	require.NoError(t, err)

	err = svc.SaveNow(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write snapshot")
	assert.Contains(t, err.Error(), "disk full")
}

func TestPersistServiceScheduleNeverBlocks(t *testing.T) {
	store := data.NewMemoryStore(data.MemoryStoreConfig{})
	svc, err := NewPersistService(PersistServiceOptions{Source: store, Sink: &CountingSink{}})
	require.NoError(t, err)

	// No run loop draining the channel; repeated calls must still return.
	for range 10 {
		svc.Schedule()
	}

	assert.Len(t, svc.kick, 1)
}

func TestPersistServiceRunDrainsSchedules(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := data.NewMemoryStore(data.MemoryStoreConfig{})
	require.NoError(t, store.SaveJob(ctx, &model.Job{
		ID:     "job-1",
		Status: model.JobStatusPending,
	}))

	sink := &CountingSink{}
	svc, err := NewPersistService(PersistServiceOptions{Source: store, Sink: sink})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	svc.Schedule()

	require.Eventually(t, func() bool {
		return sink.Writes() >= 1
	}, 2*time.Second, 10*time.Millisecond, "scheduled snapshot was never written")

	cancel()

	select {
	case runErr := <-done:
		assert.NoError(t, runErr, "graceful shutdown should return nil")
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestPersistServiceRunSurvivesSinkErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := data.NewMemoryStore(data.MemoryStoreConfig{})
	sink := &failingSink{err: errors.New("disk full")}
	svc, err := NewPersistService(PersistServiceOptions{Source: store, Sink: sink})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	svc.Schedule()
	svc.Schedule()

	// Give the loop a moment to process the failing write, then stop.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case runErr := <-done:
		assert.NoError(t, runErr, "sink errors must not kill the run loop")
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestNoopPersister(t *testing.T) {
	var p NoopPersister
	p.Schedule()
	assert.NoError(t, p.SaveNow(context.Background()))
}
