package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/target/transcode-dispatch/internal/data"
	"github.com/target/transcode-dispatch/internal/domain/model"
)

func TestSetupTestDB(t *testing.T) {
	db := SetupTestDB(t)

	t.Run("creates the jobs and engines tables", func(t *testing.T) {
		for _, table := range []string{"jobs", "engines"} {
			var name string
			err := db.QueryRow(
				`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
			).Scan(&name)
			if err != nil {
				t.Errorf("expected table %s to exist: %v", table, err)
			}
		}
	})

	t.Run("accepts writes through the production store", func(t *testing.T) {
		store := data.NewSQLiteStore(db, data.SQLiteStoreConfig{})
		job := &model.Job{
			ID:          "j-setup",
			SourceURL:   "https://media.example.com/input.mp4",
			TargetCodec: "h264",
			Status:      model.JobStatusPending,
			MaxRetries:  3,
			CreatedAt:   TestTime(),
			UpdatedAt:   TestTime(),
		}
		if err := store.SaveJob(context.Background(), job); err != nil {
			t.Fatalf("save job: %v", err)
		}
		got, err := store.GetJob(context.Background(), "j-setup")
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if got.SourceURL != job.SourceURL {
			t.Errorf("expected SourceURL %q, got %q", job.SourceURL, got.SourceURL)
		}
	})
}

func TestCleanupTestDB(t *testing.T) {
	db := SetupTestDB(t)
	store := data.NewSQLiteStore(db, data.SQLiteStoreConfig{})
	ctx := context.Background()

	job := &model.Job{
		ID:          "j-cleanup",
		SourceURL:   "https://media.example.com/input.mp4",
		TargetCodec: "h264",
		Status:      model.JobStatusPending,
		CreatedAt:   TestTime(),
		UpdatedAt:   TestTime(),
	}
	if err := store.SaveJob(ctx, job); err != nil {
		t.Fatalf("save job: %v", err)
	}
	engine := &model.Engine{
		ID:            "e-cleanup",
		Status:        model.EngineStatusIdle,
		LastHeartbeat: TestTime(),
	}
	if err := store.SaveEngine(ctx, engine); err != nil {
		t.Fatalf("save engine: %v", err)
	}

	CleanupTestDB(t, db)

	if _, err := store.GetJob(ctx, "j-cleanup"); !errors.Is(err, data.ErrJobNotFound) {
		t.Errorf("expected job to be removed, got %v", err)
	}
	if _, err := store.GetEngine(ctx, "e-cleanup"); !errors.Is(err, data.ErrEngineNotFound) {
		t.Errorf("expected engine to be removed, got %v", err)
	}
}

func TestInspectJobStates(t *testing.T) {
	db := SetupTestDB(t)
	store := data.NewSQLiteStore(db, data.SQLiteStoreConfig{})
	ctx := context.Background()

	first := &model.Job{
		ID:          "j-1",
		SourceURL:   "https://media.example.com/a.mp4",
		TargetCodec: "h264",
		Status:      model.JobStatusPending,
		MaxRetries:  3,
		CreatedAt:   TestTime(),
		UpdatedAt:   TestTime(),
	}
	second := &model.Job{
		ID:             "j-2",
		SourceURL:      "https://media.example.com/b.mp4",
		TargetCodec:    "h264",
		Status:         model.JobStatusAssigned,
		AssignedEngine: StringPtr("e1"),
		Retries:        1,
		MaxRetries:     3,
		CreatedAt:      TestTime().Add(time.Second),
		UpdatedAt:      TestTime().Add(time.Second),
	}
	if err := store.SaveJob(ctx, first); err != nil {
		t.Fatalf("save first job: %v", err)
	}
	if err := store.SaveJob(ctx, second); err != nil {
		t.Fatalf("save second job: %v", err)
	}

	states := InspectJobStates(t, db)
	if len(states) != 2 {
		t.Fatalf("expected 2 job states, got %d", len(states))
	}
	if states[0].ID != "j-1" || states[0].Status != string(model.JobStatusPending) {
		t.Errorf("unexpected first state: %+v", states[0])
	}
	if states[1].ID != "j-2" || states[1].Retries != 1 {
		t.Errorf("unexpected second state: %+v", states[1])
	}
	if states[1].AssignedEngine == nil || *states[1].AssignedEngine != "e1" {
		t.Errorf("expected second job assigned to e1, got %+v", states[1].AssignedEngine)
	}

	LogJobStates(t, db, "after inserts")
}

func TestJobRequestBuilder(t *testing.T) {
	t.Run("defaults produce a valid request", func(t *testing.T) {
		req := NewJobRequest().Build()
		if err := req.Validate(); err != nil {
			t.Errorf("default request should validate: %v", err)
		}
	})

	t.Run("setters override defaults", func(t *testing.T) {
		req := NewJobRequest().
			WithSourceURL("https://media.example.com/other.mp4").
			WithTargetCodec("vp9").
			WithJobSize(2048).
			WithPriority(model.PriorityHigh).
			WithMaxRetries(5).
			WithResourceRequirementsString(`{"min_memory_gb":16}`).
			Build()
		if req.TargetCodec != "vp9" {
			t.Errorf("expected codec vp9, got %s", req.TargetCodec)
		}
		if req.MaxRetries == nil || *req.MaxRetries != 5 {
			t.Errorf("expected max retries 5, got %v", req.MaxRetries)
		}
		if err := req.Validate(); err != nil {
			t.Errorf("request should validate: %v", err)
		}
	})
}

func TestHeartbeatBuilder(t *testing.T) {
	hb := NewHeartbeat("e1").
		WithBenchmarkTime(90).
		WithStorageCapacity(250).
		WithStreamingSupport(true).
		WithEncoders("h264", "vp9").
		Build()
	if err := hb.Validate(); err != nil {
		t.Errorf("heartbeat should validate: %v", err)
	}
	if hb.EngineID != "e1" || hb.Hostname != "e1.local" {
		t.Errorf("unexpected identity fields: %+v", hb)
	}
	if hb.BenchmarkTime == nil || *hb.BenchmarkTime != 90 {
		t.Errorf("expected benchmark 90, got %v", hb.BenchmarkTime)
	}

	bare := NewHeartbeat("e2").WithoutBenchmark().Build()
	if bare.BenchmarkTime != nil {
		t.Errorf("expected cleared benchmark, got %v", bare.BenchmarkTime)
	}
}

func TestConcurrentTestRunner(t *testing.T) {
	runner := NewConcurrentTestRunner(t)
	var errs []error
	errs = runner.RunConcurrent(
		func() error { return nil },
		func() error { return nil },
		func() error { return nil },
	)
	runner.AssertNoErrors(errs)

	failing := runner.RunConcurrent(
		func() error { return nil },
		func() error { return errors.New("boom") },
	)
	var failures int
	for _, err := range failing {
		if err != nil {
			failures++
		}
	}
	if failures != 1 {
		t.Errorf("expected exactly one failure, got %d", failures)
	}
}
