package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/transcode-dispatch/internal/domain/model"
	apperrors "github.com/target/transcode-dispatch/internal/errors"
	"github.com/target/transcode-dispatch/internal/observability/notify"
	"github.com/target/transcode-dispatch/internal/service/failurenotifier"
)

// captureNotifier returns a notifier whose deliveries land on the channel.
func captureNotifier(buffer int) (*failurenotifier.Service, chan notify.JobFailurePayload) {
	captured := make(chan notify.JobFailurePayload, buffer)
	svc := failurenotifier.NewService(failurenotifier.Options{
		Sinks: []failurenotifier.SinkRegistration{{
			Name: "capture",
			Sink: notify.SinkFunc(func(_ context.Context, payload notify.JobFailurePayload) error {
				captured <- payload
				return nil
			}),
		}},
	})
	return svc, captured
}

func TestDispatcherHappyPath(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	job := submitJob(t, f.svc, &model.SubmitJobRequest{
		SourceURL:   "http://x/v.mp4",
		TargetCodec: "h264",
	})
	assert.Equal(t, model.JobStatusPending, job.Status)

	heartbeatEngine(t, f.svc, idleHeartbeat("e1", 100))

	assigned, err := f.svc.AssignJob(ctx, &model.AssignRequest{EngineID: "e1"})
	require.NoError(t, err)
	assert.Equal(t, job.ID, assigned.ID)
	assert.Equal(t, model.JobStatusAssigned, assigned.Status)
	require.NotNil(t, assigned.AssignedEngine)
	assert.Equal(t, "e1", *assigned.AssignedEngine)

	engine, err := f.svc.GetEngine(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, model.EngineStatusBusy, engine.Status)
	require.NotNil(t, engine.CurrentJobID)
	assert.Equal(t, job.ID, *engine.CurrentJobID)

	assertStateInvariants(t, f.store)

	completed, err := f.svc.Complete(ctx, job.ID, &model.CompleteJobRequest{OutputURL: "http://x/o.mp4"})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, completed.Status)
	require.NotNil(t, completed.OutputURL)
	assert.Equal(t, "http://x/o.mp4", *completed.OutputURL)
	assert.Nil(t, completed.AssignedEngine)

	engine, err = f.svc.GetEngine(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, model.EngineStatusIdle, engine.Status)
	assert.Nil(t, engine.CurrentJobID)

	assertStateInvariants(t, f.store)
}

func TestDispatcherRetryThenPermanent(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	job := submitJob(t, f.svc, &model.SubmitJobRequest{
		SourceURL:   "http://x/v.mp4",
		TargetCodec: "h264",
		MaxRetries:  intPtr(1),
	})

	heartbeatEngine(t, f.svc, idleHeartbeat("e1", 100))
	heartbeatEngine(t, f.svc, idleHeartbeat("e2", 200))

	assigned, err := f.svc.AssignJob(ctx, &model.AssignRequest{})
	require.NoError(t, err)
	require.NotNil(t, assigned.AssignedEngine)
	assert.Equal(t, "e1", *assigned.AssignedEngine, "default-size jobs go to the fastest engine")

	failed, err := f.svc.Fail(ctx, job.ID, &model.FailJobRequest{ErrorMessage: "encoder crash"})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, failed.Status)
	assert.Equal(t, 1, failed.Retries)
	require.NotNil(t, failed.ErrorMessage)
	assert.Equal(t, "encoder crash", *failed.ErrorMessage)

	engine, err := f.svc.GetEngine(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, model.EngineStatusIdle, engine.Status)

	assigned, err = f.svc.AssignJob(ctx, &model.AssignRequest{})
	require.NoError(t, err)
	require.NotNil(t, assigned.AssignedEngine)
	assert.Equal(t, "e1", *assigned.AssignedEngine, "e1 is idle again and still fastest")

	failed, err = f.svc.Fail(ctx, job.ID, &model.FailJobRequest{ErrorMessage: "encoder crash"})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailedPermanently, failed.Status)
	assert.Equal(t, 1, failed.Retries, "the exhausting failure must not increment past max_retries")

	assertStateInvariants(t, f.store)
}

func TestDispatcherCompleteValidation(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	job := submitJob(t, f.svc, &model.SubmitJobRequest{SourceURL: "http://x/v.mp4", TargetCodec: "h264"})

	t.Run("output_url scheme enforced", func(t *testing.T) {
		_, err := f.svc.Complete(ctx, job.ID, &model.CompleteJobRequest{OutputURL: "ftp://x/o.mp4"})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("unknown job", func(t *testing.T) {
		_, err := f.svc.Complete(ctx, "nope", &model.CompleteJobRequest{OutputURL: "http://x/o.mp4"})
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("terminal job rejected", func(t *testing.T) {
		_, err := f.svc.Complete(ctx, job.ID, &model.CompleteJobRequest{OutputURL: "http://x/o.mp4"})
		require.NoError(t, err)

		_, err = f.svc.Complete(ctx, job.ID, &model.CompleteJobRequest{OutputURL: "http://x/other.mp4"})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err), "completing a terminal job is a validation failure")

		unchanged, err := f.svc.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, "http://x/o.mp4", *unchanged.OutputURL, "rejected transition must not mutate state")
	})
}

func TestDispatcherFailValidation(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	job := submitJob(t, f.svc, &model.SubmitJobRequest{SourceURL: "http://x/v.mp4", TargetCodec: "h264"})

	t.Run("error_message required", func(t *testing.T) {
		_, err := f.svc.Fail(ctx, job.ID, &model.FailJobRequest{})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("fail accepted from pending", func(t *testing.T) {
		failed, err := f.svc.Fail(ctx, job.ID, &model.FailJobRequest{ErrorMessage: "bad input"})
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusPending, failed.Status)
		assert.Equal(t, 1, failed.Retries)
	})

	t.Run("fail rejected on terminal", func(t *testing.T) {
		_, err := f.svc.Cancel(ctx, job.ID)
		require.NoError(t, err)

		_, err = f.svc.Fail(ctx, job.ID, &model.FailJobRequest{ErrorMessage: "late"})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestDispatcherFailThenComplete(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	job := submitJob(t, f.svc, &model.SubmitJobRequest{
		SourceURL:   "http://x/v.mp4",
		TargetCodec: "h264",
		MaxRetries:  intPtr(3),
	})

	_, err := f.svc.Fail(ctx, job.ID, &model.FailJobRequest{ErrorMessage: "transient"})
	require.NoError(t, err)

	completed, err := f.svc.Complete(ctx, job.ID, &model.CompleteJobRequest{OutputURL: "https://x/o.mp4"})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, completed.Status,
		"a failure that kept retry budget leaves the job completable")
}

func TestDispatcherAdminRetry(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	job := submitJob(t, f.svc, &model.SubmitJobRequest{
		SourceURL:   "http://x/v.mp4",
		TargetCodec: "h264",
		MaxRetries:  intPtr(0),
	})

	failed, err := f.svc.Fail(ctx, job.ID, &model.FailJobRequest{ErrorMessage: "boom"})
	require.NoError(t, err)
	require.Equal(t, model.JobStatusFailedPermanently, failed.Status)

	f.clock.AddTime(time.Minute)
	retried, err := f.svc.Retry(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, retried.Status)
	assert.Equal(t, 0, retried.Retries)
	assert.Nil(t, retried.ErrorMessage)
	assert.Nil(t, retried.OutputURL)
	assert.Nil(t, retried.AssignedEngine)
	assert.Nil(t, retried.RetryAfter)
	assert.Nil(t, retried.Progress)
	assert.True(t, retried.UpdatedAt.After(retried.CreatedAt))

	t.Run("rejected from pending", func(t *testing.T) {
		_, err := f.svc.Retry(ctx, job.ID)
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("rejected from completed", func(t *testing.T) {
		done := submitJob(t, f.svc, &model.SubmitJobRequest{SourceURL: "http://x/v.mp4", TargetCodec: "h264"})
		_, err := f.svc.Complete(ctx, done.ID, &model.CompleteJobRequest{OutputURL: "http://x/o.mp4"})
		require.NoError(t, err)

		_, err = f.svc.Retry(ctx, done.ID)
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("unknown job", func(t *testing.T) {
		_, err := f.svc.Retry(ctx, "nope")
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestDispatcherCancel(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	t.Run("pending job", func(t *testing.T) {
		job := submitJob(t, f.svc, &model.SubmitJobRequest{SourceURL: "http://x/v.mp4", TargetCodec: "h264"})

		cancelled, err := f.svc.Cancel(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCancelled, cancelled.Status)
		assert.Equal(t, 0, cancelled.Retries, "cancellation never counts against retries")
	})

	t.Run("assigned job releases engine", func(t *testing.T) {
		heartbeatEngine(t, f.svc, idleHeartbeat("e1", 100))
		job := submitJob(t, f.svc, &model.SubmitJobRequest{SourceURL: "http://x/v.mp4", TargetCodec: "h264"})
		_, err := f.svc.AssignJob(ctx, &model.AssignRequest{EngineID: "e1"})
		require.NoError(t, err)

		cancelled, err := f.svc.Cancel(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCancelled, cancelled.Status)
		assert.Nil(t, cancelled.AssignedEngine)

		engine, err := f.svc.GetEngine(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, model.EngineStatusIdle, engine.Status)
		assert.Nil(t, engine.CurrentJobID)

		assertStateInvariants(t, f.store)
	})

	t.Run("terminal job rejected", func(t *testing.T) {
		job := submitJob(t, f.svc, &model.SubmitJobRequest{SourceURL: "http://x/v.mp4", TargetCodec: "h264"})
		_, err := f.svc.Cancel(ctx, job.ID)
		require.NoError(t, err)

		_, err = f.svc.Cancel(ctx, job.ID)
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestDispatcherProgress(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	job := submitJob(t, f.svc, &model.SubmitJobRequest{SourceURL: "http://x/v.mp4", TargetCodec: "h264"})

	msg := "transcoding segment 3/10"
	updated, err := f.svc.Progress(ctx, job.ID, &model.ProgressUpdateRequest{
		Progress: intPtr(30),
		Message:  &msg,
	})
	require.NoError(t, err)
	require.NotNil(t, updated.Progress)
	assert.Equal(t, 30, *updated.Progress)
	require.NotNil(t, updated.ProgressMessage)
	assert.Equal(t, msg, *updated.ProgressMessage)

	t.Run("progress required", func(t *testing.T) {
		_, err := f.svc.Progress(ctx, job.ID, &model.ProgressUpdateRequest{})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("range enforced", func(t *testing.T) {
		_, err := f.svc.Progress(ctx, job.ID, &model.ProgressUpdateRequest{Progress: intPtr(101)})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("terminal job rejected", func(t *testing.T) {
		_, err := f.svc.Cancel(ctx, job.ID)
		require.NoError(t, err)

		_, err = f.svc.Progress(ctx, job.ID, &model.ProgressUpdateRequest{Progress: intPtr(99)})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestDispatcherRetryBackoff(t *testing.T) {
	f := newDispatcherFixture(t, func(opts *DispatcherServiceOptions) {
		opts.RetryBackoffEnabled = true
	})
	ctx := context.Background()

	job := submitJob(t, f.svc, &model.SubmitJobRequest{SourceURL: "http://x/v.mp4", TargetCodec: "h264"})

	failed, err := f.svc.Fail(ctx, job.ID, &model.FailJobRequest{ErrorMessage: "transient"})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailedRetry, failed.Status)
	assert.Equal(t, 1, failed.Retries)
	require.NotNil(t, failed.RetryAfter)
	assert.Equal(t, f.clock.Now().UTC().Add(2*time.Minute), *failed.RetryAfter,
		"first retry waits 2^1 minutes")

	t.Run("parked jobs are not scheduled", func(t *testing.T) {
		heartbeatEngine(t, f.svc, idleHeartbeat("e1", 100))
		_, err := f.svc.AssignJob(ctx, &model.AssignRequest{})
		assert.ErrorIs(t, err, model.ErrNoPendingJobs)
	})

	t.Run("promotion after the window", func(t *testing.T) {
		f.clock.AddTime(2*time.Minute + time.Second)
		promoted, err := f.svc.PromoteDueRetries(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), promoted)

		current, err := f.svc.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusPending, current.Status)
		assert.Nil(t, current.RetryAfter)
	})
}

func TestDispatcherPermanentFailureNotifies(t *testing.T) {
	notifier, captured := captureNotifier(1)
	f := newDispatcherFixture(t, func(opts *DispatcherServiceOptions) {
		opts.FailureNotifier = notifier
	})
	ctx := context.Background()

	heartbeatEngine(t, f.svc, idleHeartbeat("e1", 100))
	job := submitJob(t, f.svc, &model.SubmitJobRequest{
		SourceURL:   "http://x/v.mp4",
		TargetCodec: "h264",
		MaxRetries:  intPtr(0),
	})
	_, err := f.svc.AssignJob(ctx, &model.AssignRequest{})
	require.NoError(t, err)

	_, err = f.svc.Fail(ctx, job.ID, &model.FailJobRequest{ErrorMessage: "codec unsupported"})
	require.NoError(t, err)

	select {
	case payload := <-captured:
		assert.Equal(t, job.ID, payload.JobID)
		assert.Equal(t, "http://x/v.mp4", payload.SourceURL)
		assert.Equal(t, "h264", payload.TargetCodec)
		assert.Equal(t, "e1", payload.EngineID)
		assert.Equal(t, "codec unsupported", payload.Error)
		assert.Equal(t, notify.SeverityCritical, payload.Severity)
	case <-time.After(time.Second):
		t.Fatal("permanent failure was never delivered to the notifier")
	}

	t.Run("requeue does not notify", func(t *testing.T) {
		other := submitJob(t, f.svc, &model.SubmitJobRequest{
			SourceURL:   "http://x/w.mp4",
			TargetCodec: "h264",
			MaxRetries:  intPtr(2),
		})
		_, err := f.svc.Fail(ctx, other.ID, &model.FailJobRequest{ErrorMessage: "transient"})
		require.NoError(t, err)

		select {
		case payload := <-captured:
			t.Fatalf("unexpected notification for requeued job: %+v", payload)
		case <-time.After(50 * time.Millisecond):
		}
	})
}
