package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	clocktesting "k8s.io/utils/clock/testing"
	"k8s.io/utils/ptr"

	"github.com/stacklok/biblio-sync/internal/articles"
	"github.com/stacklok/biblio-sync/internal/config"
	"github.com/stacklok/biblio-sync/internal/registry"
	"github.com/stacklok/biblio-sync/internal/registry/mocks"
	"github.com/stacklok/biblio-sync/internal/status"
	"github.com/stacklok/biblio-sync/internal/sync/state"
)

var tickStart = time.Date(2024, 9, 2, 10, 0, 0, 0, time.UTC)

type fixture struct {
	manager Manager
	client  *mocks.MockClient
	store   state.Store
	clock   *clocktesting.FakeClock
	repo    *articles.MemoryRepository
	target  *config.TargetConfig
}

func newFixture(t *testing.T, caps registry.Capabilities, configure func(*config.TargetConfig)) *fixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Capabilities().Return(caps).AnyTimes()
	client.EXPECT().Name().Return("test-target").AnyTimes()

	target := &config.TargetConfig{
		Name:           "test-target",
		Type:           config.TargetTypeCrossref,
		Batch:          10,
		RetryMinutes:   60,
		TimeoutMinutes: 30,
	}
	if configure != nil {
		configure(target)
	}

	clk := clocktesting.NewFakeClock(tickStart)
	store, err := state.NewFileStore(t.TempDir(), target.Name, clk)
	require.NoError(t, err)

	// seed the modification check time so existing articles are not flagged
	_, err = store.GetGlobal(context.Background())
	require.NoError(t, err)

	repo := articles.NewMemoryRepository()
	m, err := NewManager(Options{
		Target:   target,
		Client:   client,
		Store:    store,
		Articles: repo,
		Clock:    clk,
	})
	require.NoError(t, err)

	return &fixture{manager: m, client: client, store: store, clock: clk, repo: repo, target: target}
}

func (f *fixture) addArticle(id string, modifiedAt time.Time) *articles.Article {
	a := &articles.Article{ID: id, ModifiedAt: modifiedAt, Title: "Article " + id}
	f.repo.Put(a)
	return a
}

func (f *fixture) record(t *testing.T, id string) *status.SyncRecord {
	t.Helper()
	rec, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func (f *fixture) set(t *testing.T, id string, u status.RecordUpdate) {
	t.Helper()
	require.NoError(t, f.store.Set(context.Background(), id, u))
}

func submitArticle(id string) gomock.Matcher {
	return gomock.Cond(func(a *articles.Article) bool { return a.ID == id })
}

func TestDoUpdate_SubmitNewArticle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, registry.Capabilities{}, nil)
	f.addArticle("x", tickStart.Add(-time.Hour))

	f.client.EXPECT().Submit(gomock.Any(), submitArticle("x"), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *articles.Article, rec *status.SyncRecord) (*registry.SubmitResult, error) {
			// the attempt is persisted before the call
			stored := f.record(t, "x")
			assert.Equal(t, status.StatusPending, stored.Status)
			require.NotNil(t, stored.SubmitTimestamp)
			assert.True(t, tickStart.Equal(*stored.SubmitTimestamp))
			assert.Empty(t, rec.ExternalID)
			return &registry.SubmitResult{ExternalID: "10.5555/x"}, nil
		})

	report, err := f.manager.DoUpdate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Submitted)
	assert.Equal(t, 0, report.Failed)
	assert.NotEmpty(t, report.ID)

	rec := f.record(t, "x")
	assert.Equal(t, status.StatusSuccess, rec.Status)
	assert.Equal(t, "10.5555/x", rec.ExternalID)
	assert.Empty(t, rec.LastError)

	g, err := f.manager.GetGlobalState(ctx)
	require.NoError(t, err)
	require.NotNil(t, g.LastUpdateTime)
	assert.True(t, tickStart.Equal(*g.LastUpdateTime))
}

func TestDoUpdate_ModifiedArticleIsUpdatedInPlace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, registry.Capabilities{}, nil)
	f.addArticle("x", tickStart.Add(-time.Hour))
	f.set(t, "x", status.Update().
		WithStatus(status.StatusSuccess).
		WithExternalID("E").
		WithSubmitTimestamp(tickStart.Add(-time.Hour)))

	// a tick without edits has nothing to do
	report, err := f.manager.DoUpdate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Modified)
	assert.Equal(t, 0, report.Submitted)

	f.clock.Step(10 * time.Minute)
	f.addArticle("x", f.clock.Now().Add(-time.Minute))
	f.clock.Step(time.Minute)

	f.client.EXPECT().Submit(gomock.Any(), submitArticle("x"), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *articles.Article, rec *status.SyncRecord) (*registry.SubmitResult, error) {
			assert.Equal(t, "E", rec.ExternalID, "modified articles are updated, not created")
			return &registry.SubmitResult{ExternalID: "E"}, nil
		})

	report, err = f.manager.DoUpdate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Modified)
	assert.Equal(t, 1, report.Submitted)

	rec := f.record(t, "x")
	assert.Equal(t, status.StatusSuccess, rec.Status)
	assert.Equal(t, "E", rec.ExternalID)

	g, err := f.manager.GetGlobalState(ctx)
	require.NoError(t, err)
	assert.True(t, f.clock.Now().Equal(g.LastModifiedCheckTime))
}

func TestDoUpdate_TransientFailureWaitsForRetryDelay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, registry.Capabilities{}, nil)
	f.addArticle("x", tickStart.Add(-time.Hour))

	f.client.EXPECT().Submit(gomock.Any(), submitArticle("x"), gomock.Any()).
		DoAndReturn(func(context.Context, *articles.Article, *status.SyncRecord) (*registry.SubmitResult, error) {
			assert.Equal(t, status.StatusPending, f.record(t, "x").Status)
			return nil, registry.TransportError(errors.New("connection reset by peer"))
		}).Times(1)

	report, err := f.manager.DoUpdate(ctx)
	require.NoError(t, err)
	assert.True(t, report.Stopped)
	assert.Equal(t, 1, report.Failed)

	rec := f.record(t, "x")
	assert.Equal(t, status.StatusError, rec.Status)
	assert.Contains(t, rec.LastError, "connection reset by peer")
	require.NotNil(t, rec.SubmitTimestamp)
	assert.True(t, tickStart.Equal(*rec.SubmitTimestamp))

	// within the retry delay the article is not selected again
	f.clock.Step(30 * time.Minute)
	report, err = f.manager.DoUpdate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Submitted)

	// after the delay it is retried
	f.clock.Step(31 * time.Minute)
	f.client.EXPECT().Submit(gomock.Any(), submitArticle("x"), gomock.Any()).
		Return(&registry.SubmitResult{ExternalID: "10.5555/x"}, nil)
	report, err = f.manager.DoUpdate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Submitted)
	assert.Equal(t, status.StatusSuccess, f.record(t, "x").Status)
	assert.Empty(t, f.record(t, "x").LastError)
}

func TestDoUpdate_BatchPrefersModifiedArticles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, registry.Capabilities{}, func(tc *config.TargetConfig) {
		tc.Batch = 2
	})
	f.addArticle("new-1", tickStart.Add(-3*time.Hour))
	f.addArticle("new-2", tickStart.Add(-2*time.Hour))
	f.addArticle("mod", tickStart.Add(-time.Hour))
	f.set(t, "mod", status.Update().WithStatus(status.StatusModified).WithExternalID("E"))

	gomock.InOrder(
		f.client.EXPECT().Submit(gomock.Any(), submitArticle("mod"), gomock.Any()).
			Return(&registry.SubmitResult{ExternalID: "E"}, nil),
		f.client.EXPECT().Submit(gomock.Any(), submitArticle("new-1"), gomock.Any()).
			Return(&registry.SubmitResult{ExternalID: "N1"}, nil),
	)

	report, err := f.manager.DoUpdate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Submitted)
	assert.Equal(t, status.StatusUnsubmitted, f.record(t, "new-2").Status)
}

func TestDoUpdate_StopOnFirstFailurePolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		stop          *bool
		wantSubmitted int
		wantStopped   bool
	}{
		{name: "stops by default", stop: nil, wantSubmitted: 1, wantStopped: true},
		{name: "continues when disabled", stop: ptr.To(false), wantSubmitted: 3, wantStopped: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			f := newFixture(t, registry.Capabilities{}, func(tc *config.TargetConfig) {
				tc.StopOnFirstFailure = tt.stop
			})
			for i, id := range []string{"a", "b", "c"} {
				f.addArticle(id, tickStart.Add(-time.Duration(3-i)*time.Hour))
			}

			f.client.EXPECT().Submit(gomock.Any(), gomock.Any(), gomock.Any()).
				Return(nil, &registry.Error{Kind: registry.KindValidation, StatusCode: 400, Message: "bad payload"}).
				Times(tt.wantSubmitted)

			report, err := f.manager.DoUpdate(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSubmitted, report.Submitted)
			assert.Equal(t, tt.wantSubmitted, report.Failed)
			assert.Equal(t, tt.wantStopped, report.Stopped)
		})
	}
}

func TestDoUpdate_AuthErrorAbortsTick(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, registry.Capabilities{}, nil)
	f.addArticle("a", tickStart.Add(-2*time.Hour))
	f.addArticle("b", tickStart.Add(-time.Hour))

	f.client.EXPECT().Submit(gomock.Any(), submitArticle("a"), gomock.Any()).
		Return(nil, &registry.Error{Kind: registry.KindAuth, StatusCode: 401, Message: "invalid credentials"})

	report, err := f.manager.DoUpdate(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTickAborted)
	assert.Equal(t, ReasonAuthFailed, report.AbortReason)
	assert.Equal(t, 1, report.Submitted)

	g, err := f.manager.GetGlobalState(ctx)
	require.NoError(t, err)
	assert.Contains(t, g.LastGlobalError, "invalid credentials")

	assert.Equal(t, status.StatusError, f.record(t, "a").Status)
	assert.Equal(t, status.StatusUnsubmitted, f.record(t, "b").Status)

	// the next tick starts by clearing the global error
	f.client.EXPECT().Submit(gomock.Any(), submitArticle("b"), gomock.Any()).
		Return(&registry.SubmitResult{ExternalID: "B"}, nil)
	_, err = f.manager.DoUpdate(ctx)
	require.NoError(t, err)
	g, err = f.manager.GetGlobalState(ctx)
	require.NoError(t, err)
	assert.Empty(t, g.LastGlobalError)
}

func TestDoUpdate_RenderErrorIsNotRetried(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, registry.Capabilities{}, nil)
	f.addArticle("x", tickStart.Add(-time.Hour))

	f.client.EXPECT().Submit(gomock.Any(), submitArticle("x"), gomock.Any()).
		Return(nil, registry.NewRenderError(&registry.RenderError{Field: "title"})).
		Times(1)

	_, err := f.manager.DoUpdate(ctx)
	require.NoError(t, err)

	rec := f.record(t, "x")
	assert.Equal(t, status.StatusNotPossible, rec.Status)
	assert.Contains(t, rec.LastError, "title")

	f.clock.Step(24 * time.Hour)
	report, err := f.manager.DoUpdate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Submitted)
}

func TestDoUpdate_ConflictDeletesAndRecreates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, registry.Capabilities{Delete: true}, nil)
	f.addArticle("x", tickStart.Add(-time.Hour))
	f.set(t, "x", status.Update().WithStatus(status.StatusModified).WithExternalID("old"))

	gomock.InOrder(
		f.client.EXPECT().Submit(gomock.Any(), submitArticle("x"), gomock.Any()).
			Return(nil, &registry.Error{Kind: registry.KindConflict, StatusCode: 404, Message: "gone"}),
		f.client.EXPECT().Delete(gomock.Any(), submitArticle("x"), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ *articles.Article, rec *status.SyncRecord) error {
				assert.Equal(t, "old", rec.ExternalID)
				return nil
			}),
		f.client.EXPECT().Submit(gomock.Any(), submitArticle("x"), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ *articles.Article, rec *status.SyncRecord) (*registry.SubmitResult, error) {
				assert.Empty(t, rec.ExternalID, "recreate starts without an external id")
				return &registry.SubmitResult{ExternalID: "new"}, nil
			}),
	)

	report, err := f.manager.DoUpdate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Failed)

	rec := f.record(t, "x")
	assert.Equal(t, status.StatusSuccess, rec.Status)
	assert.Equal(t, "new", rec.ExternalID)
}

// failingSetStore fails the n-th Set call and delegates everything else
type failingSetStore struct {
	state.Store
	failOn int
	calls  int
}

func (s *failingSetStore) Set(ctx context.Context, articleID string, u status.RecordUpdate) error {
	s.calls++
	if s.calls == s.failOn {
		return errors.New("disk full")
	}
	return s.Store.Set(ctx, articleID, u)
}

func TestDoUpdate_StoreFailureDuringRecreateAbortsTick(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, registry.Capabilities{Delete: true}, nil)
	f.addArticle("x", tickStart.Add(-time.Hour))
	f.set(t, "x", status.Update().WithStatus(status.StatusModified).WithExternalID("old"))

	// the first Set marks the submission pending, the second clears the external id
	store := &failingSetStore{Store: f.store, failOn: 2}
	m, err := NewManager(Options{
		Target:   f.target,
		Client:   f.client,
		Store:    store,
		Articles: f.repo,
		Clock:    f.clock,
	})
	require.NoError(t, err)

	gomock.InOrder(
		f.client.EXPECT().Submit(gomock.Any(), submitArticle("x"), gomock.Any()).
			Return(nil, &registry.Error{Kind: registry.KindConflict, StatusCode: 404, Message: "gone"}),
		f.client.EXPECT().Delete(gomock.Any(), submitArticle("x"), gomock.Any()).Return(nil),
	)

	report, err := m.DoUpdate(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTickAborted)
	assert.Equal(t, ReasonStorageFailed, report.AbortReason)
	assert.Equal(t, 0, report.Failed)

	rec := f.record(t, "x")
	assert.Empty(t, rec.LastError, "a store failure is not an article error")
	assert.NotEqual(t, status.StatusError, rec.Status)

	g, err := m.GetGlobalState(ctx)
	require.NoError(t, err)
	assert.Contains(t, g.LastGlobalError, "disk full")
}

func TestDoUpdate_MarkAllModified(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, registry.Capabilities{}, nil)
	f.addArticle("ok", tickStart.Add(-3*time.Hour))
	f.addArticle("failed", tickStart.Add(-2*time.Hour))
	f.addArticle("flagged", tickStart.Add(-time.Hour))
	f.set(t, "ok", status.Update().WithStatus(status.StatusSuccess).WithExternalID("1"))
	f.set(t, "failed", status.Update().WithStatus(status.StatusError).WithSubmitTimestamp(tickStart))
	f.set(t, "flagged", status.Update().WithStatus(status.StatusModified).WithExternalID("3"))

	require.NoError(t, f.manager.MarkAllModified(ctx))
	g, err := f.manager.GetGlobalState(ctx)
	require.NoError(t, err)
	assert.True(t, time.Unix(0, 0).Equal(g.LastModifiedCheckTime))

	f.client.EXPECT().Submit(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, a *articles.Article, rec *status.SyncRecord) (*registry.SubmitResult, error) {
			return &registry.SubmitResult{ExternalID: rec.ExternalID + a.ID}, nil
		}).Times(3)

	report, err := f.manager.DoUpdate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Modified, "already modified articles are not flagged again")
	assert.Equal(t, 3, report.Submitted)
}

func TestDoUpdate_AsyncSubmissionIsChecked(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, registry.Capabilities{StatusCheck: true}, nil)
	f.addArticle("x", tickStart.Add(-time.Hour))

	f.client.EXPECT().Submit(gomock.Any(), submitArticle("x"), gomock.Any()).
		Return(&registry.SubmitResult{ExternalID: "10.5555/x", Pending: true}, nil)

	_, err := f.manager.DoUpdate(ctx)
	require.NoError(t, err)
	rec := f.record(t, "x")
	assert.Equal(t, status.StatusPending, rec.Status)
	assert.Empty(t, rec.ExternalID)

	f.clock.Step(5 * time.Minute)
	gomock.InOrder(
		f.client.EXPECT().CheckStatus(gomock.Any(), submitArticle("x"), gomock.Any()).
			Return(&registry.CheckResult{Outcome: registry.CheckQueued}, nil),
		f.client.EXPECT().CheckStatus(gomock.Any(), submitArticle("x"), gomock.Any()).
			Return(&registry.CheckResult{Outcome: registry.CheckSucceeded, ExternalID: "10.5555/x"}, nil),
	)

	report, err := f.manager.DoUpdate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, status.StatusPending, f.record(t, "x").Status)

	f.clock.Step(5 * time.Minute)
	_, err = f.manager.DoUpdate(ctx)
	require.NoError(t, err)
	rec = f.record(t, "x")
	assert.Equal(t, status.StatusSuccess, rec.Status)
	assert.Equal(t, "10.5555/x", rec.ExternalID)
}

func TestDoUpdate_FailedCheckStopsTick(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, registry.Capabilities{StatusCheck: true}, nil)
	f.addArticle("pending", tickStart.Add(-2*time.Hour))
	f.addArticle("new", tickStart.Add(-time.Hour))
	f.set(t, "pending", status.Update().
		WithStatus(status.StatusPending).
		WithSubmitTimestamp(tickStart.Add(-time.Minute)))

	f.client.EXPECT().CheckStatus(gomock.Any(), submitArticle("pending"), gomock.Any()).
		Return(nil, registry.TransportError(context.DeadlineExceeded))

	report, err := f.manager.DoUpdate(ctx)
	require.NoError(t, err)
	assert.True(t, report.Stopped)
	assert.Equal(t, 0, report.Submitted)

	rec := f.record(t, "pending")
	assert.Equal(t, status.StatusPending, rec.Status)
	assert.Contains(t, rec.LastError, "timed out")
}

func TestDoUpdate_IdentifyBeforeSubmit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, registry.Capabilities{Identify: true, Delete: true}, func(tc *config.TargetConfig) {
		tc.Type = config.TargetTypeDOAJ
	})
	f.addArticle("known", tickStart.Add(-2*time.Hour))
	f.addArticle("unknown", tickStart.Add(-time.Hour))

	f.client.EXPECT().Identify(gomock.Any(), submitArticle("known")).
		Return(&registry.IdentifyResult{Found: true, ExternalID: "doaj-1", Matches: 1}, nil)
	f.client.EXPECT().Identify(gomock.Any(), submitArticle("unknown")).
		Return(&registry.IdentifyResult{Matches: 0}, nil)

	// nothing is submitted before identification
	report, err := f.manager.DoUpdate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Submitted)
	assert.Equal(t, 2, report.Identified)

	known := f.record(t, "known")
	assert.Equal(t, status.StatusSuccess, known.Status)
	assert.Equal(t, "doaj-1", known.ExternalID)
	require.NotNil(t, known.IdentifyTimestamp)

	unknown := f.record(t, "unknown")
	assert.Equal(t, status.StatusUnsubmitted, unknown.Status)
	require.NotNil(t, unknown.IdentifyTimestamp, "a miss is recorded too")

	f.clock.Step(time.Minute)
	f.client.EXPECT().Submit(gomock.Any(), submitArticle("unknown"), gomock.Any()).
		Return(&registry.SubmitResult{ExternalID: "doaj-2"}, nil)
	report, err = f.manager.DoUpdate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Submitted)
	assert.Equal(t, 0, report.Identified)
}

func TestDoUpdate_FailedIdentifyDoesNotBlockQueue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, registry.Capabilities{Identify: true, Delete: true}, func(tc *config.TargetConfig) {
		tc.Type = config.TargetTypeDOAJ
	})
	f.addArticle("bad", tickStart.Add(-2*time.Hour))
	f.addArticle("good", tickStart.Add(-time.Hour))

	// tick 1: the older article fails and stops the batch
	f.client.EXPECT().Identify(gomock.Any(), submitArticle("bad")).
		Return(nil, &registry.Error{Kind: registry.KindValidation, StatusCode: 400, Message: "bad query"})

	report, err := f.manager.DoUpdate(ctx)
	require.NoError(t, err)
	assert.True(t, report.Stopped)
	assert.Equal(t, 1, report.Failed)

	bad := f.record(t, "bad")
	assert.Equal(t, status.StatusUnsubmitted, bad.Status)
	assert.Contains(t, bad.LastError, "bad query")
	require.NotNil(t, bad.IdentifyTimestamp, "a failed lookup counts as an attempt")
	assert.True(t, tickStart.Equal(*bad.IdentifyTimestamp))
	assert.Nil(t, f.record(t, "good").IdentifyTimestamp)

	// tick 2: the attempted article is now submitted as new
	f.clock.Step(2 * time.Hour)
	f.client.EXPECT().Submit(gomock.Any(), submitArticle("bad"), gomock.Any()).
		Return(&registry.SubmitResult{ExternalID: "doaj-bad"}, nil)

	report, err = f.manager.DoUpdate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Submitted)

	// tick 3: identification moves on to the next article
	f.clock.Step(2 * time.Hour)
	f.client.EXPECT().Identify(gomock.Any(), submitArticle("good")).
		Return(&registry.IdentifyResult{}, nil)

	report, err = f.manager.DoUpdate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Identified)
	assert.Equal(t, 0, report.Failed)
	require.NotNil(t, f.record(t, "good").IdentifyTimestamp)
}

func TestDelete_IsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, registry.Capabilities{Delete: true}, nil)
	f.addArticle("none", tickStart.Add(-time.Hour))
	f.addArticle("x", tickStart.Add(-time.Hour))
	f.set(t, "x", status.Update().
		WithStatus(status.StatusSuccess).
		WithExternalID("E").
		WithSubmitTimestamp(tickStart))

	// no external id, no call
	rec, err := f.manager.Delete(ctx, "none")
	require.NoError(t, err)
	assert.Equal(t, status.StatusUnsubmitted, rec.Status)

	f.client.EXPECT().Delete(gomock.Any(), submitArticle("x"), gomock.Any()).Return(nil).Times(1)

	rec, err = f.manager.Delete(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, status.StatusUnsubmitted, rec.Status)
	assert.Empty(t, rec.ExternalID)
	assert.Nil(t, rec.SubmitTimestamp)

	rec, err = f.manager.Delete(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, status.StatusUnsubmitted, rec.Status)
}

func TestDelete_UnsupportedLeavesRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, registry.Capabilities{}, nil)
	f.set(t, "gone", status.Update().WithStatus(status.StatusSuccess).WithExternalID("E"))

	f.client.EXPECT().Delete(gomock.Any(), submitArticle("gone"), gomock.Any()).
		Return(registry.UnsupportedError("crossref", "delete"))

	rec, err := f.manager.Delete(ctx, "gone")
	require.Error(t, err)
	assert.Equal(t, registry.KindUnsupported, registry.KindOf(err))
	assert.Equal(t, status.StatusSuccess, rec.Status)
	assert.Equal(t, "E", rec.ExternalID)
	assert.Empty(t, rec.LastError)
}

func TestUpdateInProgress(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, registry.Capabilities{}, nil)
	f.addArticle("x", tickStart.Add(-time.Hour))

	f.client.EXPECT().Submit(gomock.Any(), submitArticle("x"), gomock.Any()).
		DoAndReturn(func(context.Context, *articles.Article, *status.SyncRecord) (*registry.SubmitResult, error) {
			_, err := f.manager.DoUpdate(ctx)
			assert.ErrorIs(t, err, ErrUpdateInProgress)
			assert.ErrorIs(t, f.manager.MarkAllModified(ctx), ErrUpdateInProgress)

			summary, err := f.manager.Summary(ctx)
			require.NoError(t, err)
			assert.True(t, summary.UpdateInProgress)
			return &registry.SubmitResult{ExternalID: "E"}, nil
		})

	_, err := f.manager.DoUpdate(ctx)
	require.NoError(t, err)
}

func TestSubmit_OnDemand(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, registry.Capabilities{}, nil)
	f.addArticle("x", tickStart.Add(-time.Hour))

	_, err := f.manager.Submit(ctx, "missing")
	assert.ErrorIs(t, err, ErrUnknownArticle)

	f.client.EXPECT().Submit(gomock.Any(), submitArticle("x"), gomock.Any()).
		Return(nil, &registry.Error{Kind: registry.KindValidation, StatusCode: 422, Message: "missing abstract"})

	rec, err := f.manager.Submit(ctx, "x")
	require.Error(t, err)
	assert.Equal(t, registry.KindValidation, registry.KindOf(err))
	assert.Equal(t, status.StatusError, rec.Status)
	assert.Contains(t, rec.LastError, "missing abstract")
}

func TestSummaryAndReset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, registry.Capabilities{Delete: true}, nil)
	f.addArticle("a", tickStart.Add(-3*time.Hour))
	f.addArticle("b", tickStart.Add(-2*time.Hour))
	f.addArticle("c", tickStart.Add(-time.Hour))
	f.set(t, "a", status.Update().WithStatus(status.StatusSuccess).WithExternalID("A"))
	f.set(t, "b", status.Update().WithStatus(status.StatusError).WithSubmitTimestamp(tickStart.Add(-2*time.Hour)))

	f.clock.Step(15 * time.Minute)
	summary, err := f.manager.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test-target", summary.Target)
	assert.Equal(t, 15*time.Minute, summary.SinceLastModifiedCheck)
	assert.Equal(t, 1, summary.Statuses[status.StatusSuccess])
	assert.Equal(t, 1, summary.Statuses[status.StatusError])
	assert.Equal(t, 1, summary.Statuses[status.StatusUnsubmitted])
	assert.Equal(t, 1, summary.Queues.New)
	assert.Equal(t, 1, summary.Queues.Retry)
	assert.False(t, summary.UpdateInProgress)

	require.NoError(t, f.manager.ResetAll(ctx, true))
	rec, err := f.manager.GetRecord(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, status.StatusUnsubmitted, rec.Status)
	assert.Equal(t, "A", rec.ExternalID)

	_, err = f.manager.GetRecord(ctx, "missing")
	assert.ErrorIs(t, err, ErrUnknownArticle)
}

func TestNewManager_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewManager(Options{})
	assert.Error(t, err)

	ctrl := gomock.NewController(t)
	store, err := state.NewFileStore(t.TempDir(), "other", nil)
	require.NoError(t, err)
	_, err = NewManager(Options{
		Target:   &config.TargetConfig{Name: "crossref"},
		Client:   mocks.NewMockClient(ctrl),
		Store:    store,
		Articles: articles.NewMemoryRepository(),
	})
	assert.ErrorContains(t, err, "belongs to target")
}
