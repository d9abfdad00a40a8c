package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivamkadam692/WorkConnect/internal/models"
	"github.com/Shivamkadam692/WorkConnect/internal/presence"
	"github.com/Shivamkadam692/WorkConnect/internal/store"
	"github.com/Shivamkadam692/WorkConnect/internal/store/storetest"
)

type recorder struct {
	mu         sync.Mutex
	events     []Event
	broadcasts []string
}

func (r *recorder) OnLifecycleEvent(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) BroadcastToRequest(_ context.Context, _ uuid.UUID, event string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts = append(r.broadcasts, event)
	return nil
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []EventKind
	for _, ev := range r.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func (r *recorder) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.broadcasts...)
}

func newService(t *testing.T) (*Service, store.DataStore, *recorder) {
	t.Helper()
	ds := storetest.NewSQLite(t)
	rec := &recorder{}
	svc := NewService(ds, Options{Notifier: rec, Hub: rec, Logger: zerolog.Nop()})
	return svc, ds, rec
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	svc, ds, rec := newService(t)
	worker, profile := storetest.SeedProfile(t, ds)
	client := storetest.Stranger(models.RoleClient)

	req, err := svc.Create(ctx, client, models.NewRequest{
		WorkerProfileID: profile.ID,
		Price:           decimal.NewFromInt(2500),
		Message:         "  Shift furniture  ",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, req.Status)
	assert.Equal(t, worker.UserID, req.WorkerID)
	assert.Equal(t, "Shift furniture", req.Message)
	assert.Equal(t, []EventKind{EventCreated}, rec.kinds())

	_, err = svc.Create(ctx, worker, models.NewRequest{WorkerProfileID: profile.ID})
	assert.ErrorIs(t, err, models.ErrUnauthorized, "workers cannot send requests")

	_, err = svc.Create(ctx, client, models.NewRequest{WorkerProfileID: uuid.New()})
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = svc.Create(ctx, client, models.NewRequest{WorkerProfileID: profile.ID, Price: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = svc.Create(ctx, client, models.NewRequest{WorkerProfileID: profile.ID, Price: decimal.RequireFromString("10.001")})
	assert.ErrorIs(t, err, models.ErrValidation, "prices carry at most two decimal places")

	cents, err := svc.Create(ctx, client, models.NewRequest{WorkerProfileID: profile.ID, Price: decimal.RequireFromString("10.50")})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("10.5").Equal(cents.Price))

	require.NoError(t, ds.SetWorkerStatus(ctx, profile.ID, models.WorkerBusy))
	_, err = svc.Create(ctx, client, models.NewRequest{WorkerProfileID: profile.ID})
	assert.ErrorIs(t, err, models.ErrInvalidState, "busy workers cannot receive requests")
}

func TestCreate_OwnProfile(t *testing.T) {
	svc, ds, _ := newService(t)
	worker, profile := storetest.SeedProfile(t, ds)
	self := models.Actor{UserID: worker.UserID, Role: models.RoleClient}

	_, err := svc.Create(context.Background(), self, models.NewRequest{WorkerProfileID: profile.ID})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestAcceptStartComplete(t *testing.T) {
	ctx := context.Background()
	svc, ds, rec := newService(t)
	f := storetest.SeedRequest(t, ds)
	id := f.Request.ID

	req, err := svc.Accept(ctx, f.Worker, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, req.Status)
	require.NotNil(t, req.AcceptedAt)
	status, err := ds.GetWorkerStatus(ctx, f.Profile.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkerBusy, status)

	req, err = svc.MarkStarted(ctx, f.Worker, id)
	require.NoError(t, err)
	require.NotNil(t, req.LoadedAt)
	assert.Equal(t, models.StatusAccepted, req.Status)

	_, err = svc.MarkStarted(ctx, f.Worker, id)
	assert.ErrorIs(t, err, models.ErrInvalidState)

	req, err = svc.Complete(ctx, f.Worker, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, req.Status)
	assert.NotNil(t, req.CompletedAt)
	assert.False(t, req.TrackingActiveClient)
	assert.False(t, req.TrackingActiveWorker)

	status, err = ds.GetWorkerStatus(ctx, f.Profile.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkerAvailable, status)

	assert.Equal(t, []EventKind{EventAccepted, EventStarted, EventCompleted}, rec.kinds())
}

func TestDoubleAcceptFails(t *testing.T) {
	ctx := context.Background()
	svc, ds, _ := newService(t)
	f := storetest.SeedRequest(t, ds)

	_, err := svc.Accept(ctx, f.Worker, f.Request.ID)
	require.NoError(t, err)
	_, err = svc.Accept(ctx, f.Worker, f.Request.ID)
	assert.ErrorIs(t, err, models.ErrInvalidState)
	_, err = svc.Reject(ctx, f.Worker, f.Request.ID)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestTransitionsRequireBoundWorker(t *testing.T) {
	ctx := context.Background()
	svc, ds, rec := newService(t)
	f := storetest.SeedRequest(t, ds)

	_, err := svc.Accept(ctx, f.Client, f.Request.ID)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	_, err = svc.Accept(ctx, storetest.Stranger(models.RoleWorker), f.Request.ID)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	got, err := ds.GetRequest(ctx, f.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status, "failed transitions never mutate")
	assert.Empty(t, rec.kinds())
}

func TestRejectedIsTerminal(t *testing.T) {
	ctx := context.Background()
	svc, ds, _ := newService(t)
	f := storetest.SeedRequest(t, ds)

	req, err := svc.Reject(ctx, f.Worker, f.Request.ID)
	require.NoError(t, err)
	require.NotNil(t, req.RejectedAt)
	assert.Nil(t, req.AcceptedAt)

	for _, op := range []func(context.Context, models.Actor, uuid.UUID) (*models.Request, error){
		svc.Accept, svc.Reject, svc.MarkStarted, svc.Complete,
	} {
		_, err := op(ctx, f.Worker, f.Request.ID)
		assert.ErrorIs(t, err, models.ErrInvalidState)
	}
}

func TestConcurrentAcceptAndReject(t *testing.T) {
	ctx := context.Background()
	svc, ds, _ := newService(t)
	f := storetest.SeedRequest(t, ds)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	wg.Add(2)
	go func() { defer wg.Done(); _, errs[0] = svc.Accept(ctx, f.Worker, f.Request.ID) }()
	go func() { defer wg.Done(); _, errs[1] = svc.Reject(ctx, f.Worker, f.Request.ID) }()
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, models.ErrInvalidState)
		}
	}
	assert.Equal(t, 1, ok)
}

func TestMessaging(t *testing.T) {
	ctx := context.Background()
	svc, ds, rec := newService(t)
	f := storetest.SeedRequest(t, ds)

	msg, err := svc.PostMessage(ctx, f.Client, f.Request.ID, "When can you come?")
	require.NoError(t, err)
	assert.Equal(t, f.Client.UserID, msg.SenderID)
	assert.Equal(t, []string{presence.EventNewMessage}, rec.sent())

	_, err = svc.PostMessage(ctx, f.Client, f.Request.ID, "   ")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = svc.PostMessage(ctx, storetest.Stranger(models.RoleClient), f.Request.ID, "hi")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = svc.ListMessages(ctx, storetest.Stranger(models.RoleWorker), f.Request.ID)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = svc.Accept(ctx, f.Worker, f.Request.ID)
	require.NoError(t, err)
	_, err = svc.PostMessage(ctx, f.Worker, f.Request.ID, "On my way")
	require.NoError(t, err)

	_, err = svc.Complete(ctx, f.Worker, f.Request.ID)
	require.NoError(t, err)
	_, err = svc.PostMessage(ctx, f.Client, f.Request.ID, "Thanks")
	assert.ErrorIs(t, err, models.ErrInvalidState)

	msgs, err := svc.ListMessages(ctx, f.Client, f.Request.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "When can you come?", msgs[0].Text)
	assert.Equal(t, "On my way", msgs[1].Text)
}

func TestConcurrentMessagesAllPersist(t *testing.T) {
	ctx := context.Background()
	svc, ds, _ := newService(t)
	f := storetest.SeedRequest(t, ds)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := f.Client
			if i%2 == 1 {
				actor = f.Worker
			}
			_, err := svc.PostMessage(ctx, actor, f.Request.ID, fmt.Sprintf("message %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msgs, err := svc.ListMessages(ctx, f.Worker, f.Request.ID)
	require.NoError(t, err)
	require.Len(t, msgs, n)

	seen := map[string]bool{}
	for _, m := range msgs {
		assert.False(t, seen[m.ID], "duplicate message %s", m.ID)
		seen[m.ID] = true
	}
}

func TestLocationTracking(t *testing.T) {
	ctx := context.Background()
	svc, ds, rec := newService(t)
	f := storetest.SeedRequest(t, ds)
	id := f.Request.ID

	_, err := svc.UpdateLocation(ctx, f.Worker, id, 18.52, 73.85)
	assert.ErrorIs(t, err, models.ErrInvalidState, "no tracking before acceptance")

	_, err = svc.Accept(ctx, f.Worker, id)
	require.NoError(t, err)

	_, err = svc.UpdateLocation(ctx, f.Worker, id, 200, 73.85)
	assert.ErrorIs(t, err, models.ErrValidation)

	view, err := svc.UpdateLocation(ctx, f.Client, id, 18.50, 73.80)
	require.NoError(t, err)
	assert.True(t, view.TrackingActiveClient)

	view, err = svc.TrackingView(ctx, f.Worker, id)
	require.NoError(t, err)
	require.NotNil(t, view.ClientLocation, "worker sees the client before the start")

	_, err = svc.UpdateLocation(ctx, f.Worker, id, 18.51, 73.81)
	require.NoError(t, err)
	_, err = svc.UpdateLocation(ctx, f.Worker, id, 18.515, 73.815)
	require.NoError(t, err)

	view, err = svc.TrackingView(ctx, f.Client, id)
	require.NoError(t, err)
	require.NotNil(t, view.WorkerLocation)
	assert.InDelta(t, 18.515, view.WorkerLocation.Lat, 1e-9)

	_, err = svc.MarkStarted(ctx, f.Worker, id)
	require.NoError(t, err)

	view, err = svc.TrackingView(ctx, f.Worker, id)
	require.NoError(t, err)
	assert.Nil(t, view.ClientLocation, "client location is hidden after the start")

	before := len(rec.sent())
	_, err = svc.UpdateLocation(ctx, f.Client, id, 18.49, 73.79)
	require.NoError(t, err)
	assert.Len(t, rec.sent(), before, "client updates after the start are not broadcast")

	view, err = svc.StopTracking(ctx, f.Worker, id)
	require.NoError(t, err)
	assert.False(t, view.TrackingActiveWorker)

	view, err = svc.TrackingView(ctx, f.Client, id)
	require.NoError(t, err)
	assert.Nil(t, view.WorkerLocation, "worker location needs active tracking")

	var trackingStarts int
	for _, k := range rec.kinds() {
		if k == EventTrackingStarted {
			trackingStarts++
		}
	}
	assert.Equal(t, 2, trackingStarts, "one notice per visible tracking session")

	_, err = svc.Complete(ctx, f.Worker, id)
	require.NoError(t, err)
	_, err = svc.UpdateLocation(ctx, f.Worker, id, 18.5, 73.8)
	assert.ErrorIs(t, err, models.ErrInvalidState)
	_, err = svc.TrackingView(ctx, f.Client, id)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestConcurrentFirstLocationsStartTrackingOnce(t *testing.T) {
	ctx := context.Background()
	svc, ds, rec := newService(t)
	f := storetest.SeedRequest(t, ds)
	id := f.Request.ID

	_, err := svc.Accept(ctx, f.Worker, id)
	require.NoError(t, err)

	const updates = 8
	var wg sync.WaitGroup
	for i := 0; i < updates; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.UpdateLocation(ctx, f.Worker, id, 18.5+float64(i)/100, 73.8)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	var trackingStarts int
	for _, k := range rec.kinds() {
		if k == EventTrackingStarted {
			trackingStarts++
		}
	}
	assert.Equal(t, 1, trackingStarts)

	var broadcasts int
	for _, ev := range rec.sent() {
		if ev == presence.EventLocationUpdate {
			broadcasts++
		}
	}
	assert.Equal(t, updates, broadcasts, "every position is still broadcast")
}

func TestGetHidesCounterpartLocation(t *testing.T) {
	ctx := context.Background()
	svc, ds, _ := newService(t)
	f := storetest.SeedRequest(t, ds)

	_, err := svc.Accept(ctx, f.Worker, f.Request.ID)
	require.NoError(t, err)
	_, err = svc.UpdateLocation(ctx, f.Client, f.Request.ID, 10, 10)
	require.NoError(t, err)

	got, err := svc.Get(ctx, f.Worker, f.Request.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ClientLocation)

	got, err = svc.Get(ctx, f.Client, f.Request.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.ClientLocation)

	_, err = svc.Get(ctx, storetest.Stranger(models.RoleClient), f.Request.ID)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestListForActor(t *testing.T) {
	ctx := context.Background()
	svc, ds, _ := newService(t)
	f := storetest.SeedRequest(t, ds)
	storetest.SeedRequest(t, ds)

	mine, err := svc.ListForActor(ctx, f.Client, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, f.Request.ID, mine[0].ID)

	mine, err = svc.ListForActor(ctx, f.Worker, models.StatusPending, 0, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, err = svc.ListForActor(ctx, f.Worker, "bogus", 0, 0)
	assert.ErrorIs(t, err, models.ErrValidation)
}
