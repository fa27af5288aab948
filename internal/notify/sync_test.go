package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"recruitdesk/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) ListNotifications(ctx context.Context, userID string) ([]common.Notification, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]common.Notification), args.Error(1)
}

func (m *MockAPI) GetNotification(ctx context.Context, id string) (*common.Notification, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*common.Notification), args.Error(1)
}

func (m *MockAPI) CreateNotification(ctx context.Context, req common.CreateNotificationRequest) (*common.Notification, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*common.Notification), args.Error(1)
}

func (m *MockAPI) UpdateNotification(ctx context.Context, id string, req common.UpdateNotificationRequest) (*common.Notification, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*common.Notification), args.Error(1)
}

func (m *MockAPI) DeleteNotification(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAPI) callCount(method string) int {
	count := 0
	for _, call := range m.Calls {
		if call.Method == method {
			count++
		}
	}
	return count
}

type fakeChannel struct {
	mu     sync.Mutex
	events chan common.PushEvent
	joined []string
	closed bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{events: make(chan common.PushEvent, 16)}
}

func (f *fakeChannel) Connect(ctx context.Context) error { return nil }

func (f *fakeChannel) JoinRoom(userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, userID)
	return nil
}

func (f *fakeChannel) Events() <-chan common.PushEvent { return f.events }

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

func (f *fakeChannel) emitConnected()    { f.events <- common.PushEvent{Event: common.EventConnected} }
func (f *fakeChannel) emitDisconnected() { f.events <- common.PushEvent{Event: common.EventDisconnected} }

func (f *fakeChannel) emitNotification(t *testing.T, n common.Notification) {
	t.Helper()
	data, err := json.Marshal(n)
	require.NoError(t, err)
	f.events <- common.PushEvent{Event: common.EventNewNotification, Data: data}
}

func (f *fakeChannel) emitCount(t *testing.T, count int) {
	t.Helper()
	data, err := json.Marshal(common.CountSyncPayload{UnreadCount: count})
	require.NoError(t, err)
	f.events <- common.PushEvent{Event: common.EventCountSync, Data: data}
}

func (f *fakeChannel) joinedRooms() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	rooms := make([]string, len(f.joined))
	copy(rooms, f.joined)
	return rooms
}

func notification(id string, read bool, age time.Duration) common.Notification {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC).Add(-age)
	n := common.Notification{
		ID:          id,
		RecipientID: "recruiter-1",
		Message:     "candidate update for " + id,
		Category:    common.CategoryNewApplication,
		IsRead:      read,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	if read {
		readAt := created.Add(time.Minute)
		n.ReadAt = &readAt
	}
	return n
}

// startConnected brings a Sync up against the given list and waits until
// both connect-time refreshes (initial load + connected ack) settled.
func startConnected(t *testing.T, api *MockAPI, list []common.Notification) (*Sync, *fakeChannel) {
	t.Helper()

	api.On("ListNotifications", mock.Anything, "recruiter-1").Return(list, nil)

	ch := newFakeChannel()
	s := New(api, ch, time.Hour, zap.NewNop().Sugar())
	t.Cleanup(s.Disconnect)

	require.NoError(t, s.Connect(context.Background(), "recruiter-1"))
	ch.emitConnected()

	require.Eventually(t, func() bool {
		return api.callCount("ListNotifications") == 2 &&
			len(s.Snapshot().Notifications) == len(list) &&
			!s.Snapshot().Loading
	}, time.Second, 5*time.Millisecond)

	return s, ch
}

func TestFreshLogin(t *testing.T) {
	list := []common.Notification{
		notification("n3", false, 3*time.Hour),
		notification("n1", false, time.Hour),
		notification("n5", true, 5*time.Hour),
		notification("n2", false, 2*time.Hour),
		notification("n4", true, 4*time.Hour),
	}

	api := new(MockAPI)
	s, ch := startConnected(t, api, list)

	snap := s.Snapshot()
	assert.Equal(t, StateConnected, snap.ConnectionState)
	assert.Equal(t, 3, snap.UnreadCount)
	require.Len(t, snap.Notifications, 5)

	// newest first by createdAt
	assert.Equal(t, []string{"n1", "n2", "n3", "n4", "n5"}, []string{
		snap.Notifications[0].ID,
		snap.Notifications[1].ID,
		snap.Notifications[2].ID,
		snap.Notifications[3].ID,
		snap.Notifications[4].ID,
	})

	assert.Equal(t, []string{"recruiter-1"}, ch.joinedRooms())
}

func TestLiveDelivery(t *testing.T) {
	api := new(MockAPI)
	s, ch := startConnected(t, api, []common.Notification{
		notification("n1", true, time.Hour),
	})

	fresh := notification("n-new", false, 0)
	ch.emitNotification(t, fresh)

	require.Eventually(t, func() bool {
		snap := s.Snapshot()
		return len(snap.Notifications) == 2 && snap.Notifications[0].ID == "n-new"
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, s.Snapshot().UnreadCount)
}

func TestPushDeliveryDeDuplicatesByID(t *testing.T) {
	api := new(MockAPI)
	s, ch := startConnected(t, api, []common.Notification{
		notification("n1", false, time.Hour),
	})

	// same id as an entry already materialized by refresh, then a repeat
	ch.emitNotification(t, notification("n1", false, time.Hour))
	fresh := notification("n2", false, 0)
	ch.emitNotification(t, fresh)
	ch.emitNotification(t, fresh)

	require.Eventually(t, func() bool {
		return len(s.Snapshot().Notifications) == 2
	}, time.Second, 5*time.Millisecond)

	// give any erroneous duplicate a chance to land
	time.Sleep(50 * time.Millisecond)

	snap := s.Snapshot()
	require.Len(t, snap.Notifications, 2)
	assert.Equal(t, "n2", snap.Notifications[0].ID)
	assert.Equal(t, "n1", snap.Notifications[1].ID)
	assert.Equal(t, 2, snap.UnreadCount)
}

func TestMarkAsReadIsIdempotent(t *testing.T) {
	api := new(MockAPI)
	api.On("UpdateNotification", mock.Anything, "n1", mock.Anything).Return(nil, nil)

	s, _ := startConnected(t, api, []common.Notification{
		notification("n1", false, time.Hour),
		notification("n2", false, 2*time.Hour),
	})

	s.MarkAsRead(context.Background(), "n1")
	s.MarkAsRead(context.Background(), "n1")

	snap := s.Snapshot()
	assert.True(t, snap.Notifications[0].IsRead)
	assert.NotNil(t, snap.Notifications[0].ReadAt)
	assert.Equal(t, 1, snap.UnreadCount, "count decremented exactly once")

	api.AssertNumberOfCalls(t, "UpdateNotification", 1)
}

func TestMarkAsRead_UnknownIDIsIgnored(t *testing.T) {
	api := new(MockAPI)
	s, _ := startConnected(t, api, []common.Notification{
		notification("n1", false, time.Hour),
	})

	s.MarkAsRead(context.Background(), "missing")

	assert.Equal(t, 1, s.Snapshot().UnreadCount)
	api.AssertNumberOfCalls(t, "UpdateNotification", 0)
}

func TestMarkAsRead_KeepsOptimisticChangeOnFailure(t *testing.T) {
	api := new(MockAPI)
	api.On("UpdateNotification", mock.Anything, "n1", mock.Anything).
		Return(nil, errors.New("backend down"))

	s, _ := startConnected(t, api, []common.Notification{
		notification("n1", false, time.Hour),
	})

	s.MarkAsRead(context.Background(), "n1")

	snap := s.Snapshot()
	assert.True(t, snap.Notifications[0].IsRead, "no rollback on mark-read failure")
	assert.Equal(t, 0, snap.UnreadCount)
}

func TestMarkAllAsRead(t *testing.T) {
	api := new(MockAPI)
	api.On("UpdateNotification", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)

	s, _ := startConnected(t, api, []common.Notification{
		notification("n1", false, 1*time.Hour),
		notification("n2", false, 2*time.Hour),
		notification("n3", false, 3*time.Hour),
		notification("n4", false, 4*time.Hour),
		notification("n5", true, 5*time.Hour),
	})
	require.Equal(t, 4, s.Snapshot().UnreadCount)

	s.MarkAllAsRead(context.Background())

	snap := s.Snapshot()
	assert.Equal(t, 0, snap.UnreadCount)
	for _, n := range snap.Notifications {
		assert.True(t, n.IsRead, "notification %s should be read", n.ID)
		assert.NotNil(t, n.ReadAt, "notification %s should carry readAt", n.ID)
	}

	// one update per previously unread entry, nothing for n5
	api.AssertNumberOfCalls(t, "UpdateNotification", 4)
}

func TestDeleteNotification(t *testing.T) {
	api := new(MockAPI)
	api.On("DeleteNotification", mock.Anything, "n1").Return(nil)

	s, _ := startConnected(t, api, []common.Notification{
		notification("n1", false, time.Hour),
		notification("n2", false, 2*time.Hour),
	})

	require.NoError(t, s.DeleteNotification(context.Background(), "n1"))

	snap := s.Snapshot()
	require.Len(t, snap.Notifications, 1)
	assert.Equal(t, "n2", snap.Notifications[0].ID)
	assert.Equal(t, 1, snap.UnreadCount)

	// deleting an id that is already gone is a graceful no-op
	require.NoError(t, s.DeleteNotification(context.Background(), "n1"))
	api.AssertNumberOfCalls(t, "DeleteNotification", 1)
}

func TestDeleteNotification_RollsBackOnFailure(t *testing.T) {
	api := new(MockAPI)
	api.On("DeleteNotification", mock.Anything, "n1").Return(errors.New("backend down"))

	s, _ := startConnected(t, api, []common.Notification{
		notification("n1", false, time.Hour),
	})

	err := s.DeleteNotification(context.Background(), "n1")
	require.Error(t, err)

	snap := s.Snapshot()
	require.Len(t, snap.Notifications, 1, "entry must survive a failed delete")
	assert.False(t, snap.Notifications[0].IsRead)
	assert.Equal(t, 1, snap.UnreadCount)
}

func TestCountSyncOverridesLocalCount(t *testing.T) {
	api := new(MockAPI)
	s, ch := startConnected(t, api, []common.Notification{
		notification("n1", false, time.Hour),
	})

	ch.emitCount(t, 7)
	require.Eventually(t, func() bool {
		return s.Snapshot().UnreadCount == 7
	}, time.Second, 5*time.Millisecond)

	ch.emitCount(t, -3)
	require.Eventually(t, func() bool {
		return s.Snapshot().UnreadCount == 0
	}, time.Second, 5*time.Millisecond)
}

func TestRefreshReconcilesDriftedCount(t *testing.T) {
	api := new(MockAPI)
	s, ch := startConnected(t, api, []common.Notification{
		notification("n1", false, time.Hour),
		notification("n2", true, 2*time.Hour),
	})

	// drift the count away from the list
	ch.emitCount(t, 42)
	require.Eventually(t, func() bool {
		return s.Snapshot().UnreadCount == 42
	}, time.Second, 5*time.Millisecond)

	// refresh is ground truth: count == unread entries in the fetched list
	s.Refresh(context.Background())

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.UnreadCount)
	assert.Len(t, snap.Notifications, 2)
}

func TestRefreshFailureLeavesStateUntouched(t *testing.T) {
	api := new(MockAPI)
	list := []common.Notification{notification("n1", false, time.Hour)}
	s, _ := startConnected(t, api, list)

	// from now on the backend is down
	api.ExpectedCalls = nil
	api.On("ListNotifications", mock.Anything, "recruiter-1").
		Return(nil, errors.New("backend down"))

	s.Refresh(context.Background())

	snap := s.Snapshot()
	assert.Len(t, snap.Notifications, 1)
	assert.Equal(t, 1, snap.UnreadCount)
	assert.False(t, snap.Loading)
}

func TestRefreshExcludesSoftDeleted(t *testing.T) {
	deleted := notification("gone", false, time.Hour)
	deleted.Deleted = true

	api := new(MockAPI)
	s, _ := startConnected(t, api, []common.Notification{}) // settle first

	api.ExpectedCalls = nil
	api.On("ListNotifications", mock.Anything, "recruiter-1").
		Return([]common.Notification{deleted, notification("n1", false, 2*time.Hour)}, nil)

	s.Refresh(context.Background())

	snap := s.Snapshot()
	require.Len(t, snap.Notifications, 1)
	assert.Equal(t, "n1", snap.Notifications[0].ID)
	assert.Equal(t, 1, snap.UnreadCount)
}

// gateAPI blocks the first list call until released so tests can overlap
// two refreshes deterministically.
type gateAPI struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
	first   []common.Notification
	rest    []common.Notification
}

func (g *gateAPI) ListNotifications(ctx context.Context, userID string) ([]common.Notification, error) {
	g.mu.Lock()
	g.calls++
	n := g.calls
	g.mu.Unlock()

	if n == 1 {
		<-g.release
		return g.first, nil
	}
	return g.rest, nil
}

func (g *gateAPI) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *gateAPI) GetNotification(ctx context.Context, id string) (*common.Notification, error) {
	return nil, errors.New("not implemented")
}

func (g *gateAPI) CreateNotification(ctx context.Context, req common.CreateNotificationRequest) (*common.Notification, error) {
	return nil, errors.New("not implemented")
}

func (g *gateAPI) UpdateNotification(ctx context.Context, id string, req common.UpdateNotificationRequest) (*common.Notification, error) {
	return nil, nil
}

func (g *gateAPI) DeleteNotification(ctx context.Context, id string) error { return nil }

func TestStaleRefreshCannotOverwriteNewerOne(t *testing.T) {
	stale := []common.Notification{notification("stale", false, 10*time.Hour)}
	fresh := []common.Notification{
		notification("fresh-1", false, time.Hour),
		notification("fresh-2", true, 2*time.Hour),
	}

	api := &gateAPI{release: make(chan struct{}), first: stale, rest: fresh}
	ch := newFakeChannel()
	s := New(api, ch, time.Hour, zap.NewNop().Sugar())
	t.Cleanup(s.Disconnect)

	require.NoError(t, s.Connect(context.Background(), "recruiter-1"))

	// the connect-time refresh is now parked inside the gate
	require.Eventually(t, func() bool { return api.callCount() == 1 }, time.Second, time.Millisecond)

	// a newer refresh completes while the older one is still in flight
	s.Refresh(context.Background())
	require.Equal(t, "fresh-1", s.Snapshot().Notifications[0].ID)

	// the stale response must be discarded when it finally lands
	close(api.release)
	time.Sleep(50 * time.Millisecond)

	snap := s.Snapshot()
	require.Len(t, snap.Notifications, 2)
	assert.Equal(t, "fresh-1", snap.Notifications[0].ID)
	assert.Equal(t, 1, snap.UnreadCount)
}

func TestTeardownDiscardsInflightResults(t *testing.T) {
	api := &gateAPI{
		release: make(chan struct{}),
		first:   []common.Notification{notification("late", false, time.Hour)},
	}
	ch := newFakeChannel()
	s := New(api, ch, time.Hour, zap.NewNop().Sugar())

	require.NoError(t, s.Connect(context.Background(), "recruiter-1"))
	require.Eventually(t, func() bool { return api.callCount() == 1 }, time.Second, time.Millisecond)

	s.Disconnect()
	close(api.release)
	time.Sleep(50 * time.Millisecond)

	snap := s.Snapshot()
	assert.Empty(t, snap.Notifications, "results arriving after teardown are dropped")
	assert.Equal(t, StateDisconnected, snap.ConnectionState)
}

func TestFallbackPollingOnlyWhileDisconnected(t *testing.T) {
	api := new(MockAPI)
	api.On("ListNotifications", mock.Anything, "recruiter-1").
		Return([]common.Notification{}, nil)

	ch := newFakeChannel()
	s := New(api, ch, 30*time.Millisecond, zap.NewNop().Sugar())
	t.Cleanup(s.Disconnect)

	require.NoError(t, s.Connect(context.Background(), "recruiter-1"))

	// not yet connected: the poll timer drives refreshes
	require.Eventually(t, func() bool {
		return api.callCount("ListNotifications") >= 3
	}, time.Second, 5*time.Millisecond)

	ch.emitConnected()
	require.Eventually(t, func() bool {
		return s.Snapshot().ConnectionState == StateConnected
	}, time.Second, 5*time.Millisecond)

	// connected: polling must stop (allow in-flight calls to settle first)
	time.Sleep(60 * time.Millisecond)
	settled := api.callCount("ListNotifications")
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, settled, api.callCount("ListNotifications"),
		"no poll may fire while the channel is connected")

	// connection drop: polling resumes within one interval
	ch.emitDisconnected()
	require.Eventually(t, func() bool {
		return api.callCount("ListNotifications") > settled
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateDisconnected, s.Snapshot().ConnectionState)
}

func TestRoomRejoinOnEveryReconnect(t *testing.T) {
	api := new(MockAPI)
	api.On("ListNotifications", mock.Anything, "recruiter-1").
		Return([]common.Notification{}, nil)

	ch := newFakeChannel()
	s := New(api, ch, time.Hour, zap.NewNop().Sugar())
	t.Cleanup(s.Disconnect)

	require.NoError(t, s.Connect(context.Background(), "recruiter-1"))

	ch.emitConnected()
	ch.emitDisconnected()
	ch.emitConnected()

	require.Eventually(t, func() bool {
		return len(ch.joinedRooms()) == 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"recruiter-1", "recruiter-1"}, ch.joinedRooms())
}

type recordingListener struct {
	name string
	mu   sync.Mutex
	last Snapshot
	hits int
}

func (r *recordingListener) Name() string { return r.name }

func (r *recordingListener) Update(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = snap
	r.hits++
}

func (r *recordingListener) snapshot() (Snapshot, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.hits
}

func TestListenersReceiveStateChanges(t *testing.T) {
	api := new(MockAPI)
	s, ch := startConnected(t, api, []common.Notification{
		notification("n1", false, time.Hour),
	})

	listener := &recordingListener{name: "badge"}
	s.Subscribe(listener)

	// subscription pushes the current snapshot immediately
	snap, hits := listener.snapshot()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, snap.UnreadCount)

	ch.emitNotification(t, notification("n2", false, 0))
	require.Eventually(t, func() bool {
		snap, _ := listener.snapshot()
		return snap.UnreadCount == 2
	}, time.Second, 5*time.Millisecond)

	s.Unsubscribe(listener)
	_, before := listener.snapshot()
	ch.emitCount(t, 9)
	require.Eventually(t, func() bool {
		return s.Snapshot().UnreadCount == 9
	}, time.Second, 5*time.Millisecond)
	_, after := listener.snapshot()
	assert.Equal(t, before, after, "unsubscribed listener must not be updated")
}

func TestConnectTwiceFails(t *testing.T) {
	api := new(MockAPI)
	api.On("ListNotifications", mock.Anything, mock.Anything).
		Return([]common.Notification{}, nil)

	ch := newFakeChannel()
	s := New(api, ch, time.Hour, zap.NewNop().Sugar())
	t.Cleanup(s.Disconnect)

	require.NoError(t, s.Connect(context.Background(), "recruiter-1"))
	assert.Error(t, s.Connect(context.Background(), "recruiter-1"))
	assert.Error(t, s.Connect(context.Background(), ""))
}

func TestDisconnectIsIdempotent(t *testing.T) {
	api := new(MockAPI)
	s, _ := startConnected(t, api, []common.Notification{})

	s.Disconnect()
	s.Disconnect()

	assert.Equal(t, StateDisconnected, s.Snapshot().ConnectionState)
}
