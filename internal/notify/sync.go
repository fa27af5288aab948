// Package notify owns the client-side notification state for one
// authenticated user: the materialized list, the derived unread count and
// the live-connection state. It reconciles two data sources, REST fetches
// and push events, and falls back to polling whenever the push channel is
// down.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"recruitdesk/internal/common"

	"go.uber.org/zap"
)

type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Snapshot is an immutable copy of the synchronized state handed to
// listeners. Consumers never mutate notifications directly; every write
// goes through a Sync operation.
type Snapshot struct {
	Notifications   []common.Notification
	UnreadCount     int
	ConnectionState ConnectionState
	Loading         bool
}

// Listener receives a fresh snapshot after every state change.
type Listener interface {
	Name() string
	Update(Snapshot)
}

// Sync composes the REST client and the push channel into one
// synchronized view. All state is guarded by mu; refresh results carry a
// sequence number so a stale in-flight fetch can never overwrite a newer
// one.
type Sync struct {
	api          common.NotificationAPI
	channel      common.Channel
	pollInterval time.Duration
	log          *zap.SugaredLogger

	mu            sync.Mutex
	notifications []common.Notification
	unreadCount   int
	connState     ConnectionState
	loading       bool
	userID        string
	closed        bool
	refreshSeq    uint64
	pollStop      chan struct{}
	listeners     map[string]Listener

	wg sync.WaitGroup
}

func New(api common.NotificationAPI, ch common.Channel, pollInterval time.Duration, log *zap.SugaredLogger) *Sync {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}

	return &Sync{
		api:          api,
		channel:      ch,
		pollInterval: pollInterval,
		log:          log,
		connState:    StateDisconnected,
		listeners:    make(map[string]Listener),
	}
}

// Subscribe registers a listener and immediately hands it the current
// snapshot so consumers render without waiting for the next change.
func (s *Sync) Subscribe(l Listener) {
	s.mu.Lock()
	s.listeners[l.Name()] = l
	snap := s.snapshotLocked()
	s.mu.Unlock()

	l.Update(snap)
}

func (s *Sync) Unsubscribe(l Listener) {
	s.mu.Lock()
	delete(s.listeners, l.Name())
	s.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (s *Sync) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Connect starts the push channel for the given user and begins fallback
// polling until the channel acknowledges the connection. The room join and
// the reconciliation refresh run on every connected event, so they are
// re-done after each transport-level reconnect.
func (s *Sync) Connect(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("user id is required")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("sync already torn down")
	}
	if s.userID != "" {
		s.mu.Unlock()
		return fmt.Errorf("sync already started for user %s", s.userID)
	}
	s.userID = userID
	s.connState = StateConnecting
	s.startPollingLocked()
	s.mu.Unlock()
	s.notifyListeners()

	if err := s.channel.Connect(ctx); err != nil {
		return fmt.Errorf("connect channel: %w", err)
	}

	s.wg.Add(1)
	go s.eventLoop()

	// initial load so the badge has data before the channel ack arrives
	go s.Refresh(ctx)

	return nil
}

// Disconnect tears everything down: the poll timer, the channel and any
// interest in in-flight results. Safe to call more than once.
func (s *Sync) Disconnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopPollingLocked()
	s.connState = StateDisconnected
	s.mu.Unlock()
	s.notifyListeners()

	if err := s.channel.Close(); err != nil {
		s.log.Warnw("channel close failed", "error", err)
	}
	s.wg.Wait()
}

// Refresh fetches the full list from REST and replaces local state
// wholesale. This is the authoritative reconciliation point: the unread
// count is recomputed from the fetched list and wins over any push-derived
// drift. Failures leave the last known good state untouched; the next poll
// or explicit call retries.
func (s *Sync) Refresh(ctx context.Context) {
	s.mu.Lock()
	if s.closed || s.userID == "" {
		s.mu.Unlock()
		return
	}
	s.refreshSeq++
	seq := s.refreshSeq
	s.loading = true
	userID := s.userID
	s.mu.Unlock()
	s.notifyListeners()

	list, err := s.api.ListNotifications(ctx, userID)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if seq != s.refreshSeq {
		// a newer refresh was issued while this one was in flight
		s.mu.Unlock()
		return
	}
	s.loading = false
	if err != nil {
		s.mu.Unlock()
		s.notifyListeners()
		s.log.Warnw("notification refresh failed", "error", err)
		return
	}

	visible := make([]common.Notification, 0, len(list))
	unread := 0
	for _, n := range list {
		if n.Deleted {
			continue
		}
		visible = append(visible, n)
		if !n.IsRead {
			unread++
		}
	}
	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].CreatedAt.After(visible[j].CreatedAt)
	})

	s.notifications = visible
	s.unreadCount = unread
	s.mu.Unlock()
	s.notifyListeners()
}

// MarkAsRead optimistically flips the local entry and mirrors the change
// to REST. A failure is only logged: the UI stays responsive and the next
// refresh reconciles. Marking an already-read entry is a no-op.
func (s *Sync) MarkAsRead(ctx context.Context, notificationID string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	idx := s.indexOfLocked(notificationID)
	if idx < 0 || s.notifications[idx].IsRead {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	s.notifications[idx].IsRead = true
	s.notifications[idx].ReadAt = &now
	if s.unreadCount > 0 {
		s.unreadCount--
	}
	s.mu.Unlock()
	s.notifyListeners()

	isRead := true
	if _, err := s.api.UpdateNotification(ctx, notificationID, common.UpdateNotificationRequest{IsRead: &isRead}); err != nil {
		s.log.Errorw("mark as read failed", "id", notificationID, "error", err)
	}
}

// MarkAllAsRead marks every unread entry locally, then issues one update
// call per entry in parallel. Partial failure is tolerated; entries that
// did not stick server-side come back unread on the next refresh.
func (s *Sync) MarkAllAsRead(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	var unreadIDs []string
	for i := range s.notifications {
		if s.notifications[i].IsRead {
			continue
		}
		unreadIDs = append(unreadIDs, s.notifications[i].ID)
		s.notifications[i].IsRead = true
		s.notifications[i].ReadAt = &now
	}
	s.unreadCount = 0
	s.mu.Unlock()
	s.notifyListeners()

	if len(unreadIDs) == 0 {
		return
	}

	isRead := true
	var wg sync.WaitGroup
	for _, id := range unreadIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := s.api.UpdateNotification(ctx, id, common.UpdateNotificationRequest{IsRead: &isRead}); err != nil {
				s.log.Errorw("mark all as read: update failed", "id", id, "error", err)
			}
		}(id)
	}
	wg.Wait()
}

// DeleteNotification calls REST first and only drops the local entry after
// the backend confirms. Deletes are destructive, so unlike mark-read the
// failure is propagated and local state is left alone. Deleting an id that
// is no longer present is a no-op.
func (s *Sync) DeleteNotification(ctx context.Context, notificationID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if s.indexOfLocked(notificationID) < 0 {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.api.DeleteNotification(ctx, notificationID); err != nil {
		s.log.Errorw("delete notification failed", "id", notificationID, "error", err)
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if idx := s.indexOfLocked(notificationID); idx >= 0 {
		if !s.notifications[idx].IsRead && s.unreadCount > 0 {
			s.unreadCount--
		}
		s.notifications = append(s.notifications[:idx], s.notifications[idx+1:]...)
	}
	s.mu.Unlock()
	s.notifyListeners()
	return nil
}

func (s *Sync) eventLoop() {
	defer s.wg.Done()

	for ev := range s.channel.Events() {
		switch ev.Event {
		case common.EventConnected:
			s.onConnected()
		case common.EventDisconnected:
			s.onDisconnected()
		case common.EventJoinedRoom:
			s.log.Debugw("joined notification room")
		case common.EventNewNotification:
			var n common.Notification
			if err := json.Unmarshal(ev.Data, &n); err != nil {
				s.log.Warnw("dropping malformed notification event", "error", err)
				continue
			}
			s.onNewNotification(n)
		case common.EventCountSync:
			var p common.CountSyncPayload
			if err := json.Unmarshal(ev.Data, &p); err != nil {
				s.log.Warnw("dropping malformed count-sync event", "error", err)
				continue
			}
			s.onCountSync(p.UnreadCount)
		default:
			s.log.Debugw("ignoring push event", "event", ev.Event)
		}
	}
}

func (s *Sync) onConnected() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.connState = StateConnected
	s.stopPollingLocked()
	userID := s.userID
	s.mu.Unlock()
	s.notifyListeners()

	if err := s.channel.JoinRoom(userID); err != nil {
		s.log.Warnw("room join failed", "user", userID, "error", err)
	}

	// the channel may have been down for a while; reconcile the gap
	s.Refresh(context.Background())
}

func (s *Sync) onDisconnected() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.connState = StateDisconnected
	s.startPollingLocked()
	s.mu.Unlock()
	s.notifyListeners()
}

// onNewNotification prepends a push-delivered notification, de-duplicating
// by id: a concurrent refresh may have already materialized it.
func (s *Sync) onNewNotification(n common.Notification) {
	if n.Deleted {
		return
	}

	s.mu.Lock()
	if s.closed || s.indexOfLocked(n.ID) >= 0 {
		s.mu.Unlock()
		return
	}
	s.notifications = append([]common.Notification{n}, s.notifications...)
	if !n.IsRead {
		s.unreadCount++
	}
	s.mu.Unlock()
	s.notifyListeners()
}

// onCountSync applies the server-authoritative unread count. It exists to
// correct drift from events missed during connection gaps and overrides
// any locally computed delta.
func (s *Sync) onCountSync(count int) {
	if count < 0 {
		count = 0
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.unreadCount = count
	s.mu.Unlock()
	s.notifyListeners()
}

func (s *Sync) startPollingLocked() {
	if s.pollStop != nil || s.closed {
		return
	}
	stop := make(chan struct{})
	s.pollStop = stop
	s.wg.Add(1)
	go s.pollLoop(stop)
}

func (s *Sync) stopPollingLocked() {
	if s.pollStop != nil {
		close(s.pollStop)
		s.pollStop = nil
	}
}

func (s *Sync) pollLoop(stop chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Refresh(context.Background())
		}
	}
}

func (s *Sync) indexOfLocked(id string) int {
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Sync) snapshotLocked() Snapshot {
	notifications := make([]common.Notification, len(s.notifications))
	copy(notifications, s.notifications)

	return Snapshot{
		Notifications:   notifications,
		UnreadCount:     s.unreadCount,
		ConnectionState: s.connState,
		Loading:         s.loading,
	}
}

func (s *Sync) notifyListeners() {
	s.mu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	for _, l := range listeners {
		l.Update(snap)
	}
}
