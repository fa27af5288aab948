package common

import "context"

// NotificationAPI is the REST surface the sync core calls through.
type NotificationAPI interface {
	ListNotifications(ctx context.Context, userID string) ([]Notification, error)
	GetNotification(ctx context.Context, id string) (*Notification, error)
	CreateNotification(ctx context.Context, req CreateNotificationRequest) (*Notification, error)
	UpdateNotification(ctx context.Context, id string, req UpdateNotificationRequest) (*Notification, error)
	DeleteNotification(ctx context.Context, id string) error
}

// Channel is the push transport consumed by the sync core. Connect starts
// the connection lifecycle; the channel reports transport state through
// synthesized EventConnected/EventDisconnected frames on Events and keeps
// reconnecting on its own until Close. Room membership does not survive a
// reconnect, so callers re-issue JoinRoom on every EventConnected.
type Channel interface {
	Connect(ctx context.Context) error
	JoinRoom(userID string) error
	Events() <-chan PushEvent
	Close() error
}

// NotificationStore is the server-side persistence contract.
type NotificationStore interface {
	Create(ctx context.Context, n *Notification) error
	ByID(ctx context.Context, id string) (*Notification, error)
	ByUser(ctx context.Context, userID string) ([]Notification, error)
	Update(ctx context.Context, id string, req UpdateNotificationRequest) (*Notification, error)
	SoftDelete(ctx context.Context, id string) error
	UnreadCount(ctx context.Context, userID string) (int64, error)
}
