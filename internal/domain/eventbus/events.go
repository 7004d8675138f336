package eventbus

import "time"

// Topics published by the transport and session layers.
const (
	EventClientConnected    = "client:connected"
	EventClientDisconnected = "client:disconnected"
	EventSessionStarted     = "session:started"
	EventSessionSettled     = "session:settled"
)

// ClientEvent accompanies the connect and disconnect topics.
type ClientEvent struct {
	ConnID   string
	ClientIP string
	Hostname string
	At       time.Time
}

// SessionEvent accompanies the session topics. DurationMinutes is zero for
// session.started.
type SessionEvent struct {
	ConnID          string
	ClientIP        string
	Username        string
	Tier            string
	StartTime       time.Time
	DurationMinutes int
}
