// Package registry tracks the terminals currently connected to the server.
// It is the live view the admin API reads; the durable record lives in the
// ledger session log.
package registry

import (
	"sort"
	"sync"
	"time"

	"warnet-server-go/internal/domain/eventbus"
	"warnet-server-go/internal/platform/logging"
)

// Client is one connected terminal. Username, Tier and SessionStart are
// zero until a session is attached.
type Client struct {
	ConnID       string    `json:"conn_id"`
	ClientIP     string    `json:"client_ip"`
	Hostname     string    `json:"hostname"`
	ConnectedAt  time.Time `json:"connected_at"`
	Username     string    `json:"username,omitempty"`
	Tier         string    `json:"tier,omitempty"`
	SessionStart time.Time `json:"session_start,omitempty"`
}

// InSession reports whether the terminal has an authenticated session.
func (c Client) InSession() bool {
	return c.Username != ""
}

// Registry is a concurrency-safe map of connected terminals keyed by
// connection ID.
type Registry struct {
	mutex   sync.RWMutex
	clients map[string]Client
	bus     *eventbus.Bus
	logger  *logging.Logger
}

// New creates an empty registry. The bus may be nil in tests.
func New(bus *eventbus.Bus, logger *logging.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		bus:     bus,
		logger:  logger,
	}
}

// Register adds a terminal after a successful identification handshake.
func (r *Registry) Register(connID, clientIP, hostname string) {
	now := time.Now()

	r.mutex.Lock()
	r.clients[connID] = Client{
		ConnID:      connID,
		ClientIP:    clientIP,
		Hostname:    hostname,
		ConnectedAt: now,
	}
	count := len(r.clients)
	r.mutex.Unlock()

	r.logger.InfoTag("REGISTRY", "client registered",
		"conn_id", connID, "client_ip", clientIP, "hostname", hostname, "clients", count)
	if r.bus != nil {
		r.bus.PublishAsync(eventbus.EventClientConnected, eventbus.ClientEvent{
			ConnID:   connID,
			ClientIP: clientIP,
			Hostname: hostname,
			At:       now,
		})
	}
}

// AttachSession marks a registered terminal as running a session.
func (r *Registry) AttachSession(connID, username, tier string, start time.Time) {
	r.mutex.Lock()
	client, ok := r.clients[connID]
	if ok {
		client.Username = username
		client.Tier = tier
		client.SessionStart = start
		r.clients[connID] = client
	}
	r.mutex.Unlock()

	if !ok {
		r.logger.WarnTag("REGISTRY", "attach session for unknown connection", "conn_id", connID)
		return
	}
	if r.bus != nil {
		r.bus.PublishAsync(eventbus.EventSessionStarted, eventbus.SessionEvent{
			ConnID:    connID,
			ClientIP:  client.ClientIP,
			Username:  username,
			Tier:      tier,
			StartTime: start,
		})
	}
}

// DetachSession clears session state while keeping the connection listed.
func (r *Registry) DetachSession(connID string) {
	r.mutex.Lock()
	client, ok := r.clients[connID]
	if ok {
		client.Username = ""
		client.Tier = ""
		client.SessionStart = time.Time{}
		r.clients[connID] = client
	}
	r.mutex.Unlock()
}

// Remove drops a terminal when its connection closes.
func (r *Registry) Remove(connID string) {
	r.mutex.Lock()
	client, ok := r.clients[connID]
	if ok {
		delete(r.clients, connID)
	}
	count := len(r.clients)
	r.mutex.Unlock()

	if !ok {
		return
	}
	r.logger.InfoTag("REGISTRY", "client removed",
		"conn_id", connID, "client_ip", client.ClientIP, "clients", count)
	if r.bus != nil {
		r.bus.PublishAsync(eventbus.EventClientDisconnected, eventbus.ClientEvent{
			ConnID:   connID,
			ClientIP: client.ClientIP,
			Hostname: client.Hostname,
			At:       time.Now(),
		})
	}
}

// Snapshot copies the current client list, connected-first by registration
// time.
func (r *Registry) Snapshot() []Client {
	r.mutex.RLock()
	out := make([]Client, 0, len(r.clients))
	for _, client := range r.clients {
		out = append(out, client)
	}
	r.mutex.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}

// Count returns the number of connected terminals.
func (r *Registry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.clients)
}

// SessionCount returns the number of terminals with an active session.
func (r *Registry) SessionCount() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	count := 0
	for _, client := range r.clients {
		if client.InSession() {
			count++
		}
	}
	return count
}
