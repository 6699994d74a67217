package sse

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cardlinkapp/cardlink-server/internal/id"
)

const (
	// eventQueueSize bounds the shared emit queue. Emitters never block;
	// a full queue drops the event and logs.
	eventQueueSize = 1000
	// clientQueueSize bounds each client's delivery channel. A client that
	// stops reading loses events rather than stalling the broadcast loop.
	clientQueueSize = 100

	heartbeatInterval = 30 * time.Second
)

// Client is one connected event stream. A client with a UserID receives that
// user's targeted events plus all broadcast events; admin clients also
// receive admin-only events such as the connection tally.
type Client struct {
	ID          string
	UserID      string
	IsAdmin     bool
	ConnectedAt time.Time
	EventChan   chan Event
	Done        chan struct{}
}

// Manager fans emitted events out to connected clients.
type Manager struct {
	logger *slog.Logger
	events chan Event
	wg     sync.WaitGroup

	mu      sync.RWMutex
	clients map[string]*Client
	// byUser indexes clients by user so targeted events skip the full scan.
	byUser map[string]map[string]*Client

	closedMu sync.RWMutex
	closed   bool
}

// NewManager creates the fan-out manager. Call Start in a goroutine before
// emitting.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger:  logger,
		events:  make(chan Event, eventQueueSize),
		clients: make(map[string]*Client),
		byUser:  make(map[string]map[string]*Client),
	}
}

// Start runs the broadcast loop until the context is canceled.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	defer m.wg.Done()

	m.logger.Info("SSE manager starting")

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-m.events:
			m.broadcast(event)
		case <-ticker.C:
			m.broadcast(NewHeartbeatEvent())
		case <-ctx.Done():
			m.logger.Info("SSE manager stopping")
			m.dropAllClients()
			return
		}
	}
}

// Shutdown stops accepting events, drains what is already queued, and waits
// for the broadcast loop. The context bounds the drain.
func (m *Manager) Shutdown(ctx context.Context) error {
	// The closed flag and the channel close must flip together, otherwise a
	// concurrent Emit could send on a closed channel.
	m.closedMu.Lock()
	m.closed = true
	close(m.events)
	m.closedMu.Unlock()

	drained := make(chan struct{})
	go func() {
		for event := range m.events {
			m.broadcast(event)
		}
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		m.logger.Warn("SSE drain timed out, queued events lost")
	}

	m.wg.Wait()
	m.logger.Info("SSE manager shutdown complete")
	return nil
}

// Emit queues an event for fan-out. Never blocks.
func (m *Manager) Emit(event Event) {
	m.closedMu.RLock()
	defer m.closedMu.RUnlock()
	if m.closed {
		return
	}

	select {
	case m.events <- event:
	default:
		m.logger.Error("SSE queue full, dropping event", "event_type", string(event.Type))
	}
}

// EmitToUser queues an event addressed to a single user.
func (m *Manager) EmitToUser(userID string, event Event) {
	event.UserID = userID
	m.Emit(event)
}

// Connect registers a stream for a user and returns its client.
func (m *Manager) Connect(userID string, isAdmin bool) (*Client, error) {
	clientID, err := id.Generate("sse")
	if err != nil {
		return nil, err
	}

	client := &Client{
		ID:          clientID,
		UserID:      userID,
		IsAdmin:     isAdmin,
		ConnectedAt: time.Now(),
		EventChan:   make(chan Event, clientQueueSize),
		Done:        make(chan struct{}),
	}

	m.mu.Lock()
	m.clients[clientID] = client
	if userID != "" {
		peers := m.byUser[userID]
		if peers == nil {
			peers = make(map[string]*Client)
			m.byUser[userID] = peers
		}
		peers[clientID] = client
	}
	total := len(m.clients)
	m.mu.Unlock()

	m.logger.Info("SSE client connected",
		"client_id", clientID, "user_id", userID, "is_admin", isAdmin, "total_clients", total)
	return client, nil
}

// Disconnect removes a client and closes its channels.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	client, ok := m.clients[clientID]
	if !ok {
		m.mu.Unlock()
		return
	}
	m.removeLocked(client)
	total := len(m.clients)
	m.mu.Unlock()

	close(client.Done)
	close(client.EventChan)

	m.logger.Info("SSE client disconnected",
		"client_id", clientID,
		"duration", time.Since(client.ConnectedAt),
		"total_clients", total)
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// broadcast pushes an event to every client that should see it.
func (m *Manager) broadcast(event Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var delivered, dropped int

	if event.UserID != "" {
		// Targeted event: only that user's streams see it.
		for _, client := range m.byUser[event.UserID] {
			m.push(client, event, &delivered, &dropped)
		}
	} else {
		adminOnly := event.Type == EventConnectionTally
		for _, client := range m.clients {
			if adminOnly && !client.IsAdmin {
				continue
			}
			m.push(client, event, &delivered, &dropped)
		}
	}

	if event.Type != EventHeartbeat {
		m.logger.Debug("event delivered",
			"event_type", string(event.Type), "delivered", delivered, "dropped", dropped)
	}
}

// push sends without blocking; slow clients lose the event.
func (m *Manager) push(client *Client, event Event, delivered, dropped *int) {
	select {
	case client.EventChan <- event:
		*delivered++
	default:
		*dropped++
		m.logger.Warn("dropped event for slow client",
			"client_id", client.ID, "event_type", string(event.Type))
	}
}

// removeLocked unlinks a client from both maps. Caller holds mu.
func (m *Manager) removeLocked(client *Client) {
	delete(m.clients, client.ID)
	if client.UserID != "" {
		peers := m.byUser[client.UserID]
		delete(peers, client.ID)
		if len(peers) == 0 {
			delete(m.byUser, client.UserID)
		}
	}
}

// dropAllClients closes every stream, used when the broadcast loop exits.
func (m *Manager) dropAllClients() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, client := range m.clients {
		close(client.Done)
		close(client.EventChan)
	}
	m.clients = make(map[string]*Client)
	m.byUser = make(map[string]map[string]*Client)
}
