// Package agent implements the sync core: the outbound encrypted stream to
// the cloud endpoint, heartbeats, enrollment, and replay of locally
// journaled events.
package agent

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/skybridge-io/skybridge/internal/journal"
	"github.com/skybridge-io/skybridge/internal/metrics"
)

// Config controls agent behavior.
type Config struct {
	Endpoint          string
	Token             string
	TenantID          string
	AgentID           string
	Hostname          string
	Version           string
	DataDir           string
	Heartbeat         time.Duration
	ServerFingerprint string
}

// Notifier receives status snapshots for live UI push.
type Notifier func(snapshot Snapshot)

// Agent supervises the sync stream.
type Agent struct {
	cfg     Config
	journal *journal.Journal

	mu          sync.RWMutex
	agentID     string
	heartbeat   time.Duration
	connected   bool
	lastConnect time.Time
	lastError   string
	notify      Notifier

	statePath string
}

// New constructs an Agent with sane defaults. A previously persisted state
// file may supply the agent id when the config carries none.
func New(cfg Config, jnl *journal.Journal) *Agent {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}
	a := &Agent{
		cfg:       cfg,
		journal:   jnl,
		agentID:   cfg.AgentID,
		heartbeat: cfg.Heartbeat,
		statePath: filepath.Join(cfg.DataDir, StateFile),
	}
	if a.agentID == "" {
		if st, err := LoadState(a.statePath); err == nil && st.AgentID != "" {
			a.agentID = st.AgentID
			log.Printf("recovered agent id %s from state", st.AgentID)
		}
	}
	return a
}

// SetNotifier registers the live status sink. Must be called before Run.
func (a *Agent) SetNotifier(n Notifier) {
	a.mu.Lock()
	a.notify = n
	a.mu.Unlock()
}

// SetHeartbeat applies a new heartbeat interval, picked up on the next beat.
func (a *Agent) SetHeartbeat(d time.Duration) {
	if d <= 0 {
		return
	}
	a.mu.Lock()
	a.heartbeat = d
	a.mu.Unlock()
}

// AgentID returns the current agent id, which may have been assigned by
// enrollment after startup.
func (a *Agent) AgentID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.agentID
}

func (a *Agent) setAgentID(id string) {
	a.mu.Lock()
	a.agentID = id
	a.mu.Unlock()
}

// Record journals an event for delivery to the cloud. Delivery order is the
// append order; events survive restarts until delivered.
func (a *Agent) Record(kind string, payload any) {
	if a.journal == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("drop event %s: %v", kind, err)
		return
	}
	if err := a.journal.Append(kind, raw); err != nil {
		log.Printf("journal append failed: %v", err)
		return
	}
	metrics.SetJournalDepth(a.journal.Depth())
}

// Run supervises the sync stream until ctx is cancelled, reconnecting with
// exponential backoff from 1s capped at 30s. A session that held for a
// while resets the backoff.
func (a *Agent) Run(ctx context.Context) {
	a.Record("agent_started", map[string]string{
		"hostname": a.cfg.Hostname,
		"version":  a.cfg.Version,
	})

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		started := time.Now()
		if err := a.connectAndServe(ctx); err != nil && ctx.Err() == nil {
			log.Printf("sync stream disconnected: %v", err)
			a.setLastError(err.Error())
		}
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) > 30*time.Second {
			backoff = time.Second
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
		}
	}
}

// serve runs one established session: heartbeats out, journal drain, and a
// reader for server frames. Returns when the connection breaks.
func (a *Agent) serve(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	var writeMu sync.Mutex
	send := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := WriteStreamMessage(conn, v); err != nil {
			return err
		}
		metrics.RecordFrameSent()
		return nil
	}

	readErr := make(chan error, 1)
	go func() {
		for {
			var msg serverMessage
			if err := ReadStreamMessage(conn, &msg); err != nil {
				readErr <- err
				return
			}
			metrics.RecordFrameReceived()
			if msg.Type == "ping" {
				_ = send(map[string]string{"type": "pong"})
			}
		}
	}()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	// First beat and journal drain happen immediately on connect.
	if err := a.beat(ctx, send); err != nil {
		return err
	}
	if err := a.drainJournal(send); err != nil {
		return err
	}

	drain := time.NewTicker(5 * time.Second)
	defer drain.Stop()

	beat := time.NewTimer(a.currentHeartbeat())
	defer beat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case <-beat.C:
			if err := a.beat(ctx, send); err != nil {
				return err
			}
			beat.Reset(a.currentHeartbeat())
		case <-drain.C:
			if err := a.drainJournal(send); err != nil {
				return err
			}
		}
	}
}

func (a *Agent) beat(ctx context.Context, send func(any) error) error {
	started := time.Now()
	status := collectRuntimeStatus(ctx)
	err := send(heartbeatMessage{
		Type:    "heartbeat",
		AgentID: a.AgentID(),
		Status:  status,
	})
	if err == nil {
		metrics.ObserveHeartbeat(time.Since(started))
		a.broadcast()
	}
	return err
}

func (a *Agent) drainJournal(send func(any) error) error {
	if a.journal == nil {
		return nil
	}
	for {
		batch, err := a.journal.PendingBatch(64)
		if err != nil {
			log.Printf("journal read failed: %v", err)
			return nil
		}
		if len(batch) == 0 {
			metrics.SetJournalDepth(a.journal.Depth())
			return nil
		}
		ids := make([]uint, 0, len(batch))
		for _, ev := range batch {
			msg := eventMessage{
				Type:    "event",
				AgentID: a.AgentID(),
				Kind:    ev.Kind,
				Payload: json.RawMessage(ev.Payload),
				Queued:  ev.CreatedAt.Unix(),
			}
			if err := send(msg); err != nil {
				return err
			}
			ids = append(ids, ev.ID)
		}
		if err := a.journal.MarkDelivered(ids); err != nil {
			log.Printf("journal mark delivered failed: %v", err)
			return nil
		}
	}
}

func (a *Agent) currentHeartbeat() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.heartbeat
}

// Snapshot is the agent view exposed to the UI and websocket push.
type Snapshot struct {
	AgentID     string    `json:"agentId"`
	TenantID    string    `json:"tenantId"`
	Endpoint    string    `json:"endpoint"`
	Connected   bool      `json:"connected"`
	LastConnect time.Time `json:"lastConnect,omitempty"`
	LastError   string    `json:"lastError,omitempty"`
	Journal     int64     `json:"journalDepth"`
	Version     string    `json:"version"`
}

// Snapshot returns the current session view.
func (a *Agent) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var depth int64
	if a.journal != nil {
		depth = a.journal.Depth()
	}
	return Snapshot{
		AgentID:     a.agentID,
		TenantID:    a.cfg.TenantID,
		Endpoint:    a.cfg.Endpoint,
		Connected:   a.connected,
		LastConnect: a.lastConnect,
		LastError:   a.lastError,
		Journal:     depth,
		Version:     a.cfg.Version,
	}
}

func (a *Agent) markConnected(endpoint string) {
	a.mu.Lock()
	a.connected = true
	a.lastConnect = time.Now()
	a.lastError = ""
	a.mu.Unlock()
	a.persistState()
	a.broadcast()
}

func (a *Agent) markDisconnected() {
	a.mu.Lock()
	a.connected = false
	a.mu.Unlock()
	a.broadcast()
}

func (a *Agent) setLastError(msg string) {
	a.mu.Lock()
	a.lastError = msg
	a.mu.Unlock()
}

func (a *Agent) broadcast() {
	a.mu.RLock()
	notify := a.notify
	a.mu.RUnlock()
	if notify != nil {
		notify(a.Snapshot())
	}
}

func (a *Agent) persistState() {
	a.mu.RLock()
	st := State{
		AgentID:     a.agentID,
		Endpoint:    a.cfg.Endpoint,
		LastConnect: a.lastConnect.Unix(),
	}
	a.mu.RUnlock()
	if err := SaveState(a.statePath, st); err != nil {
		log.Printf("persist state failed: %v", err)
	}
}
