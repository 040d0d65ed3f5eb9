package agent

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Stream protocol: uint32(be) length + JSON payload.

const maxFrameSize = 16 << 20

// WriteStreamMessage marshals v and writes it as one frame.
func WriteStreamMessage(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return WriteStreamFrame(w, b)
}

// ReadStreamMessage reads one frame and unmarshals it into dst.
func ReadStreamMessage(r io.Reader, dst any) error {
	b, err := ReadStreamFrame(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// WriteStreamFrame writes one length-prefixed frame.
func WriteStreamFrame(w io.Writer, payload []byte) error {
	if len(payload) > maxFrameSize {
		return fmt.Errorf("frame too large")
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadStreamFrame reads one length-prefixed frame.
func ReadStreamFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("invalid frame size")
	}
	if n == 0 {
		return []byte{}, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Wire messages. The cloud side speaks the same shapes.

type helloMessage struct {
	Type     string `json:"type"` // "hello" or "enroll"
	Token    string `json:"token"`
	TenantID string `json:"tenantId"`
	AgentID  string `json:"agentId,omitempty"`
	Hostname string `json:"hostname,omitempty"`
	Version  string `json:"agentVersion,omitempty"`
}

type ackMessage struct {
	Type    string `json:"type"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	AgentID string `json:"agentId,omitempty"`
}

type heartbeatMessage struct {
	Type    string        `json:"type"` // "heartbeat"
	AgentID string        `json:"agentId"`
	Status  runtimeStatus `json:"status"`
}

type eventMessage struct {
	Type    string          `json:"type"` // "event"
	AgentID string          `json:"agentId"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Queued  int64           `json:"queuedAt,omitempty"` // unix seconds, set when replayed from the journal
}

type serverMessage struct {
	Type string `json:"type"` // "ping", "config", ...
}
