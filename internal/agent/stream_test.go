package agent

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

func TestStreamFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"type":"hello","token":"t"}`)

	if err := WriteStreamFrame(&buf, payload); err != nil {
		t.Fatal(err)
	}
	got, err := ReadStreamFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: %q != %q", got, payload)
	}
}

func TestStreamMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := helloMessage{Type: "hello", Token: "tok", TenantID: "tenant-1", AgentID: "agent-1"}

	if err := WriteStreamMessage(&buf, in); err != nil {
		t.Fatal(err)
	}
	var out helloMessage
	if err := ReadStreamMessage(&buf, &out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Fatalf("message mismatch: %+v != %+v", out, in)
	}
}

func TestStreamFrame_ZeroLength(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteStreamFrame(&buf, nil); err != nil {
		t.Fatal(err)
	}
	got, err := ReadStreamFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty payload, got %q", got)
	}
}

func TestStreamFrame_RejectsOversizedHeader(t *testing.T) {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], maxFrameSize+1)
	if _, err := ReadStreamFrame(bytes.NewReader(hdr[:])); err == nil {
		t.Fatal("expected error for oversized frame header")
	}
}

func TestStreamFrame_RejectsOversizedWrite(t *testing.T) {
	if err := WriteStreamFrame(io.Discard, make([]byte, maxFrameSize+1)); err == nil {
		t.Fatal("expected error for oversized payload")
	}
}

func TestStreamFrame_TruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], 10)
	buf.Write(hdr[:])
	buf.WriteString("short")

	if _, err := ReadStreamFrame(&buf); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}
