package agent

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skybridge-io/skybridge/internal/metrics"
)

// connectAndServe establishes the long-lived TLS stream to the cloud
// endpoint, runs the handshake and serves it until the connection breaks or
// ctx is cancelled.
func (a *Agent) connectAndServe(ctx context.Context) error {
	endpoint := strings.TrimSpace(a.cfg.Endpoint)
	if endpoint == "" {
		return errors.New("cloud endpoint not set")
	}

	tlsCfg, err := a.clientTLSConfig()
	if err != nil {
		return fmt.Errorf("tls init: %w", err)
	}

	metrics.RecordConnectAttempt()
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	raw, err := dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return fmt.Errorf("tcp connect: %w", err)
	}
	conn := tls.Client(raw, tlsCfg)
	if err := conn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return fmt.Errorf("tls handshake: %w", err)
	}

	if err := a.handshake(conn); err != nil {
		conn.Close()
		return err
	}

	// The line operators and the installer grep for.
	log.Printf("sync stream established endpoint=%s tenant=%s agent=%s", endpoint, a.cfg.TenantID, a.AgentID())
	metrics.SetConnected(true)
	a.markConnected(endpoint)
	defer func() {
		metrics.SetConnected(false)
		a.markDisconnected()
	}()

	return a.serve(ctx, conn)
}

// handshake sends hello (or enroll when no agent id is known yet) and waits
// for the ack.
func (a *Agent) handshake(conn net.Conn) error {
	msgType := "hello"
	if a.AgentID() == "" {
		msgType = "enroll"
	}
	hello := helloMessage{
		Type:     msgType,
		Token:    a.cfg.Token,
		TenantID: a.cfg.TenantID,
		AgentID:  a.AgentID(),
		Hostname: a.cfg.Hostname,
		Version:  a.cfg.Version,
	}
	if err := WriteStreamMessage(conn, hello); err != nil {
		return err
	}
	metrics.RecordFrameSent()

	var ack ackMessage
	if err := ReadStreamMessage(conn, &ack); err != nil {
		return err
	}
	metrics.RecordFrameReceived()
	if !ack.OK {
		if ack.Error != "" {
			return fmt.Errorf("%s rejected: %s", msgType, ack.Error)
		}
		return fmt.Errorf("%s rejected", msgType)
	}

	if msgType == "enroll" {
		if ack.AgentID == "" {
			return errors.New("enroll ack carried no agent id")
		}
		a.setAgentID(ack.AgentID)
		log.Printf("enrolled as agent %s", ack.AgentID)
		a.persistState()
	}
	return nil
}

// clientTLSConfig builds the outbound TLS config with server certificate
// pinning. With no configured fingerprint the first contact is trusted and
// its fingerprint saved next to the state file (TOFU).
func (a *Agent) clientTLSConfig() (*tls.Config, error) {
	serverFP := strings.TrimSpace(a.cfg.ServerFingerprint)
	fpFile := filepath.Join(a.cfg.DataDir, "server.fp")
	if serverFP == "" {
		if b, err := os.ReadFile(fpFile); err == nil {
			serverFP = strings.TrimSpace(string(b))
		}
	}

	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return errors.New("missing server certificate")
			}
			sum := sha256.Sum256(rawCerts[0])
			fp := hex.EncodeToString(sum[:])
			if serverFP != "" {
				if fp != serverFP {
					return fmt.Errorf("server fingerprint mismatch")
				}
				return nil
			}
			// TOFU: save fingerprint for next time.
			_ = os.WriteFile(fpFile, []byte(fp), 0o644)
			log.Printf("trusted new server fingerprint %s", fp)
			return nil
		},
	}
	return cfg, nil
}
