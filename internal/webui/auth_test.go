package webui

import (
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestAuthenticator_Disabled(t *testing.T) {
	a := newAuthenticator("admin", "", "", 0)
	if a.enabled() {
		t.Fatal("no password must mean auth disabled")
	}
	if a.verify("admin", "anything") {
		t.Fatal("verify must fail when disabled")
	}
}

func TestAuthenticator_PlainPassword(t *testing.T) {
	a := newAuthenticator("admin", "s3cret", "", 0)
	if !a.enabled() {
		t.Fatal("expected auth enabled")
	}
	if !strings.HasPrefix(a.passwordHash, "$2") {
		t.Fatalf("plain password not hashed: %q", a.passwordHash)
	}
	if !a.verify("admin", "s3cret") {
		t.Fatal("correct credentials rejected")
	}
	if a.verify("admin", "wrong") {
		t.Fatal("wrong password accepted")
	}
	if a.verify("other", "s3cret") {
		t.Fatal("wrong username accepted")
	}
}

func TestAuthenticator_PrehashedPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	a := newAuthenticator("admin", string(hash), "", 0)
	if a.passwordHash != string(hash) {
		t.Fatal("bcrypt hash must be used as-is")
	}
	if !a.verify("admin", "hunter2") {
		t.Fatal("prehashed credentials rejected")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	a := newAuthenticator("admin", "pw", "test-secret", 60)

	token, err := a.generateToken("admin")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := a.validateToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Username != "admin" {
		t.Fatalf("username = %s", claims.Username)
	}
	if until := time.Until(claims.ExpiresAt.Time); until < 59*time.Minute || until > 61*time.Minute {
		t.Fatalf("unexpected expiry: %v from now", until)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	a := newAuthenticator("admin", "pw", "secret-a", 60)
	b := newAuthenticator("admin", "pw", "secret-b", 60)

	token, err := a.generateToken("admin")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.validateToken(token); err == nil {
		t.Fatal("token signed with another secret must not validate")
	}
}

func TestValidateToken_Garbage(t *testing.T) {
	a := newAuthenticator("admin", "pw", "secret", 60)
	if _, err := a.validateToken("not.a.jwt"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}

func TestEphemeralSecret(t *testing.T) {
	a := newAuthenticator("admin", "pw", "", 60)
	if len(a.secret) == 0 {
		t.Fatal("expected generated secret")
	}
	b := newAuthenticator("admin", "pw", "", 60)
	if string(a.secret) == string(b.secret) {
		t.Fatal("ephemeral secrets must differ per instance")
	}
}
