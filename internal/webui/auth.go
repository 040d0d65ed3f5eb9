package webui

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Claims carried in UI session tokens.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type authenticator struct {
	username     string
	passwordHash string // bcrypt
	secret       []byte
	expiry       time.Duration
}

func newAuthenticator(username, password, secret string, expiryMinutes int) *authenticator {
	a := &authenticator{
		username: username,
		expiry:   time.Duration(expiryMinutes) * time.Minute,
	}
	if a.expiry <= 0 {
		a.expiry = 24 * time.Hour
	}

	if password != "" {
		if strings.HasPrefix(password, "$2") {
			// already a bcrypt hash
			a.passwordHash = password
		} else {
			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				log.Printf("warning: could not hash ui password: %v", err)
			} else {
				a.passwordHash = string(hash)
			}
		}
	}

	if secret != "" {
		a.secret = []byte(secret)
	} else {
		// Ephemeral secret: sessions won't survive a restart, which is fine
		// for a single-admin status UI.
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err == nil {
			a.secret = []byte(hex.EncodeToString(buf))
		} else {
			a.secret = []byte("skybridge-ephemeral-secret")
		}
	}
	return a
}

// enabled reports whether password login is configured at all.
func (a *authenticator) enabled() bool {
	return a.passwordHash != ""
}

func (a *authenticator) verify(username, password string) bool {
	if !a.enabled() || username != a.username {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(password)) == nil
}

func (a *authenticator) generateToken(username string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *authenticator) validateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// middleware guards API routes. When no password is configured the UI is
// read-only open; mutating routes check enabled() themselves.
func (a *authenticator) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.enabled() {
			c.Next()
			return
		}
		tokenString := extractToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := a.validateToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("username", claims.Username)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	// websocket clients can't set headers from the browser
	return c.Query("token")
}
