package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ticketIssuer mints and validates short-lived WebSocket tickets.
//
// Browsers cannot set an Authorization header on the WebSocket upgrade
// request, so clients first request a ticket over HTTPS and pass it as
// a query parameter. Tickets are HS256 JWTs; the jti claim makes each
// one single-use.
type ticketIssuer struct {
	secret []byte
	ttl    time.Duration

	// used holds consumed ticket IDs until their expiry so a replayed
	// ticket is rejected even while its signature is still valid.
	used map[string]time.Time
	mu   sync.Mutex
}

func newTicketIssuer(secret string, ttl time.Duration) *ticketIssuer {
	return &ticketIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		used:   make(map[string]time.Time),
	}
}

// Issue creates a new signed ticket.
func (t *ticketIssuer) Issue() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"jti": uuid.NewString(),
		"sub": "ws",
		"iat": now.Unix(),
		"exp": now.Add(t.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("signing ticket: %w", err)
	}
	return signed, nil
}

// Validate checks a ticket's signature and expiry and consumes it.
func (t *ticketIssuer) Validate(ticket string) bool {
	token, err := jwt.Parse(ticket, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return false
	}
	jti, _ := claims["jti"].(string) //nolint:errcheck // empty string fails the check below
	if jti == "" {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, replayed := t.used[jti]; replayed {
		return false
	}
	t.used[jti] = exp.Time
	return true
}

// prune removes consumed ticket IDs whose expiry has passed.
func (t *ticketIssuer) prune() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for jti, exp := range t.used {
		if now.After(exp) {
			delete(t.used, jti)
		}
	}
}

// pruneLoop runs prune periodically until the context is cancelled.
func (t *ticketIssuer) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(t.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.prune()
		}
	}
}

// handleWSTicket generates a single-use WebSocket authentication ticket.
// The client uses this ticket to authenticate the WebSocket connection
// without exposing credentials in the URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, _ *http.Request) {
	ticket, err := s.tickets.Issue()
	if err != nil {
		writeInternalError(w, "failed to generate ticket")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(s.tickets.ttl.Seconds()),
	})
}
