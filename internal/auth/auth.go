// Package auth authenticates API users with HTTP Basic credentials checked
// against an htpasswd allow-list.
package auth

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/crypto/bcrypt"
)

type contextKey string

// UserEmailKey is the request context key holding the authenticated user.
const UserEmailKey contextKey = "userEmail"

// GetUserEmail returns the authenticated user from ctx.
func GetUserEmail(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(UserEmailKey).(string)
	return email, ok && email != ""
}

// WithUserEmail returns a copy of ctx carrying email.
func WithUserEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, UserEmailKey, email)
}

// Htpasswd is a set of users and bcrypt password hashes.
type Htpasswd struct {
	mu     sync.RWMutex
	hashes map[string][]byte
}

// NewHtpasswd returns an empty user set.
func NewHtpasswd() *Htpasswd {
	return &Htpasswd{hashes: make(map[string][]byte)}
}

// LoadHtpasswd reads an htpasswd file.
func LoadHtpasswd(path string) (*Htpasswd, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open password file: %w", err)
	}
	defer f.Close()
	return ParseHtpasswd(f)
}

// ParseHtpasswd reads "user:hash" lines. Only bcrypt hashes ($2a$, $2b$,
// $2y$) are accepted.
func ParseHtpasswd(r io.Reader) (*Htpasswd, error) {
	h := NewHtpasswd()
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		user, hash, ok := strings.Cut(text, ":")
		if !ok || user == "" {
			return nil, fmt.Errorf("line %d: expected user:hash", line)
		}
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("line %d: unsupported hash for %s: %w", line, user, err)
		}
		h.hashes[user] = []byte(hash)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read password file: %w", err)
	}
	return h, nil
}

// Add sets user's password, replacing any existing entry.
func (h *Htpasswd) Add(user, password string, cost int) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hashes[user] = hash
	return nil
}

// Check reports whether password is correct for user.
func (h *Htpasswd) Check(user, password string) bool {
	h.mu.RLock()
	hash, ok := h.hashes[user]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

// Len returns the number of users.
func (h *Htpasswd) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.hashes)
}

// Middleware requires valid Basic credentials and stores the user in the
// request context.
func Middleware(users *Htpasswd, logger hclog.Logger, next http.Handler) http.Handler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, password, ok := r.BasicAuth()
		if !ok || !users.Check(user, password) {
			logger.Warn("rejected credentials",
				"method", r.Method,
				"path", r.URL.Path,
				"user", user,
			)
			w.Header().Set("WWW-Authenticate", `Basic realm="pawls"`)
			http.Error(w, "Incorrect email or password", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserEmail(r.Context(), user)))
	})
}
