// Package auth extracts the caller's identity established by the upstream
// session provider. Credentials are never checked here.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
)

var ErrUnauthenticated = errors.New("unauthenticated")

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

type Identity struct {
	UserID int64
	Role   string
}

type Provider interface {
	Identify(r *http.Request) (Identity, error)
}

// HeaderProvider trusts identity headers set by the session proxy in front
// of the API. The proxy must strip these headers from client requests.
type HeaderProvider struct{}

func (HeaderProvider) Identify(r *http.Request) (Identity, error) {
	raw := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if raw == "" {
		return Identity{}, ErrUnauthenticated
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return Identity{}, ErrUnauthenticated
	}

	role := strings.TrimSpace(r.Header.Get(HeaderUserRole))
	if role == "" {
		role = "user"
	}

	return Identity{UserID: id, Role: role}, nil
}

type contextKey struct{}

func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// Middleware resolves the identity for every request and calls onMissing
// when there is none.
func Middleware(p Provider, onMissing http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := p.Identify(r)
			if err != nil {
				onMissing(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), id)))
		})
	}
}
