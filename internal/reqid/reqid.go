// Package reqid carries a request id through a context.
package reqid

import (
	"context"

	"github.com/google/uuid"
)

// Header is the HTTP header a request id is read from and echoed in.
const Header = "X-Request-Id"

// maxLen bounds ids accepted from clients.
const maxLen = 128

type key struct{}

// NewContext returns a copy of parent carrying id. An empty or oversized id
// is replaced by a fresh random one. The stored id is returned.
func NewContext(parent context.Context, id string) (context.Context, string) {
	if id == "" || len(id) > maxLen {
		id = uuid.NewString()
	}
	return context.WithValue(parent, key{}, id), id
}

// FromContext extracts the request ID from ctx.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(key{}).(string)
	return id, ok
}
