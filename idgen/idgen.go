// Package idgen generates the identifiers of persisted neetextract
// records: extraction runs, queued jobs and HTTP request ids.
//
// Identifiers are UUIDv7 behind a short type prefix, so they sort by
// creation time and can be told apart in logs.
package idgen

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

var (
	// Run identifies one stored extraction result.
	Run = Prefixed("run_", UUIDv7())
	// Job identifies one queued extraction request.
	Job = Prefixed("job_", UUIDv7())
	// Request identifies one HTTP request in logs.
	Request = Prefixed("req_", UUIDv7())
)

// Parse validates a prefixed identifier and returns its canonical form.
// The part after the last underscore must be a UUID.
func Parse(id string) (string, error) {
	prefix, raw := "", id
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		prefix, raw = id[:i+1], id[i+1:]
	}
	u, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid id %q: %w", id, err)
	}
	return prefix + u.String(), nil
}
