package service

import (
	"crypto/rand"
	"sync"

	"github.com/oklog/ulid/v2"
)

const (
	authorizationPrefix = "wa"
	recordPrefix        = "tx"
)

type ulidGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newULIDGenerator() *ulidGenerator {
	return &ulidGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// New returns "<prefix>_<ULID>". IDs from one generator sort by creation.
func (g *ulidGenerator) New(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := ulid.MustNew(ulid.Now(), g.entropy)
	return prefix + "_" + id.String()
}
