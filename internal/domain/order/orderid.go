package order

import (
	"crypto/rand"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	idPrefix      = "PP"
	suffixLen     = 4
	suffixCharset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

var idPattern = regexp.MustCompile(`^PP-[0-9A-Z]+-[0-9A-Z]{4}$`)

// IsValidID reports whether id has the PP-<base36 ms>-<suffix> shape.
func IsValidID(id string) bool {
	return idPattern.MatchString(id)
}

// IDAllocator produces human-readable order codes.
type IDAllocator struct {
	now  func() time.Time
	rand func(b []byte)
}

// NewIDAllocator creates an allocator using the wall clock and crypto/rand.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{
		now: time.Now,
		rand: func(b []byte) {
			// crypto/rand.Read never returns an error.
			_, _ = rand.Read(b)
		},
	}
}

// New returns a fresh id. The timestamp segment sorts roughly by creation
// time; the suffix separates ids minted in the same millisecond.
func (a *IDAllocator) New() string {
	ts := strings.ToUpper(strconv.FormatInt(a.now().UnixMilli(), 36))

	buf := make([]byte, suffixLen)
	a.rand(buf)
	for i, b := range buf {
		buf[i] = suffixCharset[int(b)%len(suffixCharset)]
	}
	return idPrefix + "-" + ts + "-" + string(buf)
}

// Resolve passes a well-formed client id through unchanged and allocates a
// new one otherwise. The boolean reports whether the client id was kept.
func (a *IDAllocator) Resolve(clientID string) (string, bool) {
	if IsValidID(clientID) {
		return clientID, true
	}
	return a.New(), false
}
