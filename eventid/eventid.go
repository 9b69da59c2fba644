// Package eventid implements the compact, sortable session/party identifier
// used throughout the collector. An EventId carries a millisecond timestamp
// and 24 bytes of random payload, and round-trips through a canonical
// "version:timestamp:payload" string form.
package eventid

import (
	"crypto/rand"
	"encoding/base64"
	"hash/fnv"
	"strconv"
	"strings"
	"time"
)

// Version is the single-character version tag embedded in every EventId.
const Version = '0'

// payloadSize is the number of random bytes carried by an EventId.
const payloadSize = 24

// EventId is a versioned, timestamp-bearing, random-payload token used as a
// session identifier and round key.
//
// The zero value is not a valid EventId; construct one with Generate or
// TryParse.
type EventId struct {
	version   byte
	timestamp int64
	payload   [payloadSize]byte
	value     string
}

// Timestamp returns the millisecond timestamp embedded in the id.
func (id EventId) Timestamp() int64 {
	return id.timestamp
}

// Version returns the version byte embedded in the id.
func (id EventId) Version() byte {
	return id.version
}

// String returns the canonical "version:timestamp:payload" form. This is
// also the value used for equality and hashing.
func (id EventId) String() string {
	return id.value
}

// Equal reports whether two ids have the same canonical string form.
func (id EventId) Equal(other EventId) bool {
	return id.value == other.value
}

// Hash returns a hash of the canonical string form, so that two ids for
// which Equal reports true always hash identically.
func (id EventId) Hash() uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id.value))
	return h.Sum64()
}

// Generate creates a fresh EventId stamped with the current wall-clock time
// in milliseconds and a new 24-byte random payload.
func Generate() EventId {
	return generate(nowMillis())
}

// GenerateAt creates a fresh EventId stamped with the caller-supplied
// millisecond timestamp and a new 24-byte random payload.
func GenerateAt(timestampMs int64) EventId {
	return generate(timestampMs)
}

func generate(timestampMs int64) EventId {
	var payload [payloadSize]byte
	if _, err := rand.Read(payload[:]); err != nil {
		// crypto/rand.Read on an OS-backed Reader only fails if the OS
		// primitive itself is broken; there is no sane fallback, so this
		// is a fatal invariant violation rather than a recoverable error.
		panic("eventid: failed to read random payload: " + err.Error())
	}
	return newEventId(Version, timestampMs, payload)
}

func newEventId(version byte, timestampMs int64, payload [payloadSize]byte) EventId {
	id := EventId{version: version, timestamp: timestampMs, payload: payload}
	id.value = encode(version, timestampMs, payload)
	return id
}

func encode(version byte, timestampMs int64, payload [payloadSize]byte) string {
	var b strings.Builder
	b.Grow(1 + 1 + 13 + 1 + 32)
	b.WriteByte(version)
	b.WriteByte(':')
	b.WriteString(strconv.FormatUint(uint64(timestampMs), 36))
	b.WriteByte(':')
	b.WriteString(base64.RawURLEncoding.EncodeToString(payload[:]))
	return b.String()
}

// TryParse parses the canonical string form of an EventId. Parsing is total
// and side-effect-free: any input not matching "V:T:P" with a literal
// version, a non-negative base-36 timestamp, and a payload that decodes to
// exactly 24 bytes under URL-safe base64, yields ok == false rather than an
// error.
func TryParse(s string) (id EventId, ok bool) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return EventId{}, false
	}
	versionStr, timestampStr, payloadStr := parts[0], parts[1], parts[2]

	if len(versionStr) != 1 || versionStr[0] != Version {
		return EventId{}, false
	}

	timestampMs, err := strconv.ParseUint(timestampStr, 36, 63)
	if err != nil {
		return EventId{}, false
	}

	decoded, err := base64.RawURLEncoding.DecodeString(payloadStr)
	if err != nil || len(decoded) != payloadSize {
		return EventId{}, false
	}

	var payload [payloadSize]byte
	copy(payload[:], decoded)

	return newEventId(versionStr[0], int64(timestampMs), payload), true
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
