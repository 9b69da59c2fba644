// Package record defines the opaque carrier the collector core appends to
// round files. Records arrive fully encoded by an upstream mapper; this
// package never inspects or validates the encoded bytes.
package record

import "github.com/divolte/collector/eventid"

// AppendRecord is a read-only carrier for one pre-encoded event. Only its
// timestamps are read by the session-binning sink; Bytes is treated as
// opaque and is assumed to already be a valid, self-contained encoded row
// under the governing container schema.
type AppendRecord struct {
	eventTime int64
	sessionID eventid.EventId
	bytes     []byte
}

// New constructs an AppendRecord. Constructing a record implies its bytes
// already encode a valid container row; callers are responsible for that
// invariant since the sink does not validate it.
func New(eventTimeMs int64, sessionID eventid.EventId, encoded []byte) AppendRecord {
	return AppendRecord{eventTime: eventTimeMs, sessionID: sessionID, bytes: encoded}
}

// EventTime returns the event's millisecond timestamp.
func (r AppendRecord) EventTime() int64 { return r.eventTime }

// SessionID returns the session identifier the record belongs to.
func (r AppendRecord) SessionID() eventid.EventId { return r.sessionID }

// Bytes returns the pre-encoded, self-contained row to append.
func (r AppendRecord) Bytes() []byte { return r.bytes }
