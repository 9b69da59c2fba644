// Package sink implements the session-binning file writer: the stateful
// component that assigns incoming events to time-bucketed round files so
// every event belonging to one session lands in a single file, using the
// stream of event timestamps as its own logical clock.
package sink

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/divolte/collector/record"
	"github.com/divolte/collector/remotefs"
	"github.com/divolte/collector/selflog"
	"github.com/divolte/collector/telemetry"
)

// TTLRounds is the number of round widths a file is kept open beyond its
// own round: one for the round itself, plus two of headroom for
// late-arriving events from sessions that began near the round's end.
const TTLRounds = 3

// ReconnectDelayMs is the minimum wall-clock interval between reconnect
// attempts while the sink is Broken.
const ReconnectDelayMs = 15000

// Result is the advisory outcome returned to the FlusherDriver. The sink
// itself always manages its own alive/broken state regardless of what the
// driver does with this value.
type Result int

const (
	Success Result = iota
	Failure
)

func (r Result) String() string {
	if r == Success {
		return "success"
	}
	return "failure"
}

// Config configures a Sink.
type Config struct {
	// SessionTimeoutMs is the session length and round width.
	SessionTimeoutMs int64

	// Dir is the destination directory on the remote FS.
	Dir string

	// SyncEveryRecords is the sync-count threshold. A Sink that should
	// never sync on count alone can set this to a very large value.
	SyncEveryRecords int64

	// SyncEveryMillis is the sync-age threshold.
	SyncEveryMillis int64

	// Replication is passed through to FS.Create.
	Replication int

	// SchemaJSON is the Avro schema stamped into every container file's
	// header.
	SchemaJSON string

	// FS is the remote append-only filesystem files are created on.
	FS remotefs.FileSystem

	// Telemetry receives operator-facing lifecycle events. Defaults to
	// telemetry.Nop.
	Telemetry telemetry.LogEventSink

	// Now returns the current wall-clock time in milliseconds. Defaults to
	// time.Now().UnixMilli; tests substitute a controllable clock.
	Now func() int64
}

// Sink is the session-binning state machine. It is single-threaded
// cooperative: every exported method must be called from the one owning
// thread the FlusherDriver runs on. No internal locking is done.
type Sink struct {
	cfg      Config
	hostname string
	instance int64

	openFiles map[int64]*roundFile

	alive            bool
	failedRound      int64
	hasFailedRound   bool
	lastFixAttemptMs int64
	timeSignalMs     int64
}

// New constructs a Sink in the Alive state with no open files. It does not
// touch the remote FS; the first file is opened lazily on the first Append
// or on reconnect.
func New(cfg Config) *Sink {
	if cfg.Telemetry == nil {
		cfg.Telemetry = telemetry.Nop
	}
	if cfg.Now == nil {
		cfg.Now = func() int64 { return time.Now().UnixMilli() }
	}
	return &Sink{
		cfg:       cfg,
		hostname:  resolveHostname(),
		instance:  nextInstance(),
		openFiles: make(map[int64]*roundFile),
		alive:     true,
	}
}

// Setup satisfies the FlusherDriver contract. The Sink has nothing to
// do here since New already leaves it ready to accept Append calls; it
// exists so the driver has one uniform entry point to call before anything
// else.
func (s *Sink) Setup() error {
	return nil
}

// Alive reports whether the sink currently believes the remote FS is
// reachable.
func (s *Sink) Alive() bool {
	return s.alive
}

// OpenRoundCount returns the number of distinct open round files, counting
// aliases once.
func (s *Sink) OpenRoundCount() int {
	return len(s.distinctOpenFiles())
}

// Append resolves the record's destination round file, appends its bytes,
// and evaluates the sync policy. Calling Append while Broken is a fatal
// programmer error and panics rather than returning Failure: the driver
// contract guarantees append is never called again
// until a successful heartbeat returns the sink to Alive.
func (s *Sink) Append(ctx context.Context, r record.AppendRecord) Result {
	if !s.alive {
		panic("sink: append called while broken")
	}

	s.timeSignalMs = r.EventTime()
	requested := r.SessionID().Timestamp() / s.cfg.SessionTimeoutMs

	rf, err := s.resolveRoundFile(ctx, requested)
	if err != nil {
		s.teardown(requested, err)
		return Failure
	}

	if err := rf.writer.AppendEncoded(r.Bytes()); err != nil {
		s.teardown(requested, fmt.Errorf("sink: append to %s: %w", rf.path, err))
		return Failure
	}
	rf.recordsSinceSync++

	if err := s.evaluateSyncPolicy(ctx, rf); err != nil {
		s.teardown(requested, err)
		return Failure
	}
	return Success
}

// Heartbeat advances the logical clock from wall-clock time when Alive and
// evaluates the sync policy for every open file; when Broken, it attempts
// reconnect once the reconnect delay has elapsed.
func (s *Sink) Heartbeat(ctx context.Context) Result {
	if !s.alive {
		return s.attemptReconnect(ctx)
	}

	s.timeSignalMs = s.wallNowMs()

	// Snapshot discipline: sync-policy evaluation may close and remove
	// entries from openFiles, so iterate over a copy.
	for _, rf := range s.distinctOpenFiles() {
		if err := s.evaluateSyncPolicy(ctx, rf); err != nil {
			s.teardown(rf.round, err)
			return Failure
		}
	}
	return Success
}

// Cleanup closes every distinct open file, swallowing and logging any
// individual failure, and clears the file set.
func (s *Sink) Cleanup(ctx context.Context) {
	for _, rf := range s.distinctOpenFiles() {
		if err := rf.close(); err != nil {
			selflog.Printf("[sink] cleanup close failed for %s: %v", rf.path, err)
		}
	}
	s.openFiles = make(map[int64]*roundFile)
}

// resolveRoundFile implements the three-step round assignment algorithm:
// exact match, smallest open round >= requested via aliasing, or a newly
// created file clamped to the oldest allowed round.
func (s *Sink) resolveRoundFile(ctx context.Context, requested int64) (*roundFile, error) {
	if rf, ok := s.openFiles[requested]; ok {
		return rf, nil
	}

	if rf := s.smallestOpenRoundAtLeast(requested); rf != nil {
		s.openFiles[requested] = rf
		return rf, nil
	}

	effective := requested
	if oldest := s.oldestAllowedRound(); oldest > effective {
		effective = oldest
	}

	rf, err := s.openRoundFile(ctx, effective)
	if err != nil {
		return nil, err
	}
	s.openFiles[requested] = rf
	if effective != requested {
		s.openFiles[effective] = rf
	}
	return rf, nil
}

func (s *Sink) smallestOpenRoundAtLeast(requested int64) *roundFile {
	var best *roundFile
	for _, rf := range s.distinctOpenFiles() {
		if rf.round >= requested && (best == nil || rf.round < best.round) {
			best = rf
		}
	}
	return best
}

func (s *Sink) oldestAllowedRound() int64 {
	return (s.timeSignalMs / s.cfg.SessionTimeoutMs) - (TTLRounds - 1)
}

// openRoundFile creates a new file for round, performing the creation-time
// durability probe: an immediate HSync after Create, since the remote FS
// may accept Create while no storage node can persist data.
func (s *Sink) openRoundFile(ctx context.Context, round int64) (*roundFile, error) {
	wallNow := s.wallNowMs()
	name := roundFilename(s.hostname, s.instance, round, s.cfg.SessionTimeoutMs, time.UnixMilli(wallNow))
	path := filepath.Join(s.cfg.Dir, name)

	stream, err := s.cfg.FS.Create(ctx, path, s.cfg.Replication)
	if err != nil {
		return nil, fmt.Errorf("sink: create round file %s: %w", path, err)
	}

	if err := stream.HSync(); err != nil {
		if closeErr := stream.Close(); closeErr != nil {
			selflog.Printf("[sink] close after failed durability probe failed for %s: %v", path, closeErr)
		}
		if delErr := s.cfg.FS.Delete(ctx, path); delErr != nil {
			selflog.Printf("[sink] delete after failed durability probe failed for %s: %v", path, delErr)
		}
		return nil, fmt.Errorf("sink: durability probe failed for %s: %w", path, err)
	}

	writer, err := remotefs.NewContainerWriter(stream, s.cfg.SchemaJSON)
	if err != nil {
		_ = stream.Close()
		if delErr := s.cfg.FS.Delete(ctx, path); delErr != nil {
			selflog.Printf("[sink] delete after container writer failure failed for %s: %v", path, delErr)
		}
		return nil, fmt.Errorf("sink: open container writer for %s: %w", path, err)
	}

	s.cfg.Telemetry.Emit(telemetry.LogEvent{
		Timestamp: time.UnixMilli(wallNow),
		Level:     telemetry.InformationLevel,
		Message:   "round file opened",
		Round:     round,
		Path:      path,
	})

	return &roundFile{
		round:          round,
		path:           path,
		stream:         stream,
		writer:         writer,
		lastSyncTimeMs: wallNow,
	}, nil
}

// evaluateSyncPolicy applies the sync-then-rotate decision to a single
// file.
func (s *Sink) evaluateSyncPolicy(ctx context.Context, rf *roundFile) error {
	wallNow := s.wallNowMs()

	switch {
	case rf.recordsSinceSync >= s.cfg.SyncEveryRecords ||
		(rf.recordsSinceSync > 0 && wallNow-rf.lastSyncTimeMs >= s.cfg.SyncEveryMillis):
		if err := rf.writer.Sync(); err != nil {
			return fmt.Errorf("sink: block sync %s: %w", rf.path, err)
		}
		if err := rf.stream.HSync(); err != nil {
			return fmt.Errorf("sink: durable sync %s: %w", rf.path, err)
		}
		rf.recordsSinceSync = 0
		rf.lastSyncTimeMs = wallNow
		s.cfg.Telemetry.Emit(telemetry.LogEvent{
			Timestamp: time.UnixMilli(wallNow),
			Level:     telemetry.InformationLevel,
			Message:   "round file synced",
			Round:     rf.round,
			Path:      rf.path,
		})
		s.attemptRotation(rf)

	case rf.recordsSinceSync == 0:
		rf.lastSyncTimeMs = wallNow
		s.attemptRotation(rf)
	}

	return nil
}

// attemptRotation closes rf and removes every alias pointing at it once its
// round has aged out of the TTL window.
func (s *Sink) attemptRotation(rf *roundFile) {
	if rf.round >= s.oldestAllowedRound() {
		return
	}

	for round, candidate := range s.openFiles {
		if candidate == rf {
			delete(s.openFiles, round)
		}
	}

	if err := rf.close(); err != nil {
		selflog.Printf("[sink] rotation close failed for %s: %v", rf.path, err)
	}

	s.cfg.Telemetry.Emit(telemetry.LogEvent{
		Timestamp: time.UnixMilli(s.wallNowMs()),
		Level:     telemetry.InformationLevel,
		Message:   "round file rotated",
		Round:     rf.round,
		Path:      rf.path,
	})
}

// teardown performs the Alive->Broken transition: best-effort close of
// every open file, then clear state. Files closed this way lose the
// best-effort guarantee for their sessions.
func (s *Sink) teardown(failedRound int64, cause error) {
	for _, rf := range s.distinctOpenFiles() {
		if err := rf.close(); err != nil {
			selflog.Printf("[sink] teardown close failed for %s: %v", rf.path, err)
		}
	}
	s.openFiles = make(map[int64]*roundFile)

	wallNow := s.wallNowMs()
	s.alive = false
	s.failedRound = failedRound
	s.hasFailedRound = true
	s.lastFixAttemptMs = wallNow

	selflog.Printf("[sink] remote failure, sink broken: %v", cause)
	s.cfg.Telemetry.Emit(telemetry.LogEvent{
		Timestamp: time.UnixMilli(wallNow),
		Level:     telemetry.ErrorLevel,
		Message:   "remote failure, sink broken",
		Round:     failedRound,
		Err:       cause,
	})
}

// attemptReconnect implements the Broken->Alive transition. It makes at
// most one create attempt per heartbeat, and only once ReconnectDelayMs has
// elapsed since the last attempt.
func (s *Sink) attemptReconnect(ctx context.Context) Result {
	wallNow := s.wallNowMs()
	if wallNow-s.lastFixAttemptMs < ReconnectDelayMs {
		return Failure
	}
	s.lastFixAttemptMs = wallNow
	s.timeSignalMs = wallNow

	rf, err := s.openRoundFile(ctx, s.failedRound)
	if err != nil {
		selflog.Printf("[sink] reconnect attempt failed: %v", err)
		return Failure
	}

	s.openFiles[s.failedRound] = rf
	s.hasFailedRound = false
	s.alive = true

	s.cfg.Telemetry.Emit(telemetry.LogEvent{
		Timestamp: time.UnixMilli(wallNow),
		Level:     telemetry.WarningLevel,
		Message:   "reconnected after remote failure",
		Round:     rf.round,
		Path:      rf.path,
	})
	return Success
}

func (s *Sink) distinctOpenFiles() []*roundFile {
	seen := make(map[*roundFile]bool, len(s.openFiles))
	out := make([]*roundFile, 0, len(s.openFiles))
	for _, rf := range s.openFiles {
		if seen[rf] {
			continue
		}
		seen[rf] = true
		out = append(out, rf)
	}
	return out
}

func (s *Sink) wallNowMs() int64 {
	return s.cfg.Now()
}
