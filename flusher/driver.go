// Package flusher drives a Sink through its lifecycle: exactly one setup()
// before any other call, then a sequence of append(record) and heartbeat()
// calls, and exactly one cleanup() at shutdown, all from a single thread.
package flusher

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/divolte/collector/record"
	"github.com/divolte/collector/sink"
)

// Sink is the contract a driver drives. *sink.Sink satisfies it.
type Sink interface {
	Setup() error
	Append(ctx context.Context, r record.AppendRecord) sink.Result
	Heartbeat(ctx context.Context) sink.Result
	Cleanup(ctx context.Context)
}

// ChannelDriver drives a Sink from records read off a Go channel, standing
// in for whatever upstream queue feeds the collector in production. It
// ticks Heartbeat on a fixed interval, which also naturally covers an idle
// queue: the driver's single loop goroutine is the only caller of Append
// and Heartbeat, even though the heartbeat timer runs on its own goroutine.
// Setup and Cleanup run on the goroutine that calls Run, before the loop
// starts and after it has ended. After a Failure result the loop stops
// reading records and only heartbeats until a heartbeat succeeds, so Append
// is never called while the sink is broken.
type ChannelDriver struct {
	sink           Sink
	records        <-chan record.AppendRecord
	heartbeatEvery time.Duration
}

// NewChannelDriver returns a driver that appends records read from records
// and heartbeats every heartbeatEvery.
func NewChannelDriver(s Sink, records <-chan record.AppendRecord, heartbeatEvery time.Duration) *ChannelDriver {
	return &ChannelDriver{sink: s, records: records, heartbeatEvery: heartbeatEvery}
}

// Run calls Setup, then drives Append/Heartbeat until ctx is cancelled or
// records is closed, then calls Cleanup exactly once. A context
// cancellation is treated as a normal shutdown request, not an error.
func (d *ChannelDriver) Run(ctx context.Context) error {
	if err := d.sink.Setup(); err != nil {
		return err
	}
	defer d.sink.Cleanup(ctx)

	loopCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(loopCtx)
	ticks := make(chan struct{})

	g.Go(func() error {
		ticker := time.NewTicker(d.heartbeatEvery)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				select {
				case ticks <- struct{}{}:
				case <-gctx.Done():
					return nil
				}
			}
		}
	})

	g.Go(func() error {
		broken := false
		for {
			in := d.records
			if broken {
				in = nil
			}
			select {
			case <-gctx.Done():
				return nil
			case r, ok := <-in:
				if !ok {
					stop()
					return nil
				}
				broken = d.sink.Append(gctx, r) == sink.Failure
			case <-ticks:
				broken = d.sink.Heartbeat(gctx) == sink.Failure
			}
		}
	})

	return g.Wait()
}
