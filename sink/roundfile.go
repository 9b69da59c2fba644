package sink

import "github.com/divolte/collector/remotefs"

// roundFile is the state for one open output file. Several round numbers
// in the owning sink's map may point at the same roundFile instance, from
// long-session aliasing during round resolution.
type roundFile struct {
	round            int64
	path             string
	stream           remotefs.Stream
	writer           *remotefs.ContainerWriter
	lastSyncTimeMs   int64
	recordsSinceSync int64
}

// close flushes any buffered block, forces durability, and releases the
// underlying stream. It attempts every step even if an earlier one failed,
// and returns the first error encountered so the caller can decide whether
// to surface or swallow it.
func (f *roundFile) close() error {
	var first error
	if err := f.writer.Sync(); err != nil && first == nil {
		first = err
	}
	if err := f.stream.HSync(); err != nil && first == nil {
		first = err
	}
	if err := f.stream.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
