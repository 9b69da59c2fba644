package remotefs

import (
	"bytes"
	"crypto/rand"
	"fmt"

	"github.com/hamba/avro/v2"
)

// magic bytes every Avro Object Container File starts with.
var ocfMagic = []byte{'O', 'b', 'j', 1}

// ContainerWriter writes pre-encoded Avro rows to a Stream as an Object
// Container File. Unlike avro/v2's ocf.Encoder, it never re-serializes a Go
// value: AppendEncoded takes bytes that are already a valid encoding of the
// given schema, matching the sink's opaque-record contract. It also never
// flushes a block on its own; a block boundary is written only when Sync
// is called explicitly.
type ContainerWriter struct {
	stream     Stream
	syncMarker [16]byte

	block      bytes.Buffer
	blockCount int64
}

// NewContainerWriter validates schemaJSON, writes the OCF header to stream,
// and returns a writer ready to accept encoded rows.
func NewContainerWriter(stream Stream, schemaJSON string) (*ContainerWriter, error) {
	schema, err := avro.Parse(schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("remotefs: parse container schema: %w", err)
	}

	w := &ContainerWriter{stream: stream}
	if _, err := rand.Read(w.syncMarker[:]); err != nil {
		return nil, fmt.Errorf("remotefs: generate sync marker: %w", err)
	}

	if err := w.writeHeader(schema.String()); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *ContainerWriter) writeHeader(canonicalSchema string) error {
	var hdr bytes.Buffer
	hdr.Write(ocfMagic)

	metadata := map[string][]byte{
		"avro.schema": []byte(canonicalSchema),
		"avro.codec":  []byte("null"),
	}
	if err := writeMetadata(&hdr, metadata); err != nil {
		return fmt.Errorf("remotefs: write container header: %w", err)
	}
	hdr.Write(w.syncMarker[:])

	if _, err := w.stream.Write(hdr.Bytes()); err != nil {
		return fmt.Errorf("remotefs: write container header: %w", err)
	}
	return nil
}

// AppendEncoded buffers one pre-encoded row into the current block. It does
// not write anything to the underlying stream until Sync is called.
func (w *ContainerWriter) AppendEncoded(encoded []byte) error {
	w.block.Write(encoded)
	w.blockCount++
	return nil
}

// Sync closes the current block, writing its object count, byte length,
// buffered data, and the file's sync marker, then starts a new empty block.
// Calling Sync with no buffered objects is a no-op.
func (w *ContainerWriter) Sync() error {
	if w.blockCount == 0 {
		return nil
	}

	var out bytes.Buffer
	writeLong(&out, w.blockCount)
	writeLong(&out, int64(w.block.Len()))
	out.Write(w.block.Bytes())
	out.Write(w.syncMarker[:])

	if _, err := w.stream.Write(out.Bytes()); err != nil {
		return fmt.Errorf("remotefs: sync container block: %w", err)
	}

	w.block.Reset()
	w.blockCount = 0
	return nil
}

// writeMetadata encodes an Avro map<bytes> as a single block followed by the
// zero-length terminator, per the Avro binary map encoding.
func writeMetadata(buf *bytes.Buffer, m map[string][]byte) error {
	if len(m) == 0 {
		writeLong(buf, 0)
		return nil
	}
	writeLong(buf, int64(len(m)))
	for k, v := range m {
		writeString(buf, k)
		writeBytes(buf, v)
	}
	writeLong(buf, 0)
	return nil
}

// writeLong encodes an int64 using Avro's zigzag variable-length format.
func writeLong(buf *bytes.Buffer, v int64) {
	zz := uint64((v << 1) ^ (v >> 63))
	for zz >= 0x80 {
		buf.WriteByte(byte(zz) | 0x80)
		zz >>= 7
	}
	buf.WriteByte(byte(zz))
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeLong(buf, int64(len(b)))
	buf.Write(b)
}

func writeString(buf *bytes.Buffer, s string) {
	writeBytes(buf, []byte(s))
}
