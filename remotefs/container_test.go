package remotefs

import (
	"bytes"
	"testing"
)

// memStream is an in-memory Stream for exercising ContainerWriter without
// touching disk.
type memStream struct {
	buf    bytes.Buffer
	synced bool
	closed bool
}

func (s *memStream) Write(p []byte) (int, error) { return s.buf.Write(p) }
func (s *memStream) HSync() error                { s.synced = true; return nil }
func (s *memStream) Close() error                { s.closed = true; return nil }

const testSchema = `{"type":"record","name":"Event","fields":[{"name":"id","type":"string"}]}`

func TestContainerWriter_HeaderWrittenOnce(t *testing.T) {
	s := &memStream{}
	w, err := NewContainerWriter(s, testSchema)
	if err != nil {
		t.Fatalf("NewContainerWriter: %v", err)
	}
	if w == nil {
		t.Fatal("expected non-nil writer")
	}

	header := s.buf.Bytes()
	if !bytes.HasPrefix(header, ocfMagic) {
		t.Fatalf("header does not start with OCF magic: %x", header[:4])
	}
	if !bytes.Contains(header, []byte("avro.schema")) {
		t.Error("header missing avro.schema metadata key")
	}
}

func TestContainerWriter_NoFlushWithoutSync(t *testing.T) {
	s := &memStream{}
	w, err := NewContainerWriter(s, testSchema)
	if err != nil {
		t.Fatalf("NewContainerWriter: %v", err)
	}

	headerLen := s.buf.Len()
	if err := w.AppendEncoded([]byte("row-one")); err != nil {
		t.Fatalf("AppendEncoded: %v", err)
	}
	if err := w.AppendEncoded([]byte("row-two")); err != nil {
		t.Fatalf("AppendEncoded: %v", err)
	}

	if s.buf.Len() != headerLen {
		t.Errorf("stream grew before Sync: had %d bytes, now %d", headerLen, s.buf.Len())
	}
}

func TestContainerWriter_SyncWritesOneBlock(t *testing.T) {
	s := &memStream{}
	w, err := NewContainerWriter(s, testSchema)
	if err != nil {
		t.Fatalf("NewContainerWriter: %v", err)
	}

	rows := [][]byte{[]byte("alpha"), []byte("beta"), []byte("gamma")}
	for _, r := range rows {
		if err := w.AppendEncoded(r); err != nil {
			t.Fatalf("AppendEncoded: %v", err)
		}
	}

	beforeSync := s.buf.Len()
	if err := w.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if s.buf.Len() == beforeSync {
		t.Fatal("Sync did not write anything")
	}

	block := s.buf.Bytes()[beforeSync:]
	if !bytes.HasSuffix(block, w.syncMarker[:]) {
		t.Error("block does not end with the sync marker")
	}
	for _, r := range rows {
		if !bytes.Contains(block, r) {
			t.Errorf("block missing expected row %q", r)
		}
	}
}

func TestContainerWriter_SyncWithNoRowsIsNoop(t *testing.T) {
	s := &memStream{}
	w, err := NewContainerWriter(s, testSchema)
	if err != nil {
		t.Fatalf("NewContainerWriter: %v", err)
	}

	before := s.buf.Len()
	if err := w.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if s.buf.Len() != before {
		t.Error("Sync with no buffered rows should not write to the stream")
	}
}

func TestContainerWriter_RejectsInvalidSchema(t *testing.T) {
	s := &memStream{}
	if _, err := NewContainerWriter(s, "not valid json at all"); err == nil {
		t.Fatal("expected error for invalid schema")
	}
}

func TestWriteLong_RoundTrips(t *testing.T) {
	cases := []int64{0, 1, -1, 42, -42, 1000000, -1000000}
	for _, v := range cases {
		var buf bytes.Buffer
		writeLong(&buf, v)
		got, n := readLongForTest(buf.Bytes())
		if n != buf.Len() {
			t.Errorf("writeLong(%d): consumed %d bytes, wrote %d", v, n, buf.Len())
		}
		if got != v {
			t.Errorf("writeLong(%d) round-tripped to %d", v, got)
		}
	}
}

// readLongForTest decodes Avro's zigzag varint format, mirroring writeLong,
// so the encoding can be verified without depending on hamba/avro internals.
func readLongForTest(b []byte) (int64, int) {
	var zz uint64
	var shift uint
	var n int
	for {
		c := b[n]
		n++
		zz |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			break
		}
		shift += 7
	}
	return int64(zz>>1) ^ -int64(zz&1), n
}
