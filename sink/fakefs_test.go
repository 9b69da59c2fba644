package sink

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/divolte/collector/remotefs"
)

// fakeFS is an in-memory remotefs.FileSystem with hooks for injecting
// failures, used to exercise the sink's reconnect and teardown paths
// without a real remote store.
type fakeFS struct {
	mu            sync.Mutex
	onCreate      func(path string) error
	failNextHSync bool
	createCalls   int
	files         map[string]*fakeStream
	deleted       []string
}

func newFakeFS() *fakeFS {
	return &fakeFS{files: make(map[string]*fakeStream)}
}

func (fs *fakeFS) Create(ctx context.Context, path string, replication int) (remotefs.Stream, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.createCalls++
	if fs.onCreate != nil {
		if err := fs.onCreate(path); err != nil {
			return nil, err
		}
	}

	s := &fakeStream{path: path}
	if fs.failNextHSync {
		s.failFirstHSync = true
		fs.failNextHSync = false
	}
	fs.files[path] = s
	return s, nil
}

func (fs *fakeFS) Delete(ctx context.Context, path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.deleted = append(fs.deleted, path)
	delete(fs.files, path)
	return nil
}

type fakeStream struct {
	path           string
	buf            bytes.Buffer
	failFirstHSync bool
	hsyncCount     int
	closed         bool
}

func (s *fakeStream) Write(p []byte) (int, error) {
	return s.buf.Write(p)
}

func (s *fakeStream) HSync() error {
	s.hsyncCount++
	if s.failFirstHSync && s.hsyncCount == 1 {
		return fmt.Errorf("fake: hsync failed")
	}
	return nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

// manualClock is an injectable wall clock for deterministic sync/reconnect
// timing tests.
type manualClock struct {
	ms int64
}

func (c *manualClock) now() int64 {
	return c.ms
}

func (c *manualClock) set(ms int64) {
	c.ms = ms
}

func (c *manualClock) advance(d int64) {
	c.ms += d
}

const testSchema = `{"type":"record","name":"Event","fields":[{"name":"id","type":"string"}]}`
