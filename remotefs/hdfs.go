package remotefs

import (
	"context"
	"fmt"
	"os"

	"github.com/colinmarc/hdfs/v2"
)

// HDFSConfig configures the production FileSystem backend.
type HDFSConfig struct {
	// Namenodes lists one or more namenode addresses (host:port). HA
	// clusters should list both the active and standby addresses.
	Namenodes []string

	// User is the HDFS principal files are created as. Empty uses the
	// client library's default (the OS user running the process).
	User string

	// BlockSize is the HDFS block size in bytes for newly created files.
	// Zero uses the client library's default.
	BlockSize int64
}

// HDFS is a FileSystem backed by a real Hadoop cluster.
type HDFS struct {
	client *hdfs.Client
	cfg    HDFSConfig
}

// DialHDFS connects to the namenode(s) described by cfg.
func DialHDFS(cfg HDFSConfig) (*HDFS, error) {
	opts := hdfs.ClientOptions{
		Addresses: cfg.Namenodes,
		User:      cfg.User,
	}
	client, err := hdfs.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("remotefs: dial hdfs %v: %w", cfg.Namenodes, err)
	}
	return &HDFS{client: client, cfg: cfg}, nil
}

func (fs *HDFS) Create(ctx context.Context, path string, replication int) (Stream, error) {
	w, err := fs.client.CreateFile(path, replication, fs.cfg.BlockSize, 0o644)
	if err != nil {
		return nil, fmt.Errorf("remotefs: create %s: %w", path, err)
	}
	return &hdfsStream{path: path, writer: w}, nil
}

func (fs *HDFS) Delete(ctx context.Context, path string) error {
	if err := fs.client.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remotefs: delete %s: %w", path, err)
	}
	return nil
}

// Close releases the underlying namenode connection. It is not part of the
// FileSystem interface because most callers hold an HDFS for the lifetime
// of the process.
func (fs *HDFS) Close() error {
	return fs.client.Close()
}

type hdfsStream struct {
	path   string
	writer *hdfs.FileWriter
}

func (s *hdfsStream) Write(p []byte) (int, error) {
	n, err := s.writer.Write(p)
	if err != nil {
		return n, fmt.Errorf("remotefs: append %s: %w", s.path, err)
	}
	return n, nil
}

// HSync issues an hflush, forcing previously written bytes to be visible to
// readers and persisted on at least one replica. HDFS does not offer a
// stronger all-replicas-durable barrier than this on an open file.
func (s *hdfsStream) HSync() error {
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("remotefs: hsync %s: %w", s.path, err)
	}
	return nil
}

func (s *hdfsStream) Close() error {
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("remotefs: close %s: %w", s.path, err)
	}
	return nil
}
