// Command collector wires the session-binning core to a local-disk or HDFS
// backend and reads pre-encoded records from stdin. It is a smoke-test
// harness, not the HTTP ingestion path, which remains out of scope.
package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/divolte/collector/config"
	"github.com/divolte/collector/eventid"
	"github.com/divolte/collector/flusher"
	"github.com/divolte/collector/record"
	"github.com/divolte/collector/remotefs"
	"github.com/divolte/collector/sink"
	"github.com/divolte/collector/telemetry"
)

// stdinRecord is one line of newline-delimited JSON on stdin, standing in
// for the out-of-scope upstream queue and record mapper.
type stdinRecord struct {
	EventTime int64  `json:"event_time"`
	SessionID string `json:"session_id"`
	Data      string `json:"data"` // base64-encoded, already schema-encoded bytes
}

func main() {
	configPath := flag.String("config", "", "path to JSON configuration file")
	schemaPath := flag.String("schema", "", "path to the Avro schema file for record bodies")
	useLocal := flag.Bool("local", false, "use the local-disk filesystem instead of HDFS")
	heartbeatEvery := flag.Duration("heartbeat", 5*time.Second, "heartbeat interval")
	flag.Parse()

	if *configPath == "" || *schemaPath == "" {
		fmt.Fprintln(os.Stderr, "usage: collector -config <file> -schema <file> [-local] [-heartbeat <dur>]")
		os.Exit(2)
	}

	if err := run(*configPath, *schemaPath, *useLocal, *heartbeatEvery); err != nil {
		fmt.Fprintln(os.Stderr, "collector:", err)
		os.Exit(1)
	}
}

func run(configPath, schemaPath string, useLocal bool, heartbeatEvery time.Duration) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return err
	}

	schemaBytes, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("collector: read schema: %w", err)
	}

	fs, closeFS, err := openFileSystem(cfg, useLocal)
	if err != nil {
		return err
	}
	defer closeFS()

	s := sink.New(sink.Config{
		SessionTimeoutMs: cfg.SessionTimeout.Milliseconds(),
		Dir:              cfg.SessionBinningDir,
		SyncEveryRecords: int64(cfg.SyncFileAfterRecords),
		SyncEveryMillis:  cfg.SyncFileAfterDuration.Milliseconds(),
		Replication:      cfg.Replication,
		SchemaJSON:       string(schemaBytes),
		FS:               fs,
		Telemetry:        telemetry.NewConsoleSink(os.Stderr),
	})

	records := make(chan record.AppendRecord)
	driver := flusher.NewChannelDriver(s, records, heartbeatEvery)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		cancel()
	}()

	go feedStdin(records)

	return driver.Run(ctx)
}

func openFileSystem(cfg *config.Config, useLocal bool) (remotefs.FileSystem, func(), error) {
	if useLocal {
		return remotefs.NewLocal(), func() {}, nil
	}

	hdfsFS, err := remotefs.DialHDFS(remotefs.HDFSConfig{Namenodes: cfg.Namenodes})
	if err != nil {
		return nil, nil, err
	}
	return hdfsFS, func() { _ = hdfsFS.Close() }, nil
}

func feedStdin(records chan<- record.AppendRecord) {
	defer close(records)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		var raw stdinRecord
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			fmt.Fprintf(os.Stderr, "collector: skipping malformed line: %v\n", err)
			continue
		}

		sessionID, ok := eventid.TryParse(raw.SessionID)
		if !ok {
			fmt.Fprintf(os.Stderr, "collector: skipping line with malformed session_id %q\n", raw.SessionID)
			continue
		}

		data, err := base64.StdEncoding.DecodeString(raw.Data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "collector: skipping line with malformed data: %v\n", err)
			continue
		}

		records <- record.New(raw.EventTime, sessionID, data)
	}
}
