package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const traceFilename = "network_trace.jsonl"

// TraceWriter appends network trace records as JSON lines without
// blocking the capture path. Records are dropped when the buffer is
// full.
type TraceWriter struct {
	writeCh chan any
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	logger  *lumberjack.Logger
}

// NewTraceWriter opens dir/network_trace.jsonl for appending and starts
// the background write loop.
func NewTraceWriter(dir string, bufferSize int) (*TraceWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create trace directory: %w", err)
	}

	w := &TraceWriter{
		writeCh: make(chan any, bufferSize),
		done:    make(chan struct{}),
		logger: &lumberjack.Logger{
			Filename:   filepath.Join(dir, traceFilename),
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     7,
			Compress:   true,
		},
	}

	w.wg.Add(1)
	go w.writeLoop()

	return w, nil
}

// Write queues a record for async writing.
func (w *TraceWriter) Write(record any) error {
	select {
	case w.writeCh <- record:
		return nil
	case <-w.done:
		return fmt.Errorf("trace writer is closed")
	default:
		slog.Warn("trace buffer full, dropping record")
		return fmt.Errorf("buffer full")
	}
}

// Close shuts down the writer and flushes pending records.
func (w *TraceWriter) Close() error {
	close(w.done)

	timeout := time.After(5 * time.Second)
	for {
		select {
		case record := <-w.writeCh:
			w.writeRecord(record)
		case <-timeout:
			slog.Warn("trace writer close timeout, some records may be lost")
			goto done
		default:
			goto done
		}
	}

done:
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.logger.Close()
}

func (w *TraceWriter) writeLoop() {
	defer w.wg.Done()

	for {
		select {
		case record := <-w.writeCh:
			w.writeRecord(record)
		case <-w.done:
			return
		}
	}
}

func (w *TraceWriter) writeRecord(record any) {
	data, err := json.Marshal(record)
	if err != nil {
		slog.Error("Failed to marshal trace record", "error", err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.logger.Write(append(data, '\n')); err != nil {
		slog.Error("Failed to write trace record", "error", err)
	}
}
