package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/projectdiscovery/cleanip/pkg/types"
	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/utils/batcher"
	envutil "github.com/projectdiscovery/utils/env"
)

var (
	// DefaultBatchSize is the number of entries buffered before a flush
	DefaultBatchSize = 100
	// DefaultFlushInterval is the maximum time an entry stays buffered
	DefaultFlushInterval = 5 * time.Second
)

// GetBatchSize returns the batch size from environment or default
func GetBatchSize() int {
	envVal := envutil.GetEnvOrDefault("CLEANIP_OUTPUT_BATCH_SIZE", "")
	if envVal != "" {
		if size, err := strconv.Atoi(envVal); err == nil && size > 0 {
			return size
		}
	}
	return DefaultBatchSize
}

// GetFlushInterval returns the flush interval from environment or default
func GetFlushInterval() time.Duration {
	envVal := envutil.GetEnvOrDefault("CLEANIP_OUTPUT_FLUSH_INTERVAL", "")
	if envVal != "" {
		if interval, err := strconv.Atoi(envVal); err == nil && interval > 0 {
			return time.Duration(interval) * time.Second
		}
	}
	return DefaultFlushInterval
}

// Writer streams result entries as JSON lines through a batcher
type Writer struct {
	mu      sync.Mutex
	out     io.Writer
	closer  io.Closer
	written int
	err     error

	batcher   *batcher.Batcher[types.ResultEntry]
	closeOnce sync.Once
}

// New creates a writer truncating the file at path
func New(path string) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not create output file: %w", err)
	}
	return newWriter(file, file), nil
}

// NewFromWriter creates a writer on top of w. w is not closed by Close.
func NewFromWriter(w io.Writer) *Writer {
	return newWriter(w, nil)
}

func newWriter(out io.Writer, closer io.Closer) *Writer {
	w := &Writer{out: out, closer: closer}
	w.batcher = batcher.New(
		batcher.WithMaxCapacity[types.ResultEntry](GetBatchSize()),
		batcher.WithFlushInterval[types.ResultEntry](GetFlushInterval()),
		batcher.WithFlushCallback[types.ResultEntry](w.flush),
	)

	// Start the batcher
	go w.batcher.Run()

	return w
}

// Write validates entry and queues it for the next flush
func (w *Writer) Write(entry types.ResultEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	w.batcher.Append(entry)
	return nil
}

func (w *Writer) flush(entries []types.ResultEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			w.setErr(err)
			continue
		}
		data = append(data, '\n')
		if _, err := w.out.Write(data); err != nil {
			w.setErr(err)
			continue
		}
		w.written++
	}
	gologger.Debug().Msgf("flushed %d result entries", len(entries))
}

func (w *Writer) setErr(err error) {
	if w.err == nil {
		w.err = err
		gologger.Error().Msgf("could not write result entry: %s", err)
	}
}

// Written returns the number of entries written so far
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.written
}

// Close flushes pending entries and closes the underlying file.
// It returns the first write error, if any.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() {
		w.batcher.Stop()
		w.batcher.WaitDone()

		w.mu.Lock()
		defer w.mu.Unlock()
		if w.closer != nil {
			if err := w.closer.Close(); err != nil && w.err == nil {
				w.err = err
			}
		}
	})

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
