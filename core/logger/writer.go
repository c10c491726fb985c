package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

// lineWriter fans complete log lines out to one or more buffered sinks.
// Writes are serialized with a mutex; Flush pushes buffered content through.
type lineWriter struct {
	mu       sync.Mutex
	sinks    []*bufio.Writer
	closed   bool
	writeErr error
}

func newLineWriter(writers []io.Writer, bufSize int) *lineWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	sinks := make([]*bufio.Writer, 0, len(writers))
	for _, w := range writers {
		if w == nil {
			continue
		}
		sinks = append(sinks, bufio.NewWriterSize(w, bufSize))
	}
	return &lineWriter{sinks: sinks}
}

// Write appends one rendered line to every sink.
func (w *lineWriter) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("logger: writer closed")
	}
	if w.writeErr != nil {
		return w.writeErr
	}
	for _, sink := range w.sinks {
		if _, err := sink.Write(p); err != nil {
			w.writeErr = err
			return err
		}
	}
	return nil
}

// Flush pushes buffered content to the underlying writers.
func (w *lineWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

// Close flushes all sinks and rejects further writes.
func (w *lineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return w.writeErr
	}
	w.closed = true
	if err := w.flushLocked(); err != nil {
		return err
	}
	return w.writeErr
}

func (w *lineWriter) flushLocked() error {
	var errs []error
	for _, sink := range w.sinks {
		if err := sink.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
