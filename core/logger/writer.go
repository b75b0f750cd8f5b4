package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

// fanoutWriter serializes whole log lines to every sink. A sink that fails
// once is skipped afterwards so one broken file does not silence stdout.
type fanoutWriter struct {
	mu     sync.Mutex
	sinks  []*bufio.Writer
	failed []bool
	errs   []error
}

func newFanoutWriter(writers []io.Writer) *fanoutWriter {
	w := &fanoutWriter{}
	for _, out := range writers {
		if out == nil {
			continue
		}
		w.sinks = append(w.sinks, bufio.NewWriter(out))
		w.failed = append(w.failed, false)
	}
	return w
}

// WriteLine writes one complete line and flushes each sink.
func (w *fanoutWriter) WriteLine(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	var lineErr error
	for i, sink := range w.sinks {
		if w.failed[i] {
			continue
		}
		if _, err := sink.Write(p); err == nil {
			err = sink.Flush()
			if err == nil {
				continue
			}
			lineErr = err
		} else {
			lineErr = err
		}
		w.failed[i] = true
		w.errs = append(w.errs, lineErr)
	}
	return lineErr
}

// Flush flushes buffered output and reports sink failures seen so far.
func (w *fanoutWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	errs := append([]error(nil), w.errs...)
	for i, sink := range w.sinks {
		if w.failed[i] {
			continue
		}
		if err := sink.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
