package log

import "io"

// multiWriter fans out each Write to every underlying writer, the same
// shape as the corpus's MultiWriter (stdout plus an optional rotating
// file sink).
type multiWriter struct {
	writers []io.Writer
}

func newMultiWriter(w ...io.Writer) *multiWriter {
	return &multiWriter{writers: w}
}

func (m *multiWriter) Write(p []byte) (int, error) {
	var firstErr error
	for _, w := range m.writers {
		if _, err := w.Write(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return len(p), firstErr
}
