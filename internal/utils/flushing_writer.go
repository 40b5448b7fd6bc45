package utils

import (
	"fmt"
	"io"
	"sync"
)

// ProgressWriter serializes operator-facing progress lines and flushes buffered
// destinations after every write so lines appear while background work runs.
type ProgressWriter struct {
	writer io.Writer
	mutex  sync.Mutex
}

// NewProgressWriter wraps the provided writer. A nil writer discards output.
func NewProgressWriter(writer io.Writer) *ProgressWriter {
	if writer == nil {
		writer = io.Discard
	}
	if alreadyWrapped, isProgressWriter := writer.(*ProgressWriter); isProgressWriter {
		return alreadyWrapped
	}
	return &ProgressWriter{writer: writer}
}

// Write delegates to the underlying writer and flushes it when possible.
func (progressWriter *ProgressWriter) Write(data []byte) (int, error) {
	if progressWriter == nil || progressWriter.writer == nil {
		return len(data), nil
	}

	progressWriter.mutex.Lock()
	defer progressWriter.mutex.Unlock()

	bytesWritten, writeError := progressWriter.writer.Write(data)
	if writeError != nil {
		return bytesWritten, writeError
	}

	if flushableWriter, implementsFlush := progressWriter.writer.(interface{ Flush() error }); implementsFlush {
		if flushError := flushableWriter.Flush(); flushError != nil {
			return bytesWritten, flushError
		}
	}

	return bytesWritten, nil
}

// Printf formats a line onto the progress stream, ignoring write failures.
func (progressWriter *ProgressWriter) Printf(format string, arguments ...any) {
	fmt.Fprintf(progressWriter, format, arguments...)
}
