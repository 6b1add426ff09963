package flv

import "errors"

// ErrDataError marks a recoverable FLV stream anomaly (a malformed tag body,
// an inconsistent back-pointer) distinct from a corrupted transport read.
var ErrDataError = errors.New("flv: data error")

// ErrStreamCorrupted marks an unrecoverable framing error (the tag stream
// can no longer be resynchronised), per spec.md §4.8's recorder-edge error
// taxonomy.
var ErrStreamCorrupted = errors.New("flv: stream corrupted")

// DataError wraps an underlying cause as a recoverable FLV data error.
type DataError struct{ Cause error }

func (e *DataError) Error() string { return "flv: data error: " + e.Cause.Error() }
func (e *DataError) Unwrap() error { return e.Cause }
func (e *DataError) Is(target error) bool { return target == ErrDataError }

// StreamCorruptedError wraps an underlying cause as an unrecoverable FLV
// framing error.
type StreamCorruptedError struct{ Cause error }

func (e *StreamCorruptedError) Error() string { return "flv: stream corrupted: " + e.Cause.Error() }
func (e *StreamCorruptedError) Unwrap() error { return e.Cause }
func (e *StreamCorruptedError) Is(target error) bool { return target == ErrStreamCorrupted }
