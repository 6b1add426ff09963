package operators

import (
	"errors"
	"io"

	"github.com/nekorec/blivec/internal/flv"
)

// EOFMode controls how Parse reacts when the underlying reader is
// exhausted mid-stream.
type EOFMode int

// EOF modes.
const (
	// EOFTerminate stops cleanly and returns nil once no more complete tags
	// are available (the common case: end of a finished recording).
	EOFTerminate EOFMode = iota
	// EOFError surfaces io.ErrUnexpectedEOF instead of nil, for callers that
	// need to distinguish a clean stop from a truncated source (e.g. a live
	// feed that should trigger reconnection logic upstream).
	EOFError
)

// Parse reads one FLV header followed by tags from r, pushing each to next,
// until r is exhausted or ctx-like cancellation is signalled via a returned
// error from next.Push. Per spec.md §4.6 step 1.
func Parse(r io.Reader, next Sink, mode EOFMode) error {
	fr := flv.NewReader(r)

	header, err := fr.ReadHeader()
	if err != nil {
		return err
	}
	if err := next.Push(HeaderItem(header)); err != nil {
		return err
	}

	for {
		tag, err := fr.ReadTag()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) && mode == EOFTerminate {
				return nil
			}
			return err
		}
		if err := next.Push(TagItem(tag)); err != nil {
			return err
		}
	}
}
