package operators

// defragmentBufferSize is the number of items buffered after a header
// before the stream is considered real, per spec.md §4.6 step 2 ("N≈10").
const defragmentBufferSize = 10

// Defragment buffers the first N items after a header; if another header
// arrives before the buffer fills, the whole buffer is discarded as too
// short to be a real stream. Otherwise the buffered items (and everything
// after) are forwarded to next.
type Defragment struct {
	next Sink
	buf  []Item
}

// NewDefragment constructs a Defragment stage forwarding to next.
func NewDefragment(next Sink) *Defragment {
	return &Defragment{next: next}
}

// Push implements Sink.
func (d *Defragment) Push(item Item) error {
	if item.IsHeader() {
		// A new header discards whatever was buffered for the previous one.
		d.buf = nil
		d.buf = append(d.buf, item)
		return nil
	}

	if len(d.buf) == 0 {
		// Already past the buffering window for the current stream (or no
		// header seen yet, which should not happen) — pass straight through.
		return d.next.Push(item)
	}

	d.buf = append(d.buf, item)
	if len(d.buf) < defragmentBufferSize+1 { // +1 for the leading header
		return nil
	}
	return d.flush()
}

func (d *Defragment) flush() error {
	buffered := d.buf
	d.buf = nil
	for _, it := range buffered {
		if err := d.next.Push(it); err != nil {
			return err
		}
	}
	return nil
}

// Flush forces any buffered (but not yet fragment-sized) items through,
// for callers that reach a clean end-of-stream while still buffering.
func (d *Defragment) Flush() error {
	if len(d.buf) == 0 {
		return nil
	}
	return d.flush()
}
