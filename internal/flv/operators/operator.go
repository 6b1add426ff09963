// Package operators implements the FLV operator chain (C6): a sequence of
// stateful stages that each consume a stream of Items (headers and tags) and
// push transformed Items to the next stage, per spec.md §4.6.
package operators

import (
	"github.com/nekorec/blivec/internal/flv"
)

// Item is one unit flowing through the chain: either a stream header or a
// tag, never both.
type Item struct {
	Header *flv.Header
	Tag    *flv.Tag
}

// IsHeader reports whether this item carries a header.
func (i Item) IsHeader() bool { return i.Header != nil }

// HeaderItem wraps h as an Item.
func HeaderItem(h *flv.Header) Item { return Item{Header: h} }

// TagItem wraps t as an Item.
func TagItem(t *flv.Tag) Item { return Item{Tag: t} }

// Sink receives Items pushed by the stage upstream of it. A stage that is
// itself a Sink and also pushes to a downstream Sink is how operators chain:
// NewX(next Sink) Sink.
type Sink interface {
	Push(item Item) error
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(item Item) error

// Push implements Sink.
func (f SinkFunc) Push(item Item) error { return f(item) }
