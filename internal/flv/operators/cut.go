package operators

import (
	"sync/atomic"

	"github.com/nekorec/blivec/internal/flv"
)

// minCutDurationMS is the minimum elapsed duration before a cut request is
// honoured, per spec.md §4.6 step 8.
const minCutDurationMS = 5000

// Cut lets an external caller request a file boundary at the next keyframe
// via CutStream. When honoured, it synthesises a new header plus the
// last-known metadata and sequence headers, restarting output file
// boundaries downstream (spec.md §4.6 step 8).
type Cut struct {
	next Sink

	header   *flv.Header
	metadata *flv.Tag
	audioSeq *flv.Tag
	videoSeq *flv.Tag

	streamStartTS int64
	haveStart     bool
	requested     atomic.Bool
}

// NewCut constructs a Cut stage forwarding to next.
func NewCut(next Sink) *Cut {
	return &Cut{next: next}
}

// CutStream requests a cut at the next eligible keyframe. Safe to call
// concurrently with Push.
func (c *Cut) CutStream() {
	c.requested.Store(true)
}

// Push implements Sink.
func (c *Cut) Push(item Item) error {
	if item.IsHeader() {
		c.header = item.Header
		c.metadata = nil
		c.audioSeq = nil
		c.videoSeq = nil
		c.haveStart = false
		return c.next.Push(item)
	}

	tag := item.Tag
	if !c.haveStart {
		c.streamStartTS = tag.Timestamp
		c.haveStart = true
	}

	switch {
	case tag.IsScript():
		c.metadata = tag
	case tag.IsAudioSequenceHeader():
		c.audioSeq = tag
	case tag.IsVideoSequenceHeader():
		c.videoSeq = tag
	case tag.IsKeyframe() && c.requested.Load():
		duration := tag.Timestamp - c.streamStartTS
		if duration >= minCutDurationMS {
			c.requested.Store(false)
			if err := c.injectBoundary(); err != nil {
				return err
			}
			c.streamStartTS = tag.Timestamp
		}
	}

	return c.next.Push(item)
}

func (c *Cut) injectBoundary() error {
	if c.header != nil {
		if err := c.next.Push(HeaderItem(c.header)); err != nil {
			return err
		}
	}
	for _, tag := range []*flv.Tag{c.metadata, c.videoSeq, c.audioSeq} {
		if tag == nil {
			continue
		}
		if err := c.next.Push(TagItem(tag)); err != nil {
			return err
		}
	}
	return nil
}
