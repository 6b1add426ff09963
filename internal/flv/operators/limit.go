package operators

import "github.com/nekorec/blivec/internal/flv"

// Limit triggers the same header-insertion as Cut at a keyframe once the
// file size or duration accumulated so far, plus the lastKeyframeGap*
// terms, exceeds a configured ceiling (spec.md §4.6 step 9). Nothing assigns
// the lastKeyframeGap* terms, so they stay zero: the check does not project
// the size or duration of the coming keyframe interval.
type Limit struct {
	next Sink

	maxSizeBytes    int64
	maxDurationMS   int64

	header   *flv.Header
	metadata *flv.Tag
	audioSeq *flv.Tag
	videoSeq *flv.Tag

	startTS   int64
	haveStart bool
	sizeBytes int64

	lastKeyframeGapBytes int64
	lastKeyframeGapMS    int64
}

// NewLimit constructs a Limit stage forwarding to next. A zero ceiling
// disables that dimension's check.
func NewLimit(next Sink, maxSizeBytes, maxDurationMS int64) *Limit {
	return &Limit{next: next, maxSizeBytes: maxSizeBytes, maxDurationMS: maxDurationMS}
}

// Push implements Sink.
func (l *Limit) Push(item Item) error {
	if item.IsHeader() {
		l.header = item.Header
		l.metadata = nil
		l.audioSeq = nil
		l.videoSeq = nil
		l.haveStart = false
		l.sizeBytes = 0
		return l.next.Push(item)
	}

	tag := item.Tag
	if !l.haveStart {
		l.startTS = tag.Timestamp
		l.haveStart = true
	}

	switch {
	case tag.IsScript():
		l.metadata = tag
	case tag.IsAudioSequenceHeader():
		l.audioSeq = tag
	case tag.IsVideoSequenceHeader():
		l.videoSeq = tag
	case tag.IsKeyframe():
		if l.exceeds(tag) {
			if err := l.injectBoundary(); err != nil {
				return err
			}
			l.startTS = tag.Timestamp
			l.sizeBytes = 0
		}
	}

	l.sizeBytes += int64(tag.TagSize())
	return l.next.Push(item)
}

func (l *Limit) exceeds(keyframe *flv.Tag) bool {
	projectedSize := l.sizeBytes + l.lastKeyframeGapBytes
	projectedDuration := keyframe.Timestamp - l.startTS + l.lastKeyframeGapMS
	if l.maxSizeBytes > 0 && projectedSize > l.maxSizeBytes {
		return true
	}
	if l.maxDurationMS > 0 && projectedDuration > l.maxDurationMS {
		return true
	}
	return false
}

func (l *Limit) injectBoundary() error {
	if l.header != nil {
		if err := l.next.Push(HeaderItem(l.header)); err != nil {
			return err
		}
	}
	for _, tag := range []*flv.Tag{l.metadata, l.videoSeq, l.audioSeq} {
		if tag == nil {
			continue
		}
		if err := l.next.Push(TagItem(tag)); err != nil {
			return err
		}
	}
	return nil
}
