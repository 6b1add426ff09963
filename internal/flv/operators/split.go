package operators

import "github.com/nekorec/blivec/internal/flv"

// Split detects an in-stream change of the audio sequence header, video
// sequence header, or metadata tag — a different body from the last one
// seen — and injects a synthetic header plus the last-known metadata and
// sequence headers immediately before the next data tag, so downstream
// stages see a clean new sub-stream (spec.md §4.6 step 5).
type Split struct {
	next Sink

	header   *flv.Header
	metadata *flv.Tag
	audioSeq *flv.Tag
	videoSeq *flv.Tag

	pendingChange bool
}

// NewSplit constructs a Split stage forwarding to next.
func NewSplit(next Sink) *Split {
	return &Split{next: next}
}

// Push implements Sink.
func (s *Split) Push(item Item) error {
	if item.IsHeader() {
		s.header = item.Header
		s.metadata = nil
		s.audioSeq = nil
		s.videoSeq = nil
		s.pendingChange = false
		return s.next.Push(item)
	}

	tag := item.Tag

	switch {
	case tag.IsScript():
		if s.metadata != nil && !tag.SameBodyAs(s.metadata) {
			s.pendingChange = true
		}
		s.metadata = tag
		return s.next.Push(item)

	case tag.IsAudioSequenceHeader():
		if s.audioSeq != nil && !tag.SameBodyAs(s.audioSeq) {
			s.pendingChange = true
		}
		s.audioSeq = tag
		return s.next.Push(item)

	case tag.IsVideoSequenceHeader():
		if s.videoSeq != nil && !tag.SameBodyAs(s.videoSeq) {
			s.pendingChange = true
		}
		s.videoSeq = tag
		return s.next.Push(item)

	default:
		if s.pendingChange {
			s.pendingChange = false
			if err := s.injectSubStream(); err != nil {
				return err
			}
		}
		return s.next.Push(item)
	}
}

func (s *Split) injectSubStream() error {
	if s.header != nil {
		if err := s.next.Push(HeaderItem(s.header)); err != nil {
			return err
		}
	}
	for _, tag := range []*flv.Tag{s.metadata, s.videoSeq, s.audioSeq} {
		if tag == nil {
			continue
		}
		if err := s.next.Push(TagItem(tag)); err != nil {
			return err
		}
	}
	return nil
}
