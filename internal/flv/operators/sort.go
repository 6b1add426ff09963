package operators

import (
	"sort"

	"github.com/nekorec/blivec/internal/flv"
)

// smallGOPThreshold is the tag count below which a GOP containing both
// sequence headers is treated as headers-only, per spec.md §4.6 step 3.
const smallGOPThreshold = 10

// Sort accumulates tags into GOPs (bounded by keyframes / end-of-sequence
// markers) and re-orders audio relative to video within each GOP so that
// audio tags timestamped at or after a given video tag's timestamp appear
// immediately after it, stable with respect to the original video ordering.
type Sort struct {
	next Sink
	gop  []*flv.Tag
}

// NewSort constructs a Sort stage forwarding to next.
func NewSort(next Sink) *Sort {
	return &Sort{next: next}
}

// Push implements Sink.
func (s *Sort) Push(item Item) error {
	if item.IsHeader() {
		if err := s.flush(); err != nil {
			return err
		}
		return s.next.Push(item)
	}

	tag := item.Tag
	s.gop = append(s.gop, tag)

	if tag.IsKeyframe() || tag.IsAVCEndOfSequence() {
		return s.flushBoundary()
	}
	return nil
}

// flushBoundary closes the current GOP at a keyframe/end-of-sequence tag:
// everything gathered except the boundary tag itself is reordered and
// emitted, then the boundary tag starts the next GOP.
func (s *Sort) flushBoundary() error {
	boundary := s.gop[len(s.gop)-1]
	body := s.gop[:len(s.gop)-1]
	s.gop = []*flv.Tag{boundary}

	return s.emit(body)
}

// Flush forces the current (incomplete) GOP through, for end-of-stream.
func (s *Sort) flush() error {
	if len(s.gop) == 0 {
		return nil
	}
	gop := s.gop
	s.gop = nil
	return s.emit(gop)
}

func (s *Sort) emit(gop []*flv.Tag) error {
	if len(gop) == 0 {
		return nil
	}

	if len(gop) < smallGOPThreshold && hasBothSequenceHeaders(gop) {
		for _, tag := range gop {
			if tag.IsScript() || tag.IsSequenceHeader() {
				if err := s.next.Push(TagItem(tag)); err != nil {
					return err
				}
			}
		}
		return nil
	}

	ordered := reorderGOP(gop)
	for _, tag := range ordered {
		if err := s.next.Push(TagItem(tag)); err != nil {
			return err
		}
	}
	return nil
}

func hasBothSequenceHeaders(gop []*flv.Tag) bool {
	var hasAVC, hasAAC bool
	for _, tag := range gop {
		if tag.IsVideoSequenceHeader() {
			hasAVC = true
		}
		if tag.IsAudioSequenceHeader() {
			hasAAC = true
		}
	}
	return hasAVC && hasAAC
}

// reorderGOP inserts each audio tag immediately after the last video tag
// whose timestamp is <= the audio tag's timestamp, preserving video order
// and, among audio tags sharing an insertion point, their original order
// (stable sort). Audio tags earlier than every video tag follow the first
// video tag.
func reorderGOP(gop []*flv.Tag) []*flv.Tag {
	var video []*flv.Tag
	var audio []*flv.Tag
	var other []*flv.Tag
	for _, tag := range gop {
		switch {
		case tag.IsVideo():
			video = append(video, tag)
		case tag.IsAudio():
			audio = append(audio, tag)
		default:
			other = append(other, tag)
		}
	}

	sort.SliceStable(audio, func(i, j int) bool { return audio[i].Timestamp < audio[j].Timestamp })

	out := make([]*flv.Tag, 0, len(gop))
	out = append(out, other...)

	ai := 0
	for vi, v := range video {
		out = append(out, v)
		for ai < len(audio) && (vi == len(video)-1 || audio[ai].Timestamp < video[vi+1].Timestamp) {
			out = append(out, audio[ai])
			ai++
		}
	}
	for ai < len(audio) {
		out = append(out, audio[ai])
		ai++
	}
	return out
}
