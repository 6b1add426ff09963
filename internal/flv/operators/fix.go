package operators

import (
	"math"

	"github.com/nekorec/blivec/internal/flv"
)

const (
	defaultFrameRate  = 30.0
	soundSampleRateHz = 44.0
	// crossMediaToleranceMS is the tolerance added to the larger of the two
	// media intervals when deciding whether a jump is "incontinuous". Per
	// spec.md §9: flagged as "do not guess, formalise before changing" —
	// kept exactly as the original, not re-derived.
	crossMediaToleranceMS = 1
)

// Fix maintains per-stream timestamp continuity: it derives frame_rate from
// metadata, computes a running delta, and corrects each data tag's timestamp
// so the output is strictly monotonic with no unexplained jumps (spec.md
// §4.6 step 6).
type Fix struct {
	next Sink

	frameRate            float64
	videoFrameIntervalMS int64
	soundSampleIntervalMS int64

	delta int64

	lastTag      *flv.Tag
	lastAudioTag *flv.Tag
	lastVideoTag *flv.Tag
}

// NewFix constructs a Fix stage forwarding to next.
func NewFix(next Sink) *Fix {
	f := &Fix{next: next}
	f.reset()
	return f
}

func (f *Fix) reset() {
	f.frameRate = defaultFrameRate
	f.videoFrameIntervalMS = ceilDiv(1000, f.frameRate)
	f.soundSampleIntervalMS = ceilDiv(1000, soundSampleRateHz)
	f.delta = 0
	f.lastTag = nil
	f.lastAudioTag = nil
	f.lastVideoTag = nil
}

func ceilDiv(numerator int, denominator float64) int64 {
	return int64(math.Ceil(float64(numerator) / denominator))
}

// Push implements Sink.
func (f *Fix) Push(item Item) error {
	if item.IsHeader() {
		f.reset()
		return f.next.Push(item)
	}

	tag := item.Tag
	if tag.IsScript() {
		f.updateParameters(tag)
		return f.next.Push(item)
	}
	if tag.IsSequenceHeader() {
		return f.next.Push(item)
	}

	f.correctTimestamp(tag)
	if err := f.next.Push(TagItem(tag)); err != nil {
		return err
	}
	f.updateLast(tag)
	return nil
}

// updateParameters reads fps/framerate out of onMetaData, per spec.md §4.6
// step 6 and blrec's update_parameters.
func (f *Fix) updateParameters(tag *flv.Tag) {
	metadata, err := flv.ParseMetadata(tag)
	if err != nil {
		return
	}
	for _, key := range []string{"fps", "framerate"} {
		if v, ok := metadata.Get(key); ok {
			if fps, ok := toFloat64(v); ok && fps > 0 {
				f.frameRate = fps
				f.videoFrameIntervalMS = ceilDiv(1000, fps)
				return
			}
		}
	}
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

func (f *Fix) correctTimestamp(tag *flv.Tag) {
	if f.lastTag == nil {
		return
	}

	f.updateDelta(tag)
	tag.Timestamp += f.delta
}

// updateDelta recomputes delta when the corrected timestamp would rebound
// (go backwards or fail to advance) or jump discontinuously relative to the
// last tag of the same media type, with a secondary check against the
// overall last tag (blrec's update_delta).
func (f *Fix) updateDelta(tag *flv.Tag) {
	lastSameType := f.lastAudioTag
	if tag.IsVideo() {
		lastSameType = f.lastVideoTag
	}

	if lastSameType != nil && f.isRebounded(tag, lastSameType) {
		f.delta = lastSameType.Timestamp + f.minIncrement(tag) - tag.Timestamp
		return
	}
	if f.lastTag != nil && f.isIncontinuous(tag) {
		f.delta = f.lastTag.Timestamp + f.minIncrement(tag) - tag.Timestamp
	}
}

// isRebounded reports whether tag.Timestamp+delta fails to advance past
// lastSameType's timestamp. The comparison is strict (<) immediately after
// a sequence header, else non-strict (<=), per blrec's is_ts_rebounded.
func (f *Fix) isRebounded(tag, lastSameType *flv.Tag) bool {
	corrected := tag.Timestamp + f.delta
	followsSequenceHeader := lastSameType.IsSequenceHeader()
	if followsSequenceHeader {
		return corrected < lastSameType.Timestamp
	}
	return corrected <= lastSameType.Timestamp
}

func (f *Fix) isIncontinuous(tag *flv.Tag) bool {
	corrected := tag.Timestamp + f.delta
	maxInterval := f.soundSampleIntervalMS
	if f.videoFrameIntervalMS > maxInterval {
		maxInterval = f.videoFrameIntervalMS
	}
	return corrected-f.lastTag.Timestamp > maxInterval+crossMediaToleranceMS
}

func (f *Fix) minIncrement(tag *flv.Tag) int64 {
	if tag.IsVideo() {
		return f.videoFrameIntervalMS
	}
	return f.soundSampleIntervalMS
}

func (f *Fix) updateLast(tag *flv.Tag) {
	f.lastTag = tag
	if tag.IsAudio() {
		f.lastAudioTag = tag
	}
	if tag.IsVideo() {
		f.lastVideoTag = tag
	}
}
