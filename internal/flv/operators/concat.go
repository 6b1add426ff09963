package operators

import (
	"hash/crc32"

	"github.com/nekorec/blivec/internal/flv"
)

const (
	// concatMaxGatherMS bounds how far Concat looks ahead after a new header
	// before giving up on finding an overlap with the previously emitted
	// tail, per spec.md §4.6 step 7.
	concatMaxGatherMS = 20000

	// numLastTags is the number of trailing emitted tags, counting the match
	// point itself, that must byte-match the gathered tags ending at the
	// candidate join index. spec.md §4.6 step 7 states the
	// default is 2, overriding the original implementation's default of 3
	// (see DESIGN.md Open Question decisions).
	numLastTags = 2

	// minJoinIntervalMS is added to the "not seamless" delta so the
	// newly-joined segment never starts at the exact same timestamp as the
	// last emitted tag. spec.md does not name a default; this mirrors the
	// original's flat +10ms (see DESIGN.md Open Question decisions).
	minJoinIntervalMS = 10
)

// Concat deduplicates the reconnect boundary between two FLV streams: when a
// new header arrives, it gathers up to concatMaxGatherMS of subsequent tags
// looking for an overlap with the tail of what was already emitted. If found
// ("seamless"), the overlapping prefix is dropped and the remaining tags are
// retimed to continue smoothly; if not ("not seamless"), all gathered tags
// are retimed to start just after the last emitted tag. Either way a
// synthetic onJoinPoint script tag precedes the first retimed data tag
// (spec.md §4.6 step 7).
type Concat struct {
	next Sink

	// emittedTail holds the last numLastTags+1 tags actually pushed
	// downstream, oldest first, for overlap comparison.
	emittedTail []*flv.Tag
	lastEmittedTs int64
	haveEmitted   bool

	gathering     bool
	gatherStartTS int64
	gathered      []*flv.Tag
	sawSeqHeaderDuringGather bool
	pendingHeader *flv.Header
}

// NewConcat constructs a Concat stage forwarding to next.
func NewConcat(next Sink) *Concat {
	return &Concat{next: next}
}

// Push implements Sink.
func (c *Concat) Push(item Item) error {
	if item.IsHeader() {
		if !c.haveEmitted {
			// First header ever: nothing to deduplicate against yet.
			return c.next.Push(item)
		}
		c.pendingHeader = item.Header
		c.gathering = true
		c.gathered = nil
		c.sawSeqHeaderDuringGather = false
		c.gatherStartTS = -1
		return nil
	}

	tag := item.Tag
	if !c.gathering {
		return c.emit(tag)
	}

	if c.gatherStartTS < 0 {
		c.gatherStartTS = tag.Timestamp
	}
	c.gathered = append(c.gathered, tag)
	if tag.IsSequenceHeader() {
		c.sawSeqHeaderDuringGather = true
	}

	if tag.Timestamp-c.gatherStartTS >= concatMaxGatherMS {
		return c.resolveGather()
	}
	return nil
}

// Flush forces an in-progress gather to resolve, for end-of-stream.
func (c *Concat) Flush() error {
	if c.gathering {
		return c.resolveGather()
	}
	return nil
}

func (c *Concat) resolveGather() error {
	c.gathering = false
	gathered := c.gathered
	c.gathered = nil

	if c.sawSeqHeaderDuringGather {
		// Sequence headers changed mid-gather: cancel deduplication and emit
		// the new header plus everything gathered, unmodified.
		if err := c.next.Push(HeaderItem(c.pendingHeader)); err != nil {
			return err
		}
		for _, tag := range gathered {
			if err := c.emit(tag); err != nil {
				return err
			}
		}
		return nil
	}

	matchIdx := c.findOverlap(gathered)
	if matchIdx >= 0 {
		delta := c.lastEmittedTs - gathered[matchIdx].Timestamp
		if err := c.emitJoinPoint(true, gathered[matchIdx+1:], delta); err != nil {
			return err
		}
		for _, tag := range gathered[matchIdx+1:] {
			retimed := tag.Clone()
			retimed.Timestamp += delta
			if err := c.emit(retimed); err != nil {
				return err
			}
		}
		return nil
	}

	delta := int64(0)
	if len(gathered) > 0 {
		delta = c.lastEmittedTs - gathered[0].Timestamp + minJoinIntervalMS
	}
	if err := c.emitJoinPoint(false, gathered, delta); err != nil {
		return err
	}
	for _, tag := range gathered {
		retimed := tag.Clone()
		retimed.Timestamp += delta
		if err := c.emit(retimed); err != nil {
			return err
		}
	}
	return nil
}

// findOverlap returns the largest index i such that gathered[i] matches the
// last emitted tag (same type, data size, and body) and the numLastTags-1
// tags preceding it in gathered match the tags preceding the last emitted
// tag, respectively. Returns -1 if no such index exists.
func (c *Concat) findOverlap(gathered []*flv.Tag) int {
	if len(c.emittedTail) == 0 {
		return -1
	}
	lastEmitted := c.emittedTail[len(c.emittedTail)-1]

	for i := len(gathered) - 1; i >= 0; i-- {
		if !gathered[i].SameBodyAs(lastEmitted) {
			continue
		}
		if c.precedingMatch(gathered, i) {
			return i
		}
	}
	return -1
}

func (c *Concat) precedingMatch(gathered []*flv.Tag, matchIdx int) bool {
	needed := numLastTags - 1
	if needed <= 0 {
		return true
	}
	tailLen := len(c.emittedTail)
	for k := 1; k <= needed; k++ {
		gi := matchIdx - k
		ei := tailLen - 1 - k
		if gi < 0 || ei < 0 {
			return false
		}
		if !gathered[gi].SameBodyAs(c.emittedTail[ei]) {
			return false
		}
	}
	return true
}

func (c *Concat) emitJoinPoint(seamless bool, tailTags []*flv.Tag, delta int64) error {
	var sum uint32
	if len(tailTags) > 0 {
		sum = crc32.ChecksumIEEE(tailTags[0].Body)
	}
	joinPoint := flv.JoinPoint{
		Seamless:    seamless,
		TimestampMS: float64(c.lastEmittedTs),
		CRC32:       crc32hex(sum),
	}
	scriptTag, err := flv.CreateScriptTag("onJoinPoint", map[string]any{
		"seamless":  joinPoint.Seamless,
		"timestamp": joinPoint.TimestampMS,
		"crc32":     joinPoint.CRC32,
	}, c.lastEmittedTs)
	if err != nil {
		return err
	}
	return c.emit(scriptTag)
}

func crc32hex(v uint32) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = hexDigits[v&0xF]
		v >>= 4
	}
	return string(buf)
}

func (c *Concat) emit(tag *flv.Tag) error {
	if err := c.next.Push(TagItem(tag)); err != nil {
		return err
	}
	c.lastEmittedTs = tag.Timestamp
	c.haveEmitted = true
	c.emittedTail = append(c.emittedTail, tag)
	if len(c.emittedTail) > numLastTags+1 {
		c.emittedTail = c.emittedTail[len(c.emittedTail)-(numLastTags+1):]
	}
	return nil
}
