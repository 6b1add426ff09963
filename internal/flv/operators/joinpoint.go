package operators

import (
	"encoding/json"
	"hash/crc32"

	"github.com/nekorec/blivec/internal/flv"
)

// JoinPointExtractor recognises the synthetic onJoinPoint script tag Concat
// emits, correlates it with the next real tag, verifies its CRC32, and
// publishes the resulting list of join points (spec.md §4.6 step 10).
type JoinPointExtractor struct {
	next Sink
	onJoinPoint func(flv.JoinPoint, *flv.Tag)

	pending     *flv.JoinPoint
	points      []flv.JoinPoint
}

// NewJoinPointExtractor constructs a JoinPointExtractor forwarding to next.
// onJoinPoint, if non-nil, is called once per verified join point.
func NewJoinPointExtractor(next Sink, onJoinPoint func(flv.JoinPoint, *flv.Tag)) *JoinPointExtractor {
	return &JoinPointExtractor{next: next, onJoinPoint: onJoinPoint}
}

// Push implements Sink.
func (j *JoinPointExtractor) Push(item Item) error {
	if item.IsHeader() {
		j.pending = nil
		return j.next.Push(item)
	}

	tag := item.Tag
	if tag.IsScript() {
		if jp, ok := decodeJoinPointTag(tag); ok {
			j.pending = jp
			return j.next.Push(item)
		}
	}

	if j.pending != nil {
		jp := *j.pending
		j.pending = nil
		sum := crc32.ChecksumIEEE(tag.Body)
		if crc32hex(sum) == jp.CRC32 {
			j.points = append(j.points, jp)
			if j.onJoinPoint != nil {
				j.onJoinPoint(jp, tag)
			}
		}
	}

	return j.next.Push(item)
}

// JoinPoints returns all join points verified so far.
func (j *JoinPointExtractor) JoinPoints() []flv.JoinPoint {
	return append([]flv.JoinPoint{}, j.points...)
}

func decodeJoinPointTag(tag *flv.Tag) (*flv.JoinPoint, bool) {
	name, value, err := flv.DecodeScriptBody(tag.Body)
	if err != nil || name != "onJoinPoint" {
		return nil, false
	}
	obj, ok := value.(*flv.ECMAArray)
	if !ok {
		if m, ok := value.(map[string]any); ok {
			return joinPointFromMap(m), true
		}
		return nil, false
	}

	m := map[string]any{}
	for _, k := range obj.Keys() {
		v, _ := obj.Get(k)
		m[k] = v
	}
	return joinPointFromMap(m), true
}

func joinPointFromMap(m map[string]any) *flv.JoinPoint {
	jp := &flv.JoinPoint{}
	if v, ok := m["seamless"].(bool); ok {
		jp.Seamless = v
	}
	if v, ok := toFloat64(m["timestamp"]); ok {
		jp.TimestampMS = v
	}
	if v, ok := m["crc32"].(string); ok {
		jp.CRC32 = v
	}
	return jp
}

// MarshalJoinPoints renders points as a JSON array, for the postprocessor's
// ffmetadata Comment field (spec.md §4.9).
func MarshalJoinPoints(points []flv.JoinPoint) ([]byte, error) {
	return json.Marshal(points)
}
