package operators

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nekorec/blivec/internal/flv"
)

type collectSink struct {
	items []Item
}

func (c *collectSink) Push(item Item) error {
	c.items = append(c.items, item)
	return nil
}

func dataTag(kind flv.TagType, ts int64, body byte) *flv.Tag {
	return &flv.Tag{Type: kind, Timestamp: ts, Body: []byte{body}}
}

func TestFilterDropsAVCEndOfSequence(t *testing.T) {
	sink := &collectSink{}
	f := NewFilter(sink)

	require.NoError(t, f.Push(TagItem(dataTag(flv.TagTypeVideo, 0, 1))))
	require.NoError(t, f.Push(TagItem(flv.CreateAVCEndOfSequenceTag(10))))

	require.Len(t, sink.items, 1)
}

func TestFixCorrectsReboundedTimestamp(t *testing.T) {
	sink := &collectSink{}
	f := NewFix(sink)

	require.NoError(t, f.Push(HeaderItem(&flv.Header{})))
	require.NoError(t, f.Push(TagItem(dataTag(flv.TagTypeVideo, 1000, 1))))
	// Rebounded: goes backwards relative to the last video tag.
	require.NoError(t, f.Push(TagItem(dataTag(flv.TagTypeVideo, 500, 2))))

	require.Len(t, sink.items, 3)
	corrected := sink.items[2].Tag
	require.Greater(t, corrected.Timestamp, sink.items[1].Tag.Timestamp)
}

func TestFixPassesThroughMonotonicTimestamps(t *testing.T) {
	sink := &collectSink{}
	f := NewFix(sink)

	require.NoError(t, f.Push(HeaderItem(&flv.Header{})))
	require.NoError(t, f.Push(TagItem(dataTag(flv.TagTypeVideo, 0, 1))))
	require.NoError(t, f.Push(TagItem(dataTag(flv.TagTypeVideo, 33, 2))))

	require.Equal(t, int64(0), sink.items[1].Tag.Timestamp)
	require.Equal(t, int64(33), sink.items[2].Tag.Timestamp)
}

func TestConcatDedupsOverlap(t *testing.T) {
	sink := &collectSink{}
	c := NewConcat(sink)

	require.NoError(t, c.Push(HeaderItem(&flv.Header{})))
	tagA := dataTag(flv.TagTypeVideo, 0, 1)
	tagB := dataTag(flv.TagTypeVideo, 33, 2)
	require.NoError(t, c.Push(TagItem(tagA)))
	require.NoError(t, c.Push(TagItem(tagB)))

	// Reconnect: the new stream re-sends twins of tagA and tagB (same
	// type/body, satisfying the numLastTags=2 overlap requirement) before
	// continuing with fresh data.
	require.NoError(t, c.Push(HeaderItem(&flv.Header{})))
	require.NoError(t, c.Push(TagItem(dataTag(flv.TagTypeVideo, 0, 1))))  // matches tagA's body
	require.NoError(t, c.Push(TagItem(dataTag(flv.TagTypeVideo, 33, 2)))) // matches tagB's body
	newTag := dataTag(flv.TagTypeVideo, 66, 3)
	require.NoError(t, c.Push(TagItem(newTag)))
	require.NoError(t, c.Flush())

	// Expect: first header, tagA, tagB, onJoinPoint script tag, newTag (retimed).
	require.Len(t, sink.items, 5)
	require.True(t, sink.items[3].Tag.IsScript())
	require.Equal(t, byte(3), sink.items[4].Tag.Body[0])
	require.Greater(t, sink.items[4].Tag.Timestamp, sink.items[2].Tag.Timestamp)
}

func TestConcatNotSeamlessAddsJoinInterval(t *testing.T) {
	sink := &collectSink{}
	c := NewConcat(sink)

	require.NoError(t, c.Push(HeaderItem(&flv.Header{})))
	require.NoError(t, c.Push(TagItem(dataTag(flv.TagTypeVideo, 0, 1))))

	require.NoError(t, c.Push(HeaderItem(&flv.Header{})))
	freshTag := dataTag(flv.TagTypeVideo, 0, 99)
	require.NoError(t, c.Push(TagItem(freshTag)))
	require.NoError(t, c.Flush())

	// Expect: first header, the first tag, onJoinPoint script tag, freshTag.
	require.Len(t, sink.items, 4)
	require.True(t, sink.items[2].Tag.IsScript())
	require.Equal(t, int64(10), sink.items[3].Tag.Timestamp)
}
