package operators

import (
	"fmt"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleMaster = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=800000
low/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=3000000
high/index.m3u8
`

const sampleMedia = `#EXTM3U
#EXT-X-VERSION:7
#EXT-X-TARGETDURATION:2
#EXT-X-MEDIA-SEQUENCE:100
#EXT-X-MAP:URI="init.mp4"
#EXTINF:2.002,
100.m4s
#EXTINF:2.002,
101.m4s
`

func TestParseMasterPlaylistKeepsVariantsInOrder(t *testing.T) {
	variants, err := ParseMasterPlaylist(sampleMaster)
	require.NoError(t, err)
	require.Len(t, variants, 2)
	require.Equal(t, 3000000, variants[1].Bandwidth)
	require.Equal(t, "high/index.m3u8", variants[1].URI)
}

func TestParseMediaPlaylist(t *testing.T) {
	pl, err := ParseMediaPlaylist(sampleMedia)
	require.NoError(t, err)
	require.Equal(t, 100, pl.MediaSequence)
	require.Len(t, pl.Segments, 2)
	require.Equal(t, 100, pl.Segments[0].Sequence)
	require.Equal(t, "init.mp4", pl.Segments[0].InitURI)
	require.Equal(t, 101, pl.Segments[1].Sequence)
	require.False(t, pl.Ended)
}

func TestSegmentResolverDedupsAndFlagsDiscontinuity(t *testing.T) {
	r := NewSegmentResolver()

	first := &MediaPlaylist{Segments: []Segment{{Sequence: 10}, {Sequence: 11}}}
	resolved := r.Resolve(first)
	require.Len(t, resolved, 2)
	require.False(t, resolved[0].Discontinuity)
	require.False(t, resolved[1].Discontinuity)

	// Re-fetch overlaps (11 seen already) and then jumps to 14: a gap.
	second := &MediaPlaylist{Segments: []Segment{{Sequence: 11}, {Sequence: 14}}}
	resolved = r.Resolve(second)
	require.Len(t, resolved, 1)
	require.Equal(t, 14, resolved[0].Segment.Sequence)
	require.True(t, resolved[0].Discontinuity)
}

func TestParseSegmentTitleAndVerify(t *testing.T) {
	body := []byte("hello world")
	crc := fmt.Sprintf("%08x", crc32.ChecksumIEEE(body))

	title, err := parseSegmentTitle(fmt.Sprintf("path/%x|%s|x.m4s", len(body), crc))
	require.NoError(t, err)
	require.Equal(t, int64(len(body)), title.size)
	require.True(t, verifyCRC32Hex(body, title.crc32))
}

func TestParseSegmentTitleMissingMetadata(t *testing.T) {
	_, err := parseSegmentTitle("path/102.m4s")
	require.Error(t, err)
}
