package flv

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAMFRoundTrip(t *testing.T) {
	arr := NewECMAArray()
	arr.Set("duration", 12.5)
	arr.Set("hasVideo", true)
	arr.Set("title", "hello")

	values := []any{
		float64(42), true, false, "short string", arr,
		[]any{float64(1), "two", true},
		map[string]any{"a": float64(1)},
		nil,
		Undefined,
	}

	for _, v := range values {
		var buf bytes.Buffer
		w := NewAMFWriter(&buf)
		require.NoError(t, w.WriteValue(v))

		r := NewAMFReader(&buf)
		got, err := r.ReadValue()
		require.NoError(t, err)

		switch want := v.(type) {
		case *ECMAArray:
			gotArr, ok := got.(*ECMAArray)
			require.True(t, ok)
			require.Equal(t, want.Len(), gotArr.Len())
			for _, k := range want.Keys() {
				wv, _ := want.Get(k)
				gv, ok := gotArr.Get(k)
				require.True(t, ok)
				require.Equal(t, wv, gv)
			}
		default:
			require.Equal(t, v, got)
		}
	}
}

func TestTagHeaderSizeInvariants(t *testing.T) {
	aac := &Tag{Type: TagTypeAudio, SoundFormat: SoundFormatAAC}
	require.Equal(t, 2, aac.HeaderSize())

	otherAudio := &Tag{Type: TagTypeAudio, SoundFormat: 2}
	require.Equal(t, 1, otherAudio.HeaderSize())

	avc := &Tag{Type: TagTypeVideo, CodecID: CodecIDAVC}
	require.Equal(t, 5, avc.HeaderSize())

	otherVideo := &Tag{Type: TagTypeVideo, CodecID: CodecIDVP6}
	require.Equal(t, 1, otherVideo.HeaderSize())

	script := &Tag{Type: TagTypeScript}
	require.Equal(t, 0, script.HeaderSize())
}

func TestReaderWriterRoundTrip(t *testing.T) {
	header := &Header{Signature: [3]byte{'F', 'L', 'V'}, Version: 1, HasAudio: true, HasVideo: true, DataOffset: 9}

	metaArr := NewECMAArray()
	metaArr.Set("duration", 0.0)
	metaArr.Set("width", 1920.0)
	metaTag, err := CreateMetadataTag(metaArr, 0)
	require.NoError(t, err)

	videoSeqHeader := &Tag{
		Type: TagTypeVideo, Timestamp: 0, CodecID: CodecIDAVC,
		AVCPacketType: AVCPacketTypeSequenceHeader, FrameType: FrameTypeKey,
		Body: []byte{0x01, 0x64, 0x00, 0x1f, 0xff},
	}
	videoData := &Tag{
		Type: TagTypeVideo, Timestamp: 33, CodecID: CodecIDAVC,
		AVCPacketType: AVCPacketTypeNALU, FrameType: FrameTypeKey,
		Body: []byte{0xAA, 0xBB, 0xCC},
	}
	tags := []*Tag{metaTag, videoSeqHeader, videoData}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	_, err = w.WriteHeader(header)
	require.NoError(t, err)
	_, err = w.WriteTags(tags)
	require.NoError(t, err)

	r := NewReader(&buf)
	gotHeader, err := r.ReadHeader()
	require.NoError(t, err)
	require.Equal(t, header.HasAudio, gotHeader.HasAudio)
	require.Equal(t, header.HasVideo, gotHeader.HasVideo)

	var got []*Tag
	require.NoError(t, r.ReadTags(func(tag *Tag) error {
		got = append(got, tag)
		return nil
	}))
	require.Len(t, got, len(tags))
	for i, tag := range got {
		require.Equal(t, tags[i].Type, tag.Type)
		require.Equal(t, tags[i].Timestamp, tag.Timestamp)
		require.Equal(t, tags[i].Body, tag.Body)
		require.Equal(t, tags[i].TagSize(), tag.TagSize())
	}
}

func TestBackPointerMismatchIsRejected(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, DumpHeader(&buf, &Header{Signature: [3]byte{'F', 'L', 'V'}, DataOffset: 9}))
	buf.Write([]byte{0, 0, 0, 0}) // correct leading back-pointer

	tag := &Tag{Type: TagTypeScript, Body: []byte{0x02, 0x00, 0x00}}
	require.NoError(t, DumpTag(&buf, tag))
	buf.Write([]byte{0, 0, 0, 1}) // wrong back-pointer

	r := NewReader(&buf)
	_, err := r.ReadHeader()
	require.NoError(t, err)
	_, err = r.ReadTag()
	require.Error(t, err)
}
