package postprocess

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nekorec/blivec/internal/flv"
)

func TestBuildFFMetadataIncludesChapters(t *testing.T) {
	content := buildFFMetadata(Metadata{
		Title:      "t",
		Artist:     "a",
		Date:       "2026-07-30",
		Comment:    "base comment",
		DurationMS: 10000,
		JoinPoints: []JoinPoint{
			{Seamless: false, Timestamp: 3000},
			{Seamless: true, Timestamp: 6000},
		},
	})

	require.Contains(t, content, ";FFMETADATA1")
	require.Contains(t, content, "Title=t")
	require.Contains(t, content, "[CHAPTER]")
	require.Contains(t, content, "START=0")
	require.Contains(t, content, "END=3000")
	require.Contains(t, content, "START=3000")
	require.Contains(t, content, "END=10000")
}

func TestBuildFFMetadataNoChaptersWithoutNonSeamlessJoinPoints(t *testing.T) {
	content := buildFFMetadata(Metadata{
		JoinPoints: []JoinPoint{{Seamless: true, Timestamp: 1000}},
	})
	require.NotContains(t, content, "[CHAPTER]")
}

func writeMinimalFLV(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := flv.NewWriter(f)
	_, err = w.WriteHeader(&flv.Header{HasVideo: true, HasAudio: false})
	require.NoError(t, err)

	arr := flv.NewECMAArray()
	arr.Set("duration", 0.0)
	meta, err := flv.CreateMetadataTag(flv.EnsureOrder(arr), 0)
	require.NoError(t, err)
	_, err = w.WriteTag(meta)
	require.NoError(t, err)

	videoSeq := &flv.Tag{Type: flv.TagTypeVideo, Timestamp: 0, Body: []byte{0x17, 0x00, 0, 0, 0}}
	_, err = w.WriteTag(videoSeq)
	require.NoError(t, err)

	videoData := &flv.Tag{Type: flv.TagTypeVideo, Timestamp: 33, Body: []byte{0x17, 0x01, 0, 0, 0, 1, 2, 3}}
	_, err = w.WriteTag(videoData)
	require.NoError(t, err)
}

func TestValidateFLVAcceptsCompleteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.flv")
	writeMinimalFLV(t, path)

	ok, err := ValidateFLV(path)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestValidateFLVRejectsMissingMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.flv")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := flv.NewWriter(f)
	_, err = w.WriteHeader(&flv.Header{HasVideo: true})
	require.NoError(t, err)
	f.Close()

	ok, err := ValidateFLV(path)
	require.NoError(t, err)
	require.False(t, ok)
}
