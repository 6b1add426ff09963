package resolver

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nekorec/blivec/internal/bili"
)

func sampleInfo() *bili.PlayInfo {
	return &bili.PlayInfo{
		RoomID: 123,
		Streams: []bili.StreamVariant{
			{
				Format: "flv", Codec: "avc", CurrentQn: 10000, AcceptQn: []int{10000, 400},
				BaseURL: "/live-bvc/test.flv", Extra: "?expires=1",
				Hosts: []bili.StreamHost{
					{Host: "d1--cn-gotcha08.bilivideo.com"},
					{Host: "d1--cn-gotcha04.bilivideo.com"},
					{Host: "d1--mcdn.bilivideo.cn"},
				},
			},
		},
	}
}

func TestSelectURLPrefersRankedHost(t *testing.T) {
	r := New(nil)
	url, err := r.selectURL(sampleInfo(), "flv", "avc", 10000, false)
	require.NoError(t, err)
	require.Contains(t, url, "gotcha04")
}

func TestSelectURLAlternativePicksSecond(t *testing.T) {
	r := New(nil)
	url, err := r.selectURL(sampleInfo(), "flv", "avc", 10000, true)
	require.NoError(t, err)
	require.Contains(t, url, "gotcha08")
}

func TestSelectURLNoFormatMatch(t *testing.T) {
	r := New(nil)
	_, err := r.selectURL(sampleInfo(), "ts", "avc", 10000, false)
	require.ErrorIs(t, err, ErrNoStreamFormatAvailable)
}

func TestSelectURLQnMismatch(t *testing.T) {
	r := New(nil)
	_, err := r.selectURL(sampleInfo(), "flv", "avc", 400, false)
	require.ErrorIs(t, err, ErrNoStreamQualityAvailable)
}
