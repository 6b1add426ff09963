package frame

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/require"
)

func innerFrame(payload string) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(buf)))
	binary.BigEndian.PutUint16(buf[4:6], HeaderSize)
	copy(buf[HeaderSize:], payload)
	return buf
}

func TestChatFrameRoundTrip(t *testing.T) {
	inner := innerFrame(`{"cmd":"LIVE"}`)

	var out bytes.Buffer
	require.NoError(t, Encode(&out, &Frame{Version: BodyVersionRaw, Operation: OpMessage, Body: inner}))

	op, val, err := Decode(&out)
	require.NoError(t, err)
	require.Equal(t, OpMessage, op)
	require.Equal(t, []string{`{"cmd":"LIVE"}`}, val.Messages)
}

func TestBrotliMessageDecode(t *testing.T) {
	f1 := innerFrame(`{"cmd":"DANMU_MSG"}`)
	f2 := innerFrame(`{"cmd":"DANMU_MSG"}`)
	raw := append(append([]byte{}, f1...), f2...)

	var compressed bytes.Buffer
	bw := brotli.NewWriter(&compressed)
	_, err := bw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, bw.Close())

	var out bytes.Buffer
	require.NoError(t, Encode(&out, &Frame{Version: BodyVersionBrotli, Operation: OpMessage, Body: compressed.Bytes()}))

	op, val, err := Decode(&out)
	require.NoError(t, err)
	require.Equal(t, OpMessage, op)
	require.Len(t, val.Messages, 2)
	require.Equal(t, `{"cmd":"DANMU_MSG"}`, val.Messages[0])
	require.Equal(t, `{"cmd":"DANMU_MSG"}`, val.Messages[1])
}

func TestHeartbeatReplyDecode(t *testing.T) {
	body := make([]byte, 4)
	binary.BigEndian.PutUint32(body, 12345)

	var out bytes.Buffer
	require.NoError(t, Encode(&out, &Frame{Operation: OpHeartbeatReply, Body: body}))

	op, val, err := Decode(&out)
	require.NoError(t, err)
	require.Equal(t, OpHeartbeatReply, op)
	require.Equal(t, uint32(12345), val.HeartbeatReply)
}

func TestAuthReplyDecode(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Encode(&out, &Frame{Operation: OpAuthReply, Body: []byte(`{"code":0}`)}))

	op, val, err := Decode(&out)
	require.NoError(t, err)
	require.Equal(t, OpAuthReply, op)
	require.Equal(t, `{"code":0}`, val.AuthReply)
}
