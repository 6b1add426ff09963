package chat

import "bytes"

// writeBuffer adapts bytes.Buffer for frame.Encode's io.Writer parameter.
type writeBuffer struct {
	bytes.Buffer
}

// newByteReader wraps a decoded WebSocket message for frame.Decode's
// io.Reader parameter.
func newByteReader(data []byte) *bytes.Reader {
	return bytes.NewReader(data)
}
