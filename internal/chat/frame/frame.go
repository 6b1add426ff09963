// Package frame implements the chat/control channel's binary frame codec
// (spec.md §4.1): a 16-byte big-endian header plus a body that is either raw
// JSON, zlib-deflated JSON, or brotli-compressed, concatenated JSON frames.
package frame

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// Operation identifies the wire-level purpose of a frame.
type Operation uint32

// Operations used by the chat/control channel.
const (
	OpHeartbeat      Operation = 2
	OpHeartbeatReply Operation = 3
	OpMessage        Operation = 5
	OpAuth           Operation = 7
	OpAuthReply      Operation = 8
)

// BodyVersion selects the body's compression.
type BodyVersion uint16

// Body versions.
const (
	BodyVersionRaw    BodyVersion = 0
	BodyVersionZlib   BodyVersion = 2
	BodyVersionBrotli BodyVersion = 3
)

// HeaderSize is the fixed wire size of a frame header.
const HeaderSize = 16

// AuthOK and AuthTokenError are the two codes an AUTH_REPLY body carries.
const (
	AuthOK         = 0
	AuthTokenError = -101
)

// Frame is one decoded wire frame.
type Frame struct {
	Version   BodyVersion
	Operation Operation
	Sequence  uint32
	Body      []byte
}

// Encode writes a frame's 16-byte header followed by its (uncompressed)
// body. Callers that need a compressed body must compress it themselves
// before calling Encode — the chat client only ever sends raw-JSON (version
// 0) frames, so compression on the write path is not exercised by the
// protocol in practice.
func Encode(w io.Writer, f *Frame) error {
	packetLength := HeaderSize + len(f.Body)
	hdr := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(hdr[0:4], uint32(packetLength))
	binary.BigEndian.PutUint16(hdr[4:6], HeaderSize)
	binary.BigEndian.PutUint16(hdr[6:8], uint16(f.Version))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(f.Operation))
	binary.BigEndian.PutUint32(hdr[12:16], f.Sequence)

	if _, err := w.Write(hdr); err != nil {
		return err
	}
	_, err := w.Write(f.Body)
	return err
}

// DecodedValue is the result of decoding one frame's body, shaped according
// to its operation: a string for AUTH_REPLY, a uint32 for HEARTBEAT_REPLY,
// or a slice of JSON strings for MESSAGE.
type DecodedValue struct {
	AuthReply      string
	HeartbeatReply uint32
	Messages       []string
}

// Decode parses one outer frame (header + body) from r and decodes its body
// per spec.md §4.1. A MESSAGE-operation body is itself a concatenation of
// inner frames sharing the same 16-byte header shape, each carrying one
// UTF-8 JSON string once decompressed.
func Decode(r io.Reader) (Operation, *DecodedValue, error) {
	hdr := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return 0, nil, err
	}

	packetLength := binary.BigEndian.Uint32(hdr[0:4])
	headerLength := binary.BigEndian.Uint16(hdr[4:6])
	if headerLength != HeaderSize {
		return 0, nil, fmt.Errorf("frame: unexpected header_length %d", headerLength)
	}
	version := BodyVersion(binary.BigEndian.Uint16(hdr[6:8]))
	op := Operation(binary.BigEndian.Uint32(hdr[8:12]))

	bodyLen := int(packetLength) - HeaderSize
	if bodyLen < 0 {
		return 0, nil, fmt.Errorf("frame: packet_length %d smaller than header", packetLength)
	}
	body := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return 0, nil, err
		}
	}

	value, err := decodeBody(op, version, body)
	if err != nil {
		return 0, nil, err
	}
	return op, value, nil
}

func decodeBody(op Operation, version BodyVersion, body []byte) (*DecodedValue, error) {
	switch op {
	case OpHeartbeatReply:
		if len(body) < 4 {
			return nil, fmt.Errorf("frame: heartbeat reply body too short")
		}
		return &DecodedValue{HeartbeatReply: binary.BigEndian.Uint32(body[0:4])}, nil

	case OpAuthReply:
		return &DecodedValue{AuthReply: string(body)}, nil

	case OpMessage:
		raw, err := decompress(version, body)
		if err != nil {
			return nil, err
		}
		messages, err := splitInnerFrames(raw)
		if err != nil {
			return nil, err
		}
		return &DecodedValue{Messages: messages}, nil

	default:
		return &DecodedValue{}, nil
	}
}

func decompress(version BodyVersion, body []byte) ([]byte, error) {
	switch version {
	case BodyVersionRaw:
		return body, nil
	case BodyVersionZlib:
		zr, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("frame: zlib init: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case BodyVersionBrotli:
		return io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
	default:
		return nil, fmt.Errorf("frame: unknown body version %d", version)
	}
}

// splitInnerFrames walks a decompressed MESSAGE body as a concatenation of
// inner frames, each with its own 16-byte header wrapping one JSON string.
func splitInnerFrames(raw []byte) ([]string, error) {
	var messages []string
	pos := 0
	for pos < len(raw) {
		if pos+HeaderSize > len(raw) {
			return nil, fmt.Errorf("frame: truncated inner frame header")
		}
		packetLength := binary.BigEndian.Uint32(raw[pos : pos+4])
		if int(packetLength) < HeaderSize || pos+int(packetLength) > len(raw) {
			return nil, fmt.Errorf("frame: invalid inner packet_length %d", packetLength)
		}
		payload := raw[pos+HeaderSize : pos+int(packetLength)]
		messages = append(messages, string(payload))
		pos += int(packetLength)
	}
	return messages, nil
}
