package flv

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ParseHeader reads and validates the 9-byte FLV file header (not including
// the trailing 4-byte "0" back-pointer).
func ParseHeader(r io.Reader) (*Header, error) {
	var buf [9]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}
	if buf[0] != 'F' || buf[1] != 'L' || buf[2] != 'V' {
		return nil, fmt.Errorf("flv: bad signature %q", buf[0:3])
	}
	flags := buf[4]
	return &Header{
		Signature:  [3]byte{buf[0], buf[1], buf[2]},
		Version:    buf[3],
		HasAudio:   flags&0b0000_0100 != 0,
		HasVideo:   flags&0b0000_0001 != 0,
		DataOffset: binary.BigEndian.Uint32(buf[5:9]),
	}, nil
}

// DumpHeader writes the 9-byte FLV file header.
func DumpHeader(w io.Writer, h *Header) error {
	var flags byte
	if h.HasAudio {
		flags |= 0b0000_0100
	}
	if h.HasVideo {
		flags |= 0b0000_0001
	}
	buf := make([]byte, 9)
	copy(buf[0:3], "FLV")
	buf[3] = h.Version
	buf[4] = flags
	binary.BigEndian.PutUint32(buf[5:9], h.DataOffset)
	_, err := w.Write(buf)
	return err
}

// tagHeaderFields are the wire fields common to every FLV tag, preceding the
// type-specific sub-header and body.
type tagHeaderFields struct {
	tagType   TagType
	dataSize  uint32
	timestamp int64
	streamID  uint32
}

// parseTagHeader reads the 11-byte base tag header.
func parseTagHeader(r io.Reader) (*tagHeaderFields, error) {
	var buf [11]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}
	flag := buf[0]
	if flag&0b0010_0000 != 0 {
		return nil, fmt.Errorf("flv: filtered tags are not supported")
	}
	tagType := TagType(flag & 0b0001_1111)

	dataSize := uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
	if dataSize == 0 {
		return nil, fmt.Errorf("flv: tag data_size must be nonzero")
	}

	tsLow := uint32(buf[4])<<16 | uint32(buf[5])<<8 | uint32(buf[6])
	tsExt := uint32(buf[7])
	timestamp := int64(tsExt)<<24 | int64(tsLow)

	streamID := uint32(buf[8])<<16 | uint32(buf[9])<<8 | uint32(buf[10])

	return &tagHeaderFields{
		tagType:   tagType,
		dataSize:  dataSize,
		timestamp: timestamp,
		streamID:  streamID,
	}, nil
}

// dumpTagHeader writes the 11-byte base tag header.
func dumpTagHeader(w io.Writer, f *tagHeaderFields) error {
	buf := make([]byte, 11)
	buf[0] = byte(f.tagType) & 0b0001_1111

	buf[1] = byte(f.dataSize >> 16)
	buf[2] = byte(f.dataSize >> 8)
	buf[3] = byte(f.dataSize)

	ts := uint32(f.timestamp)
	buf[4] = byte(ts >> 16)
	buf[5] = byte(ts >> 8)
	buf[6] = byte(ts)
	buf[7] = byte(ts >> 24)

	buf[8] = byte(f.streamID >> 16)
	buf[9] = byte(f.streamID >> 8)
	buf[10] = byte(f.streamID)

	_, err := w.Write(buf)
	return err
}

// parseAudioTagHeader reads the 1- or 2-byte audio sub-header.
func parseAudioTagHeader(r io.Reader, t *Tag) error {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	flag := b[0]
	t.SoundFormat = SoundFormat(flag >> 4)
	t.SoundRate = SoundRate((flag >> 2) & 0b11)
	t.SoundSize = SoundSize((flag >> 1) & 0b1)
	t.SoundType = SoundType(flag & 0b1)

	if t.SoundFormat == SoundFormatAAC {
		var p [1]byte
		if _, err := io.ReadFull(r, p[:]); err != nil {
			return err
		}
		t.AACPacketType = AACPacketType(p[0])
	}
	return nil
}

// dumpAudioTagHeader writes the audio sub-header.
func dumpAudioTagHeader(w io.Writer, t *Tag) error {
	flag := byte(t.SoundFormat)<<4 | byte(t.SoundRate)<<2 | byte(t.SoundSize)<<1 | byte(t.SoundType)
	if _, err := w.Write([]byte{flag}); err != nil {
		return err
	}
	if t.SoundFormat == SoundFormatAAC {
		_, err := w.Write([]byte{byte(t.AACPacketType)})
		return err
	}
	return nil
}

// parseVideoTagHeader reads the 1- or 5-byte video sub-header.
func parseVideoTagHeader(r io.Reader, t *Tag) error {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	flag := b[0]
	t.FrameType = FrameType(flag >> 4)
	t.CodecID = CodecID(flag & 0b1111)

	if t.CodecID == CodecIDAVC {
		var rest [4]byte
		if _, err := io.ReadFull(r, rest[:]); err != nil {
			return err
		}
		t.AVCPacketType = AVCPacketType(rest[0])
		ct := uint32(rest[1])<<16 | uint32(rest[2])<<8 | uint32(rest[3])
		// composition time is a signed 24-bit value
		if ct&0x800000 != 0 {
			t.CompositionTime = int32(ct) - 0x1000000
		} else {
			t.CompositionTime = int32(ct)
		}
	}
	return nil
}

// dumpVideoTagHeader writes the video sub-header.
func dumpVideoTagHeader(w io.Writer, t *Tag) error {
	flag := byte(t.FrameType)<<4 | byte(t.CodecID)&0b1111
	if _, err := w.Write([]byte{flag}); err != nil {
		return err
	}
	if t.CodecID == CodecIDAVC {
		ct := uint32(t.CompositionTime) & 0xFFFFFF
		buf := [4]byte{
			byte(t.AVCPacketType),
			byte(ct >> 16),
			byte(ct >> 8),
			byte(ct),
		}
		_, err := w.Write(buf[:])
		return err
	}
	return nil
}

// ParseTag reads one complete FLV tag (base header, sub-header, body) but
// does not read or verify the trailing back-pointer; callers use Reader for
// that.
func ParseTag(r io.Reader) (*Tag, error) {
	base, err := parseTagHeader(r)
	if err != nil {
		return nil, err
	}

	tag := &Tag{
		Type:      base.tagType,
		Timestamp: base.timestamp,
		StreamID:  base.streamID,
	}

	var headerSize int
	switch base.tagType {
	case TagTypeAudio:
		if err := parseAudioTagHeader(r, tag); err != nil {
			return nil, err
		}
		headerSize = tag.HeaderSize()
	case TagTypeVideo:
		if err := parseVideoTagHeader(r, tag); err != nil {
			return nil, err
		}
		headerSize = tag.HeaderSize()
	case TagTypeScript:
		headerSize = 0
	default:
		return nil, fmt.Errorf("flv: unsupported tag type %d", base.tagType)
	}

	bodySize := int(base.dataSize) - headerSize
	if bodySize < 0 {
		return nil, fmt.Errorf("flv: tag data_size smaller than its own sub-header")
	}
	body := make([]byte, bodySize)
	if bodySize > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, err
		}
	}
	tag.Body = body
	return tag, nil
}

// DumpTag writes one complete FLV tag (base header, sub-header, body), not
// including the trailing back-pointer.
func DumpTag(w io.Writer, t *Tag) error {
	base := &tagHeaderFields{
		tagType:   t.Type,
		dataSize:  uint32(t.DataSize()),
		timestamp: t.Timestamp,
		streamID:  t.StreamID,
	}
	if err := dumpTagHeader(w, base); err != nil {
		return err
	}
	switch t.Type {
	case TagTypeAudio:
		if err := dumpAudioTagHeader(w, t); err != nil {
			return err
		}
	case TagTypeVideo:
		if err := dumpVideoTagHeader(w, t); err != nil {
			return err
		}
	}
	_, err := w.Write(t.Body)
	return err
}
