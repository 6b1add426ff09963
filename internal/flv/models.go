// Package flv implements FLV container reading, writing, and the AMF0
// script-data and AVC sequence-header codecs it embeds.
package flv

import "fmt"

// TagType identifies the kind of payload an FLV tag carries.
type TagType uint8

// Tag types as defined by the FLV spec.
const (
	TagTypeAudio  TagType = 8
	TagTypeVideo  TagType = 9
	TagTypeScript TagType = 18
)

func (t TagType) String() string {
	switch t {
	case TagTypeAudio:
		return "audio"
	case TagTypeVideo:
		return "video"
	case TagTypeScript:
		return "script"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// FrameType is the video frame type carried in a video tag's header.
type FrameType uint8

// Frame types.
const (
	FrameTypeKey             FrameType = 1
	FrameTypeInter           FrameType = 2
	FrameTypeDisposableInter FrameType = 3
	FrameTypeGenerated       FrameType = 4
	FrameTypeVideoInfo       FrameType = 5
)

// CodecID identifies the video codec used by a video tag.
type CodecID uint8

// Codec IDs (only AVC is relevant to this recorder; others pass through).
const (
	CodecIDSorensonH263 CodecID = 2
	CodecIDScreenVideo  CodecID = 3
	CodecIDVP6          CodecID = 4
	CodecIDVP6Alpha     CodecID = 5
	CodecIDScreenVideo2 CodecID = 6
	CodecIDAVC          CodecID = 7
)

// AVCPacketType distinguishes AVC sequence headers, NALUs and EOS markers.
type AVCPacketType uint8

// AVC packet types.
const (
	AVCPacketTypeSequenceHeader AVCPacketType = 0
	AVCPacketTypeNALU           AVCPacketType = 1
	AVCPacketTypeEndOfSequence  AVCPacketType = 2
)

// SoundFormat identifies the audio codec used by an audio tag.
type SoundFormat uint8

// Sound formats (only AAC matters here; others pass through untouched).
const (
	SoundFormatAAC SoundFormat = 10
)

// SoundRate is the sampling rate index carried in an audio tag's header.
type SoundRate uint8

// Sound rates.
const (
	SoundRate5_5kHz SoundRate = 0
	SoundRate11kHz  SoundRate = 1
	SoundRate22kHz  SoundRate = 2
	SoundRate44kHz  SoundRate = 3
)

// SoundSize is the sample bit depth of an audio tag.
type SoundSize uint8

// Sound sizes.
const (
	SoundSize8Bit  SoundSize = 0
	SoundSize16Bit SoundSize = 1
)

// SoundType distinguishes mono from stereo audio.
type SoundType uint8

// Sound types.
const (
	SoundTypeMono   SoundType = 0
	SoundTypeStereo SoundType = 1
)

// AACPacketType distinguishes the AAC sequence header from raw frames.
type AACPacketType uint8

// AAC packet types.
const (
	AACPacketTypeSequenceHeader AACPacketType = 0
	AACPacketTypeRaw            AACPacketType = 1
)

// Sizes fixed by the FLV container format (spec.md §3).
const (
	TagHeaderSize  = 11
	BackPointerSize = 4
)

// Header is the 9-byte FLV file header plus its trailing 4-byte "0"
// back-pointer, which every reader must see before the first tag.
type Header struct {
	Signature [3]byte // always "FLV"
	Version   uint8
	HasAudio  bool
	HasVideo  bool
	DataOffset uint32 // always 9 for a standard header
}

// Size is the byte length of the header proper (excludes the back-pointer).
func (h Header) Size() int { return int(h.DataOffset) }

// Tag is one FLV tag: a type, a timestamp, and type-specific header fields
// plus the raw body bytes following those header fields.
//
// Invariants (spec.md §3): AAC audio tags have HeaderSize()==2, other audio
// 1; AVC video tags have HeaderSize()==5, other video 1; script tags 0;
// TagSize() == TagHeaderSize + DataSize().
type Tag struct {
	Type      TagType
	Timestamp int64 // milliseconds, signed 32-bit extended range
	StreamID  uint32

	// Audio fields (Type == TagTypeAudio).
	SoundFormat   SoundFormat
	SoundRate     SoundRate
	SoundSize     SoundSize
	SoundType     SoundType
	AACPacketType AACPacketType

	// Video fields (Type == TagTypeVideo).
	FrameType       FrameType
	CodecID         CodecID
	AVCPacketType   AVCPacketType
	CompositionTime int32

	// Script fields (Type == TagTypeScript): Body holds the AMF-encoded
	// name+value pair verbatim; Name/Value are the parsed form when needed.
	Body []byte
}

// DataSize is the size in bytes of the tag's payload (type-specific header
// bytes plus body), matching the wire field of the same name.
func (t *Tag) DataSize() int {
	return t.HeaderSize() + len(t.Body)
}

// TagSize is the total wire size of the tag, including the 11-byte base
// header.
func (t *Tag) TagSize() int {
	return TagHeaderSize + t.DataSize()
}

// HeaderSize is the number of type-specific header bytes preceding Body, per
// the invariants in spec.md §3.
func (t *Tag) HeaderSize() int {
	switch t.Type {
	case TagTypeAudio:
		if t.SoundFormat == SoundFormatAAC {
			return 2
		}
		return 1
	case TagTypeVideo:
		if t.CodecID == CodecIDAVC {
			return 5
		}
		return 1
	case TagTypeScript:
		return 0
	default:
		return 0
	}
}

// IsAudio reports whether the tag carries audio data.
func (t *Tag) IsAudio() bool { return t.Type == TagTypeAudio }

// IsVideo reports whether the tag carries video data.
func (t *Tag) IsVideo() bool { return t.Type == TagTypeVideo }

// IsScript reports whether the tag carries AMF script data.
func (t *Tag) IsScript() bool { return t.Type == TagTypeScript }

// IsMetadata reports whether this is an onMetaData script tag.
func (t *Tag) IsMetadata() bool {
	if !t.IsScript() {
		return false
	}
	name, _, err := DecodeScriptBody(t.Body)
	return err == nil && name == "onMetaData"
}

// IsAudioSequenceHeader reports whether this is an AAC sequence-header tag.
func (t *Tag) IsAudioSequenceHeader() bool {
	return t.IsAudio() && t.SoundFormat == SoundFormatAAC && t.AACPacketType == AACPacketTypeSequenceHeader
}

// IsVideoSequenceHeader reports whether this is an AVC sequence-header tag.
func (t *Tag) IsVideoSequenceHeader() bool {
	return t.IsVideo() && t.CodecID == CodecIDAVC && t.AVCPacketType == AVCPacketTypeSequenceHeader
}

// IsSequenceHeader reports whether this tag is any kind of sequence header.
func (t *Tag) IsSequenceHeader() bool {
	return t.IsAudioSequenceHeader() || t.IsVideoSequenceHeader()
}

// IsKeyframe reports whether this is a video tag carrying a keyframe NALU.
func (t *Tag) IsKeyframe() bool {
	return t.IsVideo() && t.FrameType == FrameTypeKey && t.AVCPacketType == AVCPacketTypeNALU
}

// IsAVCEndOfSequence reports whether this tag is the AVC end-of-sequence marker.
func (t *Tag) IsAVCEndOfSequence() bool {
	return t.IsVideo() && t.CodecID == CodecIDAVC && t.AVCPacketType == AVCPacketTypeEndOfSequence
}

// Clone returns a deep copy of the tag (body bytes are copied).
func (t *Tag) Clone() *Tag {
	cp := *t
	if t.Body != nil {
		cp.Body = append([]byte(nil), t.Body...)
	}
	return &cp
}

// SameBodyAs reports whether two tags are of the same type and carry
// byte-identical bodies, independent of timestamp — the equality check used
// throughout the operator chain (dedup, split-detection).
func (t *Tag) SameBodyAs(other *Tag) bool {
	if other == nil || t.Type != other.Type || len(t.Body) != len(other.Body) {
		return false
	}
	for i := range t.Body {
		if t.Body[i] != other.Body[i] {
			return false
		}
	}
	return true
}

// CreateAVCEndOfSequenceTag builds a zero-length AVC end-of-sequence tag at
// the given timestamp, used by operators that need to cleanly terminate a
// video sequence before injecting a new header.
func CreateAVCEndOfSequenceTag(timestamp int64) *Tag {
	return &Tag{
		Type:          TagTypeVideo,
		Timestamp:     timestamp,
		FrameType:     FrameTypeKey,
		CodecID:       CodecIDAVC,
		AVCPacketType: AVCPacketTypeEndOfSequence,
		Body:          nil,
	}
}
