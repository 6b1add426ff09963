package flv

// metadataFieldOrder is the canonical field order for onMetaData, matching
// the order a well-behaved encoder writes them in; fields not in this list
// are appended afterwards in their existing order. Reordering keeps players
// that scan metadata positionally happy (spec.md §3 note on onMetaData field
// order).
var metadataFieldOrder = []string{
	"hasAudio", "hasVideo", "hasMetadata", "hasKeyframes", "canSeekToEnd",
	"duration", "datasize", "filesize",
	"audiocodecid", "audiodatarate", "audiosamplerate", "audiosamplesize", "stereo",
	"videocodecid", "videodatarate", "framerate",
	"width", "height",
	"lasttimestamp", "lastkeyframelocation", "lastkeyframetimestamp",
	"keyframes",
}

// EnsureOrder reorders metadata's keys to metadataFieldOrder, appending any
// unrecognised keys afterward in their existing relative order.
func EnsureOrder(metadata *ECMAArray) *ECMAArray {
	ordered := NewECMAArray()
	seen := make(map[string]bool, metadata.Len())
	for _, key := range metadataFieldOrder {
		if v, ok := metadata.Get(key); ok {
			ordered.Set(key, v)
			seen[key] = true
		}
	}
	for _, key := range metadata.Keys() {
		if !seen[key] {
			v, _ := metadata.Get(key)
			ordered.Set(key, v)
		}
	}
	return ordered
}

// ParseMetadata decodes an onMetaData script tag's AMF value as an
// ECMAArray, the shape the rest of the operator chain expects to mutate.
func ParseMetadata(tag *Tag) (*ECMAArray, error) {
	_, value, err := DecodeScriptBody(tag.Body)
	if err != nil {
		return nil, err
	}
	switch v := value.(type) {
	case *ECMAArray:
		return v, nil
	case map[string]any:
		arr := NewECMAArray()
		for k, val := range v {
			arr.Set(k, val)
		}
		return arr, nil
	default:
		return NewECMAArray(), nil
	}
}

// CreateScriptTag builds a script tag carrying (name, value) as its AMF
// body, at the given timestamp.
func CreateScriptTag(name string, value any, timestamp int64) (*Tag, error) {
	body, err := EncodeScriptBody(name, value)
	if err != nil {
		return nil, err
	}
	return &Tag{Type: TagTypeScript, Timestamp: timestamp, Body: body}, nil
}

// CreateMetadataTag builds an onMetaData script tag from metadata, with its
// fields reordered via EnsureOrder.
func CreateMetadataTag(metadata *ECMAArray, timestamp int64) (*Tag, error) {
	return CreateScriptTag("onMetaData", EnsureOrder(metadata), timestamp)
}

// UpdateMetadata rewrites a script tag's body with new metadata values,
// asserting the new tag's size equals the original's — the hard invariant
// needed for in-place keyframe-fileposition patching, where no other tag's
// file offset may shift. A size change panics.
func UpdateMetadata(tag *Tag, metadata *ECMAArray) (*Tag, error) {
	newTag, err := CreateMetadataTag(metadata, tag.Timestamp)
	if err != nil {
		return nil, err
	}
	if newTag.TagSize() != tag.TagSize() {
		panic("flv: metadata update must not change tag size")
	}
	return newTag, nil
}

// JoinPoint describes the seam between two stitched reconnect segments
// (spec.md §3 Join point).
type JoinPoint struct {
	Seamless    bool
	TimestampMS float64
	CRC32       string
}
