package postprocess

import (
	"io"
	"os"

	"github.com/nekorec/blivec/internal/flv"
)

// ValidateFLV checks that flvPath has at least a header, a metadata script
// tag, one sequence header per declared media type, and one raw data tag
// per declared media type, per spec.md §4.9 step 1.
func ValidateFLV(flvPath string) (bool, error) {
	f, err := os.Open(flvPath)
	if err != nil {
		return false, err
	}
	defer f.Close()

	r := flv.NewReader(f)
	header, err := r.ReadHeader()
	if err != nil {
		return false, nil
	}

	var (
		haveMetadata  bool
		haveVideoSeq  bool
		haveAudioSeq  bool
		haveVideoData bool
		haveAudioData bool
	)

	for {
		tag, err := r.ReadTag()
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return false, nil
		}

		switch {
		case tag.IsScript():
			haveMetadata = true
		case tag.IsVideoSequenceHeader():
			haveVideoSeq = true
		case tag.IsAudioSequenceHeader():
			haveAudioSeq = true
		case tag.IsVideo():
			haveVideoData = true
		case tag.IsAudio():
			haveAudioData = true
		}
	}

	if !haveMetadata {
		return false, nil
	}
	if (header.HasVideo || haveVideoSeq) && !(haveVideoSeq && haveVideoData) {
		return false, nil
	}
	if (header.HasAudio || haveAudioSeq) && !(haveAudioSeq && haveAudioData) {
		return false, nil
	}
	return true, nil
}
