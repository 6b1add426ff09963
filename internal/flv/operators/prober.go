package operators

import (
	"bytes"
	"context"
	"os"

	"github.com/nekorec/blivec/internal/ffmpeg"
	"github.com/nekorec/blivec/internal/flv"
)

// proberBufferSize is the number of items probed per sub-stream, per
// spec.md §4.6 step 11.
const proberBufferSize = 10

// Prober buffers the first items of each sub-stream, reconstructs a tiny
// in-memory FLV, and shells out to ffprobe to extract a codec/profile
// summary, publishing it once per sub-stream (spec.md §4.6 step 11).
type Prober struct {
	next    Sink
	prober  *ffmpeg.Prober
	onProbe func(*ffmpeg.StreamInfo)

	header *flv.Header
	buf    []*flv.Tag
	probed bool
}

// NewProber constructs a Prober stage forwarding to next. ffprobePath is the
// path to the ffprobe binary; onProbe, if non-nil, is called with the probe
// result, or with nil if ffprobe fails, once a sub-stream reaches
// proberBufferSize tags. It is not called for shorter sub-streams or when
// the temporary probe file cannot be prepared.
func NewProber(next Sink, ffprobePath string, onProbe func(*ffmpeg.StreamInfo)) *Prober {
	return &Prober{next: next, prober: ffmpeg.NewProber(ffprobePath), onProbe: onProbe}
}

// Push implements Sink.
func (p *Prober) Push(item Item) error {
	if item.IsHeader() {
		p.header = item.Header
		p.buf = nil
		p.probed = false
		return p.next.Push(item)
	}

	if !p.probed {
		p.buf = append(p.buf, item.Tag)
		if len(p.buf) >= proberBufferSize {
			p.runProbe()
		}
	}

	return p.next.Push(item)
}

func (p *Prober) runProbe() {
	p.probed = true
	if p.header == nil {
		return
	}

	var buf bytes.Buffer
	w := flv.NewWriter(&buf)
	if _, err := w.WriteHeader(p.header); err != nil {
		return
	}
	if _, err := w.WriteTags(p.buf); err != nil {
		return
	}

	tmp, err := os.CreateTemp("", "blivec-probe-*.flv")
	if err != nil {
		return
	}
	path := tmp.Name()
	defer os.Remove(path)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return
	}
	tmp.Close()

	info, err := p.prober.ProbeSimple(context.Background(), path)
	if err != nil {
		if p.onProbe != nil {
			p.onProbe(nil)
		}
		return
	}
	if p.onProbe != nil {
		p.onProbe(info)
	}
}
