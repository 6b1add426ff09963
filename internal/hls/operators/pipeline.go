package operators

import (
	"context"
	"io"
)

// Mode selects how the HLS pipeline turns fetched segments into output,
// per spec.md §4.7.
type Mode int

const (
	// ModeRaw dumps segments verbatim plus a rewritten local m3u8.
	ModeRaw Mode = iota
	// ModeRemux pipes each segment through ffmpeg and re-parses the
	// resulting FLV via the C6 operator chain.
	ModeRemux
)

// Pipeline wires a PlaylistFetcher, SegmentResolver, SegmentFetcher and
// either a RawDumper or a Remuxer+SegmentParser into one HLS recording
// session.
type Pipeline struct {
	Mode     Mode
	Fetcher  *PlaylistFetcher
	Resolver *SegmentResolver
	Segments *SegmentFetcher
	Raw      *RawDumper
	Remuxer  *Remuxer
	Parser   *SegmentParser

	OnError func(error)
}

// NewPipeline constructs a Pipeline over masterURL in raw-dump mode,
// writing into outDir.
func NewPipeline(masterURL, outDir string) (*Pipeline, error) {
	raw, err := NewRawDumper(outDir)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		Mode:     ModeRaw,
		Fetcher:  NewPlaylistFetcher(masterURL),
		Resolver: NewSegmentResolver(),
		Segments: NewSegmentFetcher(masterURL),
		Raw:      raw,
	}, nil
}

// NewRemuxPipeline constructs a Pipeline over masterURL in ffmpeg-remux
// mode, where parse is bound to a C6 FLV operator chain entry point (see
// operators.Parse in internal/flv/operators).
func NewRemuxPipeline(masterURL, ffmpegPath string, parse func(r io.Reader) error) *Pipeline {
	remuxer := NewRemuxer(ffmpegPath)
	parser := NewSegmentParser(parse)
	remuxer.OnOutput = func(flvBytes []byte) {
		_ = parser.Feed(flvBytes)
	}
	return &Pipeline{
		Mode:     ModeRemux,
		Fetcher:  NewPlaylistFetcher(masterURL),
		Resolver: NewSegmentResolver(),
		Segments: NewSegmentFetcher(masterURL),
		Remuxer:  remuxer,
		Parser:   parser,
	}
}

// Run starts polling the playlist and processing segments until ctx is
// cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.Fetcher.OnPlaylist = func(playlist *MediaPlaylist) {
		for _, rs := range p.Resolver.Resolve(playlist) {
			fetched, err := p.Segments.Fetch(ctx, rs.Segment)
			if err != nil {
				if p.OnError != nil {
					p.OnError(err)
				}
				continue
			}
			p.handle(ctx, fetched)
		}
	}
	p.Fetcher.OnError = p.OnError
	return p.Fetcher.Run(ctx)
}

func (p *Pipeline) handle(ctx context.Context, seg *FetchedSegment) {
	switch p.Mode {
	case ModeRaw:
		if err := p.Raw.Dump(seg); err != nil && p.OnError != nil {
			p.OnError(err)
		}
	case ModeRemux:
		p.Remuxer.Remux(ctx, seg)
	}
}
