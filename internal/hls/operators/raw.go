package operators

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RawDumper writes fetched segments verbatim to localDir and maintains a
// rewritten local m3u8 pointing at them, per spec.md §4.7's raw-dump mode.
type RawDumper struct {
	dir      string
	init     []byte
	initName string
	written  []Segment
}

// NewRawDumper constructs a RawDumper writing into dir (created if absent).
func NewRawDumper(dir string) (*RawDumper, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &RawDumper{dir: dir}, nil
}

// Dump writes one fetched segment (and its init section, once) to disk and
// appends it to the rewritten playlist.
func (d *RawDumper) Dump(seg *FetchedSegment) error {
	if seg.InitSection != nil && d.initName == "" {
		d.initName = "init.mp4"
		if err := os.WriteFile(filepath.Join(d.dir, d.initName), seg.InitSection, 0o644); err != nil {
			return err
		}
		d.init = seg.InitSection
	}

	name := fmt.Sprintf("%d.m4s", seg.Segment.Sequence)
	if err := os.WriteFile(filepath.Join(d.dir, name), seg.Body, 0o644); err != nil {
		return err
	}
	d.written = append(d.written, Segment{Sequence: seg.Segment.Sequence, URI: name, DurationSec: seg.Segment.DurationSec})
	return d.rewritePlaylist()
}

func (d *RawDumper) rewritePlaylist() error {
	f, err := os.Create(filepath.Join(d.dir, "index.m3u8"))
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "#EXTM3U")
	fmt.Fprintln(w, "#EXT-X-VERSION:7")
	if len(d.written) > 0 {
		fmt.Fprintf(w, "#EXT-X-MEDIA-SEQUENCE:%d\n", d.written[0].Sequence)
	}
	if d.initName != "" {
		fmt.Fprintf(w, "#EXT-X-MAP:URI=%q\n", d.initName)
	}
	for _, s := range d.written {
		fmt.Fprintf(w, "#EXTINF:%s,\n%s\n", strings.TrimRight(fmt.Sprintf("%.3f", s.DurationSec), "0"), s.URI)
	}
	return w.Flush()
}
