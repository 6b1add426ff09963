// Package operators implements the HLS operator chain (C7): playlist
// fetch/resolve, segment fetch with init-section stability checking, and
// either raw segment dumping or ffmpeg-remuxed FLV re-parsing, per spec.md
// §4.7.
package operators

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nekorec/blivec/internal/httpclient"
)

// pollInterval is how often the playlist fetcher re-fetches the current
// m3u8, per spec.md §4.7.
const pollInterval = time.Second

// Variant is one entry in a master playlist.
type Variant struct {
	Bandwidth int
	URI       string
}

// Segment is one media-playlist segment entry.
type Segment struct {
	Sequence    int
	URI         string
	DurationSec float64
	InitURI     string // from EXT-X-MAP, may repeat across segments
}

// MediaPlaylist is a parsed media playlist.
type MediaPlaylist struct {
	TargetDuration int
	MediaSequence  int
	Segments       []Segment
	Ended          bool
}

// PlaylistFetcher resolves masterURL to its highest-bandwidth media playlist
// on the first successful poll, then fetches that media playlist every
// pollInterval and emits each fetched playlist via OnPlaylist.
type PlaylistFetcher struct {
	client     *httpclient.Client
	masterURL  string
	OnPlaylist func(*MediaPlaylist)
	OnError    func(error)

	mediaURL string
}

// NewPlaylistFetcher constructs a PlaylistFetcher for masterURL.
func NewPlaylistFetcher(masterURL string) *PlaylistFetcher {
	return &PlaylistFetcher{client: httpclient.NewWithDefaults(), masterURL: masterURL}
}

// Run polls until ctx is cancelled.
func (f *PlaylistFetcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	if err := f.tick(ctx); err != nil && f.OnError != nil {
		f.OnError(err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := f.tick(ctx); err != nil && f.OnError != nil {
				f.OnError(err)
			}
		}
	}
}

func (f *PlaylistFetcher) tick(ctx context.Context) error {
	if f.mediaURL == "" {
		mediaURL, err := f.resolveHighestBandwidth(ctx)
		if err != nil {
			return err
		}
		f.mediaURL = mediaURL
	}

	body, err := f.get(ctx, f.mediaURL)
	if err != nil {
		return err
	}
	playlist, err := ParseMediaPlaylist(body)
	if err != nil {
		return err
	}
	if f.OnPlaylist != nil {
		f.OnPlaylist(playlist)
	}
	return nil
}

func (f *PlaylistFetcher) resolveHighestBandwidth(ctx context.Context) (string, error) {
	body, err := f.get(ctx, f.masterURL)
	if err != nil {
		return "", err
	}
	variants, err := ParseMasterPlaylist(body)
	if err != nil {
		return "", err
	}
	if len(variants) == 0 {
		return "", fmt.Errorf("hls: master playlist has no variants")
	}
	sort.Slice(variants, func(i, j int) bool { return variants[i].Bandwidth > variants[j].Bandwidth })
	return resolveURI(f.masterURL, variants[0].URI), nil
}

func (f *PlaylistFetcher) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)
	for {
		n, rerr := resp.Body.Read(tmp)
		buf = append(buf, tmp[:n]...)
		if rerr != nil {
			break
		}
	}
	return string(buf), nil
}

// ParseMasterPlaylist parses a #EXT-X-STREAM-INF master playlist.
func ParseMasterPlaylist(body string) ([]Variant, error) {
	lines := strings.Split(body, "\n")
	var variants []Variant
	var pendingBandwidth int
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#EXT-X-STREAM-INF:") {
			pendingBandwidth = parseAttrInt(line, "BANDWIDTH")
			continue
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		variants = append(variants, Variant{Bandwidth: pendingBandwidth, URI: line})
		pendingBandwidth = 0
	}
	return variants, nil
}

// ParseMediaPlaylist parses a media playlist's #EXTINF/#EXT-X-MAP entries.
func ParseMediaPlaylist(body string) (*MediaPlaylist, error) {
	pl := &MediaPlaylist{}
	lines := strings.Split(body, "\n")

	var pendingDuration float64
	var currentInit string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			pl.TargetDuration = parseAttrInt(":"+strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"), "")
			if v, err := strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:")); err == nil {
				pl.TargetDuration = v
			}
		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			if v, err := strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-MEDIA-SEQUENCE:")); err == nil {
				pl.MediaSequence = v
			}
		case strings.HasPrefix(line, "#EXT-X-MAP:"):
			currentInit = parseAttrString(line, "URI")
		case strings.HasPrefix(line, "#EXTINF:"):
			durStr := strings.TrimPrefix(line, "#EXTINF:")
			durStr = strings.TrimSuffix(durStr, ",")
			if idx := strings.Index(durStr, ","); idx >= 0 {
				durStr = durStr[:idx]
			}
			if d, err := strconv.ParseFloat(durStr, 64); err == nil {
				pendingDuration = d
			}
		case strings.HasPrefix(line, "#EXT-X-ENDLIST"):
			pl.Ended = true
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		default:
			seq := sequenceFromURI(line)
			pl.Segments = append(pl.Segments, Segment{
				Sequence:    seq,
				URI:         line,
				DurationSec: pendingDuration,
				InitURI:     currentInit,
			})
			pendingDuration = 0
		}
	}
	return pl, nil
}

// sequenceFromURI parses the segment's filename (without extension) as an
// integer sequence number, per spec.md §4.7's playlist resolver.
func sequenceFromURI(uri string) int {
	base := uri
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	if idx := strings.LastIndex(base, "."); idx >= 0 {
		base = base[:idx]
	}
	n, _ := strconv.Atoi(base)
	return n
}

func parseAttrInt(line, key string) int {
	v := parseAttrString(line, key)
	n, _ := strconv.Atoi(v)
	return n
}

func parseAttrString(line, key string) string {
	marker := key + "="
	idx := strings.Index(line, marker)
	if idx < 0 {
		return ""
	}
	rest := line[idx+len(marker):]
	rest = strings.TrimPrefix(rest, `"`)
	if end := strings.IndexAny(rest, `",`); end >= 0 {
		return strings.TrimSuffix(rest[:end], `"`)
	}
	return rest
}

func resolveURI(base, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	idx := strings.LastIndex(base, "/")
	if idx < 0 {
		return ref
	}
	return base[:idx+1] + ref
}
