package operators

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nekorec/blivec/internal/httpclient"
)

// initStabilityWait is the gap between the two init-section fetches used to
// confirm the codec parameters have stopped changing before the segment
// fetcher commits to them, per spec.md §4.7.
const initStabilityWait = time.Second

// segmentMaxAttempts bounds retries of a single segment's title-verification
// before giving up on it.
const segmentMaxAttempts = 3

// segmentMaxBackoff caps the exponential backoff applied to timeout/protocol
// errors while fetching segments.
const segmentMaxBackoff = 60 * time.Second

// FetchedSegment is one fetched media segment, with its (possibly shared)
// init section resolved and verified.
type FetchedSegment struct {
	Segment     Segment
	InitSection []byte
	Body        []byte
}

// SegmentFetcher fetches segments named by a PlaylistFetcher/resolver,
// resolving and stabilising EXT-X-MAP init sections, and verifying each
// segment's title checksum when present.
type SegmentFetcher struct {
	client      *httpclient.Client
	baseURL     string
	lastInitURI string
	initSection []byte
}

// NewSegmentFetcher constructs a SegmentFetcher rooted at baseURL (used to
// resolve relative segment/init URIs).
func NewSegmentFetcher(baseURL string) *SegmentFetcher {
	return &SegmentFetcher{client: httpclient.NewWithDefaults(), baseURL: baseURL}
}

// Fetch retrieves seg's init section (stabilising it first if it changed
// since the last segment) and body, verifying the body's title checksum when
// the server embeds one.
func (f *SegmentFetcher) Fetch(ctx context.Context, seg Segment) (*FetchedSegment, error) {
	init, err := f.resolveInit(ctx, seg.InitURI)
	if err != nil {
		return nil, fmt.Errorf("hls: resolve init section: %w", err)
	}

	body, err := f.fetchSegmentBody(ctx, seg)
	if err != nil {
		return nil, err
	}

	return &FetchedSegment{Segment: seg, InitSection: init, Body: body}, nil
}

func (f *SegmentFetcher) resolveInit(ctx context.Context, initURI string) ([]byte, error) {
	if initURI == "" {
		return nil, nil
	}
	if initURI == f.lastInitURI && f.initSection != nil {
		return f.initSection, nil
	}

	url := resolveURI(f.baseURL, initURI)
	first, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(initStabilityWait):
	}

	second, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(first, second) {
		// Codec parameters still in flux; caller retries on the next
		// playlist tick rather than looping here.
		return nil, fmt.Errorf("hls: init section %s not yet stable", initURI)
	}

	f.lastInitURI = initURI
	f.initSection = second
	return second, nil
}

// fetchSegmentBody fetches a segment, retrying on title-checksum mismatch up
// to segmentMaxAttempts times and applying exponential backoff (capped at
// segmentMaxBackoff) on timeout/protocol errors, per spec.md §4.7.
func (f *SegmentFetcher) fetchSegmentBody(ctx context.Context, seg Segment) ([]byte, error) {
	url := resolveURI(f.baseURL, seg.URI)
	backoff := time.Second

	var lastErr error
	for attempt := 0; attempt < segmentMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > segmentMaxBackoff {
				backoff = segmentMaxBackoff
			}
		}

		body, err := f.get(ctx, url)
		if err != nil {
			lastErr = err
			continue
		}

		title, err := parseSegmentTitle(url)
		if err != nil {
			// No title metadata to verify against; accept as-is.
			return body, nil
		}
		if title.size >= 0 && int64(len(body)) != title.size {
			lastErr = fmt.Errorf("hls: segment %s size mismatch: want %d got %d", seg.URI, title.size, len(body))
			continue
		}
		if title.crc32 != "" && !verifyCRC32Hex(body, title.crc32) {
			lastErr = fmt.Errorf("hls: segment %s crc32 mismatch", seg.URI)
			continue
		}
		return body, nil
	}
	return nil, fmt.Errorf("hls: segment %s failed after %d attempts: %w", seg.URI, segmentMaxAttempts, lastErr)
}

func (f *SegmentFetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hls: unexpected status %d fetching %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}

type segmentTitle struct {
	size  int64
	crc32 string
}

// parseSegmentTitle parses a segment filename of the form
// "<hex_size>|<crc32>|..." (the bilibili HLS segment naming convention), per
// spec.md §4.7.
func parseSegmentTitle(uri string) (segmentTitle, error) {
	base := uri
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	if idx := strings.LastIndex(base, "."); idx >= 0 {
		base = base[:idx]
	}
	parts := strings.Split(base, "|")
	if len(parts) < 2 {
		return segmentTitle{}, fmt.Errorf("hls: no title metadata in %q", uri)
	}
	size, err := strconv.ParseInt(parts[0], 16, 64)
	if err != nil {
		return segmentTitle{}, fmt.Errorf("hls: invalid hex size in %q: %w", uri, err)
	}
	return segmentTitle{size: size, crc32: strings.ToLower(parts[1])}, nil
}
