// Package resolver implements the stream URL resolver (C8): turns a room id
// and a set of desired stream parameters into a concrete, ranked playback
// URL, retrying across quality and format fallbacks per spec.md §4.4. A
// missing codec is returned as ErrNoStreamCodecAvailable without a retry.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/nekorec/blivec/internal/bili"
)

// Platform selects which playback API variant to call.
type Platform int

// Platforms.
const (
	PlatformWeb Platform = iota
	PlatformApp
)

// StreamParams is the input to Resolve, per spec.md §4.4.
type StreamParams struct {
	RoomID         int64
	Qn             bili.QualityNumber
	Format         string // "flv", "ts", "fmp4" — preferred format
	Codec          string // "avc", "hevc"
	Platform       Platform
	UseAlternative bool
}

// Errors surfaced by Resolve, matching spec.md §4.4's retry-policy taxonomy.
var (
	ErrNoStreamQualityAvailable = errors.New("resolver: no stream quality available")
	ErrNoStreamFormatAvailable  = errors.New("resolver: no stream format available")
	ErrNoStreamCodecAvailable   = errors.New("resolver: no stream codec available")
	ErrLiveRoomHidden           = errors.New("resolver: live room hidden")
	ErrLiveRoomLocked           = errors.New("resolver: live room locked")
	ErrLiveRoomEncrypted        = errors.New("resolver: live room encrypted")
)

// hostPreference ranks a candidate host name. Lower is more preferred.
// Configurable per spec.md §9 (the original hardcodes this); defaults below
// mirror the original's ordering.
type hostPreference struct {
	patterns []string // checked in order; first match wins
}

// DefaultHostPreference is the ordered list of preferred host substrings,
// per spec.md §9's Open Question decision: prefer gotcha04, 09, 08, 05, 07,
// then other gotcha*, then non-mcdn, demoting mcdn and overseas hosts last.
var DefaultHostPreference = []string{
	"gotcha04", "gotcha09", "gotcha08", "gotcha05", "gotcha07",
}

// Resolver resolves stream URLs for one room, caching the last URL so a
// repeated request with unchanged params can skip re-resolution if the URL
// still answers a HEAD request (spec.md §4.4 "URL reuse").
type Resolver struct {
	api            *bili.Client
	httpClient     *http.Client
	hostPreference []string

	lastParams StreamParams
	lastURL    string
	hasLast    bool
}

// New constructs a Resolver using api for playback API calls.
func New(api *bili.Client) *Resolver {
	return &Resolver{
		api:            api,
		httpClient:     &http.Client{Timeout: 3 * time.Second},
		hostPreference: append([]string{}, DefaultHostPreference...),
	}
}

// SetHostPreference overrides the host-ranking order.
func (r *Resolver) SetHostPreference(order []string) {
	r.hostPreference = order
}

// Resolve returns a playback URL for params, applying quality/format/codec
// fallback and host ranking per spec.md §4.4.
func (r *Resolver) Resolve(ctx context.Context, params StreamParams) (string, error) {
	if r.hasLast && r.lastParams == params {
		if r.probe(ctx, r.lastURL) {
			return r.lastURL, nil
		}
	}

	url, err := r.resolveWithFallback(ctx, params)
	if err != nil {
		return "", err
	}
	r.lastParams = params
	r.lastURL = url
	r.hasLast = true
	return url, nil
}

// formatFallbackOrder is tried in sequence when NoStreamFormatAvailable is
// returned, per spec.md §4.4: "fall back fmp4→ts→flv".
var formatFallbackOrder = []string{"fmp4", "ts", "flv"}

func (r *Resolver) resolveWithFallback(ctx context.Context, params StreamParams) (string, error) {
	if err := r.checkRoomState(ctx, params.RoomID); err != nil {
		return "", err
	}

	qn := params.Qn
	formatIdx := indexOf(formatFallbackOrder, params.Format)
	if formatIdx < 0 {
		formatIdx = 0
	}

	for {
		info, err := r.fetchPlayInfo(ctx, params.RoomID, qn, params.Platform)
		if err != nil {
			return "", err
		}

		format := params.Format
		if formatIdx >= 0 && formatIdx < len(formatFallbackOrder) {
			format = formatFallbackOrder[formatIdx]
		}

		url, rerr := r.selectURL(info, format, params.Codec, qn, params.UseAlternative)
		switch {
		case rerr == nil:
			return url, nil
		case errors.Is(rerr, ErrNoStreamQualityAvailable):
			if qn == 10000 {
				return "", rerr
			}
			qn = 10000
			continue
		case errors.Is(rerr, ErrNoStreamFormatAvailable):
			formatIdx++
			if formatIdx >= len(formatFallbackOrder) {
				return "", rerr
			}
			continue
		default:
			return "", rerr
		}
	}
}

// checkRoomState rejects hidden/locked/unverified-encrypted rooms before any
// play-info fetch, per spec.md §4.8's recorder-edge error taxonomy (these
// conditions stop the recorder rather than triggering a retry).
func (r *Resolver) checkRoomState(ctx context.Context, roomID int64) error {
	info, err := r.api.RoomInit(ctx, roomID)
	if err != nil {
		return err
	}
	switch {
	case info.IsHidden:
		return ErrLiveRoomHidden
	case info.IsLocked:
		return ErrLiveRoomLocked
	case info.Encrypted && !info.PwdVerified:
		return ErrLiveRoomEncrypted
	}
	return nil
}

func (r *Resolver) fetchPlayInfo(ctx context.Context, roomID int64, qn bili.QualityNumber, platform Platform) (*bili.PlayInfo, error) {
	if platform == PlatformApp {
		return r.api.GetRoomPlayInfoApp(ctx, roomID, qn)
	}
	return r.api.GetRoomPlayInfoWeb(ctx, roomID, qn)
}

// selectURL filters info's streams by format and codec, validates qn
// membership, and ranks candidate hosts.
func (r *Resolver) selectURL(info *bili.PlayInfo, format, codec string, qn bili.QualityNumber, useAlternative bool) (string, error) {
	var matches []bili.StreamVariant
	for _, v := range info.Streams {
		if !strings.EqualFold(v.Format, format) {
			continue
		}
		if codec != "" && !strings.EqualFold(v.Codec, codec) {
			continue
		}
		matches = append(matches, v)
	}
	if len(matches) == 0 {
		return "", ErrNoStreamFormatAvailable
	}

	for _, v := range matches {
		if !acceptsQn(v.AcceptQn, int(qn)) || v.CurrentQn != int(qn) {
			return "", ErrNoStreamQualityAvailable
		}
	}

	variant := matches[0]
	if len(variant.Hosts) == 0 {
		return "", ErrNoStreamCodecAvailable
	}

	hosts := append([]bili.StreamHost{}, variant.Hosts...)
	sort.SliceStable(hosts, func(i, j int) bool {
		return r.rank(hosts[i].Host) < r.rank(hosts[j].Host)
	})

	idx := 0
	if useAlternative && len(hosts) > 1 {
		idx = 1
	}
	host := hosts[idx]
	return fmt.Sprintf("https://%s%s%s", host.Host, variant.BaseURL, variant.Extra), nil
}

// rank scores a host name: lower is better. Matches in hostPreference rank
// first in order; anything else not matching "mcdn" or "ov" (overseas)
// substrings ranks next; mcdn/overseas hosts rank worst.
func (r *Resolver) rank(host string) int {
	for i, pattern := range r.hostPreference {
		if strings.Contains(host, pattern) {
			return i
		}
	}
	base := len(r.hostPreference)
	if strings.Contains(host, "gotcha") {
		return base
	}
	if strings.Contains(host, "mcdn") || strings.Contains(host, "-ov-") {
		return base + 2
	}
	return base + 1
}

func (r *Resolver) probe(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 400
}

func acceptsQn(accept []int, qn int) bool {
	for _, q := range accept {
		if q == qn {
			return true
		}
	}
	return false
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if strings.EqualFold(x, v) {
			return i
		}
	}
	return -1
}
