package bili

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	baseAPIURL       = "https://api.bilibili.com"
	baseLiveAPIURL   = "https://api.live.bilibili.com"
	appUserAgent     = "Mozilla/5.0 BiliDroid/6.64.0 (bbcallen@gmail.com) os/android model/Unknown mobi_app/android build/6640400 channel/bili innerVer/6640400 osVer/6.0 network/2"
	requestTimeout   = 5 * time.Second
	requestRetries   = 3
	requestBaseDelay = 100 * time.Millisecond
)

// QualityNumber is the numeric stream quality level (spec.md §3, §6).
type QualityNumber int

// qualityNames maps qn to its display name, grounded on blrec's
// bili/helpers.py get_quality_name.
var qualityNames = map[QualityNumber]string{
	20000: "4K",
	10000: "原画",
	401:   "蓝光(杜比)",
	400:   "蓝光",
	250:   "超清",
	150:   "高清",
	80:    "流畅",
}

// QualityName returns qn's display name, or "" if unrecognised.
func QualityName(qn QualityNumber) string {
	return qualityNames[qn]
}

// ApiError is a non-zero `code` response from the playback API.
type ApiError struct {
	Code    int
	Message string
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("bili: api error %d: %s", e.Code, e.Message)
}

// RoomNotFoundCode is the API code returned by room_init for a nonexistent
// room; Client.EnsureRoomID translates it into a NotFoundError.
const RoomNotFoundCode = 60004

// NotFoundError indicates a room id does not exist.
type NotFoundError struct {
	RoomID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("bili: room %d not found", e.RoomID)
}

// envelope is the {code, message, data} shape every playback API response
// shares.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client is the HTTP client for playback API calls, shared by every room's
// task. It is built once from the configured Cookie and User-Agent; nothing
// replaces it or changes those fields afterwards.
type Client struct {
	HTTP      *http.Client
	Cookie    string
	UserAgent string
}

// NewClient returns a Client with sane defaults for the shared HTTP session.
func NewClient(cookie, userAgent string) *Client {
	return &Client{
		HTTP:      &http.Client{Timeout: requestTimeout},
		Cookie:    cookie,
		UserAgent: userAgent,
	}
}

func (c *Client) webHeaders() http.Header {
	h := http.Header{}
	if c.UserAgent != "" {
		h.Set("User-Agent", c.UserAgent)
	} else {
		h.Set("User-Agent", "Mozilla/5.0")
	}
	if c.Cookie != "" {
		h.Set("Cookie", c.Cookie)
	}
	h.Set("Referer", "https://live.bilibili.com/")
	return h
}

func (c *Client) appHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", appUserAgent)
	h.Set("Connection", "Keep-Alive")
	h.Set("Accept-Encoding", "gzip")
	return h
}

// getJSON performs a GET with up to requestRetries attempts, exponential
// backoff, unmarshalling the {code,message,data} envelope and surfacing
// non-zero codes as *ApiError.
func (c *Client) getJSON(ctx context.Context, rawURL string, headers http.Header) (json.RawMessage, error) {
	var lastErr error
	delay := requestBaseDelay
	for attempt := 0; attempt < requestRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header = headers

		resp, err := c.HTTP.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		var env envelope
		decErr := json.NewDecoder(resp.Body).Decode(&env)
		resp.Body.Close()
		if decErr != nil {
			lastErr = decErr
			continue
		}
		if env.Code != 0 {
			return nil, &ApiError{Code: env.Code, Message: env.Message}
		}
		return env.Data, nil
	}
	return nil, fmt.Errorf("bili: request failed after %d attempts: %w", requestRetries, lastErr)
}

// RoomInitResult is the response of room_init: resolves a short room id to
// its real room id (spec.md §3 Short room id vs real room id).
type RoomInitResult struct {
	RoomID      int64 `json:"room_id"`
	ShortID     int64 `json:"short_id"`
	UID         int64 `json:"uid"`
	IsHidden    bool  `json:"is_hidden"`
	IsLocked    bool  `json:"is_locked"`
	Encrypted   bool  `json:"encrypted"`
	PwdVerified bool  `json:"pwd_verified"`
	LiveStatus  int   `json:"live_status"`
}

// RoomInit resolves roomID (the web, unsigned variant).
func (c *Client) RoomInit(ctx context.Context, roomID int64) (*RoomInitResult, error) {
	u := fmt.Sprintf("%s/room/v1/Room/room_init?id=%d", baseLiveAPIURL, roomID)
	data, err := c.getJSON(ctx, u, c.webHeaders())
	if err != nil {
		return nil, err
	}
	var result RoomInitResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// EnsureRoomID returns the real room id for roomID, translating API code
// 60004 into a *NotFoundError (spec.md §3, glossary "real room id").
func (c *Client) EnsureRoomID(ctx context.Context, roomID int64) (int64, error) {
	result, err := c.RoomInit(ctx, roomID)
	if err != nil {
		var apiErr *ApiError
		if ok := asApiError(err, &apiErr); ok && apiErr.Code == RoomNotFoundCode {
			return 0, &NotFoundError{RoomID: roomID}
		}
		return 0, err
	}
	return result.RoomID, nil
}

func asApiError(err error, target **ApiError) bool {
	if e, ok := err.(*ApiError); ok {
		*target = e
		return true
	}
	return false
}

// RoomInfo is the subset of get_info_by_room's response this recorder uses
// (spec.md §3 Live state, §4.3).
type RoomInfo struct {
	RoomID     int64  `json:"room_id"`
	ShortID    int64  `json:"short_id"`
	UID        int64  `json:"uid"`
	LiveStatus int    `json:"live_status"` // 0 preparing, 1 live, 2 round
	Title      string `json:"title"`
	Cover      string `json:"cover"`
	ParentArea string `json:"parent_area_name"`
	Area       string `json:"area_name"`
	Uname      string `json:"uname"`
}

// GetInfoByRoom fetches the current room info (web variant).
func (c *Client) GetInfoByRoom(ctx context.Context, roomID int64) (*RoomInfo, error) {
	u := fmt.Sprintf("%s/xlive/web-room/v1/index/getInfoByRoom?room_id=%d", baseLiveAPIURL, roomID)
	data, err := c.getJSON(ctx, u, c.webHeaders())
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		RoomInfo RoomInfo `json:"room_info"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, err
	}
	return &wrapper.RoomInfo, nil
}

// DanmuInfo carries the chat host list and auth token (spec.md §4.2).
type DanmuInfo struct {
	Token     string       `json:"token"`
	HostList  []DanmuHost  `json:"host_list"`
}

// DanmuHost is one candidate chat server.
type DanmuHost struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	WSPort  int    `json:"ws_port"`
	WSSPort int    `json:"wss_port"`
}

// commonDanmuInfo is the fallback used if the API call fails, grounded on
// blrec's bili/danmaku_client.py COMMON_DANMU_INFO.
var commonDanmuInfo = &DanmuInfo{
	HostList: []DanmuHost{{
		Host: "broadcastlv.chat.bilibili.com", Port: 2243, WSPort: 2244, WSSPort: 443,
	}},
}

// GetDanmuInfo fetches the chat host list and auth token for roomID.
func (c *Client) GetDanmuInfo(ctx context.Context, roomID int64) (*DanmuInfo, error) {
	u := fmt.Sprintf("%s/xlive/web-room/v1/index/getDanmuInfo?type=0&id=%d", baseLiveAPIURL, roomID)
	data, err := c.getJSON(ctx, u, c.webHeaders())
	if err != nil {
		return commonDanmuInfo, nil
	}
	var info DanmuInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return commonDanmuInfo, nil
	}
	if len(info.HostList) == 0 {
		info.HostList = commonDanmuInfo.HostList
	}
	return &info, nil
}

// PlayInfo is the subset of get_room_play_info this recorder's resolver
// consumes: one candidate stream per (format, codec) pair with a ranked host
// list (spec.md §4.4).
type PlayInfo struct {
	RoomID   int64
	Streams  []StreamVariant
}

// StreamVariant is one resolvable (format, codec, qn) combination with its
// candidate URLs.
type StreamVariant struct {
	Format    string   // flv, ts, fmp4
	Codec     string   // avc, hevc
	CurrentQn int
	AcceptQn  []int
	BaseURL   string
	Hosts     []StreamHost
	Extra     string // query string shared by all hosts
}

// StreamHost is one candidate CDN host for a stream variant.
type StreamHost struct {
	Host     string
	HostType string // e.g. gotcha04, mcdn, ...
}

// GetRoomPlayInfoWeb fetches play info via the unsigned web endpoint.
func (c *Client) GetRoomPlayInfoWeb(ctx context.Context, roomID int64, qn QualityNumber) (*PlayInfo, error) {
	params := url.Values{}
	params.Set("room_id", strconv.FormatInt(roomID, 10))
	params.Set("protocol", "0,1")
	params.Set("format", "0,1,2")
	params.Set("codec", "0,1")
	params.Set("qn", strconv.Itoa(int(qn)))
	params.Set("platform", "web")
	params.Set("ptype", "8")

	u := fmt.Sprintf("%s/xlive/web-room/v2/index/getRoomPlayInfo?%s", baseLiveAPIURL, params.Encode())
	data, err := c.getJSON(ctx, u, c.webHeaders())
	if err != nil {
		return nil, err
	}
	return parsePlayInfoResponse(roomID, data)
}

// GetRoomPlayInfoApp fetches play info via the signed Android app endpoint.
func (c *Client) GetRoomPlayInfoApp(ctx context.Context, roomID int64, qn QualityNumber) (*PlayInfo, error) {
	params := url.Values{}
	params.Set("room_id", strconv.FormatInt(roomID, 10))
	params.Set("protocol", "0,1")
	params.Set("format", "0,1,2")
	params.Set("codec", "0,1")
	params.Set("qn", strconv.Itoa(int(qn)))
	params.Set("platform", "android")
	params.Set("ts", strconv.FormatInt(time.Now().Unix(), 10))

	signed := SignAppParams(params)
	u := fmt.Sprintf("%s/xlive/app-room/v2/index/getRoomPlayInfo?%s", baseLiveAPIURL, signed.Encode())
	data, err := c.getJSON(ctx, u, c.appHeaders())
	if err != nil {
		return nil, err
	}
	return parsePlayInfoResponse(roomID, data)
}

// playInfoPayload mirrors the nested shape the real API returns; parsing it
// into StreamVariant flattens playurl_info.playurl.stream[*].format[*].codec[*]
// the way blrec's jsonpath-based extract_streams/formats/codecs do.
type playInfoPayload struct {
	PlayurlInfo struct {
		Playurl struct {
			Stream []struct {
				Format []struct {
					FormatName string `json:"format_name"`
					Codec      []struct {
						CodecName string `json:"codec_name"`
						CurrentQn int    `json:"current_qn"`
						AcceptQn  []int  `json:"accept_qn"`
						BaseURL   string `json:"base_url"`
						URLInfo   []struct {
							Host  string `json:"host"`
							Extra string `json:"extra"`
						} `json:"url_info"`
					} `json:"codec"`
				} `json:"format"`
			} `json:"stream"`
		} `json:"playurl"`
	} `json:"playurl_info"`
}

func parsePlayInfoResponse(roomID int64, data json.RawMessage) (*PlayInfo, error) {
	var payload playInfoPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	info := &PlayInfo{RoomID: roomID}
	for _, stream := range payload.PlayurlInfo.Playurl.Stream {
		for _, format := range stream.Format {
			for _, codec := range format.Codec {
				variant := StreamVariant{
					Format:    format.FormatName,
					Codec:     codec.CodecName,
					CurrentQn: codec.CurrentQn,
					AcceptQn:  codec.AcceptQn,
					BaseURL:   codec.BaseURL,
				}
				if len(codec.URLInfo) > 0 {
					variant.Extra = codec.URLInfo[0].Extra
				}
				for _, u := range codec.URLInfo {
					variant.Hosts = append(variant.Hosts, StreamHost{Host: u.Host})
				}
				info.Streams = append(info.Streams, variant)
			}
		}
	}
	return info, nil
}
