// Package recorder implements the per-room stream recorder (C9): resolves a
// playback URL, streams it through the C6 FLV operator chain, and recovers
// from transient disconnections by polling reachability. Grounded on blrec
// `core/stream_recorder.py`, `core/stream_recorder_impl.py`, and
// `core/operators/connection_error_handler.py`.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nekorec/blivec/internal/bili"
	"github.com/nekorec/blivec/internal/bili/resolver"
	"github.com/nekorec/blivec/internal/events"
	"github.com/nekorec/blivec/internal/flv"
	"github.com/nekorec/blivec/internal/flv/operators"
	"github.com/nekorec/blivec/internal/pathtemplate"
)

// Defaults per spec.md §4.8 and blrec's ConnectionErrorHandler.
const (
	DefaultReadTimeout         = 3 * time.Second
	DefaultDisconnectionTimeout = 600 * time.Second
	ReachabilityPollInterval   = 3 * time.Second
	StopJoinTimeout            = 30 * time.Second
)

// Format selects the acquisition pipeline.
type Format int

// Formats.
const (
	FormatFLV Format = iota
	FormatHLSRaw
	FormatHLSRemux
)

// RoomContext carries the fields a recording session needs to build output
// paths and embed metadata (spec.md §4.8's `_make_metadata`).
type RoomContext struct {
	RoomID     int64
	UserName   string
	Title      string
	Area       string
	ParentArea string
}

// Options configures a Recorder.
type Options struct {
	OutDir         string
	PathTemplate   string
	Format         Format
	Quality        bili.QualityNumber
	ReadTimeout    time.Duration
	DisconnectionTimeout time.Duration
	FilesizeLimit  int64
	DurationLimitMS int64
	FFmpegPath     string
	ProbePath      string
	Headers        http.Header
}

// Listener receives the recorder's sub-events (spec.md §4.8).
type Listener struct {
	OnVideoFileCreated           func(path string, recordStartTS int64)
	OnVideoFileCompleted         func(path string)
	OnStreamRecordingInterrupted func(durationMS int64)
	OnStreamRecordingRecovered   func(ts int64)
	OnStreamRecordingCompleted   func()
}

// Recorder owns one pipeline subscription for a room, per spec.md §4.8.
type Recorder struct {
	api      *bili.Client
	resolver *resolver.Resolver
	ctx      RoomContext
	opts     Options

	emitter *events.Emitter[Listener]
	client  *http.Client

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped atomic.Bool

	lastProductionAt atomic.Int64 // unix nanos
	joinPoints       []flv.JoinPoint

	mu       sync.Mutex
	cutStage *operators.Cut
}

// New constructs a Recorder for one room.
func New(api *bili.Client, res *resolver.Resolver, ctx RoomContext, opts Options) *Recorder {
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.DisconnectionTimeout == 0 {
		opts.DisconnectionTimeout = DefaultDisconnectionTimeout
	}
	return &Recorder{
		api:      api,
		resolver: res,
		ctx:      ctx,
		opts:     opts,
		emitter:  events.NewEmitter[Listener](),
		client:   &http.Client{Timeout: 0},
	}
}

// AddListener registers l for this recorder's sub-events.
func (r *Recorder) AddListener(l Listener) {
	r.emitter.AddListener(l)
}

// Start begins recording in the background; only valid while the room is
// live (callers gate this on C4's live-monitor status).
func (r *Recorder) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.mainLoop(runCtx)
	}()
}

// Stop sets the cancellation flag observed by the streaming loop and joins
// it with a bounded timeout, per spec.md §4.8.
func (r *Recorder) Stop() {
	r.stopped.Store(true)
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(StopJoinTimeout):
	}
}

// CutStream requests a file boundary at the next eligible keyframe of the
// current recording session (spec.md §5's manual cut operation). A no-op if
// no session is currently streaming.
func (r *Recorder) CutStream() {
	r.mu.Lock()
	stage := r.cutStage
	r.mu.Unlock()
	if stage != nil {
		stage.CutStream()
	}
}

// JoinPoints returns every join-point reported by C6's JoinPointExtractor
// since this recorder was created; the list is not reset between
// sub-streams or output files.
func (r *Recorder) JoinPoints() []flv.JoinPoint {
	return r.joinPoints
}

func (r *Recorder) mainLoop(ctx context.Context) {
	backoff := time.Second
	for !r.stopped.Load() && ctx.Err() == nil {
		err := r.streamingLoop(ctx)
		if err == nil {
			r.emitter.Emit(func(l Listener) {
				if l.OnStreamRecordingCompleted != nil {
					l.OnStreamRecordingCompleted()
				}
			})
			return
		}

		switch classifyError(err) {
		case actionStop:
			r.stopped.Store(true)
			return
		case actionRetry:
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > 60*time.Second {
				backoff = 60 * time.Second
			}
		}
	}
}

type errorAction int

const (
	actionRetry errorAction = iota
	actionStop
)

// classifyError implements spec.md §4.8's recorder-edge error taxonomy.
func classifyError(err error) errorAction {
	switch {
	case errors.Is(err, resolver.ErrLiveRoomHidden),
		errors.Is(err, resolver.ErrLiveRoomLocked),
		errors.Is(err, resolver.ErrLiveRoomEncrypted):
		return actionStop
	case errors.Is(err, errENOSPC):
		return actionStop
	default:
		return actionRetry
	}
}

var errENOSPC = errors.New("recorder: no space left on device")

func (r *Recorder) streamingLoop(ctx context.Context) error {
	url, err := r.resolveURL(ctx)
	if err != nil {
		if classifyError(err) == actionStop {
			return err
		}
		return fmt.Errorf("no stream available: %w", err)
	}

	sink, finish := r.buildChain()
	defer finish()

	monitor := newDisconnectionMonitor(r.opts.DisconnectionTimeout, r.emitter)

	for !r.stopped.Load() {
		err := r.stream(ctx, url, sink, monitor)
		if err == nil {
			// Clean EOF: the live stream's HTTP connection ended (common
			// right as a broadcast starts or stops). Reconnect to the same
			// URL rather than treating the session as finished.
			continue
		}
		if r.stopped.Load() {
			return nil
		}

		switch classifyError(err) {
		case actionStop:
			return err
		}

		if isHTTPForbiddenOrNotFound(err) {
			newURL, rerr := r.resolveURL(ctx)
			if rerr != nil {
				return rerr
			}
			url = newURL
			continue
		}

		if isFLVCorrupted(err) {
			if alt, rerr := r.resolveAlternative(ctx); rerr == nil {
				url = alt
				continue
			}
		}

		if !monitor.recordFailure() {
			return fmt.Errorf("disconnection exceeded %s", r.opts.DisconnectionTimeout)
		}
		if !r.pollReachability(ctx) {
			return fmt.Errorf("stream unreachable")
		}
		monitor.recordRecovery()
	}
	return nil
}

func (r *Recorder) resolveURL(ctx context.Context) (string, error) {
	return r.resolver.Resolve(ctx, resolver.StreamParams{
		RoomID: r.ctx.RoomID,
		Qn:     r.opts.Quality,
		Format: "flv",
		Platform: resolver.PlatformWeb,
	})
}

func (r *Recorder) resolveAlternative(ctx context.Context) (string, error) {
	return r.resolver.Resolve(ctx, resolver.StreamParams{
		RoomID:         r.ctx.RoomID,
		Qn:             r.opts.Quality,
		Format:         "flv",
		Platform:       resolver.PlatformWeb,
		UseAlternative: true,
	})
}

func (r *Recorder) stream(ctx context.Context, url string, sink operators.Sink, monitor *disconnectionMonitor) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	for k, vs := range r.opts.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound {
		return &httpStatusError{resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	countingReader := &countingReader{r: resp.Body, onRead: func(n int) {
		monitor.touch()
	}}
	err = operators.Parse(countingReader, sink, operators.EOFTerminate)
	if err != nil && isDiskFullError(err) {
		return errENOSPC
	}
	return err
}

type httpStatusError struct{ status int }

func (e *httpStatusError) Error() string { return fmt.Sprintf("recorder: http status %d", e.status) }

func isHTTPForbiddenOrNotFound(err error) bool {
	var se *httpStatusError
	return errors.As(err, &se)
}

func isFLVCorrupted(err error) bool {
	return errors.Is(err, flv.ErrDataError) || errors.Is(err, flv.ErrStreamCorrupted)
}

func isDiskFullError(err error) bool {
	return errors.Is(err, syscall.ENOSPC)
}

func (r *Recorder) pollReachability(ctx context.Context) bool {
	ticker := time.NewTicker(ReachabilityPollInterval)
	defer ticker.Stop()

	for {
		if r.reachable(ctx) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
		if r.stopped.Load() {
			return false
		}
	}
}

func (r *Recorder) reachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, "https://live.bilibili.com/", nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// buildChain assembles the full C6 FLV operator chain into a Dumper
// terminus using pathtemplate for output paths, per spec.md §4.6/§4.8.
func (r *Recorder) buildChain() (operators.Sink, func()) {
	dumper := operators.NewDumper(r.pathFor, 0,
		func(path string, ts int64) {
			r.emitter.Emit(func(l Listener) {
				if l.OnVideoFileCreated != nil {
					l.OnVideoFileCreated(path, ts)
				}
			})
		},
		func(path string) {
			r.emitter.Emit(func(l Listener) {
				if l.OnVideoFileCompleted != nil {
					l.OnVideoFileCompleted(path)
				}
			})
		},
	)

	analyser := operators.NewAnalyser(dumper)
	injector := operators.NewInjector(analyser, r.metadataProvider)
	prober := operators.NewProber(injector, r.opts.ProbePath, nil)
	jpExtractor := operators.NewJoinPointExtractor(prober, func(jp flv.JoinPoint, _ *flv.Tag) {
		r.joinPoints = append(r.joinPoints, jp)
	})
	limit := operators.NewLimit(jpExtractor, r.opts.FilesizeLimit, r.opts.DurationLimitMS)
	cut := operators.NewCut(limit)
	r.mu.Lock()
	r.cutStage = cut
	r.mu.Unlock()
	concat := operators.NewConcat(cut)
	fix := operators.NewFix(concat)
	split := operators.NewSplit(fix)
	filter := operators.NewFilter(split)
	sort := operators.NewSort(filter)
	defragment := operators.NewDefragment(sort)

	finish := func() {
		analyser.Flush()
		dumper.Close()
	}
	return defragment, finish
}

func (r *Recorder) pathFor(_ int64) (string, error) {
	return pathtemplate.Resolve(r.opts.OutDir, r.opts.PathTemplate, pathtemplate.Fields{
		RoomID:     r.ctx.RoomID,
		UserName:   r.ctx.UserName,
		Title:      r.ctx.Title,
		Area:       r.ctx.Area,
		ParentArea: r.ctx.ParentArea,
		StartTime:  time.Now(),
	})
}

func (r *Recorder) metadataProvider() map[string]any {
	return map[string]any{
		"Title":  r.ctx.Title,
		"Artist": r.ctx.UserName,
		"Date":   time.Now().Format(time.RFC3339),
	}
}

// countingReader wraps an io.Reader, invoking onRead after every successful
// Read so the disconnection monitor can observe tag-production liveness.
type countingReader struct {
	r      io.Reader
	onRead func(n int)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 && c.onRead != nil {
		c.onRead(n)
	}
	return n, err
}

// disconnectionMonitor tracks production liveness and emits interrupted /
// recovered events, per spec.md §4.8.
type disconnectionMonitor struct {
	timeout        time.Duration
	emitter        *events.Emitter[Listener]
	mu             sync.Mutex
	lastTouch      time.Time
	interruptedAt  time.Time
	interrupted    bool
}

func newDisconnectionMonitor(timeout time.Duration, emitter *events.Emitter[Listener]) *disconnectionMonitor {
	return &disconnectionMonitor{timeout: timeout, emitter: emitter, lastTouch: time.Now()}
}

func (m *disconnectionMonitor) touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTouch = time.Now()
}

// recordFailure is called when streaming errors out; it returns false once
// the configured disconnection timeout has elapsed without production,
// emitting the interrupted event on the first failure observed.
func (m *disconnectionMonitor) recordFailure() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.interrupted {
		m.interrupted = true
		m.interruptedAt = time.Now()
		durationMS := m.interruptedAt.Sub(m.lastTouch).Milliseconds()
		m.emitter.Emit(func(l Listener) {
			if l.OnStreamRecordingInterrupted != nil {
				l.OnStreamRecordingInterrupted(durationMS)
			}
		})
	}

	return time.Since(m.interruptedAt) <= m.timeout
}

func (m *disconnectionMonitor) recordRecovery() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.interrupted {
		return
	}
	m.interrupted = false
	now := time.Now()
	m.lastTouch = now
	m.emitter.Emit(func(l Listener) {
		if l.OnStreamRecordingRecovered != nil {
			l.OnStreamRecordingRecovered(now.UnixMilli())
		}
	})
}
