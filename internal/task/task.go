// Package task implements the per-room task supervisor (C11/C12): one Task
// owns a room's chat client, live-status monitor, stream recorder, and
// postprocessor, independently togglable via enable/disable monitor and
// recorder. Manager owns the full set of tasks keyed by room id and applies
// hot settings changes to them. Grounded on blrec `task/task.py` and
// `task/task_manager.py`.
package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nekorec/blivec/internal/bili"
	"github.com/nekorec/blivec/internal/bili/livemonitor"
	"github.com/nekorec/blivec/internal/bili/resolver"
	"github.com/nekorec/blivec/internal/chat"
	"github.com/nekorec/blivec/internal/config"
	"github.com/nekorec/blivec/internal/events"
	"github.com/nekorec/blivec/internal/postprocess"
	"github.com/nekorec/blivec/internal/recorder"
)

// RunningStatus mirrors blrec's RunningStatus enum (spec.md §5 Task status).
type RunningStatus string

// Statuses.
const (
	StatusStopped   RunningStatus = "stopped"
	StatusWaiting   RunningStatus = "waiting"
	StatusRecording RunningStatus = "recording"
	StatusRemuxing  RunningStatus = "remuxing"
	StatusInjecting RunningStatus = "injecting"
)

// Status is a snapshot of one task's current state, for the admin surface.
type Status struct {
	RoomID          int64
	MonitorEnabled  bool
	RecorderEnabled bool
	Running         RunningStatus
	RoomInfo        *bili.RoomInfo
}

// Settings is the full set of per-room settings a Task can be reconfigured
// with, matching config.TaskConfig's nested sections.
type Settings struct {
	Header      config.HeaderConfig
	Output      config.OutputConfig
	Danmaku     config.DanmakuConfig
	Recorder    config.RecorderConfig
	Postprocess config.PostprocessConfig
}

// Task owns one room's monitor/recorder/postprocess pipeline. Not safe for
// concurrent Setup/Destroy, but the enable/disable/setter methods may be
// called concurrently with each other once set up.
type Task struct {
	roomID int64
	api    *bili.Client

	mu       sync.Mutex
	settings Settings
	roomInfo *bili.RoomInfo

	ready           atomic.Bool
	monitorEnabled  atomic.Bool
	recorderEnabled atomic.Bool
	recording       atomic.Bool
	postprocessing  atomic.Value // holds postprocess.Status, or "" when idle

	resolver   *resolver.Resolver
	chatClient *chat.Client
	monitor    *livemonitor.Monitor
	rec        *recorder.Recorder

	ffmpegPath string

	runCtx    context.Context
	runCancel context.CancelFunc
}

// New constructs a Task for roomID. Call Setup before enabling anything.
func New(api *bili.Client, roomID int64, settings Settings, ffmpegPath string) *Task {
	t := &Task{roomID: roomID, api: api, settings: settings, ffmpegPath: ffmpegPath}
	t.postprocessing.Store(postprocess.Status(""))
	return t
}

// RoomID returns the task's room id.
func (t *Task) RoomID() int64 { return t.roomID }

// Ready reports whether Setup has completed.
func (t *Task) Ready() bool { return t.ready.Load() }

// Setup resolves the real room id, fetches initial room info, and builds the
// chat client, live monitor, resolver, and recorder, wiring their listeners
// together. It does not enable monitoring or recording.
func (t *Task) Setup(ctx context.Context) error {
	realID, err := t.api.EnsureRoomID(ctx, t.roomID)
	if err != nil {
		return fmt.Errorf("task: resolve room id: %w", err)
	}

	info, err := t.api.GetInfoByRoom(ctx, realID)
	if err != nil {
		return fmt.Errorf("task: fetch room info: %w", err)
	}

	t.mu.Lock()
	t.roomInfo = info
	t.mu.Unlock()

	t.resolver = resolver.New(t.api)
	t.chatClient = chat.NewClient(t.api, realID, 0, "")
	t.monitor = livemonitor.New(t.api, realID)
	t.monitor.Init(info)

	t.rec = recorder.New(t.api, t.resolver, t.roomContext(), t.recorderOptions())

	// Listeners run for as long as the task exists, independent of however
	// long the caller's Setup context lives, so they get their own
	// long-lived, Destroy-cancelled context rather than reusing ctx.
	t.runCtx, t.runCancel = context.WithCancel(context.Background())
	t.wireListeners(t.runCtx)

	t.ready.Store(true)
	return nil
}

// Destroy tears down the chat client, recorder, and monitor. The caller must
// disable monitor and recorder first.
func (t *Task) Destroy() {
	if t.runCancel != nil {
		t.runCancel()
	}
	t.chatClient = nil
	t.monitor = nil
	t.rec = nil
	t.resolver = nil
	t.ready.Store(false)
}

func (t *Task) roomContext() recorder.RoomContext {
	t.mu.Lock()
	defer t.mu.Unlock()
	ctx := recorder.RoomContext{RoomID: t.roomID}
	if t.roomInfo != nil {
		ctx.UserName = t.roomInfo.Uname
		ctx.Title = t.roomInfo.Title
		ctx.Area = t.roomInfo.Area
		ctx.ParentArea = t.roomInfo.ParentArea
	}
	return ctx
}

// liveStatusData snapshots the room info needed by a notifier for a
// live-began/live-ended event, per blrec's LiveBeganEvent/LiveEndedEvent
// payloads.
func (t *Task) liveStatusData() events.LiveStatusData {
	t.mu.Lock()
	defer t.mu.Unlock()
	data := events.LiveStatusData{RoomID: t.roomID}
	if t.roomInfo != nil {
		data.Uname = t.roomInfo.Uname
		data.Title = t.roomInfo.Title
		data.Area = t.roomInfo.Area
	}
	return data
}

func (t *Task) recorderOptions() recorder.Options {
	t.mu.Lock()
	defer t.mu.Unlock()
	return recorder.Options{
		OutDir:               t.settings.Output.Dir,
		PathTemplate:         t.settings.Output.PathTemplate,
		Quality:              bili.QualityNumber(t.settings.Recorder.Quality),
		DisconnectionTimeout: t.settings.Recorder.DisconnectionTimeout.Duration(),
		FilesizeLimit:        t.settings.Recorder.FilesizeLimit.Bytes(),
		DurationLimitMS:      t.settings.Recorder.DurationLimit.Duration().Milliseconds(),
		FFmpegPath:           t.ffmpegPath,
	}
}

// wireListeners connects chat -> monitor and monitor -> recorder start/stop,
// and the recorder's video-file-completed sub-event to the postprocessor,
// matching how blrec's LiveMonitor/Recorder/Postprocessor are chained by
// RecordTask's private _setup_* methods.
func (t *Task) wireListeners(ctx context.Context) {
	t.chatClient.AddListener(chat.Listener{
		OnDanmaku: func(msg json.RawMessage) { t.monitor.HandleDanmaku(ctx, msg) },
		OnReconnected: func() {
			go t.monitor.HandleReconnect(ctx)
		},
	})

	t.monitor.AddListener(livemonitor.Listener{
		OnBegan: func() {
			events.Events().Publish(events.LiveBeganEvent{Data: t.liveStatusData()})
		},
		OnStreamAvailable: func() {
			if t.recorderEnabled.Load() {
				t.recording.Store(true)
				t.rec.Start(ctx)
			}
		},
		OnEnded: func() {
			t.recording.Store(false)
			t.rec.Stop()
			events.Events().Publish(events.LiveEndedEvent{Data: t.liveStatusData()})
		},
		OnRoomChanged: func(info *bili.RoomInfo) {
			t.mu.Lock()
			t.roomInfo = info
			t.mu.Unlock()
			events.Events().Publish(events.RoomChangeEvent{Data: events.RoomChangeData{
				RoomID: t.roomID, Title: info.Title, Area: info.Area,
			}})
		},
	})

	t.rec.AddListener(recorder.Listener{
		OnVideoFileCompleted: func(path string) {
			t.postprocessing.Store(postprocess.StatusWaiting)
			events.Events().Publish(events.FileCompletedEvent{Data: events.FileCompletedData{
				RoomID: t.roomID, Path: path,
			}})
			go t.postprocess(ctx, path)
		},
	})
}

func (t *Task) postprocess(ctx context.Context, flvPath string) {
	t.mu.Lock()
	opts := postprocess.Options{
		RemuxToMP4:     t.settings.Postprocess.RemuxToMP4,
		DeleteStrategy: deleteStrategy(t.settings.Postprocess.DeletePolicy),
		FFmpegPath:     t.ffmpegPath,
	}
	t.mu.Unlock()

	if opts.RemuxToMP4 {
		t.postprocessing.Store(postprocess.StatusRemuxing)
	} else {
		t.postprocessing.Store(postprocess.StatusInjecting)
	}
	postprocess.Process(ctx, flvPath, "", postprocess.Metadata{}, opts)
	t.postprocessing.Store(postprocess.Status(""))
}

// EnableMonitor starts the chat client and live monitor. The chat client's
// background loops run on the task's own long-lived context rather than
// ctx, so they keep going after this call returns.
func (t *Task) EnableMonitor(ctx context.Context) error {
	if !t.monitorEnabled.CompareAndSwap(false, true) {
		return nil
	}
	if err := t.chatClient.Start(t.runCtx); err != nil {
		t.monitorEnabled.Store(false)
		return err
	}
	return nil
}

// DisableMonitor stops the chat client.
func (t *Task) DisableMonitor() {
	if !t.monitorEnabled.CompareAndSwap(true, false) {
		return
	}
	t.chatClient.Stop()
}

// EnableRecorder arms the recorder so the next stream-available transition
// starts recording. If the room is already live at the moment of enabling,
// recording starts immediately rather than waiting for a transition that
// has already happened and may not recur for hours.
func (t *Task) EnableRecorder() {
	if !t.recorderEnabled.CompareAndSwap(false, true) {
		return
	}
	if t.monitor.Status() == livemonitor.Live {
		t.recording.Store(true)
		t.rec.Start(t.runCtx)
	}
}

// DisableRecorder disarms the recorder and, if a recording is in progress,
// stops it. force is accepted for parity with the admin surface's stop
// semantics (spec.md §5); a forced stop happens no differently here since
// Recorder.Stop already bounds its own join with StopJoinTimeout.
func (t *Task) DisableRecorder(force bool) {
	if !t.recorderEnabled.CompareAndSwap(true, false) {
		return
	}
	if t.recording.Load() {
		t.rec.Stop()
		t.recording.Store(false)
	}
}

// CutStream requests a manual file boundary at the next keyframe, if a
// recording is currently in progress.
func (t *Task) CutStream() error {
	if !t.recording.Load() {
		return fmt.Errorf("task: room %d is not currently recording", t.roomID)
	}
	t.rec.CutStream()
	return nil
}

// UpdateInfo refreshes the cached room info.
func (t *Task) UpdateInfo(ctx context.Context) error {
	info, err := t.api.GetInfoByRoom(ctx, t.roomID)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.roomInfo = info
	t.mu.Unlock()
	return nil
}

// ApplyHeaderSettings stores header as the task's header section. The
// task's bili.Client is not changed: requests keep the user-agent and cookie
// the client was constructed with.
func (t *Task) ApplyHeaderSettings(header config.HeaderConfig) {
	t.mu.Lock()
	t.settings.Header = header
	t.mu.Unlock()
}

// ApplyOutputSettings stores the output directory/template settings. The
// recorder built in Setup keeps the options it was given then, so later
// recording sessions do not pick up the new values.
func (t *Task) ApplyOutputSettings(output config.OutputConfig) {
	t.mu.Lock()
	t.settings.Output = output
	t.mu.Unlock()
}

// ApplyDanmakuSettings stores the danmaku settings; nothing in the task
// reads them.
func (t *Task) ApplyDanmakuSettings(d config.DanmakuConfig) {
	t.mu.Lock()
	t.settings.Danmaku = d
	t.mu.Unlock()
}

// ApplyRecorderSettings stores the recorder settings. The recorder built in
// Setup keeps the options it was given then, so later recording sessions do
// not pick up the new values.
func (t *Task) ApplyRecorderSettings(r config.RecorderConfig) {
	t.mu.Lock()
	t.settings.Recorder = r
	t.mu.Unlock()
}

// ApplyPostprocessSettings updates the postprocessing configuration used by
// the next file produced.
func (t *Task) ApplyPostprocessSettings(p config.PostprocessConfig) {
	t.mu.Lock()
	t.settings.Postprocess = p
	t.mu.Unlock()
}

// SettingsSnapshot returns a copy of the task's currently-applied settings.
func (t *Task) SettingsSnapshot() Settings {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.settings
}

// Status reports the task's current snapshot for the admin surface.
func (t *Task) Status() Status {
	t.mu.Lock()
	info := t.roomInfo
	t.mu.Unlock()

	return Status{
		RoomID:          t.roomID,
		MonitorEnabled:  t.monitorEnabled.Load(),
		RecorderEnabled: t.recorderEnabled.Load(),
		Running:         t.runningStatus(),
		RoomInfo:        info,
	}
}

// deleteStrategy maps the config's three-way delete_policy ("auto", "safe",
// "never") onto postprocess's two-way strategy: only "auto" deletes, the
// more conservative "safe" setting is treated like "never" since this
// recorder has no separate watchdog to verify the delete was truly safe.
func deleteStrategy(policy string) postprocess.DeleteStrategy {
	if policy == "auto" {
		return postprocess.DeleteAuto
	}
	return postprocess.DeleteNever
}

func (t *Task) runningStatus() RunningStatus {
	if !t.monitorEnabled.Load() && !t.recorderEnabled.Load() {
		return StatusStopped
	}
	if t.recording.Load() {
		return StatusRecording
	}
	switch t.postprocessing.Load().(postprocess.Status) {
	case postprocess.StatusRemuxing:
		return StatusRemuxing
	case postprocess.StatusInjecting:
		return StatusInjecting
	}
	return StatusWaiting
}
