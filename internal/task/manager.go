package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/nekorec/blivec/internal/bili"
	"github.com/nekorec/blivec/internal/config"
)

// NotFoundError is returned by Manager methods given an unknown room id.
type NotFoundError struct {
	RoomID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task: no task for room %d", e.RoomID)
}

// Manager owns every configured room's Task, keyed by room id. Grounded on
// blrec `task/task_manager.py`.
type Manager struct {
	api *bili.Client

	mu    sync.RWMutex
	tasks map[int64]*Task

	ffmpegPath string
}

// NewManager constructs an empty Manager. api is shared across every task it
// creates.
func NewManager(api *bili.Client, ffmpegPath string) *Manager {
	return &Manager{api: api, tasks: make(map[int64]*Task), ffmpegPath: ffmpegPath}
}

// LoadAll constructs and sets up a task for each configured room, applying
// its settings and enabling monitor/recorder per its flags.
func (m *Manager) LoadAll(ctx context.Context, tasks []config.TaskConfig) error {
	for _, tc := range tasks {
		if err := m.AddTask(ctx, tc); err != nil {
			return fmt.Errorf("task: load room %d: %w", tc.RoomID, err)
		}
	}
	return nil
}

// DestroyAll disables and tears down every task, clearing the set.
func (m *Manager) DestroyAll() {
	m.mu.Lock()
	tasks := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}
	m.tasks = make(map[int64]*Task)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, t := range tasks {
		wg.Add(1)
		go func(t *Task) {
			defer wg.Done()
			t.DisableRecorder(true)
			t.DisableMonitor()
			t.Destroy()
		}(t)
	}
	wg.Wait()
}

// HasTask reports whether a task for roomID exists.
func (m *Manager) HasTask(roomID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tasks[roomID]
	return ok
}

// AddTask constructs, sets up, and registers a task for the room named by
// cfg, then enables monitor/recorder as cfg.MonitorEnabled/RecorderEnabled
// direct. Every settings section of cfg is stored on the task before Setup
// runs; the header section is not applied to the shared bili.Client.
func (m *Manager) AddTask(ctx context.Context, cfg config.TaskConfig) error {
	settings := settingsFromConfig(cfg)
	t := New(m.api, cfg.RoomID, settings, m.ffmpegPath)

	m.mu.Lock()
	m.tasks[cfg.RoomID] = t
	m.mu.Unlock()

	if err := t.Setup(ctx); err != nil {
		m.mu.Lock()
		delete(m.tasks, cfg.RoomID)
		m.mu.Unlock()
		return err
	}

	if cfg.MonitorEnabled {
		if err := t.EnableMonitor(ctx); err != nil {
			return err
		}
	}
	if cfg.RecorderEnabled {
		t.EnableRecorder()
	}
	return nil
}

func settingsFromConfig(cfg config.TaskConfig) Settings {
	s := Settings{}
	if cfg.Header != nil {
		s.Header = *cfg.Header
	}
	if cfg.Output != nil {
		s.Output = *cfg.Output
	}
	if cfg.Danmaku != nil {
		s.Danmaku = *cfg.Danmaku
	}
	if cfg.Recorder != nil {
		s.Recorder = *cfg.Recorder
	}
	if cfg.Postprocess != nil {
		s.Postprocess = *cfg.Postprocess
	}
	return s
}

// RemoveTask forcibly disables and removes roomID's task.
func (m *Manager) RemoveTask(roomID int64) error {
	t, err := m.get(roomID)
	if err != nil {
		return err
	}
	t.DisableRecorder(true)
	t.DisableMonitor()
	t.Destroy()

	m.mu.Lock()
	delete(m.tasks, roomID)
	m.mu.Unlock()
	return nil
}

// StartTask refreshes room info then enables monitor and recorder.
func (m *Manager) StartTask(ctx context.Context, roomID int64) error {
	t, err := m.get(roomID)
	if err != nil {
		return err
	}
	if err := t.UpdateInfo(ctx); err != nil {
		return err
	}
	if err := t.EnableMonitor(ctx); err != nil {
		return err
	}
	t.EnableRecorder()
	return nil
}

// StopTask disables recorder then monitor.
func (m *Manager) StopTask(roomID int64, force bool) error {
	t, err := m.get(roomID)
	if err != nil {
		return err
	}
	t.DisableRecorder(force)
	t.DisableMonitor()
	return nil
}

// StartAllTasks starts every registered task.
func (m *Manager) StartAllTasks(ctx context.Context) error {
	return m.forEach(func(t *Task) error {
		if err := t.UpdateInfo(ctx); err != nil {
			return err
		}
		if err := t.EnableMonitor(ctx); err != nil {
			return err
		}
		t.EnableRecorder()
		return nil
	})
}

// StopAllTasks stops every registered task.
func (m *Manager) StopAllTasks(force bool) {
	_ = m.forEach(func(t *Task) error {
		t.DisableRecorder(force)
		t.DisableMonitor()
		return nil
	})
}

// EnableTaskMonitor enables roomID's monitor.
func (m *Manager) EnableTaskMonitor(ctx context.Context, roomID int64) error {
	t, err := m.get(roomID)
	if err != nil {
		return err
	}
	return t.EnableMonitor(ctx)
}

// DisableTaskMonitor disables roomID's monitor.
func (m *Manager) DisableTaskMonitor(roomID int64) error {
	t, err := m.get(roomID)
	if err != nil {
		return err
	}
	t.DisableMonitor()
	return nil
}

// EnableTaskRecorder arms roomID's recorder.
func (m *Manager) EnableTaskRecorder(roomID int64) error {
	t, err := m.get(roomID)
	if err != nil {
		return err
	}
	t.EnableRecorder()
	return nil
}

// DisableTaskRecorder disarms roomID's recorder.
func (m *Manager) DisableTaskRecorder(roomID int64, force bool) error {
	t, err := m.get(roomID)
	if err != nil {
		return err
	}
	t.DisableRecorder(force)
	return nil
}

// CutTask requests a manual file boundary for roomID's current recording.
func (m *Manager) CutTask(roomID int64) error {
	t, err := m.get(roomID)
	if err != nil {
		return err
	}
	return t.CutStream()
}

// GetTaskStatus returns roomID's current status snapshot.
func (m *Manager) GetTaskStatus(roomID int64) (Status, error) {
	t, err := m.get(roomID)
	if err != nil {
		return Status{}, err
	}
	if !t.Ready() {
		return Status{}, fmt.Errorf("task: room %d is not ready yet", roomID)
	}
	return t.Status(), nil
}

// ListTaskStatuses returns a status snapshot for every ready task.
func (m *Manager) ListTaskStatuses() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Status, 0, len(m.tasks))
	for _, t := range m.tasks {
		if t.Ready() {
			out = append(out, t.Status())
		}
	}
	return out
}

// UpdateTaskInfo refreshes roomID's cached room info.
func (m *Manager) UpdateTaskInfo(ctx context.Context, roomID int64) error {
	t, err := m.get(roomID)
	if err != nil {
		return err
	}
	return t.UpdateInfo(ctx)
}

// ApplyHeaderSettings stores header in roomID's settings. It does not
// rebuild or modify the shared bili.Client, so requests keep the user-agent
// and cookie the client was constructed with.
func (m *Manager) ApplyHeaderSettings(roomID int64, header config.HeaderConfig) error {
	t, err := m.get(roomID)
	if err != nil {
		return err
	}
	t.ApplyHeaderSettings(header)
	return nil
}

// ApplyOutputSettings updates roomID's output settings.
func (m *Manager) ApplyOutputSettings(roomID int64, settings config.OutputConfig) error {
	t, err := m.get(roomID)
	if err != nil {
		return err
	}
	t.ApplyOutputSettings(settings)
	return nil
}

// ApplyDanmakuSettings updates roomID's danmaku settings.
func (m *Manager) ApplyDanmakuSettings(roomID int64, settings config.DanmakuConfig) error {
	t, err := m.get(roomID)
	if err != nil {
		return err
	}
	t.ApplyDanmakuSettings(settings)
	return nil
}

// ApplyRecorderSettings updates roomID's recorder settings.
func (m *Manager) ApplyRecorderSettings(roomID int64, settings config.RecorderConfig) error {
	t, err := m.get(roomID)
	if err != nil {
		return err
	}
	t.ApplyRecorderSettings(settings)
	return nil
}

// ApplyPostprocessSettings updates roomID's postprocessing settings.
func (m *Manager) ApplyPostprocessSettings(roomID int64, settings config.PostprocessConfig) error {
	t, err := m.get(roomID)
	if err != nil {
		return err
	}
	t.ApplyPostprocessSettings(settings)
	return nil
}

// GetTaskSettings returns roomID's currently-applied settings snapshot.
func (m *Manager) GetTaskSettings(roomID int64) (Settings, error) {
	t, err := m.get(roomID)
	if err != nil {
		return Settings{}, err
	}
	return t.SettingsSnapshot(), nil
}

func (m *Manager) get(roomID int64) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[roomID]
	if !ok {
		return nil, &NotFoundError{RoomID: roomID}
	}
	return t, nil
}

func (m *Manager) forEach(fn func(*Task) error) error {
	m.mu.RLock()
	tasks := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}
	m.mu.RUnlock()

	var firstErr error
	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, t := range tasks {
		wg.Add(1)
		go func(t *Task) {
			defer wg.Done()
			if err := fn(t); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(t)
	}
	wg.Wait()
	return firstErr
}
