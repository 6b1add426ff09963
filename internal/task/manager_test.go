package task

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nekorec/blivec/internal/bili"
	"github.com/nekorec/blivec/internal/config"
)

func newTestManager() *Manager {
	return NewManager(bili.NewClient("", ""), "")
}

func TestManagerHasTaskFalseInitially(t *testing.T) {
	m := newTestManager()
	require.False(t, m.HasTask(123))
}

func TestManagerUnknownRoomReturnsNotFoundError(t *testing.T) {
	m := newTestManager()

	_, err := m.GetTaskStatus(456)
	require.Error(t, err)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, int64(456), nf.RoomID)

	require.Error(t, m.RemoveTask(456))
	require.Error(t, m.StopTask(456, false))
	require.Error(t, m.EnableTaskRecorder(456))
	require.Error(t, m.DisableTaskRecorder(456, false))
	require.Error(t, m.DisableTaskMonitor(456))
}

func TestManagerListTaskStatusesEmptyInitially(t *testing.T) {
	m := newTestManager()
	require.Empty(t, m.ListTaskStatuses())
}

func TestSettingsFromConfigCopiesNonNilSections(t *testing.T) {
	cfg := config.TaskConfig{
		RoomID: 123,
		Output: &config.OutputConfig{Dir: "/tmp/out"},
		Recorder: &config.RecorderConfig{Quality: 10000},
	}
	s := settingsFromConfig(cfg)
	require.Equal(t, "/tmp/out", s.Output.Dir)
	require.Equal(t, 10000, s.Recorder.Quality)
	require.Equal(t, config.DanmakuConfig{}, s.Danmaku)
}
