package task

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nekorec/blivec/internal/bili"
	"github.com/nekorec/blivec/internal/config"
	"github.com/nekorec/blivec/internal/postprocess"
)

func newTestTask() *Task {
	return New(bili.NewClient("", ""), 123, Settings{}, "")
}

func TestDeleteStrategyMapsAutoOnly(t *testing.T) {
	require.Equal(t, postprocess.DeleteAuto, deleteStrategy("auto"))
	require.Equal(t, postprocess.DeleteNever, deleteStrategy("safe"))
	require.Equal(t, postprocess.DeleteNever, deleteStrategy("never"))
	require.Equal(t, postprocess.DeleteNever, deleteStrategy(""))
}

func TestRunningStatusStoppedWhenNeitherEnabled(t *testing.T) {
	tsk := newTestTask()
	require.Equal(t, StatusStopped, tsk.runningStatus())
}

func TestRunningStatusRecordingTakesPriority(t *testing.T) {
	tsk := newTestTask()
	tsk.monitorEnabled.Store(true)
	tsk.recording.Store(true)
	require.Equal(t, StatusRecording, tsk.runningStatus())
}

func TestRunningStatusReflectsPostprocessStage(t *testing.T) {
	tsk := newTestTask()
	tsk.recorderEnabled.Store(true)
	tsk.postprocessing.Store(postprocess.StatusRemuxing)
	require.Equal(t, StatusRemuxing, tsk.runningStatus())

	tsk.postprocessing.Store(postprocess.StatusInjecting)
	require.Equal(t, StatusInjecting, tsk.runningStatus())

	tsk.postprocessing.Store(postprocess.StatusWaiting)
	require.Equal(t, StatusWaiting, tsk.runningStatus())
}

func TestStatusReportsRoomID(t *testing.T) {
	tsk := newTestTask()
	st := tsk.Status()
	require.Equal(t, int64(123), st.RoomID)
	require.False(t, st.MonitorEnabled)
	require.False(t, st.RecorderEnabled)
}

func TestApplySettingsUpdatesStoredSection(t *testing.T) {
	tsk := newTestTask()
	tsk.ApplyRecorderSettings(config.RecorderConfig{Quality: 10000})
	require.Equal(t, 10000, tsk.settings.Recorder.Quality)

	tsk.ApplyOutputSettings(config.OutputConfig{Dir: "/tmp/out"})
	require.Equal(t, "/tmp/out", tsk.settings.Output.Dir)
}
