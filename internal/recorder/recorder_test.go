package recorder

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nekorec/blivec/internal/bili/resolver"
	"github.com/nekorec/blivec/internal/events"
)

func TestClassifyErrorStopsOnRoomState(t *testing.T) {
	require.Equal(t, actionStop, classifyError(resolver.ErrLiveRoomHidden))
	require.Equal(t, actionStop, classifyError(resolver.ErrLiveRoomLocked))
	require.Equal(t, actionStop, classifyError(resolver.ErrLiveRoomEncrypted))
	require.Equal(t, actionStop, classifyError(errENOSPC))
}

func TestClassifyErrorRetriesOnOther(t *testing.T) {
	require.Equal(t, actionRetry, classifyError(errors.New("transient")))
	require.Equal(t, actionRetry, classifyError(resolver.ErrNoStreamQualityAvailable))
}

func TestDisconnectionMonitorEmitsInterruptedOnce(t *testing.T) {
	emitter := events.NewEmitter[Listener]()
	interruptedCount := 0
	emitter.AddListener(Listener{OnStreamRecordingInterrupted: func(int64) { interruptedCount++ }})

	m := newDisconnectionMonitor(50*time.Millisecond, emitter)
	require.True(t, m.recordFailure())
	require.True(t, m.recordFailure())
	require.Equal(t, 1, interruptedCount)
}

func TestDisconnectionMonitorExpiresAfterTimeout(t *testing.T) {
	emitter := events.NewEmitter[Listener]()
	m := newDisconnectionMonitor(10*time.Millisecond, emitter)
	m.recordFailure()
	time.Sleep(20 * time.Millisecond)
	require.False(t, m.recordFailure())
}

func TestDisconnectionMonitorRecoveryEmits(t *testing.T) {
	emitter := events.NewEmitter[Listener]()
	recovered := false
	emitter.AddListener(Listener{OnStreamRecordingRecovered: func(int64) { recovered = true }})

	m := newDisconnectionMonitor(time.Second, emitter)
	m.recordFailure()
	m.recordRecovery()
	require.True(t, recovered)
}

func TestIsHTTPForbiddenOrNotFound(t *testing.T) {
	require.True(t, isHTTPForbiddenOrNotFound(&httpStatusError{status: 403}))
	require.True(t, isHTTPForbiddenOrNotFound(&httpStatusError{status: 404}))
	require.False(t, isHTTPForbiddenOrNotFound(errors.New("other")))
}
