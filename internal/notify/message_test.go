package notify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nekorec/blivec/internal/diskspace"
	"github.com/nekorec/blivec/internal/events"
)

func TestLiveInfoContentIncludesRoomFields(t *testing.T) {
	content := liveInfoContent(events.LiveStatusData{RoomID: 123, Uname: "alice", Title: "hello", Area: "games"})
	require.Contains(t, content, "alice")
	require.Contains(t, content, "hello")
	require.Contains(t, content, "123")
}

func TestDiskUsageContentHumanizesBytes(t *testing.T) {
	content := diskUsageContent(events.SpaceNoEnoughData{
		Path: "/data", ThresholdBytes: 1 << 30,
		Usage: diskspace.Usage{Total: 100 << 30, Used: 90 << 30, Free: 10 << 30},
	})
	require.Contains(t, content, "/data")
	require.Contains(t, content, "GiB")
}

func TestExceptionContentIncludesErrorMessage(t *testing.T) {
	require.Contains(t, exceptionContent(errors.New("boom")), "boom")
}
