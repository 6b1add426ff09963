package events

import "github.com/nekorec/blivec/internal/diskspace"

// LiveStatusData describes the room at the moment a live-status transition
// fired, enough for a notifier to compose a message without re-fetching room
// info. Grounded on blrec's `event/typing.py` LiveBeganEvent/LiveEndedEvent
// payloads (UserInfo+RoomInfo).
type LiveStatusData struct {
	RoomID int64
	Uname  string
	Title  string
	Area   string
}

// LiveBeganEvent is published when a room's live-status monitor (C4)
// observes the stream start.
type LiveBeganEvent struct{ Data LiveStatusData }

// LiveEndedEvent is published when the monitor observes the stream end.
type LiveEndedEvent struct{ Data LiveStatusData }

// RoomChangeData describes a room's info immediately after a ROOM_CHANGE
// danmaku command.
type RoomChangeData struct {
	RoomID int64
	Title  string
	Area   string
}

// RoomChangeEvent is published when the monitor observes a ROOM_CHANGE.
type RoomChangeEvent struct{ Data RoomChangeData }

// FileCompletedData identifies one finished output file.
type FileCompletedData struct {
	RoomID int64
	Path   string
}

// FileCompletedEvent is published when the recorder (C9) finishes one
// output file, before postprocessing.
type FileCompletedEvent struct{ Data FileCompletedData }

// SpaceNoEnoughData carries the disk-space snapshot behind a
// SpaceNoEnoughEvent, per blrec's `event/typing.py` SpaceNoEnoughEventData.
type SpaceNoEnoughData struct {
	Path           string
	ThresholdBytes int64
	Usage          diskspace.Usage
}

// SpaceNoEnoughEvent is published by the disk-space monitor (C14) whenever a
// poll finds free space at or below its configured threshold.
type SpaceNoEnoughEvent struct{ Data SpaceNoEnoughData }

// WireDiskSpace subscribes the process-wide event bus to m's space-exhaustion
// notifications, so notifiers (C15) see them the same way they see
// live-began/live-ended events. m's own listener mechanism (used by the
// reclaimer) stays independent of this; this just mirrors the same signal
// onto the shared bus for anything else that wants it.
func WireDiskSpace(m *diskspace.Monitor) {
	m.AddListener(diskspace.Listener{
		OnSpaceNotEnough: func(path string, thresholdBytes int64, usage diskspace.Usage) {
			Events().Publish(SpaceNoEnoughEvent{Data: SpaceNoEnoughData{
				Path: path, ThresholdBytes: thresholdBytes, Usage: usage,
			}})
		},
	})
}
