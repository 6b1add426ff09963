package notify

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/nekorec/blivec/internal/events"
)

// liveInfoContent renders the room snapshot carried by a live-began/ended
// event, matching blrec's notification/message.py live_info_template.
func liveInfoContent(data events.LiveStatusData) string {
	return fmt.Sprintf("主播: %s\n\n标题: %s\n\n分区: %s\n\n房间: %d\n",
		data.Uname, data.Title, data.Area, data.RoomID)
}

// diskUsageContent renders a disk-space event, matching blrec's
// disk_usage_template. Byte counts are rendered human-readable the way
// blrec's humanize.naturalsize does.
func diskUsageContent(data events.SpaceNoEnoughData) string {
	return fmt.Sprintf("路径: %s\n\n阈值: %s\n\n硬盘容量: %s\n\n已用空间: %s\n\n可用空间: %s\n",
		data.Path,
		humanize.IBytes(uint64(data.ThresholdBytes)),
		humanize.IBytes(data.Usage.Total),
		humanize.IBytes(data.Usage.Used),
		humanize.IBytes(data.Usage.Free),
	)
}

// exceptionContent renders a swallowed error, matching blrec's
// exception_template.
func exceptionContent(err error) string {
	return fmt.Sprintf("异常信息：\n\n%s\n", err.Error())
}
