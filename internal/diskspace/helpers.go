package diskspace

import (
	"context"

	"github.com/shirou/gopsutil/v4/disk"
)

// diskUsage fetches the free/used/total snapshot for path.
func diskUsage(ctx context.Context, path string) (Usage, error) {
	stat, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return Usage{}, err
	}
	return Usage{Total: stat.Total, Free: stat.Free, Used: stat.Used}, nil
}

// IsSpaceEnough reports whether path currently has more than minFreeBytes of
// free space, per blrec's disk_space/helpers.py is_space_enough.
func IsSpaceEnough(ctx context.Context, path string, minFreeBytes int64) bool {
	usage, err := diskUsage(ctx, path)
	if err != nil {
		return false
	}
	return int64(usage.Free) > minFreeBytes
}
