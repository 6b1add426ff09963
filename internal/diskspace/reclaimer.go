package diskspace

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// reclaimableSuffixes is the set of file extensions eligible for deletion
// when reclaiming space, per blrec's SpaceReclaimer._SUFFIX_SET.
var reclaimableSuffixes = map[string]bool{
	".flv": true, ".mp4": true, ".xml": true, ".meta": true,
}

// minFileAge matches blrec's "only delete files created 24 hours ago" rule.
const minFileAge = 24 * time.Hour

// Reclaimer listens for a Monitor's space-exhaustion events and, if
// recycling is enabled, deletes the oldest eligible recording files under
// path until enough space is free again.
type Reclaimer struct {
	monitor        *Monitor
	path           string
	recycleRecords bool
	logger         *slog.Logger

	mu         sync.Mutex
	listenerID int
	enabled    bool
}

// NewReclaimer constructs a Reclaimer bound to monitor.
func NewReclaimer(logger *slog.Logger, monitor *Monitor, path string, recycleRecords bool) *Reclaimer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reclaimer{monitor: monitor, path: path, recycleRecords: recycleRecords, logger: logger}
}

// Enable subscribes to the monitor's space-exhaustion events.
func (r *Reclaimer) Enable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enabled {
		return
	}
	r.listenerID = r.monitor.AddListener(Listener{
		OnSpaceNotEnough: func(path string, thresholdBytes int64, _ Usage) {
			r.freeSpace(context.Background(), thresholdBytes)
		},
	})
	r.enabled = true
}

// Disable unsubscribes from the monitor.
func (r *Reclaimer) Disable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return
	}
	r.monitor.RemoveListener(r.listenerID)
	r.enabled = false
}

// freeSpace deletes the oldest eligible files under r.path, oldest first,
// until thresholdBytes of free space is available or there is nothing left
// to delete, per blrec's _free_space/_free_space_from_records.
func (r *Reclaimer) freeSpace(ctx context.Context, thresholdBytes int64) bool {
	usage, err := diskUsage(ctx, r.path)
	if err != nil {
		r.logger.Warn("diskspace: failed to read usage during reclaim", slog.String("error", err.Error()))
		return false
	}
	if int64(usage.Free) > thresholdBytes {
		return true
	}
	if !r.recycleRecords {
		return false
	}
	return r.freeSpaceFromRecords(ctx, thresholdBytes)
}

func (r *Reclaimer) freeSpaceFromRecords(ctx context.Context, thresholdBytes int64) bool {
	r.logger.Info("diskspace: freeing space from records")

	maxAge := time.Now().Add(-minFileAge)
	paths, err := recordFilePaths(r.path, maxAge)
	if err != nil {
		r.logger.Warn("diskspace: failed to list record files", slog.String("error", err.Error()))
		return false
	}

	for _, p := range paths {
		deleteFile(r.logger, p)
		usage, err := diskUsage(ctx, r.path)
		if err != nil {
			continue
		}
		if int64(usage.Free) > thresholdBytes {
			return true
		}
	}
	return false
}

// recordFilePaths walks path recursively and returns every file with a
// reclaimable suffix older than maxAge, sorted oldest-first by modification
// time. Go has no portable creation-time stat, so this uses mtime in place
// of blrec's st_ctime — close enough for "don't delete a file still being
// written", which is the invariant this check actually protects.
func recordFilePaths(root string, maxAge time.Time) ([]string, error) {
	type candidate struct {
		path    string
		modTime time.Time
	}
	var candidates []candidate

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !reclaimableSuffixes[filepath.Ext(p)] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(maxAge) {
			return nil
		}
		candidates = append(candidates, candidate{path: p, modTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].modTime.Before(candidates[j].modTime) })

	paths := make([]string, len(candidates))
	for i, c := range candidates {
		paths[i] = c.path
	}
	return paths, nil
}

func deleteFile(logger *slog.Logger, path string) {
	if err := os.Remove(path); err != nil {
		logger.Error("diskspace: failed to delete file", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	logger.Info("diskspace: deleted file", slog.String("path", path))
}
