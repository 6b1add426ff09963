// Package diskspace implements the disk-space monitor and reclaimer (C14):
// periodically checks free space under the output directory and, when it
// drops below a threshold, emits an event the reclaimer listens for to
// delete old recordings. Grounded on blrec `disk_space/{space_monitor,
// space_reclaimer,helpers}.py`.
package diskspace

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Usage is the free/used/total snapshot for one path, per blrec's DiskUsage.
type Usage struct {
	Total uint64
	Free  uint64
	Used  uint64
}

// Listener observes space-exhaustion events. All fields optional.
type Listener struct {
	OnSpaceNotEnough func(path string, thresholdBytes int64, usage Usage)
}

// Monitor polls path's free space on an interval and emits OnSpaceNotEnough
// whenever it drops at or below thresholdBytes.
type Monitor struct {
	path           string
	intervalSecs   int
	thresholdBytes int64
	logger         *slog.Logger

	mu        sync.Mutex
	nextID    int
	listeners map[int]Listener
	cron      *cron.Cron
	entryID   cron.EntryID
	enabled   bool
}

// New constructs a Monitor. checkIntervalSecs is in whole seconds,
// robfig/cron's smallest schedulable unit; zero or less means 60.
func New(logger *slog.Logger, path string, checkIntervalSecs int, thresholdBytes int64) *Monitor {
	if checkIntervalSecs <= 0 {
		checkIntervalSecs = 60
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		path: path, intervalSecs: checkIntervalSecs, thresholdBytes: thresholdBytes, logger: logger,
		listeners: make(map[int]Listener),
	}
}

// AddListener registers l for future events and returns a token for
// RemoveListener. Listener holds func fields and so isn't itself comparable,
// hence the token indirection (blrec's add_listener/remove_listener pair
// works because Python compares listener objects by identity instead).
func (m *Monitor) AddListener(l Listener) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.listeners[id] = l
	return id
}

// RemoveListener unregisters the listener previously returned by AddListener.
func (m *Monitor) RemoveListener(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, id)
}

// Enable checks space immediately, then schedules a recurring check every
// checkInterval seconds via robfig/cron, matching blrec's
// check-then-sleep polling loop.
func (m *Monitor) Enable(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enabled {
		return nil
	}

	m.cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	id, err := m.cron.AddFunc(fmt.Sprintf("@every %ds", m.intervalSecs), func() { m.check(ctx) })
	if err != nil {
		return fmt.Errorf("diskspace: schedule poll: %w", err)
	}
	m.entryID = id
	m.cron.Start()
	m.enabled = true

	go m.check(ctx)
	return nil
}

// Disable stops the polling schedule.
func (m *Monitor) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return
	}
	m.cron.Stop()
	m.enabled = false
}

func (m *Monitor) check(ctx context.Context) {
	usage, err := diskUsage(ctx, m.path)
	if err != nil {
		m.logger.Warn("diskspace: failed to read usage", slog.String("path", m.path), slog.String("error", err.Error()))
		return
	}

	free := int64(usage.Free)
	if free > m.thresholdBytes {
		return
	}

	m.logger.Warn("diskspace: no enough disk space left",
		slog.String("path", m.path), slog.Int64("free_bytes", free), slog.Int64("threshold_bytes", m.thresholdBytes))

	m.mu.Lock()
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()
	for _, l := range listeners {
		if l.OnSpaceNotEnough != nil {
			l.OnSpaceNotEnough(m.path, m.thresholdBytes, usage)
		}
	}
}
