// Package metrics provides counters and Prometheus collectors for hook
// activity, plus pushers that ship them out at the end of an invocation.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// 1. Internal State (Source of Truth)
var (
	changes            int64
	checkErrors        int64
	maintenanceSkips   int64
	screenshots        int64
	screenshotFailures int64
	lastRun            int64

	chMu         sync.Mutex
	channelSent  = map[string]int64{}
	channelFails = map[string]int64{}
)

const counterInc int64 = 1

// Registry holds every watchhook collector. It is separate from the default
// registry so a push carries only hook metrics.
var Registry = prometheus.NewRegistry()

// 2. Prometheus Collectors
var (
	promChanges = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "watchhook_changes_total",
			Help: "Total checks that reported a change",
		},
	)
	promCheckErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "watchhook_check_errors_total",
			Help: "Total checks that reported an error",
		},
	)
	promMaintenanceSkips = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "watchhook_maintenance_skips_total",
			Help: "Total jobs skipped during the maintenance window",
		},
	)
	promNotifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchhook_notifications_total",
			Help: "Notification sends by channel and status",
		},
		[]string{"channel", "status"},
	)
	promScreenshots = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchhook_screenshots_total",
			Help: "Screenshot captures by status",
		},
		[]string{"status"},
	)
	promLastRun = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "watchhook_last_run_timestamp_seconds",
			Help: "Unix timestamp of last hook invocation",
		},
	)
)

func init() {
	Registry.MustRegister(
		promChanges,
		promCheckErrors,
		promMaintenanceSkips,
		promNotifications,
		promScreenshots,
		promLastRun,
	)
}

// 3. Public API (Updates both Atomic and Prometheus)

// IncChange counts a check that reported a change.
func IncChange() {
	atomic.AddInt64(&changes, counterInc)
	promChanges.Inc()
}

// IncCheckError counts a check that reported an error.
func IncCheckError() {
	atomic.AddInt64(&checkErrors, counterInc)
	promCheckErrors.Inc()
}

// IncMaintenanceSkip counts a job skipped by the maintenance window.
func IncMaintenanceSkip() {
	atomic.AddInt64(&maintenanceSkips, counterInc)
	promMaintenanceSkips.Inc()
}

// IncNotificationSent counts a successful send on channel.
func IncNotificationSent(channel string) {
	chMu.Lock()
	channelSent[channel]++
	chMu.Unlock()
	promNotifications.WithLabelValues(channel, "success").Inc()
}

// IncNotificationFailed counts a failed send on channel.
func IncNotificationFailed(channel string) {
	chMu.Lock()
	channelFails[channel]++
	chMu.Unlock()
	promNotifications.WithLabelValues(channel, "failure").Inc()
}

// IncScreenshot counts a completed screenshot capture.
func IncScreenshot() {
	atomic.AddInt64(&screenshots, counterInc)
	promScreenshots.WithLabelValues("success").Inc()
}

// IncScreenshotFailure counts a failed screenshot capture.
func IncScreenshotFailure() {
	atomic.AddInt64(&screenshotFailures, counterInc)
	promScreenshots.WithLabelValues("failure").Inc()
}

// SetLastRun stores t as the last invocation time.
func SetLastRun(t time.Time) {
	atomic.StoreInt64(&lastRun, t.Unix())
	promLastRun.Set(float64(t.Unix()))
}

// 4. Snapshot

// ChannelStats holds per-channel send counts.
type ChannelStats struct {
	Channel string `json:"channel"`
	Sent    int64  `json:"sent"`
	Failed  int64  `json:"failed"`
}

// StatsSnapshot is a snapshot of metrics for JSON encoding.
type StatsSnapshot struct {
	Changes            int64          `json:"changes"`
	CheckErrors        int64          `json:"check_errors"`
	MaintenanceSkips   int64          `json:"maintenance_skips"`
	Screenshots        int64          `json:"screenshots"`
	ScreenshotFailures int64          `json:"screenshot_failures"`
	Channels           []ChannelStats `json:"channels"`
	LastRun            int64          `json:"last_run_timestamp"`
}

// GetSnapshot returns the current counter values. Channels are sorted by name.
func GetSnapshot() StatsSnapshot {
	s := StatsSnapshot{
		Changes:            atomic.LoadInt64(&changes),
		CheckErrors:        atomic.LoadInt64(&checkErrors),
		MaintenanceSkips:   atomic.LoadInt64(&maintenanceSkips),
		Screenshots:        atomic.LoadInt64(&screenshots),
		ScreenshotFailures: atomic.LoadInt64(&screenshotFailures),
		LastRun:            atomic.LoadInt64(&lastRun),
	}
	chMu.Lock()
	names := make(map[string]struct{}, len(channelSent)+len(channelFails))
	for n := range channelSent {
		names[n] = struct{}{}
	}
	for n := range channelFails {
		names[n] = struct{}{}
	}
	for n := range names {
		s.Channels = append(s.Channels, ChannelStats{Channel: n, Sent: channelSent[n], Failed: channelFails[n]})
	}
	chMu.Unlock()
	sort.Slice(s.Channels, func(i, j int) bool { return s.Channels[i].Channel < s.Channels[j].Channel })
	return s
}

// Channel returns the counts for one channel.
func (s StatsSnapshot) Channel(name string) ChannelStats {
	for _, c := range s.Channels {
		if c.Channel == name {
			return c
		}
	}
	return ChannelStats{Channel: name}
}
