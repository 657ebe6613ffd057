// Package stats holds the bridge's counters as grouped atomics, cheap to
// bump from any worker goroutine and safe to snapshot-and-reset once per
// supervisor tick while other goroutines keep incrementing them.
package stats

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Registry is the live set of counters the bridge increments during a tick.
type Registry struct {
	Saved      atomic.Int64
	Updated    atomic.Int64
	Dropped    atomic.Int64
	Skipped    atomic.Int64
	Retried    atomic.Int64
	Exceptions atomic.Int64
	NotFound   atomic.Int64
	Enqueued   atomic.Int64
	NotActual  atomic.Int64
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{}
}

// Snapshot is the point-in-time copy of the registry, handed to the log
// sink and recorded in Prometheus gauges once per supervisor tick.
type Snapshot struct {
	Time       time.Time
	Resource   string
	Saved      int64
	Updated    int64
	Dropped    int64
	Skipped    int64
	Retried    int64
	Exceptions int64
	NotFound   int64
	Enqueued   int64
	NotActual  int64

	PrimaryQueueDepth int
	RetryQueueDepth   int
	PrimaryWorkers    int
	RetryWorkers      int
	FreeAPIClients    int

	RSSBytes uint64
	VMSBytes uint64
}

// Reset takes a Snapshot of the current counters, then zeroes them, mirroring
// the original bridge's bridge_stats()/reset_log_counters() pair.
func (r *Registry) Reset(resource string) Snapshot {
	s := Snapshot{
		Time:       time.Now(),
		Resource:   resource,
		Saved:      r.Saved.Swap(0),
		Updated:    r.Updated.Swap(0),
		Dropped:    r.Dropped.Swap(0),
		Skipped:    r.Skipped.Swap(0),
		Retried:    r.Retried.Swap(0),
		Exceptions: r.Exceptions.Swap(0),
		NotFound:   r.NotFound.Swap(0),
		Enqueued:   r.Enqueued.Swap(0),
		NotActual:  r.NotActual.Swap(0),
	}
	s.RSSBytes, s.VMSBytes = processMemory()
	return s
}

// processMemory reports the process's RSS and VMS, mirroring the original
// bridge's psutil-backed process.memory_info(). Linux is the one supported
// deployment target, so this reads /proc/self/status directly instead of
// pulling in a process-inspection dependency for two fields; if that file
// isn't available (non-Linux, containers without /proc), it falls back to
// the Go runtime's own memory counters so the gauge still reports
// something rather than zero. Either way this is only ever an
// operator-facing gauge, never a control decision.
func processMemory() (rss, vms uint64) {
	if r, v, ok := readProcStatus(); ok {
		return r, v
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Sys, m.HeapSys + m.StackSys
}

func readProcStatus() (rss, vms uint64, ok bool) {
	f, err := os.Open("/proc/self/status")
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()

	var haveRSS, haveVMS bool
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "VmRSS:"):
			if v, ok := parseStatusKB(line); ok {
				rss = v * 1024
				haveRSS = true
			}
		case strings.HasPrefix(line, "VmSize:"):
			if v, ok := parseStatusKB(line); ok {
				vms = v * 1024
				haveVMS = true
			}
		}
	}
	return rss, vms, haveRSS && haveVMS
}

// parseStatusKB parses a "VmRSS:\t  1234 kB" style /proc/self/status line.
func parseStatusKB(line string) (uint64, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, false
	}
	v, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
