package model

import (
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Stats summarises a loaded registry together with the process memory it
// lives in. Logged once at startup and exposed by /health.
type Stats struct {
	Schemas     int    `json:"schemas"`
	Presets     int    `json:"presets"`
	Properties  int    `json:"properties"`
	HeapAlloc   string `json:"heapAlloc"`
	MemoryLimit string `json:"memoryLimit,omitempty"`
	LimitSource string `json:"limitSource"`
}

// Stats counts schemas, declared presets and properties of the snapshot.
func (s *Snapshot) Stats() Stats {
	st := Stats{HeapAlloc: formatBytes(readAllocBytes())}
	for _, m := range s.Models() {
		st.Schemas++
		st.Presets += len(m.Presets)
		st.Properties += m.Properties.Len()
	}
	limit, source := detectMemoryLimit()
	if limit > 0 {
		st.MemoryLimit = formatBytes(limit)
	}
	st.LimitSource = source
	return st
}

func readAllocBytes() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

// detectMemoryLimit: cgroup v2, затем v1, затем MemTotal.
func detectMemoryLimit() (uint64, string) {
	if data, err := os.ReadFile("/sys/fs/cgroup/memory.max"); err == nil {
		if v, ok := parseLimitValue(string(data)); ok {
			return v, "cgroup v2 memory.max"
		}
	}
	if data, err := os.ReadFile("/sys/fs/cgroup/memory/memory.limit_in_bytes"); err == nil {
		if v, ok := parseLimitValue(string(data)); ok {
			return v, "cgroup v1 memory.limit_in_bytes"
		}
	}
	if data, err := os.ReadFile("/proc/meminfo"); err == nil {
		if v, ok := parseMemTotal(string(data)); ok {
			return v, "proc meminfo MemTotal"
		}
	}
	return 0, "unknown"
}

func parseMemTotal(meminfo string) (uint64, bool) {
	for _, ln := range strings.Split(meminfo, "\n") {
		if !strings.HasPrefix(ln, "MemTotal:") {
			continue
		}
		fields := strings.Fields(ln)
		if len(fields) < 2 {
			return 0, false
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, false
		}
		return kb * 1024, true
	}
	return 0, false
}

func parseLimitValue(raw string) (uint64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "max" {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func formatBytes(v uint64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case v >= gb:
		return strconv.FormatFloat(float64(v)/float64(gb), 'f', 2, 64) + " GB"
	case v >= mb:
		return strconv.FormatFloat(float64(v)/float64(mb), 'f', 2, 64) + " MB"
	case v >= kb:
		return strconv.FormatFloat(float64(v)/float64(kb), 'f', 2, 64) + " KB"
	default:
		return strconv.FormatUint(v, 10) + " B"
	}
}
