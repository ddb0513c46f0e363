package monitor

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tiercache/tiercache/pkg/types"
	"github.com/tiercache/tiercache/pkg/utils"
)

type fakeSource struct {
	mu    sync.Mutex
	stats types.CacheStats
	calls int
}

func (f *fakeSource) Stats() types.CacheStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.stats
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestLogger(buf *bytes.Buffer) *utils.StructuredLogger {
	logger, err := utils.NewStructuredLogger(&utils.StructuredLoggerConfig{
		Level:  utils.DEBUG,
		Output: buf,
		Format: utils.FormatText,
	})
	if err != nil {
		panic(err)
	}
	return logger
}

func TestMonitorStartStop(t *testing.T) {
	var buf bytes.Buffer
	source := &fakeSource{}
	m := New(Config{Interval: 10 * time.Millisecond}, source, newTestLogger(&buf))

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Start(); err == nil {
		t.Error("Expected error starting monitor twice")
	}

	time.Sleep(35 * time.Millisecond)

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Errorf("Stop() after stop error = %v, want nil", err)
	}

	if source.callCount() == 0 {
		t.Error("Expected at least one stats report")
	}
}

func TestMonitorMemoryWarning(t *testing.T) {
	var buf bytes.Buffer
	source := &fakeSource{
		stats: types.CacheStats{
			State: "degraded",
			Fallback: types.StoreStats{
				Size:        950,
				Capacity:    1000,
				Utilization: 0.95,
			},
		},
	}
	m := New(Config{
		Interval:               10 * time.Millisecond,
		MemoryWarningThreshold: 0.9,
	}, source, newTestLogger(&buf))

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(35 * time.Millisecond)
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Fallback store near capacity") {
		t.Errorf("Expected capacity warning in output, got:\n%s", out)
	}
}

func TestMonitorNoWarningBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	source := &fakeSource{
		stats: types.CacheStats{
			Fallback: types.StoreStats{Utilization: 0.5},
		},
	}
	m := New(Config{
		Interval:               10 * time.Millisecond,
		MemoryWarningThreshold: 0.9,
	}, source, newTestLogger(&buf))

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(35 * time.Millisecond)
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if strings.Contains(buf.String(), "near capacity") {
		t.Error("Did not expect capacity warning below threshold")
	}
}
