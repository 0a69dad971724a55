package dispatch_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stackvity/asset-compiler/pkg/dispatch"
	"github.com/stretchr/testify/assert"
)

const mb = 1024 * 1024

func sampler(values ...uint64) dispatch.MemorySampler {
	i := 0
	return func() dispatch.MemorySample {
		v := values[min(i, len(values)-1)]
		i++
		return dispatch.MemorySample{HeapInUse: v, Sys: v}
	}
}

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestMemoryMonitor_LogUsageLevels(t *testing.T) {
	cfg := dispatch.MemoryConfig{WarnMB: 100, ErrorMB: 200}

	testCases := []struct {
		name      string
		heap      uint64
		wantLevel string
	}{
		{"Below warning", 10 * mb, "level=INFO"},
		{"Above warning", 150 * mb, "level=WARN"},
		{"Above error", 250 * mb, "level=ERROR"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := dispatch.NewMemoryMonitorWithSampler(cfg, sampler(tc.heap))
			logger, buf := bufferLogger()
			assert.True(t, m.LogUsage(logger, false))
			assert.Contains(t, buf.String(), tc.wantLevel)
			assert.Equal(t, tc.heap, m.Peak())
		})
	}
}

func TestMemoryMonitor_ProblemsOnly(t *testing.T) {
	cfg := dispatch.MemoryConfig{WarnMB: 100, ErrorMB: 200}
	m := dispatch.NewMemoryMonitorWithSampler(cfg, sampler(50*mb, 120*mb, 110*mb, 130*mb))
	logger, buf := bufferLogger()

	assert.False(t, m.LogUsage(logger, true), "below the warning threshold nothing is logged")
	assert.True(t, m.LogUsage(logger, true), "a new peak above the threshold is logged")
	assert.False(t, m.LogUsage(logger, true), "no new peak, nothing logged")
	assert.True(t, m.LogUsage(logger, true))
	assert.Equal(t, uint64(130*mb), m.Peak())
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("DANGER")))
}

func TestMemoryMonitor_DefaultThresholds(t *testing.T) {
	m := dispatch.NewMemoryMonitorWithSampler(dispatch.MemoryConfig{}, sampler(dispatch.DefaultMemoryWarnMB*mb - 1))
	logger, buf := bufferLogger()
	m.LogUsage(logger, false)
	assert.Contains(t, buf.String(), "level=INFO")
}
