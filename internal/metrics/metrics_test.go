package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ubifsck/ubifsck/internal/metrics"
)

func TestNoOpHandleDiscardsMeasurements(t *testing.T) {
	var h metrics.Handle = metrics.NoOp{}
	ctx := context.Background()

	assert.NotPanics(t, func() {
		h.ProblemFound(ctx, "FileIsInconsistent")
		h.ProblemFixed(ctx, "FileIsInconsistent")
		h.LebsScanned(ctx, 10, "scan")
		h.BytesProcessed(ctx, 4096, "scan")
		h.StageLatency(ctx, time.Millisecond, "scan")
	})
}

func TestNewRegistersCounters(t *testing.T) {
	h, err := metrics.New()
	assert.NoError(t, err)
	assert.NotNil(t, h)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		h.ProblemFound(ctx, "LpIncorrect")
	})
}
