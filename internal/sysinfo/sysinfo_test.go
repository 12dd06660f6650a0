package sysinfo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/condor/internal/encoder"
)

func TestMemoryPerWorker(t *testing.T) {
	tests := []struct {
		kind   encoder.Kind
		height int
		want   uint64
	}{
		{encoder.X264, 480, 1 * gib},
		{encoder.X264, 1080, 2 * gib},
		{encoder.SVTAV1, 2160, 4 * gib},
		{encoder.AOM, 1080, 4 * gib},
		{encoder.Rav1e, 2160, 8 * gib},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, memoryPerWorker(tt.kind, tt.height))
		})
	}
}

func TestHost(t *testing.T) {
	ctx := context.Background()
	var h Host

	avail, err := h.AvailableMemory(ctx)
	require.NoError(t, err)
	assert.Positive(t, avail)
	assert.GreaterOrEqual(t, h.LogicalCPUs(ctx), 1)

	for _, k := range encoder.Kinds {
		assert.GreaterOrEqual(t, h.DefaultWorkers(ctx, k, 1080), 1, k)
	}
}
