package capability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox"
	"github.com/GriffinCanCode/AgentOS/scriptbox/tests/helpers/testutil"
)

func TestSupportsWasmRequiresAllProbes(t *testing.T) {
	tests := []struct {
		name     string
		features []sandbox.Feature
		want     bool
	}{
		{
			name:     "all present",
			features: WasmFeatures,
			want:     true,
		},
		{
			name:     "missing compilation",
			features: []sandbox.Feature{sandbox.FeatureProvideConsumeArrayBuffer, sandbox.FeaturePromiseReturn},
		},
		{
			name:     "missing data transfer",
			features: []sandbox.Feature{sandbox.FeatureWasmCompilation, sandbox.FeaturePromiseReturn},
		},
		{
			name:     "missing promise return",
			features: []sandbox.Feature{sandbox.FeatureWasmCompilation, sandbox.FeatureProvideConsumeArrayBuffer},
		},
		{
			name:     "only heap ceiling",
			features: []sandbox.Feature{sandbox.FeatureIsolateMaxHeapSize},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := testutil.NewFakeConnection(tt.features...)
			got, err := SupportsWasm(context.Background(), conn)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSupportsHeapCeiling(t *testing.T) {
	ctx := context.Background()

	got, err := SupportsHeapCeiling(ctx, testutil.NewFakeConnection(sandbox.FeatureIsolateMaxHeapSize))
	require.NoError(t, err)
	assert.True(t, got)

	got, err = SupportsHeapCeiling(ctx, testutil.NewFakeConnection(WasmFeatures...))
	require.NoError(t, err)
	assert.False(t, got)
}

func TestProbe(t *testing.T) {
	snap, err := Probe(context.Background(), testutil.NewFakeConnection(testutil.AllFeatures()...))
	require.NoError(t, err)
	assert.Equal(t, Snapshot{Wasm: true, HeapCeiling: true}, snap)
}

func TestMissingConnectionIsDistinct(t *testing.T) {
	_, err := SupportsWasm(context.Background(), nil)
	assert.ErrorIs(t, err, sandbox.ErrNotConnected)

	_, err = SupportsHeapCeiling(context.Background(), nil)
	assert.ErrorIs(t, err, sandbox.ErrNotConnected)
}

func TestDeadConnectionIsNotUnsupported(t *testing.T) {
	conn := testutil.NewFakeConnection(testutil.AllFeatures()...)
	conn.Kill()

	ok, err := SupportsWasm(context.Background(), conn)
	assert.False(t, ok)
	assert.ErrorIs(t, err, sandbox.ErrConnectionClosed)

	_, err = Probe(context.Background(), conn)
	assert.ErrorIs(t, err, sandbox.ErrConnectionClosed)
}

func TestProbesDoNotMutate(t *testing.T) {
	conn := testutil.NewFakeConnection(testutil.AllFeatures()...)

	for i := 0; i < 3; i++ {
		_, err := Probe(context.Background(), conn)
		require.NoError(t, err)
	}

	assert.Zero(t, conn.Creates.Load())
	assert.Zero(t, conn.Closes.Load())
	assert.Equal(t, int64(12), conn.Probes.Load())
}
