package simul

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seubert/gammalog/internal/pkg/device"
	"github.com/seubert/gammalog/internal/pkg/vars"
)

func TestPollNeverFails(t *testing.T) {
	a := New(Config{MeanCPM: 20, Seed: 1})

	for i := 0; i < 100; i++ {
		res := a.Poll(context.Background())
		require.Equal(t, device.Success, res.Kind)
		require.Contains(t, res.Values, vars.CPM)
		assert.GreaterOrEqual(t, res.Values[vars.CPM], 0.0)
	}
}

func TestCountsMatchConfiguredMean(t *testing.T) {
	a := New(Config{MeanCPM: 50, Seed: 7})

	const n = 10000
	var sum float64
	for i := 0; i < n; i++ {
		sum += a.Poll(context.Background()).Values[vars.CPM]
	}
	mean := sum / n
	assert.InDelta(t, 50.0, mean, 50.0*0.05, "sample mean within 5%% of the configured mean")
}

func TestAmbientReadingsStayPlausible(t *testing.T) {
	a := New(Config{Seed: 3})

	for i := 0; i < 1000; i++ {
		res := a.Poll(context.Background())
		assert.InDelta(t, 21.0, res.Values[vars.Temp], 5)
		assert.InDelta(t, 1013.0, res.Values[vars.Press], 15)
		assert.InDelta(t, 45.0, res.Values[vars.Humid], 15)
	}
}

func TestProduces(t *testing.T) {
	a := New(Config{})
	assert.Equal(t, []vars.Name{vars.CPM, vars.CPS, vars.Temp, vars.Press, vars.Humid}, a.Produces())
}
