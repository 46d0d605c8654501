// Package simul is a synthetic device: Poisson-distributed counts plus
// slowly drifting ambient readings. It exists for demo sessions and for
// exercising the pipeline without hardware; it never fails a poll.
package simul

import (
	"context"
	"math"
	"sync"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/seubert/gammalog/internal/pkg/device"
	"github.com/seubert/gammalog/internal/pkg/vars"
)

// Config sets the simulated source.
type Config struct {
	// MeanCPM is the Poisson mean of the counter (default 20)
	MeanCPM float64
	// Seed makes the sequence reproducible; 0 keeps the default source
	Seed uint64
}

// Adapter generates one reading set per poll.
type Adapter struct {
	mu      sync.Mutex
	cpm     distuv.Poisson
	cps     distuv.Poisson
	ambient *rand.Rand
	ticks   float64
}

// New creates the simulated device.
func New(cfg Config) *Adapter {
	if cfg.MeanCPM <= 0 {
		cfg.MeanCPM = 20
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = 1
	}
	src := rand.NewSource(seed)
	return &Adapter{
		cpm:     distuv.Poisson{Lambda: cfg.MeanCPM, Src: src},
		cps:     distuv.Poisson{Lambda: cfg.MeanCPM / 60.0, Src: src},
		ambient: rand.New(rand.NewSource(seed + 1)),
	}
}

func (a *Adapter) Name() string { return "simul" }

func (a *Adapter) Produces() []vars.Name {
	return []vars.Name{vars.CPM, vars.CPS, vars.Temp, vars.Press, vars.Humid}
}

// Poll never fails and never blocks.
func (a *Adapter) Poll(_ context.Context) device.PollResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ticks++
	drift := math.Sin(a.ticks / 300.0)

	return device.Ok(map[vars.Name]float64{
		vars.CPM:   a.cpm.Rand(),
		vars.CPS:   a.cps.Rand(),
		vars.Temp:  21.0 + 2.0*drift + 0.1*a.ambient.NormFloat64(),
		vars.Press: 1013.0 + 5.0*drift + 0.2*a.ambient.NormFloat64(),
		vars.Humid: 45.0 - 5.0*drift + 0.3*a.ambient.NormFloat64(),
	})
}
