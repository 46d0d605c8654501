// Package radpro polls a network-attached sensor server over HTTP GET.
// The server answers with a flat JSON object of readings; absent fields
// simply stay missing for that cycle.
package radpro

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/seubert/gammalog/internal/pkg/device"
	"github.com/seubert/gammalog/internal/pkg/vars"
)

// Config describes one sensor-server endpoint.
type Config struct {
	URL string // full endpoint, e.g. http://radpro.local:8000/json
}

// reply is the sensor server's JSON document. Pointer fields distinguish
// "absent" from "measured zero".
type reply struct {
	CPM   *float64 `json:"cpm"`
	CPS   *float64 `json:"cps"`
	Temp  *float64 `json:"temp"`
	Press *float64 `json:"press"`
	Humid *float64 `json:"humid"`
	Xtra  *float64 `json:"xtra"`
}

// Adapter polls one HTTP sensor server. The http.Client is owned here and
// reused across polls for connection pooling.
type Adapter struct {
	cfg    Config
	client *http.Client
}

// New creates the adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("radpro: url not configured")
	}
	return &Adapter{
		cfg: cfg,
		client: &http.Client{
			// Per-poll deadlines come from the request context; this is a
			// backstop against a context-free misuse
			Timeout: 30 * time.Second,
		},
	}, nil
}

func (a *Adapter) Name() string { return "radpro" }

func (a *Adapter) Produces() []vars.Name {
	return []vars.Name{vars.CPM, vars.CPS, vars.Temp, vars.Press, vars.Humid, vars.Xtra}
}

// Poll issues one GET. Context expiry maps to Timeout, everything else to
// a transport failure.
func (a *Adapter) Poll(ctx context.Context) device.PollResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.URL, nil)
	if err != nil {
		return device.Failed(fmt.Errorf("radpro: build request: %w", err))
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return device.TimedOut()
		}
		return device.Failed(fmt.Errorf("radpro: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return device.Failed(fmt.Errorf("radpro: server returned %s", resp.Status))
	}

	var doc reply
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return device.Failed(fmt.Errorf("radpro: malformed reply: %w", err))
	}

	values := make(map[vars.Name]float64)
	put := func(name vars.Name, v *float64) {
		if v != nil {
			values[name] = *v
		}
	}
	put(vars.CPM, doc.CPM)
	put(vars.CPS, doc.CPS)
	put(vars.Temp, doc.Temp)
	put(vars.Press, doc.Press)
	put(vars.Humid, doc.Humid)
	put(vars.Xtra, doc.Xtra)

	if len(values) == 0 {
		return device.Failed(fmt.Errorf("radpro: reply carried no known readings"))
	}
	return device.Ok(values)
}
