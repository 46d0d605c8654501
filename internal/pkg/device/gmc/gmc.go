// Package gmc polls GQ GMC-series Geiger counters over their USB serial
// protocol. The counter answers <GETCPM>> and <GETCPS>> with 4-byte
// big-endian counts.
package gmc

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/seubert/gammalog/internal/pkg/device"
	"github.com/seubert/gammalog/internal/pkg/logger"
	"github.com/seubert/gammalog/internal/pkg/vars"
)

const (
	cmdGetCPM = "<GETCPM>>"
	cmdGetCPS = "<GETCPS>>"
	replyLen  = 4
)

// tube slot → variable pair
var slotVars = [][2]vars.Name{
	{vars.CPM, vars.CPS},
	{vars.CPM1st, vars.CPS1st},
	{vars.CPM2nd, vars.CPS2nd},
	{vars.CPM3rd, vars.CPS3rd},
}

// Config describes one GMC counter.
type Config struct {
	Port string // e.g. /dev/ttyUSB0
	Baud int    // 57600 or 115200 depending on firmware
	// TubeSlot selects which CPM/CPS variable pair this counter feeds (0..3)
	TubeSlot    int
	ReadTimeout time.Duration
}

// Adapter drives one serial-attached counter. The port handle is owned
// exclusively here; on a transport error it is closed and reopened on the
// next poll. mu serializes Poll and Close so an abandoned poll cannot
// race a later one on the port handle.
type Adapter struct {
	cfg  Config
	mu   sync.Mutex
	port *serial.Port
}

// New creates a GMC adapter. The port is opened lazily on the first poll
// so a detached counter does not block session start.
func New(cfg Config) (*Adapter, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("gmc: port not configured")
	}
	if cfg.Baud == 0 {
		cfg.Baud = 115200
	}
	if cfg.TubeSlot < 0 || cfg.TubeSlot >= len(slotVars) {
		return nil, fmt.Errorf("gmc: tube slot %d out of range", cfg.TubeSlot)
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	return &Adapter{cfg: cfg}, nil
}

func (a *Adapter) Name() string { return "gmc" }

func (a *Adapter) Produces() []vars.Name {
	pair := slotVars[a.cfg.TubeSlot]
	return []vars.Name{pair[0], pair[1]}
}

// Poll reads CPM and CPS once. The serial read timeout bounds each
// exchange; ctx is checked between exchanges.
func (a *Adapter) Poll(ctx context.Context) device.PollResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.ensureOpen(); err != nil {
		return device.Failed(err)
	}

	cpm, err := a.exchange(cmdGetCPM)
	if err != nil {
		a.drop()
		return device.Failed(fmt.Errorf("gmc: CPM read: %w", err))
	}

	if err := ctx.Err(); err != nil {
		return device.TimedOut()
	}

	cps, err := a.exchange(cmdGetCPS)
	if err != nil {
		a.drop()
		return device.Failed(fmt.Errorf("gmc: CPS read: %w", err))
	}

	pair := slotVars[a.cfg.TubeSlot]
	return device.Ok(map[vars.Name]float64{
		pair[0]: float64(cpm),
		pair[1]: float64(cps),
	})
}

func (a *Adapter) ensureOpen() error {
	if a.port != nil {
		return nil
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        a.cfg.Port,
		Baud:        a.cfg.Baud,
		ReadTimeout: a.cfg.ReadTimeout,
	})
	if err != nil {
		return fmt.Errorf("gmc: open %s: %w", a.cfg.Port, err)
	}
	a.port = port
	logger.Info("GMC counter port opened", "port", a.cfg.Port, "baud", a.cfg.Baud)
	return nil
}

// drop closes the port so the next poll reopens it. The handle stays valid
// for the next operation even after an abandoned poll.
func (a *Adapter) drop() {
	if a.port != nil {
		a.port.Close()
		a.port = nil
	}
}

func (a *Adapter) exchange(cmd string) (uint32, error) {
	if _, err := a.port.Write([]byte(cmd)); err != nil {
		return 0, err
	}
	buf := make([]byte, replyLen)
	if _, err := io.ReadFull(a.port, buf); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf), nil
}

// Close releases the serial port.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.port == nil {
		return nil
	}
	err := a.port.Close()
	a.port = nil
	return err
}
