// Package session is the application context: it owns the configured
// devices, the formula engine, the record store and the scheduler for one
// logging session, replacing any notion of process-global state. Every
// component receives its collaborators explicitly from here.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seubert/gammalog/internal/pkg/constants"
	"github.com/seubert/gammalog/internal/pkg/device"
	"github.com/seubert/gammalog/internal/pkg/device/gmc"
	"github.com/seubert/gammalog/internal/pkg/device/iotbridge"
	"github.com/seubert/gammalog/internal/pkg/device/radpro"
	"github.com/seubert/gammalog/internal/pkg/device/simul"
	"github.com/seubert/gammalog/internal/pkg/formula"
	"github.com/seubert/gammalog/internal/pkg/logger"
	"github.com/seubert/gammalog/internal/pkg/scheduler"
	"github.com/seubert/gammalog/internal/pkg/slicer"
	"github.com/seubert/gammalog/internal/pkg/store"
)

// Session wires one logging run end to end.
type Session struct {
	ID       uuid.UUID
	Registry *device.Registry
	Formulas *formula.Engine
	Store    *store.Store
	Sched    *scheduler.Scheduler
	Slicer   *slicer.Engine
	Status   *logger.StatusBuffer
}

// New builds a session from configuration. Device construction errors are
// configuration errors and fail the session before any logging starts.
func New(cfg Config) (*Session, error) {
	s := &Session{
		ID:       uuid.New(),
		Registry: device.NewRegistry(),
		Status:   logger.NewStatusBuffer(constants.StatusEventBuffer),
	}

	s.Formulas = formula.New(formula.Config{
		ValueFormulas: cfg.ValueFormulas,
		GraphFormulas: cfg.GraphFormulas,
		Sensitivities: cfg.Tubes,
	})
	s.Slicer = slicer.New(s.Formulas)

	if err := s.registerDevices(cfg.Devices); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("open logfile: %w", err)
	}
	s.Store = st

	s.Sched = scheduler.New(cfg.Cycle, s.Registry, s.Formulas, st)
	return s, nil
}

func (s *Session) registerDevices(cfg DevicesConfig) error {
	if cfg.Simul.Activated || noDeviceActivated(cfg) {
		if noDeviceActivated(cfg) && !cfg.Simul.Activated {
			logger.Warn("No device activated, falling back to the simulated source")
		}
		a := simul.New(simul.Config{MeanCPM: cfg.Simul.MeanCPM, Seed: cfg.Simul.Seed})
		if err := s.Registry.Register(a, true, constants.DefaultPollTimeout); err != nil {
			return err
		}
	}

	if cfg.GMC.Activated {
		a, err := gmc.New(gmc.Config{
			Port:     cfg.GMC.Port,
			Baud:     cfg.GMC.Baud,
			TubeSlot: cfg.GMC.TubeSlot,
			// two exchanges per poll must fit inside the poll timeout
			ReadTimeout: cfg.GMC.Timeout / 2,
		})
		if err != nil {
			return fmt.Errorf("configure gmc: %w", err)
		}
		if err := s.Registry.Register(a, true, cfg.GMC.Timeout); err != nil {
			return err
		}
	}

	if cfg.RadPro.Activated {
		a, err := radpro.New(radpro.Config{URL: cfg.RadPro.URL})
		if err != nil {
			return fmt.Errorf("configure radpro: %w", err)
		}
		if err := s.Registry.Register(a, true, cfg.RadPro.Timeout); err != nil {
			return err
		}
	}

	if cfg.IoTBridge.Activated {
		a, err := iotbridge.New(iotbridge.Config{
			Broker:   cfg.IoTBridge.Broker,
			Topic:    cfg.IoTBridge.Topic,
			ClientID: cfg.IoTBridge.ClientID,
		})
		if err != nil {
			return fmt.Errorf("configure iotbridge: %w", err)
		}
		if err := s.Registry.Register(a, true, cfg.IoTBridge.Timeout); err != nil {
			return err
		}
	}

	return nil
}

func noDeviceActivated(cfg DevicesConfig) bool {
	return !cfg.Simul.Activated && !cfg.GMC.Activated &&
		!cfg.RadPro.Activated && !cfg.IoTBridge.Activated
}

// Run drives the logging session until the context is cancelled or a
// fatal store error halts the scheduler. The store is closed on every
// exit path; device transports stay with their adapters.
func (s *Session) Run(ctx context.Context) error {
	logger.AttachStatusBuffer(s.Status)

	err := s.run(ctx)
	if cerr := s.Store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (s *Session) run(ctx context.Context) error {
	if err := s.Store.Comment(fmt.Sprintf("log started, session %s", s.ID)); err != nil {
		return err
	}
	for _, st := range s.Registry.States() {
		if st.Activated {
			_ = s.Store.Comment(fmt.Sprintf("device %s activated", st.Name))
		}
	}

	if err := s.Sched.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		s.stop()
	case <-s.Sched.Done():
		// fatal store failure already stopped the cycle
	}

	err := s.Sched.Err()
	if err != nil {
		logger.Error("Logging halted", "session", s.ID.String(), "error", err)
		return err
	}
	_ = s.Store.Comment(fmt.Sprintf("log stopped, session %s, records %d", s.ID, s.Sched.Cycles()))
	return nil
}

// stop disarms the scheduler, bounded by the graceful shutdown budget so
// a device stuck past its poll timeout cannot hold up process exit.
func (s *Session) stop() {
	stopped := make(chan struct{})
	go func() {
		s.Sched.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(constants.GracefulShutdownTimeout):
		logger.Warn("Shutdown timed out waiting for the last cycle",
			"budget", constants.GracefulShutdownTimeout)
	}
}
