// Package constants provides shared constants used across gammalog components.
package constants

import "time"

// Shutdown and graceful termination timeouts
const (
	// GracefulShutdownTimeout is the time to wait for graceful component shutdown
	GracefulShutdownTimeout = 2 * time.Second

	// DefaultLogCycle is the default interval between log cycles
	DefaultLogCycle = 1 * time.Second

	// MinLogCycle is the shortest configurable log cycle; values below it
	// are clamped and reported as a configuration warning
	MinLogCycle = 100 * time.Millisecond

	// DefaultPollTimeout bounds a single device poll when the device
	// configuration does not set its own timeout
	DefaultPollTimeout = 3 * time.Second

	// MaxPollTimeout is the upper bound on any per-device poll timeout;
	// observed device latencies range from 0.3s for serial counters to
	// 10s for slow network sensor servers
	MaxPollTimeout = 10 * time.Second
)

// Channel buffer sizes
const (
	// SignalChannelBuffer is the buffer size for OS signal channels
	SignalChannelBuffer = 1

	// StatusEventBuffer is the capacity of the session status ring buffer;
	// old device/cycle events are overwritten once it fills
	StatusEventBuffer = 256
)

// Canonical variable space
const (
	// VariableCount is the number of canonical variable slots in every record
	VariableCount = 12

	// TubeSlots is the number of physical Geiger tube slots (CPM/CPS,
	// 1st, 2nd, 3rd)
	TubeSlots = 4

	// DefaultTubeSensitivity is the fallback calibration in CPM per µSv/h,
	// the nominal value for an M4011 tube
	DefaultTubeSensitivity = 154.0
)

// Statistics limits
const (
	// MaxHistogramBins caps the number of bins in a Poisson-fit histogram
	MaxHistogramBins = 30

	// MinFiniteSamples is the smallest sample count any statistics
	// function will operate on
	MinFiniteSamples = 3
)
