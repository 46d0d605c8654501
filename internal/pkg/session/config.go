package session

import (
	"fmt"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/seubert/gammalog/internal/pkg/constants"
	"github.com/seubert/gammalog/internal/pkg/vars"
)

// Config is the full session configuration, read from the viper-backed
// YAML file and CLI flags.
type Config struct {
	Cycle   time.Duration
	LogFile string

	// Tubes is CPM per µSv/h per tube slot
	Tubes []float64

	ValueFormulas map[vars.Name]string
	GraphFormulas map[vars.Name]string

	Devices DevicesConfig
}

// DevicesConfig holds the per-family device blocks.
type DevicesConfig struct {
	Simul     SimulConfig
	GMC       GMCConfig
	RadPro    RadProConfig
	IoTBridge IoTBridgeConfig
}

// SimulConfig configures the synthetic source.
type SimulConfig struct {
	Activated bool
	MeanCPM   float64
	Seed      uint64
}

// GMCConfig configures the serial Geiger counter.
type GMCConfig struct {
	Activated bool
	Port      string
	Baud      int
	TubeSlot  int
	Timeout   time.Duration
}

// RadProConfig configures the HTTP sensor server.
type RadProConfig struct {
	Activated bool
	URL       string
	Timeout   time.Duration
}

// IoTBridgeConfig configures the MQTT bridge.
type IoTBridgeConfig struct {
	Activated bool
	Broker    string
	Topic     string
	ClientID  string
	Timeout   time.Duration
}

// FromViper reads the session configuration. Keys follow the layout of
// ~/.gammalog.yaml:
//
//	logging:
//	  cycle_seconds: 1.0
//	  file: gammalog.log
//	tubes:
//	  sensitivity: [154, 154, 2.08, 154]
//	variables:
//	  CPM:
//	    value_formula: ""
//	    graph_formula: ""
//	devices:
//	  simul: {activated: true, mean_cpm: 20}
//	  gmc: {activated: false, port: /dev/ttyUSB0, baud: 115200, tube_slot: 0}
//	  radpro: {activated: false, url: "http://radpro.local/json"}
//	  iotbridge: {activated: false, broker: "localhost:1883", topic: "sensors/readings"}
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Cycle:         constants.DefaultLogCycle,
		LogFile:       v.GetString("logging.file"),
		Tubes:         cast.ToFloat64Slice(v.Get("tubes.sensitivity")),
		ValueFormulas: make(map[vars.Name]string),
		GraphFormulas: make(map[vars.Name]string),
	}

	if secs := v.GetFloat64("logging.cycle_seconds"); secs > 0 {
		cfg.Cycle = time.Duration(secs * float64(time.Second))
	}
	if cfg.LogFile == "" {
		return cfg, fmt.Errorf("logging.file is not configured")
	}

	for _, name := range vars.Names() {
		key := "variables." + string(name)
		if expr := v.GetString(key + ".value_formula"); expr != "" {
			cfg.ValueFormulas[name] = expr
		}
		if expr := v.GetString(key + ".graph_formula"); expr != "" {
			cfg.GraphFormulas[name] = expr
		}
	}

	cfg.Devices = DevicesConfig{
		Simul: SimulConfig{
			Activated: v.GetBool("devices.simul.activated"),
			MeanCPM:   v.GetFloat64("devices.simul.mean_cpm"),
			Seed:      v.GetUint64("devices.simul.seed"),
		},
		GMC: GMCConfig{
			Activated: v.GetBool("devices.gmc.activated"),
			Port:      v.GetString("devices.gmc.port"),
			Baud:      v.GetInt("devices.gmc.baud"),
			TubeSlot:  v.GetInt("devices.gmc.tube_slot"),
			Timeout:   deviceTimeout(v, "gmc"),
		},
		RadPro: RadProConfig{
			Activated: v.GetBool("devices.radpro.activated"),
			URL:       v.GetString("devices.radpro.url"),
			Timeout:   deviceTimeout(v, "radpro"),
		},
		IoTBridge: IoTBridgeConfig{
			Activated: v.GetBool("devices.iotbridge.activated"),
			Broker:    v.GetString("devices.iotbridge.broker"),
			Topic:     v.GetString("devices.iotbridge.topic"),
			ClientID:  v.GetString("devices.iotbridge.client_id"),
			Timeout:   deviceTimeout(v, "iotbridge"),
		},
	}

	return cfg, nil
}

func deviceTimeout(v *viper.Viper, family string) time.Duration {
	if secs := v.GetFloat64("devices." + family + ".timeout_seconds"); secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return constants.DefaultPollTimeout
}
