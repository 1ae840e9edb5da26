// Package config loads tool configuration from flags and an optional
// YAML file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config defines the global configuration structure.
type Config struct {
	Serial     SerialConfig     `mapstructure:"serial"`
	Controller ControllerConfig `mapstructure:"controller"`
	Sim        SimConfig        `mapstructure:"sim"`
	Log        LogConfig        `mapstructure:"log"`
}

// LogConfig defines logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // log file path, empty or "-" for stdout
}

// SerialConfig defines the RS-485 link settings.
type SerialConfig struct {
	Device   string        `mapstructure:"device"`
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	Parity   string        `mapstructure:"parity"` // N, E, O
	StopBits int           `mapstructure:"stop_bits"`
	Timeout  time.Duration `mapstructure:"timeout"` // per-exchange maximum wait

	// RS485 driver-enable handling, for adapters that need it.
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// ControllerConfig identifies the controller on the bus and the retry
// policy used when talking to it.
type ControllerConfig struct {
	Variant       string        `mapstructure:"variant"` // "f4" or "93"
	SlaveID       int           `mapstructure:"slave_id"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	WriteFunction string        `mapstructure:"write_function"` // "single" (0x06) or "multiple" (0x10)
}

// SimConfig configures the simulated controller served by `sim` mode.
type SimConfig struct {
	Variant     string            `mapstructure:"variant"`
	SlaveID     int               `mapstructure:"slave_id"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
}

// PersistenceConfig defines how the simulated device stores its registers.
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // "memory", "file", "mmap", "sql"
	Path string `mapstructure:"path"` // file path or DSN for "file"/"mmap"/"sql"
}

// Load merges defaults, an optional config file and command-line flags.
// Flags that were not defined on the command line fall back to the file,
// then to the defaults.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults match the Watlow factory serial setup: 9600 8N1.
	v.SetDefault("serial.device", "/dev/ttyUSB0")
	v.SetDefault("serial.baud_rate", 9600)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.parity", "N")
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.timeout", time.Second)
	v.SetDefault("controller.variant", "f4")
	v.SetDefault("controller.slave_id", 1)
	v.SetDefault("controller.max_attempts", 3)
	v.SetDefault("controller.retry_backoff", 50*time.Millisecond)
	v.SetDefault("controller.write_function", "single")
	v.SetDefault("sim.variant", "f4")
	v.SetDefault("sim.slave_id", 1)
	v.SetDefault("sim.persistence.type", "memory")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	pflag.StringP("config", "c", "", "Configuration file path.")
	pflag.StringP("device", "p", v.GetString("serial.device"), "Serial port device name.")
	pflag.IntP("baud_rate", "s", v.GetInt("serial.baud_rate"), "Serial port speed.")
	pflag.String("parity", v.GetString("serial.parity"), "Serial parity (N, E, O).")
	pflag.DurationP("timeout", "W", v.GetDuration("serial.timeout"), "Response wait time per exchange.")
	pflag.String("variant", v.GetString("controller.variant"), "Controller variant (f4 or 93).")
	pflag.IntP("slave_id", "a", v.GetInt("controller.slave_id"), "Controller slave address (1-247).")
	pflag.IntP("max_attempts", "N", v.GetInt("controller.max_attempts"), "Maximum attempts per operation.")
	pflag.StringP("log_level", "v", v.GetString("log.level"), "Log verbosity level (debug, info, warn, error).")
	pflag.StringP("log_file", "L", v.GetString("log.file"), "Log file name ('-' for STDOUT only).")
	pflag.Parse()

	bindings := map[string]string{
		"serial.device":           "device",
		"serial.baud_rate":        "baud_rate",
		"serial.parity":           "parity",
		"serial.timeout":          "timeout",
		"controller.variant":      "variant",
		"controller.slave_id":     "slave_id",
		"controller.max_attempts": "max_attempts",
		"log.level":               "log_level",
		"log.file":                "log_file",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, pflag.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", flag, err)
		}
	}

	if configFile, _ := pflag.CommandLine.GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/watlowctl/")
		v.AddConfigPath("$HOME/.watlowctl")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	fixupSerial(&config.Serial)

	if config.Controller.SlaveID < 1 || config.Controller.SlaveID > 247 {
		return nil, fmt.Errorf("slave_id %d out of range 1-247", config.Controller.SlaveID)
	}

	return &config, nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	if s.DataBits == 0 {
		s.DataBits = 8
	}
	if s.StopBits == 0 {
		s.StopBits = 1
	}
	if s.Timeout == 0 {
		s.Timeout = time.Second
	}
}
