package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all configuration for modbusd.
type Config struct {
	TCP     TCPConfig     `mapstructure:"tcp"`
	RTU     RTUConfig     `mapstructure:"rtu"`
	Slaves  []SlaveConfig `mapstructure:"slaves"`
	Logger  LoggerConfig  `mapstructure:"logger"`
	Health  HealthConfig  `mapstructure:"health"`
}

// TCPConfig contains Modbus/TCP server settings.
type TCPConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	IdleTimeout int    `mapstructure:"idle_timeout_seconds"`
}

// RTUConfig contains Modbus/RTU serial server settings.
type RTUConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Port     string `mapstructure:"port"`
	BaudRate int    `mapstructure:"baud_rate"`
	DataBits int    `mapstructure:"data_bits"`
	StopBits int    `mapstructure:"stop_bits"`
	Parity   string `mapstructure:"parity"`
}

// BlockConfig describes one named address-space region within a slave.
type BlockConfig struct {
	Name    string `mapstructure:"name"`
	Kind    string `mapstructure:"kind"` // coils, discrete_inputs, holding_registers, input_registers
	Address uint16 `mapstructure:"address"`
	Size    uint16 `mapstructure:"size"`
}

// SlaveConfig describes one addressable device and its data blocks.
type SlaveConfig struct {
	ID     uint8         `mapstructure:"id"`
	Blocks []BlockConfig `mapstructure:"blocks"`
}

// LoggerConfig contains logging settings.
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	LogDir     string `mapstructure:"log_dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// HealthConfig contains liveness/readiness check settings.
type HealthConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	CheckIntervalMS int  `mapstructure:"check_interval_ms"`
}

// OnReload is called with the freshly reloaded Config whenever the
// backing file changes. Reload only affects non-structural fields
// (timeouts, log level); slave/block topology changes require a
// restart: they are not applied, and no warning is logged for them.
type OnReload func(*Config)

// Watcher wraps a viper instance and keeps Config in sync with its
// backing file via fsnotify.
type Watcher struct {
	v  *viper.Viper
	mu sync.RWMutex
	c  Config
}

// Load reads configuration from file and environment variables and
// returns a Watcher that can optionally be told to watch for changes.
func Load(configPath string) (*Watcher, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		v.AddConfigPath(getConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix("MODBUSD")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &Watcher{v: v, c: cfg}, nil
}

// Current returns a copy of the currently loaded configuration.
func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.c
}

// WatchAndReload starts watching the config file for changes and
// invokes onReload after each successful re-unmarshal. Slave/block
// topology (w.c.Slaves) is intentionally left untouched by reload;
// only Logger/TCP/RTU/Health scalar fields are expected to be tuned
// live.
func (w *Watcher) WatchAndReload(onReload OnReload) {
	w.v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := w.v.Unmarshal(&cfg); err != nil {
			return
		}
		w.mu.Lock()
		cfg.Slaves = w.c.Slaves
		w.c = cfg
		w.mu.Unlock()
		if onReload != nil {
			onReload(&cfg)
		}
	})
	w.v.WatchConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tcp.enabled", true)
	v.SetDefault("tcp.host", "0.0.0.0")
	v.SetDefault("tcp.port", 502)
	v.SetDefault("tcp.idle_timeout_seconds", 30)

	v.SetDefault("rtu.enabled", false)
	v.SetDefault("rtu.port", "/dev/ttyUSB0")
	v.SetDefault("rtu.baud_rate", 9600)
	v.SetDefault("rtu.data_bits", 8)
	v.SetDefault("rtu.stop_bits", 1)
	v.SetDefault("rtu.parity", "none")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.log_dir", "./logs")
	v.SetDefault("logger.max_size_mb", 50)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age_days", 7)
	v.SetDefault("logger.compress", true)

	v.SetDefault("health.enabled", true)
	v.SetDefault("health.check_interval_ms", 5000)
}

func getConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".modbusd")
}
