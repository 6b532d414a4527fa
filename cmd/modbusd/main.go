// Command modbusd runs a Modbus/TCP and Modbus/RTU server, exposing
// the slave data blocks described in its config file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/edgeflow/modbusd/internal/config"
	"github.com/edgeflow/modbusd/internal/health"
	"github.com/edgeflow/modbusd/internal/logger"
	"github.com/edgeflow/modbusd/pkg/modbus"
	"go.uber.org/zap"
)

var version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: ./config.yaml or ~/.modbusd/config.yaml)")
	flag.Parse()

	watcher, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg := watcher.Current()

	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		LogDir:     cfg.Logger.LogDir,
		MaxSizeMB:  cfg.Logger.MaxSizeMB,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAgeDays: cfg.Logger.MaxAgeDays,
		Compress:   cfg.Logger.Compress,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("modbusd starting", zap.String("version", version))

	registry, err := buildRegistry(cfg.Slaves)
	if err != nil {
		log.Fatal("invalid slave configuration", zap.Error(err))
	}

	checker := health.NewHealthChecker()
	checker.RegisterCheck("goroutines", health.GoroutineHealthCheck(runtime.NumGoroutine, 1000), 30*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var tcpListening, rtuOpen atomic.Bool

	var tcpSrv *modbus.TCPServer
	if cfg.TCP.Enabled {
		tcpSrv = modbus.NewTCPServer(registry)
		tcpSrv.Logger = logger.ModbusLogger()
		tcpSrv.IdleTimeout = time.Duration(cfg.TCP.IdleTimeout) * time.Second

		addr := fmt.Sprintf("%s:%d", cfg.TCP.Host, cfg.TCP.Port)
		go func() {
			tcpListening.Store(true)
			defer tcpListening.Store(false)
			if err := tcpSrv.ListenAndServe(addr); err != nil {
				log.Error("tcp server stopped", zap.Error(err))
			}
		}()
		checker.RegisterCheck("tcp_listener", health.TCPListenerHealthCheck(tcpListening.Load), 5*time.Second)
		log.Info("modbus/tcp enabled", zap.String("addr", addr))
	}

	var rtuSrv *modbus.RTUServer
	if cfg.RTU.Enabled {
		rtuSrv, err = modbus.NewRTUServer(registry, modbus.SerialConfig{
			Port:     cfg.RTU.Port,
			BaudRate: cfg.RTU.BaudRate,
			DataBits: cfg.RTU.DataBits,
			StopBits: cfg.RTU.StopBits,
			Parity:   cfg.RTU.Parity,
		})
		if err != nil {
			log.Fatal("failed to open RTU serial port", zap.Error(err))
		}
		rtuSrv.Logger = logger.ModbusLogger()

		rtuOpen.Store(true)
		go func() {
			defer rtuOpen.Store(false)
			if err := rtuSrv.Serve(); err != nil {
				log.Error("rtu server stopped", zap.Error(err))
			}
		}()
		checker.RegisterCheck("rtu_port", health.RTUPortHealthCheck(rtuOpen.Load), 5*time.Second)
		log.Info("modbus/rtu enabled", zap.String("port", cfg.RTU.Port))
	}

	if cfg.Health.Enabled {
		checker.StartPeriodicChecks(ctx)
	}

	watcher.WatchAndReload(func(c *config.Config) {
		log.Info("config reloaded", zap.String("log_level", c.Logger.Level))
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")

	cancel()
	if tcpSrv != nil {
		if err := tcpSrv.Stop(); err != nil {
			log.Error("tcp server shutdown error", zap.Error(err))
		}
	}
	if rtuSrv != nil {
		if err := rtuSrv.Stop(); err != nil {
			log.Error("rtu server shutdown error", zap.Error(err))
		}
	}
}

// buildRegistry turns the config's slave/block topology into a live
// modbus.Registry.
func buildRegistry(slaves []config.SlaveConfig) (*modbus.Registry, error) {
	registry := modbus.NewRegistry()
	for _, sc := range slaves {
		slave := modbus.NewSlave(sc.ID)
		for _, bc := range sc.Blocks {
			kind, ok := modbus.ParseBlockKind(bc.Kind)
			if !ok {
				return nil, fmt.Errorf("slave %d: unknown block kind %q", sc.ID, bc.Kind)
			}
			if err := slave.AddBlock(bc.Name, kind, bc.Address, bc.Size); err != nil {
				return nil, fmt.Errorf("slave %d: %w", sc.ID, err)
			}
		}
		if err := registry.AddSlave(slave); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
