package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edgeflow/modbusd/internal/config"
	"github.com/edgeflow/modbusd/internal/logger"
	"github.com/edgeflow/modbusd/pkg/modbus"
	"github.com/spf13/cobra"
)

type serveFlags struct {
	configPath string
}

func newServeCmd() *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a Modbus/TCP and/or Modbus/RTU server from a config file",
		Long: `serve starts a Modbus server exposing the slaves and data blocks
described in the config file (see modbusd's config.yaml for the same
schema). Useful for emulating a device against which read/write can
be tested.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(flags)
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "", "path to config.yaml")

	return cmd
}

func runServe(flags *serveFlags) error {
	watcher, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
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
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	registry := modbus.NewRegistry()
	for _, sc := range cfg.Slaves {
		slave := modbus.NewSlave(sc.ID)
		for _, bc := range sc.Blocks {
			kind, ok := modbus.ParseBlockKind(bc.Kind)
			if !ok {
				return fmt.Errorf("slave %d: unknown block kind %q", sc.ID, bc.Kind)
			}
			if err := slave.AddBlock(bc.Name, kind, bc.Address, bc.Size); err != nil {
				return fmt.Errorf("slave %d: %w", sc.ID, err)
			}
		}
		if err := registry.AddSlave(slave); err != nil {
			return err
		}
	}

	var tcpSrv *modbus.TCPServer
	if cfg.TCP.Enabled {
		tcpSrv = modbus.NewTCPServer(registry)
		tcpSrv.Logger = logger.ModbusLogger()
		tcpSrv.IdleTimeout = time.Duration(cfg.TCP.IdleTimeout) * time.Second
		addr := fmt.Sprintf("%s:%d", cfg.TCP.Host, cfg.TCP.Port)
		go func() {
			if err := tcpSrv.ListenAndServe(addr); err != nil {
				fmt.Fprintf(os.Stderr, "tcp server stopped: %v\n", err)
			}
		}()
		fmt.Printf("modbus/tcp listening on %s\n", addr)
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
			return fmt.Errorf("open rtu port: %w", err)
		}
		rtuSrv.Logger = logger.ModbusLogger()
		go func() {
			if err := rtuSrv.Serve(); err != nil {
				fmt.Fprintf(os.Stderr, "rtu server stopped: %v\n", err)
			}
		}()
		fmt.Printf("modbus/rtu listening on %s\n", cfg.RTU.Port)
	}

	if tcpSrv == nil && rtuSrv == nil {
		return fmt.Errorf("neither tcp nor rtu is enabled in the config")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	fmt.Println("shutting down")

	if tcpSrv != nil {
		tcpSrv.Stop()
	}
	if rtuSrv != nil {
		rtuSrv.Stop()
	}
	return nil
}
