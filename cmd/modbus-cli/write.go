package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/edgeflow/modbusd/pkg/modbus"
	"github.com/spf13/cobra"
)

type writeFlags struct {
	transport string
	addr      string
	port      string
	baudRate  int
	unit      uint8
	table     string // coils or holding
	address   uint16
	values    string // comma-separated
	timeoutMs int
}

func newWriteCmd() *cobra.Command {
	flags := &writeFlags{}

	cmd := &cobra.Command{
		Use:   "write",
		Short: "Write coils or holding registers on a Modbus device",
		Example: `  modbus-cli write --transport tcp --addr 10.0.0.5:502 --unit 1 --table holding --address 0 --values 10,20,30
  modbus-cli write --transport rtu --port /dev/ttyUSB0 --unit 3 --table coils --address 0 --values true,false,true`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(flags)
		},
	}

	cmd.Flags().StringVar(&flags.transport, "transport", "tcp", "transport: tcp|rtu")
	cmd.Flags().StringVar(&flags.addr, "addr", "", "host:port for tcp transport")
	cmd.Flags().StringVar(&flags.port, "port", "", "serial device for rtu transport")
	cmd.Flags().IntVar(&flags.baudRate, "baud", 9600, "serial baud rate for rtu transport")
	cmd.Flags().Uint8Var(&flags.unit, "unit", 1, "unit/slave ID")
	cmd.Flags().IntVar(&flags.timeoutMs, "timeout-ms", 0, "exchange timeout in milliseconds (0 = library default)")
	cmd.Flags().StringVar(&flags.table, "table", "holding", "register table: coils|holding")
	cmd.Flags().Uint16Var(&flags.address, "address", 0, "starting address")
	cmd.Flags().StringVar(&flags.values, "values", "", "comma-separated values to write (required)")
	cmd.MarkFlagRequired("values")

	return cmd
}

func runWrite(flags *writeFlags) error {
	master, err := dialMaster(flags.transport, flags.addr, flags.port, flags.baudRate, flags.timeoutMs)
	if err != nil {
		return err
	}
	defer master.Close()

	switch strings.ToLower(flags.table) {
	case "coils":
		values, err := parseBoolValues(flags.values)
		if err != nil {
			return err
		}
		req := modbus.BuildWriteMultipleCoilsRequest(flags.address, values)
		if _, err := master.Execute(flags.unit, req); err != nil {
			return fmt.Errorf("write: %w", err)
		}
		fmt.Printf("wrote %d coil(s) starting at %d\n", len(values), flags.address)
		return nil
	case "holding":
		values, err := parseUint16Values(flags.values)
		if err != nil {
			return err
		}
		req := modbus.BuildWriteMultipleRegistersRequest(flags.address, values)
		if _, err := master.Execute(flags.unit, req); err != nil {
			return fmt.Errorf("write: %w", err)
		}
		fmt.Printf("wrote %d register(s) starting at %d\n", len(values), flags.address)
		return nil
	default:
		return fmt.Errorf("unknown table %q for write, expected coils|holding", flags.table)
	}
}

func parseBoolValues(raw string) ([]bool, error) {
	parts := strings.Split(raw, ",")
	values := make([]bool, 0, len(parts))
	for _, p := range parts {
		b, err := strconv.ParseBool(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid coil value %q: %w", p, err)
		}
		values = append(values, b)
	}
	return values, nil
}

func parseUint16Values(raw string) ([]uint16, error) {
	parts := strings.Split(raw, ",")
	values := make([]uint16, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid register value %q: %w", p, err)
		}
		values = append(values, uint16(n))
	}
	return values, nil
}
