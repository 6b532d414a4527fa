package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/edgeflow/modbusd/pkg/modbus"
	"github.com/spf13/cobra"
)

type readFlags struct {
	transport string // tcp or rtu
	addr      string // host:port for tcp
	port      string // serial device for rtu
	baudRate  int
	unit      uint8
	table     string // coils, discrete, holding, input
	address   uint16
	quantity  uint16
	timeoutMs int
}

func newReadCmd() *cobra.Command {
	flags := &readFlags{}

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read coils or registers from a Modbus device",
		Example: `  modbus-cli read --transport tcp --addr 10.0.0.5:502 --unit 1 --table holding --address 0 --quantity 10
  modbus-cli read --transport rtu --port /dev/ttyUSB0 --unit 3 --table coils --address 0 --quantity 16`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(flags)
		},
	}

	cmd.Flags().StringVar(&flags.transport, "transport", "tcp", "transport: tcp|rtu")
	cmd.Flags().StringVar(&flags.addr, "addr", "", "host:port for tcp transport")
	cmd.Flags().StringVar(&flags.port, "port", "", "serial device for rtu transport")
	cmd.Flags().IntVar(&flags.baudRate, "baud", 9600, "serial baud rate for rtu transport")
	cmd.Flags().Uint8Var(&flags.unit, "unit", 1, "unit/slave ID")
	cmd.Flags().IntVar(&flags.timeoutMs, "timeout-ms", 0, "exchange timeout in milliseconds (0 = library default)")
	cmd.Flags().StringVar(&flags.table, "table", "holding", "register table: coils|discrete|holding|input")
	cmd.Flags().Uint16Var(&flags.address, "address", 0, "starting address")
	cmd.Flags().Uint16Var(&flags.quantity, "quantity", 1, "number of elements to read")

	return cmd
}

func runRead(flags *readFlags) error {
	master, err := dialMaster(flags.transport, flags.addr, flags.port, flags.baudRate, flags.timeoutMs)
	if err != nil {
		return err
	}
	defer master.Close()

	fc, isBit, err := tableFuncCode(flags.table, false)
	if err != nil {
		return err
	}

	resp, err := master.Execute(flags.unit, modbus.BuildReadRequest(fc, flags.address, flags.quantity))
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	if isBit {
		values, ok := modbus.ParseBitsResponse(resp, int(flags.quantity))
		if !ok {
			return fmt.Errorf("malformed response")
		}
		printBits(flags.address, values)
		return nil
	}

	values, ok := modbus.ParseRegistersResponse(resp)
	if !ok {
		return fmt.Errorf("malformed response")
	}
	printRegisters(flags.address, values)
	return nil
}

func printBits(start uint16, values []bool) {
	for i, v := range values {
		fmt.Printf("%-6d %t\n", int(start)+i, v)
	}
}

func printRegisters(start uint16, values []uint16) {
	for i, v := range values {
		fmt.Printf("%-6d %d (0x%04X)\n", int(start)+i, v, v)
	}
}

// masterCloser is the common subset of *modbus.TCPMaster and
// *modbus.RTUMaster used by the CLI subcommands.
type masterCloser interface {
	Execute(unitID uint8, req modbus.PDU) (modbus.PDU, error)
	Close() error
}

func dialMaster(transport, addr, port string, baudRate, timeoutMs int) (masterCloser, error) {
	switch strings.ToLower(transport) {
	case "", "tcp":
		if addr == "" {
			return nil, fmt.Errorf("--addr is required for tcp transport")
		}
		m := modbus.NewTCPMaster(addr)
		if timeoutMs > 0 {
			m.Timeout = time.Duration(timeoutMs) * time.Millisecond
		}
		return m, nil
	case "rtu":
		if port == "" {
			return nil, fmt.Errorf("--port is required for rtu transport")
		}
		m := modbus.NewRTUMaster(modbus.SerialConfig{
			Port:     port,
			BaudRate: baudRate,
			DataBits: 8,
			StopBits: 1,
			Parity:   "none",
		})
		if timeoutMs > 0 {
			m.Timeout = time.Duration(timeoutMs) * time.Millisecond
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown transport %q, expected tcp or rtu", transport)
	}
}

func tableFuncCode(table string, forWrite bool) (modbus.FunctionCode, bool, error) {
	switch strings.ToLower(table) {
	case "coils":
		if forWrite {
			return modbus.FuncWriteMultipleCoils, true, nil
		}
		return modbus.FuncReadCoils, true, nil
	case "discrete":
		if forWrite {
			return 0, true, fmt.Errorf("discrete inputs are read-only")
		}
		return modbus.FuncReadDiscreteInputs, true, nil
	case "holding":
		if forWrite {
			return modbus.FuncWriteMultipleRegs, false, nil
		}
		return modbus.FuncReadHoldingRegisters, false, nil
	case "input":
		if forWrite {
			return 0, false, fmt.Errorf("input registers are read-only")
		}
		return modbus.FuncReadInputRegisters, false, nil
	default:
		return 0, false, fmt.Errorf("unknown table %q, expected coils|discrete|holding|input", table)
	}
}
