// Package industrial provides adapters that expose the modbus engine
// (pkg/modbus) through the node.Executor contract, so Modbus
// operations can be driven the same way any other protocol node is:
// configured once via Init, then invoked per request via Execute.
package industrial

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/edgeflow/modbusd/internal/node"
	"github.com/edgeflow/modbusd/pkg/modbus"
)

// ModbusTCPNode is a Modbus/TCP master adapter. All wire-level framing
// and transaction bookkeeping is delegated to *modbus.TCPMaster; this
// type only translates node.Message payloads into modbus.PDU calls
// and back.
type ModbusTCPNode struct {
	host      string
	port      int
	unitID    uint8
	timeout   time.Duration
	operation string // read_coils, read_discrete, read_holding, read_input, write_coil, write_register, write_coils, write_registers
	address   uint16
	quantity  uint16

	mu     sync.Mutex
	master *modbus.TCPMaster
}

// NewModbusTCPNode creates a new Modbus TCP node.
func NewModbusTCPNode() *ModbusTCPNode {
	return &ModbusTCPNode{
		host:      "127.0.0.1",
		port:      502,
		unitID:    1,
		timeout:   5 * time.Second,
		operation: "read_holding",
		address:   0,
		quantity:  1,
	}
}

// Init initializes the Modbus TCP node.
func (n *ModbusTCPNode) Init(config map[string]interface{}) error {
	if host, ok := config["host"].(string); ok {
		n.host = host
	}
	if port, ok := config["port"].(float64); ok {
		n.port = int(port)
	}
	if unitID, ok := config["unitId"].(float64); ok {
		n.unitID = uint8(unitID)
	}
	if timeout, ok := config["timeout"].(float64); ok {
		n.timeout = time.Duration(timeout) * time.Millisecond
	}
	if op, ok := config["operation"].(string); ok {
		n.operation = op
	}
	if addr, ok := config["address"].(float64); ok {
		n.address = uint16(addr)
	}
	if qty, ok := config["quantity"].(float64); ok {
		n.quantity = uint16(qty)
	}

	n.master = modbus.NewTCPMaster(fmt.Sprintf("%s:%d", n.host, n.port))
	n.master.Timeout = n.timeout
	return nil
}

// Execute performs a Modbus TCP operation, overriding the node's
// configured defaults with anything present on msg.Payload.
func (n *ModbusTCPNode) Execute(ctx context.Context, msg node.Message) (node.Message, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	operation := n.operation
	address := n.address
	quantity := n.quantity
	var values []uint16

	if op, ok := msg.Payload["operation"].(string); ok {
		operation = op
	}
	if addr, ok := msg.Payload["address"].(float64); ok {
		address = uint16(addr)
	}
	if qty, ok := msg.Payload["quantity"].(float64); ok {
		quantity = uint16(qty)
	}
	if vals, ok := msg.Payload["values"].([]interface{}); ok {
		for _, v := range vals {
			if fv, ok := v.(float64); ok {
				values = append(values, uint16(fv))
			}
		}
	}
	if val, ok := msg.Payload["value"].(float64); ok {
		values = []uint16{uint16(val)}
	}

	result, err := n.dispatch(operation, address, quantity, values, msg)
	if err != nil {
		return msg, err
	}

	msg.Payload["result"] = result
	msg.Payload["operation"] = operation
	msg.Payload["address"] = address
	msg.Payload["unitId"] = n.unitID
	return msg, nil
}

func (n *ModbusTCPNode) dispatch(operation string, address, quantity uint16, values []uint16, msg node.Message) (interface{}, error) {
	switch operation {
	case "read_coils":
		return n.readBits(modbus.FuncReadCoils, address, quantity)
	case "read_discrete":
		return n.readBits(modbus.FuncReadDiscreteInputs, address, quantity)
	case "read_holding":
		return n.readRegisters(modbus.FuncReadHoldingRegisters, address, quantity)
	case "read_input":
		return n.readRegisters(modbus.FuncReadInputRegisters, address, quantity)
	case "write_coil":
		coilValue := len(values) > 0 && values[0] != 0
		if v, ok := msg.Payload["value"].(bool); ok {
			coilValue = v
		}
		resp, err := n.master.Execute(n.unitID, modbus.BuildWriteSingleCoilRequest(address, coilValue))
		if err != nil {
			return nil, err
		}
		_, _, ok := modbus.ParseWriteEchoResponse(resp)
		return map[string]interface{}{"success": ok, "address": address}, nil
	case "write_register":
		if len(values) == 0 {
			return nil, fmt.Errorf("no value provided for write_register")
		}
		resp, err := n.master.Execute(n.unitID, modbus.BuildWriteSingleRegisterRequest(address, values[0]))
		if err != nil {
			return nil, err
		}
		_, _, ok := modbus.ParseWriteEchoResponse(resp)
		return map[string]interface{}{"success": ok, "address": address, "value": values[0]}, nil
	case "write_coils":
		coilValues := make([]bool, len(values))
		for i, v := range values {
			coilValues[i] = v != 0
		}
		resp, err := n.master.Execute(n.unitID, modbus.BuildWriteMultipleCoilsRequest(address, coilValues))
		if err != nil {
			return nil, err
		}
		_, _, ok := modbus.ParseWriteEchoResponse(resp)
		return map[string]interface{}{"success": ok, "address": address, "quantity": len(coilValues)}, nil
	case "write_registers":
		resp, err := n.master.Execute(n.unitID, modbus.BuildWriteMultipleRegistersRequest(address, values))
		if err != nil {
			return nil, err
		}
		_, _, ok := modbus.ParseWriteEchoResponse(resp)
		return map[string]interface{}{"success": ok, "address": address, "quantity": len(values)}, nil
	default:
		return nil, fmt.Errorf("unknown operation: %s", operation)
	}
}

func (n *ModbusTCPNode) readBits(fc modbus.FunctionCode, address, quantity uint16) ([]bool, error) {
	resp, err := n.master.Execute(n.unitID, modbus.BuildReadRequest(fc, address, quantity))
	if err != nil {
		return nil, err
	}
	values, ok := modbus.ParseBitsResponse(resp, int(quantity))
	if !ok {
		return nil, fmt.Errorf("malformed bits response")
	}
	return values, nil
}

func (n *ModbusTCPNode) readRegisters(fc modbus.FunctionCode, address, quantity uint16) ([]uint16, error) {
	resp, err := n.master.Execute(n.unitID, modbus.BuildReadRequest(fc, address, quantity))
	if err != nil {
		return nil, err
	}
	values, ok := modbus.ParseRegistersResponse(resp)
	if !ok {
		return nil, fmt.Errorf("malformed registers response")
	}
	return values, nil
}

// Cleanup closes the Modbus connection.
func (n *ModbusTCPNode) Cleanup() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.master == nil {
		return nil
	}
	return n.master.Close()
}

// NewModbusTCPExecutor creates a new Modbus TCP executor.
func NewModbusTCPExecutor() node.Executor {
	return NewModbusTCPNode()
}
