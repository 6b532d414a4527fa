package modbus

import "encoding/binary"

// DataStore resolves slave IDs to their backing Slave for the
// dispatcher. Server (TCP and RTU) share one implementation so the
// function-code handling in this file never duplicates per-transport.
type DataStore interface {
	// Slave returns the slave registered under id, or false if none
	// is registered.
	Slave(id uint8) (*Slave, bool)
}

// blockKindFor maps a read/write function code to the address space
// it operates on.
func blockKindFor(fc FunctionCode) (BlockKind, bool) {
	switch fc {
	case FuncReadCoils, FuncWriteSingleCoil, FuncWriteMultipleCoils:
		return Coils, true
	case FuncReadDiscreteInputs:
		return DiscreteInputs, true
	case FuncReadHoldingRegisters, FuncWriteSingleRegister, FuncWriteMultipleRegs:
		return HoldingRegisters, true
	case FuncReadInputRegisters:
		return InputRegisters, true
	default:
		return 0, false
	}
}

// Dispatch resolves the slave addressed by a request PDU and applies
// it against store, returning the response PDU. store is never nil;
// callers pass the Server's registry. This is the single function-code
// dispatch table shared by the TCP and RTU servers: body-shape
// validation, address/quantity bounds, and the exception mapping.
func Dispatch(store DataStore, unitID uint8, req PDU) PDU {
	return DispatchWith(store, unitID, req, nil)
}

// DispatchWith is Dispatch with an optional Logger for debug-level
// diagnostics (reads that miss every block still answer with
// defaults, but the miss is logged here).
func DispatchWith(store DataStore, unitID uint8, req PDU, log Logger) PDU {
	slave, ok := store.Slave(unitID)
	if !ok {
		return BuildExceptionResponse(req.Function, ExcSlaveDeviceFailure)
	}

	switch req.Function {
	case FuncReadCoils, FuncReadDiscreteInputs, FuncReadHoldingRegisters, FuncReadInputRegisters:
		return dispatchRead(slave, req, logOrNoop(log))
	case FuncWriteSingleCoil:
		return dispatchWriteSingleCoil(slave, req)
	case FuncWriteSingleRegister:
		return dispatchWriteSingleRegister(slave, req)
	case FuncWriteMultipleCoils:
		return dispatchWriteMultipleCoils(slave, req)
	case FuncWriteMultipleRegs:
		return dispatchWriteMultipleRegisters(slave, req)
	default:
		return BuildExceptionResponse(req.Function, ExcIllegalFunction)
	}
}

func dispatchRead(slave *Slave, req PDU, log Logger) PDU {
	if len(req.Body) != 4 {
		return BuildExceptionResponse(req.Function, ExcIllegalDataValue)
	}
	kind, _ := blockKindFor(req.Function)
	address := binary.BigEndian.Uint16(req.Body[0:])
	qty := binary.BigEndian.Uint16(req.Body[2:])

	if qty == 0 {
		return BuildExceptionResponse(req.Function, ExcIllegalDataValue)
	}
	if kind.isBit() {
		if qty > maxReadBits {
			return BuildExceptionResponse(req.Function, ExcIllegalDataValue)
		}
	} else if qty > maxReadRegs {
		return BuildExceptionResponse(req.Function, ExcIllegalDataValue)
	}
	if uint32(address)+uint32(qty) > 0x10000 {
		return BuildExceptionResponse(req.Function, ExcIllegalDataAddress)
	}

	values, covered := slave.readByKind(kind, address, int(qty))
	if !covered {
		log.Debugw("read misses every block, answering defaults",
			"slave_id", slave.ID, "kind", kind.String(), "address", address, "quantity", qty)
	}
	if kind.isBit() {
		return BuildBitsResponse(req.Function, values.([]bool))
	}
	return BuildRegistersResponse(req.Function, values.([]uint16))
}

func dispatchWriteSingleCoil(slave *Slave, req PDU) PDU {
	if len(req.Body) != 4 {
		return BuildExceptionResponse(req.Function, ExcIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Body[0:])
	raw := binary.BigEndian.Uint16(req.Body[2:])
	if raw != coilOn && raw != coilOff {
		return BuildExceptionResponse(req.Function, ExcIllegalDataValue)
	}

	slave.writeByKind(Coils, address, []bool{raw == coilOn})
	return BuildWriteEchoResponse(req.Function, address, raw)
}

func dispatchWriteSingleRegister(slave *Slave, req PDU) PDU {
	if len(req.Body) != 4 {
		return BuildExceptionResponse(req.Function, ExcIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Body[0:])
	value := binary.BigEndian.Uint16(req.Body[2:])

	slave.writeByKind(HoldingRegisters, address, []uint16{value})
	return BuildWriteEchoResponse(req.Function, address, value)
}

func dispatchWriteMultipleCoils(slave *Slave, req PDU) PDU {
	if len(req.Body) < 5 {
		return BuildExceptionResponse(req.Function, ExcIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Body[0:])
	qty := binary.BigEndian.Uint16(req.Body[2:])
	byteCount := int(req.Body[4])

	if qty == 0 || qty > maxReadBits {
		return BuildExceptionResponse(req.Function, ExcIllegalDataValue)
	}
	expectedBytes := (int(qty) + 7) / 8
	if byteCount != expectedBytes || len(req.Body) != 5+byteCount {
		return BuildExceptionResponse(req.Function, ExcIllegalDataValue)
	}
	if uint32(address)+uint32(qty) > 0x10000 {
		return BuildExceptionResponse(req.Function, ExcIllegalDataAddress)
	}

	values := unpackBits(req.Body[5:5+byteCount], int(qty))
	slave.writeByKind(Coils, address, values)
	return BuildWriteMultipleResponse(req.Function, address, qty)
}

func dispatchWriteMultipleRegisters(slave *Slave, req PDU) PDU {
	if len(req.Body) < 5 {
		return BuildExceptionResponse(req.Function, ExcIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Body[0:])
	qty := binary.BigEndian.Uint16(req.Body[2:])
	byteCount := int(req.Body[4])

	if qty == 0 || qty > maxReadRegs {
		return BuildExceptionResponse(req.Function, ExcIllegalDataValue)
	}
	if byteCount != 2*int(qty) || len(req.Body) != 5+byteCount {
		return BuildExceptionResponse(req.Function, ExcIllegalDataValue)
	}
	if uint32(address)+uint32(qty) > 0x10000 {
		return BuildExceptionResponse(req.Function, ExcIllegalDataAddress)
	}

	values := make([]uint16, qty)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(req.Body[5+2*i:])
	}
	slave.writeByKind(HoldingRegisters, address, values)
	return BuildWriteMultipleResponse(req.Function, address, qty)
}
