package modbus

import "encoding/binary"

// FunctionCode identifies a Modbus request/response operation.
type FunctionCode byte

const (
	FuncReadCoils            FunctionCode = 0x01
	FuncReadDiscreteInputs   FunctionCode = 0x02
	FuncReadHoldingRegisters FunctionCode = 0x03
	FuncReadInputRegisters   FunctionCode = 0x04
	FuncWriteSingleCoil      FunctionCode = 0x05
	FuncWriteSingleRegister  FunctionCode = 0x06
	FuncWriteMultipleCoils   FunctionCode = 0x0F
	FuncWriteMultipleRegs    FunctionCode = 0x10
)

// exceptionBit is OR'd onto the request function code to mark an
// exception response.
const exceptionBit FunctionCode = 0x80

func (f FunctionCode) String() string {
	switch f &^ exceptionBit {
	case FuncReadCoils:
		return "ReadCoils"
	case FuncReadDiscreteInputs:
		return "ReadDiscreteInputs"
	case FuncReadHoldingRegisters:
		return "ReadHoldingRegisters"
	case FuncReadInputRegisters:
		return "ReadInputRegisters"
	case FuncWriteSingleCoil:
		return "WriteSingleCoil"
	case FuncWriteSingleRegister:
		return "WriteSingleRegister"
	case FuncWriteMultipleCoils:
		return "WriteMultipleCoils"
	case FuncWriteMultipleRegs:
		return "WriteMultipleRegisters"
	default:
		return "Unknown"
	}
}

// IsException reports whether the function code carries the exception
// marker bit (0x80).
func (f FunctionCode) IsException() bool { return f&exceptionBit != 0 }

// ExceptionCode identifies why the server refused a request.
type ExceptionCode byte

const (
	ExcIllegalFunction    ExceptionCode = 1
	ExcIllegalDataAddress ExceptionCode = 2
	ExcIllegalDataValue   ExceptionCode = 3
	ExcSlaveDeviceFailure ExceptionCode = 4
)

func (e ExceptionCode) String() string {
	switch e {
	case ExcIllegalFunction:
		return "ILLEGAL_FUNCTION"
	case ExcIllegalDataAddress:
		return "ILLEGAL_DATA_ADDRESS"
	case ExcIllegalDataValue:
		return "ILLEGAL_DATA_VALUE"
	case ExcSlaveDeviceFailure:
		return "SLAVE_DEVICE_FAILURE"
	default:
		return "UNKNOWN_EXCEPTION"
	}
}

const (
	coilOn  uint16 = 0xFF00
	coilOff uint16 = 0x0000

	// maxReadBits/maxReadRegs bound both reads and writes: qty > 2000
	// (bits) or qty > 125 (registers) is ILLEGAL_DATA_VALUE regardless
	// of direction. The Modbus standard draws tighter write-side
	// limits (1968/123, derived from the single-byte byte_count
	// field); devices in the field accept the looser bound.
	maxReadBits = 2000
	maxReadRegs = 125
)

// PDU is the transport-neutral Protocol Data Unit: a function code and
// its body, shared verbatim by both MBAP and RTU framing.
type PDU struct {
	Function FunctionCode
	Body     []byte
}

// Encode serializes the PDU as it appears on the wire (function code
// byte followed by body).
func (p PDU) Encode() []byte {
	out := make([]byte, 1+len(p.Body))
	out[0] = byte(p.Function)
	copy(out[1:], p.Body)
	return out
}

// DecodePDU splits a raw byte slice into its function code and body.
func DecodePDU(raw []byte) (PDU, bool) {
	if len(raw) < 1 {
		return PDU{}, false
	}
	return PDU{Function: FunctionCode(raw[0]), Body: raw[1:]}, true
}

// packBits packs booleans LSB-first into bytes, element i at bit
// i%8 of byte i/8.
func packBits(values []bool) []byte {
	out := make([]byte, (len(values)+7)/8)
	for i, v := range values {
		if v {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// unpackBits unpacks LSB-first bit-packed bytes into count booleans.
func unpackBits(data []byte, count int) []bool {
	out := make([]bool, count)
	for i := 0; i < count; i++ {
		byteIdx, bitIdx := i/8, uint(i%8)
		if byteIdx >= len(data) {
			break
		}
		out[i] = data[byteIdx]&(1<<bitIdx) != 0
	}
	return out
}

// --- request builders ---

// BuildReadRequest builds the request body for FC 0x01/02/03/04:
// starting address and quantity.
func BuildReadRequest(fc FunctionCode, address, quantity uint16) PDU {
	body := make([]byte, 4)
	binary.BigEndian.PutUint16(body[0:], address)
	binary.BigEndian.PutUint16(body[2:], quantity)
	return PDU{Function: fc, Body: body}
}

// BuildWriteSingleCoilRequest builds the FC 0x05 request body.
func BuildWriteSingleCoilRequest(address uint16, value bool) PDU {
	body := make([]byte, 4)
	binary.BigEndian.PutUint16(body[0:], address)
	v := coilOff
	if value {
		v = coilOn
	}
	binary.BigEndian.PutUint16(body[2:], v)
	return PDU{Function: FuncWriteSingleCoil, Body: body}
}

// BuildWriteSingleRegisterRequest builds the FC 0x06 request body.
func BuildWriteSingleRegisterRequest(address, value uint16) PDU {
	body := make([]byte, 4)
	binary.BigEndian.PutUint16(body[0:], address)
	binary.BigEndian.PutUint16(body[2:], value)
	return PDU{Function: FuncWriteSingleRegister, Body: body}
}

// BuildWriteMultipleCoilsRequest builds the FC 0x0F request body.
func BuildWriteMultipleCoilsRequest(address uint16, values []bool) PDU {
	packed := packBits(values)
	body := make([]byte, 5+len(packed))
	binary.BigEndian.PutUint16(body[0:], address)
	binary.BigEndian.PutUint16(body[2:], uint16(len(values)))
	body[4] = byte(len(packed))
	copy(body[5:], packed)
	return PDU{Function: FuncWriteMultipleCoils, Body: body}
}

// BuildWriteMultipleRegistersRequest builds the FC 0x10 request body.
func BuildWriteMultipleRegistersRequest(address uint16, values []uint16) PDU {
	body := make([]byte, 5+2*len(values))
	binary.BigEndian.PutUint16(body[0:], address)
	binary.BigEndian.PutUint16(body[2:], uint16(len(values)))
	body[4] = byte(2 * len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(body[5+2*i:], v)
	}
	return PDU{Function: FuncWriteMultipleRegs, Body: body}
}

// --- response builders ---

// BuildBitsResponse builds a byte_count + packed-bits response body
// for FC 0x01/0x02.
func BuildBitsResponse(fc FunctionCode, values []bool) PDU {
	packed := packBits(values)
	body := make([]byte, 1+len(packed))
	body[0] = byte(len(packed))
	copy(body[1:], packed)
	return PDU{Function: fc, Body: body}
}

// BuildRegistersResponse builds a byte_count + registers response body
// for FC 0x03/0x04.
func BuildRegistersResponse(fc FunctionCode, values []uint16) PDU {
	body := make([]byte, 1+2*len(values))
	body[0] = byte(2 * len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(body[1+2*i:], v)
	}
	return PDU{Function: fc, Body: body}
}

// BuildWriteEchoResponse builds the address+value echo response shared
// by FC 0x05/0x06.
func BuildWriteEchoResponse(fc FunctionCode, address, value uint16) PDU {
	body := make([]byte, 4)
	binary.BigEndian.PutUint16(body[0:], address)
	binary.BigEndian.PutUint16(body[2:], value)
	return PDU{Function: fc, Body: body}
}

// BuildWriteMultipleResponse builds the address+quantity response
// shared by FC 0x0F/0x10.
func BuildWriteMultipleResponse(fc FunctionCode, address, quantity uint16) PDU {
	return PDU{Function: fc, Body: append(binary.BigEndian.AppendUint16(nil, address), binary.BigEndian.AppendUint16(nil, quantity)...)}
}

// BuildExceptionResponse builds an exception PDU: the request function
// code OR'd with 0x80 plus the one-byte exception code.
func BuildExceptionResponse(fc FunctionCode, code ExceptionCode) PDU {
	return PDU{Function: fc | exceptionBit, Body: []byte{byte(code)}}
}

// --- response parsers ---

// ParseBitsResponse decodes a byte_count+packed-bits body into count
// booleans, truncating the decoded sequence to count.
func ParseBitsResponse(p PDU, count int) ([]bool, bool) {
	if len(p.Body) < 1 {
		return nil, false
	}
	byteCount := int(p.Body[0])
	if len(p.Body) < 1+byteCount {
		return nil, false
	}
	return unpackBits(p.Body[1:1+byteCount], count), true
}

// ParseRegistersResponse decodes a byte_count+registers body.
func ParseRegistersResponse(p PDU) ([]uint16, bool) {
	if len(p.Body) < 1 {
		return nil, false
	}
	byteCount := int(p.Body[0])
	if len(p.Body) < 1+byteCount || byteCount%2 != 0 {
		return nil, false
	}
	regs := make([]uint16, byteCount/2)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(p.Body[1+2*i:])
	}
	return regs, true
}

// ParseWriteEchoResponse decodes the address+value shared by FC
// 0x05/0x06/0x0F/0x10 responses.
func ParseWriteEchoResponse(p PDU) (address, value uint16, ok bool) {
	if len(p.Body) < 4 {
		return 0, 0, false
	}
	return binary.BigEndian.Uint16(p.Body[0:]), binary.BigEndian.Uint16(p.Body[2:]), true
}

// ParseExceptionResponse extracts the exception code from an
// exception PDU.
func ParseExceptionResponse(p PDU) (ExceptionCode, bool) {
	if !p.Function.IsException() || len(p.Body) < 1 {
		return 0, false
	}
	return ExceptionCode(p.Body[0]), true
}
