package modbus

import (
	"fmt"
	"io"
	"time"
)

// minRTUFrameLen is the smallest legal RTU frame: slave(1) +
// function(1) + crc(2). Data-bearing frames are at least 5 bytes;
// callers that know they expect a data-bearing reply should check
// length themselves after this minimum passes.
const minRTUFrameLen = 4

// buildRTUFrame wraps a PDU for a given unit/slave address with a
// trailing little-endian CRC-16.
func buildRTUFrame(unitID byte, pdu PDU) []byte {
	encoded := pdu.Encode()
	frame := make([]byte, 0, 1+len(encoded)+2)
	frame = append(frame, unitID)
	frame = append(frame, encoded...)
	return AppendCRC(frame)
}

// parseRTUFrame validates and strips an RTU frame's CRC, returning the
// slave address and decoded PDU.
func parseRTUFrame(frame []byte) (unitID byte, pdu PDU, ok bool) {
	if len(frame) < minRTUFrameLen {
		return 0, PDU{}, false
	}
	if !VerifyCRC(frame) {
		return 0, PDU{}, false
	}
	body := frame[:len(frame)-2]
	decoded, ok := DecodePDU(body[1:])
	if !ok {
		return 0, PDU{}, false
	}
	return body[0], decoded, true
}

// readRTUFrame accumulates bytes from r until a silence of at least
// r's configured read timeout is observed (the caller must have set
// that timeout to the desired inter-frame gap before calling), or
// deadline passes. This implements the IDLE -> RECEIVING -> FRAME_READY
// receiver transitions: a Read returning zero bytes with no error
// signals the gap; non-zero bytes keep the frame growing.
func readRTUFrame(r io.Reader, deadline time.Time) ([]byte, error) {
	buf := make([]byte, 0, 256)
	chunk := make([]byte, 256)
	for {
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			if len(buf) > 0 {
				return buf, nil
			}
			return nil, newErr("rtu.read", KindTimeout, fmt.Errorf("no frame before deadline"))
		}

		n, err := r.Read(chunk)
		if err != nil {
			if len(buf) > 0 {
				return buf, nil
			}
			return nil, newErr("rtu.read", KindIO, err)
		}
		if n == 0 {
			if len(buf) > 0 {
				return buf, nil
			}
			continue
		}
		buf = append(buf, chunk[:n]...)
	}
}
