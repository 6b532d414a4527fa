package modbus

import (
	"encoding/binary"
	"fmt"
	"io"
)

// mbapHeaderLen is the fixed MBAP header size: transaction_id(2),
// protocol_id(2), length(2), unit_id(1).
const mbapHeaderLen = 7

// mbapFrame is a fully reassembled Modbus/TCP frame: header fields
// plus the PDU that follows the unit_id byte.
type mbapFrame struct {
	TransactionID uint16
	ProtocolID    uint16
	UnitID        byte
	PDU           PDU
}

// encodeMBAP wraps a PDU with an MBAP header. The length field covers
// unit_id plus the PDU.
func encodeMBAP(transactionID uint16, unitID byte, pdu PDU) []byte {
	encoded := pdu.Encode()
	length := 1 + len(encoded)
	out := make([]byte, mbapHeaderLen+len(encoded))
	binary.BigEndian.PutUint16(out[0:], transactionID)
	binary.BigEndian.PutUint16(out[2:], 0) // protocol_id
	binary.BigEndian.PutUint16(out[4:], uint16(length))
	out[6] = unitID
	copy(out[7:], encoded)
	return out
}

// readMBAPFrame reassembles one frame from a stream: 7 header bytes,
// then length-1 more bytes. A truncated header or body is reported as
// io.ErrUnexpectedEOF so callers can treat the connection as closed.
func readMBAPFrame(r io.Reader) (*mbapFrame, error) {
	header := make([]byte, mbapHeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	transactionID := binary.BigEndian.Uint16(header[0:])
	protocolID := binary.BigEndian.Uint16(header[2:])
	length := binary.BigEndian.Uint16(header[4:])
	unitID := header[6]

	if protocolID != 0 {
		return nil, fmt.Errorf("mbap: non-zero protocol id %d", protocolID)
	}
	if length < 1 {
		return nil, fmt.Errorf("mbap: length field %d too short", length)
	}

	body := make([]byte, length-1)
	if len(body) > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, err
		}
	}

	pdu, ok := DecodePDU(body)
	if !ok {
		return nil, fmt.Errorf("mbap: empty PDU")
	}

	return &mbapFrame{
		TransactionID: transactionID,
		ProtocolID:    protocolID,
		UnitID:        unitID,
		PDU:           pdu,
	}, nil
}
