package modbus

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeMBAPRoundTrip(t *testing.T) {
	pdu := BuildReadRequest(FuncReadHoldingRegisters, 0, 10)
	raw := encodeMBAP(42, 1, pdu)

	frame, err := readMBAPFrame(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, uint16(42), frame.TransactionID)
	assert.Equal(t, uint16(0), frame.ProtocolID)
	assert.Equal(t, byte(1), frame.UnitID)
	assert.Equal(t, pdu.Function, frame.PDU.Function)
	assert.Equal(t, pdu.Body, frame.PDU.Body)
}

func TestReadMBAPFrameRejectsNonZeroProtocolID(t *testing.T) {
	raw := encodeMBAP(1, 1, BuildReadRequest(FuncReadCoils, 0, 1))
	raw[2] = 0x00
	raw[3] = 0x01 // protocol_id = 1

	_, err := readMBAPFrame(bytes.NewReader(raw))
	assert.Error(t, err)
}

func TestReadMBAPFrameRejectsTruncatedHeader(t *testing.T) {
	_, err := readMBAPFrame(bytes.NewReader([]byte{0x00, 0x01, 0x00}))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadMBAPFrameRejectsTruncatedBody(t *testing.T) {
	raw := encodeMBAP(1, 1, BuildReadRequest(FuncReadCoils, 0, 1))
	_, err := readMBAPFrame(bytes.NewReader(raw[:len(raw)-2]))
	assert.Error(t, err)
}

func TestReadMBAPFrameHandlesBackToBackFrames(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(encodeMBAP(1, 1, BuildReadRequest(FuncReadCoils, 0, 1)))
	buf.Write(encodeMBAP(2, 1, BuildReadRequest(FuncReadHoldingRegisters, 0, 1)))

	first, err := readMBAPFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), first.TransactionID)

	second, err := readMBAPFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), second.TransactionID)
}
