package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC16KnownVector(t *testing.T) {
	// Read Holding Registers request: slave 1, FC 3, addr 0, qty 10.
	frame := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A}
	got := CRC16(frame)
	assert.Equal(t, uint16(0xCDC5), got)
}

func TestAppendCRCRoundTrip(t *testing.T) {
	frame := []byte{0x11, 0x06, 0x00, 0x01, 0x00, 0x03}
	withCRC := AppendCRC(frame)
	require.Len(t, withCRC, len(frame)+2)
	assert.True(t, VerifyCRC(withCRC))
}

func TestVerifyCRCRejectsCorruption(t *testing.T) {
	frame := AppendCRC([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A})
	frame[0] ^= 0xFF
	assert.False(t, VerifyCRC(frame))
}

func TestVerifyCRCTooShort(t *testing.T) {
	assert.False(t, VerifyCRC([]byte{0x01}))
}
