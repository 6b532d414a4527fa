package industrial

import (
	"context"
	"net"
	"strconv"
	"testing"

	"github.com/edgeflow/modbusd/internal/node"
	"github.com/edgeflow/modbusd/pkg/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startLoopbackServer(t *testing.T) string {
	t.Helper()
	reg := modbus.NewRegistry()
	s := modbus.NewSlave(1)
	require.NoError(t, s.AddBlock("holding", modbus.HoldingRegisters, 0, 20))
	require.NoError(t, reg.AddSlave(s))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := modbus.NewTCPServer(reg)
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Stop() })

	return ln.Addr().String()
}

func TestModbusTCPNodeReadHolding(t *testing.T) {
	addr := startLoopbackServer(t)
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	n := NewModbusTCPNode()
	require.NoError(t, n.Init(map[string]interface{}{
		"host":      host,
		"port":      parsePortFloat(t, portStr),
		"unitId":    float64(1),
		"operation": "read_holding",
		"address":   float64(0),
		"quantity":  float64(3),
	}))
	defer n.Cleanup()

	msg, err := n.Execute(context.Background(), node.Message{Payload: map[string]interface{}{}})
	require.NoError(t, err)

	result, ok := msg.Payload["result"].([]uint16)
	require.True(t, ok)
	assert.Equal(t, []uint16{0, 0, 0}, result)
}

func TestModbusTCPNodeWriteThenReadRoundTrip(t *testing.T) {
	addr := startLoopbackServer(t)
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	n := NewModbusTCPNode()
	require.NoError(t, n.Init(map[string]interface{}{
		"host": host,
		"port": parsePortFloat(t, portStr),
	}))
	defer n.Cleanup()

	_, err = n.Execute(context.Background(), node.Message{Payload: map[string]interface{}{
		"operation": "write_registers",
		"address":   float64(0),
		"values":    []interface{}{float64(10), float64(20)},
	}})
	require.NoError(t, err)

	msg, err := n.Execute(context.Background(), node.Message{Payload: map[string]interface{}{
		"operation": "read_holding",
		"address":   float64(0),
		"quantity":  float64(2),
	}})
	require.NoError(t, err)

	result, ok := msg.Payload["result"].([]uint16)
	require.True(t, ok)
	assert.Equal(t, []uint16{10, 20}, result)
}

func TestModbusTCPNodeUnknownOperation(t *testing.T) {
	addr := startLoopbackServer(t)
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	n := NewModbusTCPNode()
	require.NoError(t, n.Init(map[string]interface{}{"host": host, "port": parsePortFloat(t, portStr)}))
	defer n.Cleanup()

	_, err = n.Execute(context.Background(), node.Message{Payload: map[string]interface{}{
		"operation": "teleport",
	}})
	assert.Error(t, err)
}

func parsePortFloat(t *testing.T, portStr string) float64 {
	t.Helper()
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return float64(port)
}
