package modbus

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer answers every request with a one-register response and
// records the transaction IDs it saw, so tests can assert correlation
// without a full Registry behind it.
type echoServer struct {
	ln net.Listener

	mu   sync.Mutex
	tids []uint16
}

func startEchoServer(t *testing.T) *echoServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &echoServer{ln: ln}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.handle(conn)
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return srv
}

func (s *echoServer) handle(conn net.Conn) {
	defer conn.Close()
	for {
		frame, err := readMBAPFrame(conn)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.tids = append(s.tids, frame.TransactionID)
		s.mu.Unlock()

		resp := BuildRegistersResponse(frame.PDU.Function, []uint16{0})
		if _, err := conn.Write(encodeMBAP(frame.TransactionID, frame.UnitID, resp)); err != nil {
			return
		}
	}
}

func (s *echoServer) transactionIDs() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint16, len(s.tids))
	copy(out, s.tids)
	return out
}

func TestTCPMasterTransactionIDsAreConsecutive(t *testing.T) {
	srv := startEchoServer(t)

	master := NewTCPMaster(srv.ln.Addr().String())
	master.Timeout = 2 * time.Second
	t.Cleanup(func() { master.Close() })

	for i := 0; i < 3; i++ {
		_, err := master.Execute(1, BuildReadRequest(FuncReadHoldingRegisters, 0, 1))
		require.NoError(t, err)
	}

	tids := srv.transactionIDs()
	require.Len(t, tids, 3)
	assert.Equal(t, tids[0]+1, tids[1])
	assert.Equal(t, tids[1]+1, tids[2])
}

func TestTCPMasterRejectsMismatchedTransactionID(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		frame, err := readMBAPFrame(conn)
		if err != nil {
			return
		}
		resp := BuildRegistersResponse(frame.PDU.Function, []uint16{0})
		conn.Write(encodeMBAP(frame.TransactionID+1, frame.UnitID, resp))
	}()

	master := NewTCPMaster(ln.Addr().String())
	master.Timeout = 2 * time.Second
	t.Cleanup(func() { master.Close() })

	_, err = master.Execute(1, BuildReadRequest(FuncReadHoldingRegisters, 0, 1))
	require.Error(t, err)
	me, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindProtocol, me.Kind)
}

func TestTCPMasterReconnectsAfterServerDropsConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	// First connection is dropped without a reply; the second behaves.
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		readMBAPFrame(conn)
		conn.Close()

		conn, err = ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		frame, err := readMBAPFrame(conn)
		if err != nil {
			return
		}
		resp := BuildRegistersResponse(frame.PDU.Function, []uint16{7})
		conn.Write(encodeMBAP(frame.TransactionID, frame.UnitID, resp))
	}()

	master := NewTCPMaster(ln.Addr().String())
	master.Timeout = 2 * time.Second
	t.Cleanup(func() { master.Close() })

	resp, err := master.Execute(1, BuildReadRequest(FuncReadHoldingRegisters, 0, 1))
	require.NoError(t, err)
	values, ok := ParseRegistersResponse(resp)
	require.True(t, ok)
	assert.Equal(t, []uint16{7}, values)
}
