package modbus

import (
	"time"

	"go.bug.st/serial"
)

// RTUServer listens on a single serial line and dispatches frames
// against Registry. Unlike TCPServer there is exactly one reader: RTU
// has no notion of concurrent connections, only a shared bus.
// Malformed frames (bad CRC) and frames addressed to an
// unregistered slave are silently dropped, matching real RTU slave
// behavior; broadcast requests (unit 0) are applied but never
// answered.
type RTUServer struct {
	Registry *Registry
	Logger   Logger

	port   serial.Port
	timing rtuTiming
	stopCh chan struct{}
}

// NewRTUServer constructs a server backed by reg, opening cfg.Port
// with the given line parameters.
func NewRTUServer(reg *Registry, cfg SerialConfig) (*RTUServer, error) {
	p, err := serial.Open(cfg.Port, cfg.toMode())
	if err != nil {
		return nil, newErr("rtu_server.open", KindIO, err)
	}
	return &RTUServer{
		Registry: reg,
		port:     p,
		timing:   newRTUTiming(cfg.BaudRate),
		stopCh:   make(chan struct{}),
	}, nil
}

// Serve runs the read-dispatch-reply loop until Stop is called. It
// blocks the calling goroutine; callers typically run it in its own
// goroutine from cmd/modbusd.
func (s *RTUServer) Serve() error {
	log := logOrNoop(s.Logger)
	log.Infow("rtu server listening")

	for {
		select {
		case <-s.stopCh:
			return nil
		default:
		}

		if err := s.port.SetReadTimeout(s.timing.t35); err != nil {
			return newErr("rtu_server.read_timeout", KindIO, err)
		}

		raw, err := readRTUFrame(s.port, time.Time{})
		if err != nil {
			me, ok := AsError(err)
			if ok && me.Kind == KindTimeout {
				continue
			}
			select {
			case <-s.stopCh:
				return nil
			default:
			}
			return err
		}

		unitID, pdu, ok := parseRTUFrame(raw)
		if !ok {
			log.Debugw("dropped malformed frame", "len", len(raw))
			continue
		}

		if unitID == 0 {
			s.handleBroadcast(pdu)
			continue
		}

		if _, exists := s.Registry.Slave(unitID); !exists {
			log.Debugw("dropped frame for unknown slave", "unit_id", unitID)
			continue
		}

		resp := DispatchWith(s.Registry, unitID, pdu, log)
		time.Sleep(s.timing.t35)

		out := buildRTUFrame(unitID, resp)
		if _, err := s.port.Write(out); err != nil {
			log.Warnw("reply write failed", "error", err.Error())
		}
	}
}

// handleBroadcast applies a broadcast write against every registered
// slave without sending a reply. Non-write function codes are not
// meaningful as broadcasts and are ignored.
func (s *RTUServer) handleBroadcast(pdu PDU) {
	switch pdu.Function {
	case FuncWriteSingleCoil, FuncWriteSingleRegister, FuncWriteMultipleCoils, FuncWriteMultipleRegs:
	default:
		return
	}
	for _, id := range s.Registry.SlaveIDs() {
		Dispatch(s.Registry, id, pdu)
	}
}

// Stop signals Serve to exit and closes the serial port.
func (s *RTUServer) Stop() error {
	close(s.stopCh)
	return s.port.Close()
}
