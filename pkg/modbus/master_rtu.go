package modbus

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// SerialConfig describes the line parameters for an RTU transport.
type SerialConfig struct {
	Port     string
	BaudRate int
	DataBits int
	StopBits int    // 1 or 2
	Parity   string // none, odd, even
}

func (c SerialConfig) toMode() *serial.Mode {
	mode := &serial.Mode{BaudRate: c.BaudRate, DataBits: c.DataBits}
	switch c.StopBits {
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}
	switch c.Parity {
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode
}

// RTUMaster is a Modbus/RTU client over a serial line. One RTUMaster
// serializes every request through a single mutex, matching TCPMaster.
// Unit 0 requests are broadcast: no reply is awaited.
type RTUMaster struct {
	Config  SerialConfig
	Timeout time.Duration

	mu     sync.Mutex
	port   serial.Port
	timing rtuTiming
}

// NewRTUMaster constructs a master opening cfg.Port lazily on first
// Execute.
func NewRTUMaster(cfg SerialConfig) *RTUMaster {
	return &RTUMaster{Config: cfg, Timeout: defaultTimeout, timing: newRTUTiming(cfg.BaudRate)}
}

// Close releases the underlying serial port, if open.
func (m *RTUMaster) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked()
}

func (m *RTUMaster) closeLocked() error {
	if m.port == nil {
		return nil
	}
	err := m.port.Close()
	m.port = nil
	return err
}

func (m *RTUMaster) ensurePortLocked() (serial.Port, error) {
	if m.port != nil {
		return m.port, nil
	}
	p, err := serial.Open(m.Config.Port, m.Config.toMode())
	if err != nil {
		return nil, newErr("rtu_master.open", KindIO, err)
	}
	m.port = p
	return p, nil
}

// Execute sends req to unitID over the serial line and returns the
// decoded response PDU. unitID 0 is a broadcast: the frame is written
// and Execute returns immediately without waiting for a reply. IO and
// timeout failures are retried the same way TCPMaster retries them.
func (m *RTUMaster) Execute(unitID uint8, req PDU) (PDU, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if unitID == 0 {
		return PDU{}, m.broadcastLocked(req)
	}

	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(retryPause)
		}

		resp, err := m.exchangeLocked(unitID, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		me, ok := AsError(err)
		if !ok || (me.Kind != KindIO && me.Kind != KindTimeout) {
			return PDU{}, err
		}
		m.closeLocked()
	}
	return PDU{}, lastErr
}

func (m *RTUMaster) broadcastLocked(req PDU) error {
	p, err := m.ensurePortLocked()
	if err != nil {
		return err
	}
	if err := p.ResetInputBuffer(); err != nil {
		return newErr("rtu_master.broadcast", KindIO, err)
	}
	frame := buildRTUFrame(0, req)
	if _, err := p.Write(frame); err != nil {
		return newErr("rtu_master.broadcast", KindIO, err)
	}
	time.Sleep(m.timing.t35)
	return nil
}

func (m *RTUMaster) exchangeLocked(unitID uint8, req PDU) (PDU, error) {
	p, err := m.ensurePortLocked()
	if err != nil {
		return PDU{}, err
	}

	if err := p.ResetInputBuffer(); err != nil {
		return PDU{}, newErr("rtu_master.exchange", KindIO, err)
	}
	if err := p.ResetOutputBuffer(); err != nil {
		return PDU{}, newErr("rtu_master.exchange", KindIO, err)
	}

	frame := buildRTUFrame(unitID, req)
	if _, err := p.Write(frame); err != nil {
		return PDU{}, newErr("rtu_master.exchange", KindIO, err)
	}
	time.Sleep(m.timing.t35)

	timeout := m.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if err := p.SetReadTimeout(m.timing.t35); err != nil {
		return PDU{}, newErr("rtu_master.exchange", KindIO, err)
	}

	raw, err := readRTUFrame(p, time.Now().Add(timeout))
	if err != nil {
		return PDU{}, err
	}

	gotUnit, pdu, ok := parseRTUFrame(raw)
	if !ok {
		return PDU{}, newErr("rtu_master.exchange", KindProtocol, fmt.Errorf("crc or framing failure"))
	}
	if gotUnit != unitID {
		return PDU{}, newErr("rtu_master.exchange", KindProtocol, fmt.Errorf("unit id mismatch: got %d want %d", gotUnit, unitID))
	}
	if pdu.Function.IsException() {
		code, _ := ParseExceptionResponse(pdu)
		return PDU{}, newExceptionErr("rtu_master.exchange", code)
	}
	return pdu, nil
}
