package uart

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"

	"github.com/go-zigbee/znp/config"
	"github.com/go-zigbee/znp/frame"
	"github.com/go-zigbee/znp/logging"
)

// bootloaderSkipBytes is the minimum run of 0xEF bytes that tells the ZNP
// serial bootloader to hand control straight to the application image
// instead of waiting for a flash transfer (§4.3, §6).
const bootloaderSkipBytes = 167

// Port owns the serial connection to the coprocessor: it feeds inbound
// bytes through a Reframer and exposes the decoded frames on Frames, and
// serializes all outbound writes through Write so there is never more than
// one writer on the line (§5: "single writer").
type Port struct {
	log zerolog.Logger

	conn serial.Port

	writeMu sync.Mutex

	frames chan frame.General
	closed chan struct{}
	once   sync.Once
}

// Open opens the serial device named by cfg.Device at cfg.Baud, applies the
// configured flow control and RTS/DTR handshake, optionally emits the
// bootloader-skip sequence, and starts the background read loop.
func Open(cfg config.Config) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	switch cfg.FlowControl {
	case config.FlowControlHardware:
		// go.bug.st/serial has no first-class RTS/CTS enum entry pre-mode;
		// hardware flow control is negotiated via SetRTS/SetDTR below.
	case config.FlowControlSoftware, config.FlowControlNone, "":
	default:
		return nil, fmt.Errorf("uart: unknown flow control %q", cfg.FlowControl)
	}

	conn, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("uart: opening %s: %w", cfg.Device, err)
	}

	if err := toggleRTSDTR(conn); err != nil {
		conn.Close()
		return nil, err
	}

	if cfg.SkipBootloader {
		if err := skipBootloader(conn); err != nil {
			conn.Close()
			return nil, err
		}
	}

	p := &Port{
		log:    logging.For("uart"),
		conn:   conn,
		frames: make(chan frame.General, 64),
		closed: make(chan struct{}),
	}
	go p.readLoop()
	return p, nil
}

// toggleRTSDTR applies the handshake sequence of §6: DTR=0,RTS=0; wait
// 150ms; DTR=0,RTS=1; wait 150ms; DTR=0,RTS=0; wait 150ms. Some USB-serial
// adapters wire RTS/DTR to the radio's reset and bootloader-select pins.
func toggleRTSDTR(conn serial.Port) error {
	steps := []struct{ dtr, rts bool }{
		{false, false},
		{false, true},
		{false, false},
	}
	for _, s := range steps {
		if err := conn.SetDTR(s.dtr); err != nil {
			return fmt.Errorf("uart: set DTR: %w", err)
		}
		if err := conn.SetRTS(s.rts); err != nil {
			return fmt.Errorf("uart: set RTS: %w", err)
		}
		time.Sleep(150 * time.Millisecond)
	}
	return nil
}

// skipBootloader writes a calibrated run of 0xEF bytes so the chip's serial
// bootloader hands off to the application image immediately (§4.3).
func skipBootloader(conn serial.Port) error {
	buf := make([]byte, bootloaderSkipBytes)
	for i := range buf {
		buf[i] = 0xEF
	}
	if _, err := conn.Write(buf); err != nil {
		return fmt.Errorf("uart: writing bootloader-skip sequence: %w", err)
	}
	return nil
}

// Frames returns the channel of decoded General frames, in UART delivery
// order (§5: "Ordering").
func (p *Port) Frames() <-chan frame.General {
	return p.frames
}

// Closed returns a channel that is closed when the connection is lost or
// Close is called, mapping to the dispatcher's "connection_lost" signal
// (§4.3).
func (p *Port) Closed() <-chan struct{} {
	return p.closed
}

// Write serializes f and writes it to the serial port. Concurrent callers
// are safe; writes are serialized by writeMu so there is a single writer on
// the wire (§5).
func (p *Port) Write(f frame.Transport) error {
	buf, err := f.Encode()
	if err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if _, err := p.conn.Write(buf); err != nil {
		p.markClosed()
		return fmt.Errorf("uart: write: %w", err)
	}
	return nil
}

// Close closes the underlying serial port and signals Closed.
func (p *Port) Close() error {
	p.markClosed()
	return p.conn.Close()
}

func (p *Port) markClosed() {
	p.once.Do(func() { close(p.closed) })
}

func (p *Port) readLoop() {
	reframer := NewReframer()
	buf := make([]byte, 256)

	for {
		n, err := p.conn.Read(buf)
		if err != nil {
			p.log.Warn().Err(err).Msg("uart read failed, connection lost")
			p.markClosed()
			return
		}
		if n == 0 {
			continue
		}

		for _, f := range reframer.Feed(buf[:n]) {
			select {
			case p.frames <- f:
			case <-p.closed:
				return
			}
		}
	}
}
