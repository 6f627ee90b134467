package relay

import (
	"context"
	"fmt"
	"sync"

	"go.bug.st/serial"
)

// SerialBoard talks to the common CH340-style USB relay boards that
// drive W1/W2 directly when no platform-owned switches exist. The board
// speaks 4-byte frames at 9600 8N1: 0xA0, channel, state, checksum. It
// offers no readback, so state is remembered from the last successful
// write.
type SerialBoard struct {
	mu     sync.Mutex
	port   serial.Port
	states map[int]bool
}

// OpenSerialBoard opens the board's serial device.
func OpenSerialBoard(device string) (*SerialBoard, error) {
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("opening relay board %v: %w", device, err)
	}

	return &SerialBoard{
		port:   port,
		states: make(map[int]bool),
	}, nil
}

// Close releases the serial port.
func (b *SerialBoard) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.port.Close()
}

func (b *SerialBoard) set(channel int, on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	frame := commandFrame(channel, on)
	n, err := b.port.Write(frame)
	if err != nil {
		return fmt.Errorf("relay board channel %d: %w", channel, err)
	}
	if n != len(frame) {
		return fmt.Errorf("relay board channel %d: short write (%d of %d bytes)", channel, n, len(frame))
	}

	b.states[channel] = on
	return nil
}

// commandFrame builds one board command. The checksum is the plain byte
// sum of the preceding three bytes.
func commandFrame(channel int, on bool) []byte {
	state := byte(0)
	if on {
		state = 1
	}
	ch := byte(channel)
	return []byte{0xA0, ch, state, 0xA0 + ch + state}
}

// Channel returns the switch driver for one relay channel (1-based, as
// printed on the board).
func (b *SerialBoard) Channel(n int) *SerialChannel {
	return &SerialChannel{board: b, channel: n}
}

// SerialChannel is one relay of a SerialBoard.
type SerialChannel struct {
	board   *SerialBoard
	channel int
}

func (c *SerialChannel) TurnOn(_ context.Context) error {
	return c.board.set(c.channel, true)
}

func (c *SerialChannel) TurnOff(_ context.Context) error {
	return c.board.set(c.channel, false)
}

// State reports the remembered state of the last successful write; the
// board cannot be read back. Unknown before the first write.
func (c *SerialChannel) State(_ context.Context) (bool, bool, error) {
	c.board.mu.Lock()
	defer c.board.mu.Unlock()

	state, known := c.board.states[c.channel]
	return state, known, nil
}
