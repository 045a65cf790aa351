package modbus

import (
	"errors"
	"io"
	"time"

	"github.com/goburrow/serial"
)

const (
	// minFrameGap is the fixed t3.5 for line speeds above 19200 baud.
	minFrameGap = 1750 * time.Microsecond

	// partialFrameTimeout is how long an incomplete request may sit in the
	// buffer before it is handed on (and rejected by its CRC).
	partialFrameTimeout = 100 * time.Millisecond

	// maxBuffered caps the receive buffer; an RTU ADU is at most 256 bytes.
	maxBuffered = 512

	bitsPerChar = 11
)

var errReaderStopped = errors.New("modbus: serial reader stopped")

// frameGap returns the RTU inter-frame silence (3.5 character times) for
// baud.
func frameGap(baud int) time.Duration {
	if baud <= 0 || baud > 19200 {
		return minFrameGap
	}
	return time.Duration(3.5 * bitsPerChar * float64(time.Second) / float64(baud))
}

// requestLength returns the full ADU length of the request starting at adu,
// or 0 when it is not yet known: fewer than two bytes, or a function code
// whose frames end on line silence. For write-multiple requests the result
// is a lower bound until the byte count has arrived.
func requestLength(adu []byte) int {
	if len(adu) < 2 {
		return 0
	}
	switch adu[1] {
	case fcReadCoils, fcReadDiscreteInputs, fcReadHoldingRegisters, fcReadInputRegisters,
		fcWriteSingleCoil, fcWriteSingleRegister, 8:
		// address, function, 4 data bytes, CRC
		return 8
	case fcWriteMultipleCoils, fcWriteMultipleRegisters:
		if len(adu) < 7 {
			return 7
		}
		return 9 + int(adu[6])
	case 7, 11, 12, 17:
		return 4
	default:
		return 0
	}
}

// frameReader splits the serial byte stream into request ADUs.
//
// Bytes trickle in as the line delivers them, so a frame is complete once
// the function code's length is reached, or after a silent read timeout for
// codes of unknown length. Anything left after a complete frame starts the
// next one.
type frameReader struct {
	port  io.Reader
	buf   []byte
	chunk []byte
	last  time.Time
	now   func() time.Time
}

func newFrameReader(port io.Reader) *frameReader {
	return &frameReader{
		port:  port,
		chunk: make([]byte, 256),
		now:   time.Now,
	}
}

// next returns the next candidate frame. It returns errReaderStopped once
// done is closed, and any read error other than a timeout as is.
func (r *frameReader) next(done <-chan struct{}) ([]byte, error) {
	for {
		if need := requestLength(r.buf); need > 0 && len(r.buf) >= need {
			return r.take(need), nil
		}

		select {
		case <-done:
			return nil, errReaderStopped
		default:
		}

		n, err := r.port.Read(r.chunk)
		if n > 0 {
			r.buf = append(r.buf, r.chunk[:n]...)
			r.last = r.now()
			if len(r.buf) > maxBuffered {
				return r.take(len(r.buf)), nil
			}
			continue
		}
		if err != nil && !errors.Is(err, serial.ErrTimeout) {
			return nil, err
		}

		// The line went quiet.
		if len(r.buf) == 0 {
			continue
		}
		unknown := len(r.buf) >= 2 && requestLength(r.buf) == 0
		if unknown || r.now().Sub(r.last) >= partialFrameTimeout {
			return r.take(len(r.buf)), nil
		}
	}
}

// take removes the first n buffered bytes and returns them in their own
// backing array.
func (r *frameReader) take(n int) []byte {
	frame := make([]byte, n)
	copy(frame, r.buf)
	r.buf = append(r.buf[:0], r.buf[n:]...)
	return frame
}
