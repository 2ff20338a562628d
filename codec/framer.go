package codec

import (
	"bufio"
	"io"

	"github.com/axmq/mqttsession/packet"
)

// Framer turns a byte stream into a sequence of whole control packets:
// it reads just enough of each frame's remaining-length field to size
// the frame and enforces MaxPacketSize before reading the body. A
// violation is terminal — callers must stop reading after a non-nil
// error.
type Framer struct {
	r             *bufio.Reader
	maxPacketSize uint32
}

// NewFramer wraps r. maxPacketSize of 0 means unbounded (still capped by
// MaxRemainingLength).
func NewFramer(r io.Reader, maxPacketSize uint32) *Framer {
	return &Framer{r: bufio.NewReader(r), maxPacketSize: maxPacketSize}
}

// Next blocks until one full packet has arrived and decodes it.
func (f *Framer) Next() (packet.Packet, error) {
	return Decode(f.r, f.maxPacketSize)
}
