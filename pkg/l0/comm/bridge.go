package comm

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/compass.go/pkg/ring"
)

// Transmitter is the hardware transmit path of the serial link.
type Transmitter interface {
	// Ready reports whether another byte can be accepted.
	Ready() bool
	// Transmit hands one byte to the hardware.
	Transmit(b byte)
}

// DefaultTxDepth is the depth of the transmit FIFO emulated by Run.
const DefaultTxDepth = 4

// Stats counts bytes through the bridge.
type Stats struct {
	RxBytes   uint64
	RxDropped uint64
	TxBytes   uint64
}

// Bridge moves bytes between the serial link and the two rings shared
// with the control loop. HandleReceive is the only producer of the input
// ring and HandleTransmit the only consumer of the output ring.
type Bridge struct {
	ReadWriter io.ReadWriter
	TxDepth    int

	in     ring.Producer[byte]
	out    ring.Consumer[byte]
	kickCh chan struct{}

	rxBytes   atomic.Uint64
	rxDropped atomic.Uint64
	txBytes   atomic.Uint64
}

// NewBridge creates a Bridge.
func NewBridge(rw io.ReadWriter, in ring.Producer[byte], out ring.Consumer[byte]) *Bridge {
	return &Bridge{
		ReadWriter: rw,
		TxDepth:    DefaultTxDepth,
		in:         in,
		out:        out,
		kickCh:     make(chan struct{}, 1),
	}
}

// Stats returns a snapshot of the counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		RxBytes:   b.rxBytes.Load(),
		RxDropped: b.rxDropped.Load(),
		TxBytes:   b.txBytes.Load(),
	}
}

// HandleReceive pushes received bytes into the input ring. Bytes which
// don't fit are dropped. It returns the number of dropped bytes.
func (b *Bridge) HandleReceive(p []byte) (dropped int) {
	for _, c := range p {
		if !b.in.TryPush(c) {
			dropped++
		}
	}
	b.rxBytes.Add(uint64(len(p)))
	if dropped > 0 {
		b.rxDropped.Add(uint64(dropped))
		glog.V(2).Infof("input ring full, %d byte(s) dropped", dropped)
	}
	return
}

// HandleTransmit moves bytes from the output ring to tx while tx is
// ready. If the ring is already empty, it returns false without touching
// tx: there is nothing to send and the path waits for the next Kick.
func (b *Bridge) HandleTransmit(tx Transmitter) bool {
	if b.out.Ring().Empty() {
		return false
	}
	var n uint64
	for tx.Ready() {
		c, ok := b.out.TryPop()
		if !ok {
			break
		}
		tx.Transmit(c)
		n++
	}
	b.txBytes.Add(n)
	return true
}

// Kick signals new bytes in the output ring. It never blocks.
func (b *Bridge) Kick() {
	select {
	case b.kickCh <- struct{}{}:
	default:
	}
}

// Run binds the handlers to ReadWriter until ctx is done or the link
// fails. The receive side may stay blocked in Read after Run returns
// until ReadWriter is closed.
func (b *Bridge) Run(ctx context.Context) error {
	errCh := make(chan error, 2)
	go b.receiveLoop(errCh)
	go b.transmitLoop(ctx, errCh)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (b *Bridge) receiveLoop(errCh chan<- error) {
	buf := make([]byte, 64)
	for {
		n, err := b.ReadWriter.Read(buf)
		if n > 0 {
			b.HandleReceive(buf[:n])
		}
		if err != nil {
			errCh <- err
			return
		}
	}
}

func (b *Bridge) transmitLoop(ctx context.Context, errCh chan<- error) {
	depth := b.TxDepth
	if depth <= 0 {
		depth = DefaultTxDepth
	}
	fifo := &txFIFO{buf: make([]byte, 0, depth)}
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.kickCh:
		}
		for b.HandleTransmit(fifo) {
			if err := fifo.flush(b.ReadWriter); err != nil {
				errCh <- err
				return
			}
		}
	}
}

// txFIFO emulates a shallow hardware transmit FIFO in front of a Writer.
type txFIFO struct {
	buf []byte
}

func (f *txFIFO) Ready() bool {
	return len(f.buf) < cap(f.buf)
}

func (f *txFIFO) Transmit(c byte) {
	f.buf = append(f.buf, c)
}

func (f *txFIFO) flush(w io.Writer) error {
	if len(f.buf) == 0 {
		return nil
	}
	_, err := w.Write(f.buf)
	f.buf = f.buf[:0]
	return err
}
