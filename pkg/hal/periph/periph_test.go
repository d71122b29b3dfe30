package periph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

type fakeConn struct {
	sent  []byte
	reply byte
	err   error
}

func (c *fakeConn) Tx(w, r []byte) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, w...)
	for i := range r {
		r[i] = c.reply
	}
	return nil
}

func TestBusTransfer(t *testing.T) {
	c := &fakeConn{reply: 0x5a}
	bus := NewBus(c)
	require.Equal(t, byte(0x5a), bus.Transfer(0xc2))
	require.Equal(t, []byte{0xc2}, c.sent)
	require.False(t, bus.Overrun())
}

func TestBusTransferErrorRaisesOverrun(t *testing.T) {
	c := &fakeConn{err: errors.New("io error")}
	bus := NewBus(c)
	require.Zero(t, bus.Transfer(0x42))
	require.True(t, bus.Overrun())
	bus.ClearOverrun()
	require.False(t, bus.Overrun())
}

func TestPin(t *testing.T) {
	g := &gpiotest.Pin{N: "GPIO8", L: gpio.Low}
	p, err := NewPin(g, true)
	require.NoError(t, err)
	require.True(t, p.Get())
	require.Equal(t, gpio.High, g.Read())

	p.Set(false)
	require.False(t, p.Get())
	require.Equal(t, gpio.Low, g.Read())
}
