// Package link opens the byte stream carrying the framed protocol.
package link

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/golang/glog"
	"go.bug.st/serial"
)

// Kinds of links.
const (
	KindSerial = "serial"
	KindDial   = "tcp"
	KindListen = "listen"
)

// ErrEmptyLink is returned for an empty link spec.
var ErrEmptyLink = errors.New("empty link")

// Spec is a parsed link spec.
type Spec struct {
	Kind string
	// Addr is a device path for serial links, host:port otherwise.
	Addr string
}

// ParseSpec parses tcp://host:port, listen://host:port or a serial
// device path.
func ParseSpec(spec string) (Spec, error) {
	if spec == "" {
		return Spec{}, ErrEmptyLink
	}
	for _, kind := range []string{KindDial, KindListen} {
		if addr, ok := strings.CutPrefix(spec, kind+"://"); ok {
			if _, _, err := net.SplitHostPort(addr); err != nil {
				return Spec{}, fmt.Errorf("link %q: %w", spec, err)
			}
			return Spec{Kind: kind, Addr: addr}, nil
		}
	}
	if strings.Contains(spec, "://") {
		return Spec{}, fmt.Errorf("link %q: unsupported scheme", spec)
	}
	return Spec{Kind: KindSerial, Addr: spec}, nil
}

// String implements fmt.Stringer.
func (s Spec) String() string {
	if s.Kind == KindSerial {
		return s.Addr
	}
	return s.Kind + "://" + s.Addr
}

// Open opens the link. Serial ports are configured 8N1 at baud.
// A listen link blocks until the first peer connects.
func Open(spec string, baud int) (io.ReadWriteCloser, error) {
	s, err := ParseSpec(spec)
	if err != nil {
		return nil, err
	}
	return s.Open(baud)
}

// Open opens the link.
func (s Spec) Open(baud int) (io.ReadWriteCloser, error) {
	switch s.Kind {
	case KindDial:
		conn, err := net.Dial("tcp", s.Addr)
		if err != nil {
			return nil, err
		}
		glog.Infof("link connected to %s", conn.RemoteAddr())
		return conn, nil
	case KindListen:
		ln, err := net.Listen("tcp", s.Addr)
		if err != nil {
			return nil, err
		}
		return Accept(ln)
	default:
		port, err := serial.Open(s.Addr, &serial.Mode{
			BaudRate: baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		})
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", s.Addr, err)
		}
		glog.Infof("link on %s at %d baud", s.Addr, baud)
		return port, nil
	}
}

// Accept waits for one peer on ln, then closes ln.
func Accept(ln net.Listener) (io.ReadWriteCloser, error) {
	defer ln.Close()
	glog.Infof("link waiting for a peer on %s", ln.Addr())
	conn, err := ln.Accept()
	if err != nil {
		return nil, err
	}
	glog.Infof("link peer %s", conn.RemoteAddr())
	return conn, nil
}

// Ports lists the serial ports found on the system.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}
