package comm

import (
	"strconv"
	"strings"
)

// Frame delimiters.
const (
	FrameStart     byte = '$'
	FrameSeparator byte = ','
	FrameEnd       byte = '*'
)

// Field limits.
const (
	MaxTypeLen    = 6
	MaxPayloadLen = 100
	// MaxFrameLen is the longest possible encoded frame.
	MaxFrameLen = MaxTypeLen + MaxPayloadLen + 3
)

// Frame is a decoded L0 message.
type Frame struct {
	Type    string
	Payload string
}

// Validate checks the frame can be encoded and parsed back unchanged.
func (f Frame) Validate() error {
	switch l := len(f.Type); {
	case l == 0:
		return ErrEmptyType
	case l > MaxTypeLen:
		return ErrTypeTooLong
	}
	if len(f.Payload) > MaxPayloadLen {
		return ErrPayloadTooLong
	}
	if i := strings.IndexAny(f.Type, "$,*"); i >= 0 {
		return &InvalidCharError{Field: "type", Char: f.Type[i]}
	}
	if i := strings.IndexAny(f.Payload, "$*"); i >= 0 {
		return &InvalidCharError{Field: "payload", Char: f.Payload[i]}
	}
	return nil
}

// AppendTo appends the encoded frame to dst.
func (f Frame) AppendTo(dst []byte) []byte {
	dst = append(dst, FrameStart)
	dst = append(dst, f.Type...)
	if f.Payload != "" {
		dst = append(dst, FrameSeparator)
		dst = append(dst, f.Payload...)
	}
	return append(dst, FrameEnd)
}

// Bytes returns encoded bytes for sending.
func (f Frame) Bytes() []byte {
	return f.AppendTo(make([]byte, 0, len(f.Type)+len(f.Payload)+3))
}

// String returns the encoded frame.
func (f Frame) String() string {
	return string(f.Bytes())
}

// AppendIntFrame appends $TYPE,v0,v1,...* to dst without going through fmt,
// so it can be used on a fixed scratch buffer.
func AppendIntFrame(dst []byte, typ string, values ...int64) []byte {
	dst = append(dst, FrameStart)
	dst = append(dst, typ...)
	for _, v := range values {
		dst = append(dst, FrameSeparator)
		dst = strconv.AppendInt(dst, v, 10)
	}
	return append(dst, FrameEnd)
}

// ParseFrame decodes a single encoded frame. Bytes before the first '$'
// are skipped like on the wire. ok is false if s doesn't hold a complete
// frame.
func ParseFrame(s string) (f Frame, ok bool) {
	var p Parser
	for i := 0; i < len(s); i++ {
		if p.Parse(s[i]) == NewMessage {
			return p.Frame(), true
		}
	}
	return
}
