package comm

// ParseResult indicates the result after one parsing step.
type ParseResult int

const (
	// NoMessage means the byte was consumed without completing a frame.
	NoMessage ParseResult = iota
	// NewMessage means a frame just completed and is available via Frame.
	NewMessage
)

// String implements fmt.Stringer.
func (r ParseResult) String() string {
	if r == NewMessage {
		return "NewMessage"
	}
	return "NoMessage"
}

type parseState int

const (
	stateAwaitStart  parseState = iota // skipping bytes until '$'
	stateReadType                      // collecting the type token
	stateReadPayload                   // collecting the payload
	numParseStates
)

var parseStateNames = [numParseStates]string{
	stateAwaitStart:  "AwaitStart",
	stateReadType:    "ReadType",
	stateReadPayload: "ReadPayload",
}

func (s parseState) String() string {
	return parseStateNames[s]
}

// transitions holds the byte handler of every state. Adding a state
// without a handler leaves a nil entry which TestTransitionTable catches.
var transitions = [numParseStates]func(*Parser, byte) ParseResult{
	stateAwaitStart:  (*Parser).awaitStart,
	stateReadType:    (*Parser).readType,
	stateReadPayload: (*Parser).readPayload,
}

// Parser extracts frames from a byte stream, one byte per call.
// The zero value is ready to use. Storage is fixed; parsing never
// allocates.
type Parser struct {
	state      parseState
	typ        [MaxTypeLen]byte
	typeLen    int
	payload    [MaxPayloadLen]byte
	payloadLen int
}

// Reset discards any partial frame.
func (p *Parser) Reset() {
	p.state, p.typeLen, p.payloadLen = stateAwaitStart, 0, 0
}

// Parse consumes one byte.
func (p *Parser) Parse(b byte) ParseResult {
	return transitions[p.state](p, b)
}

// Type returns the type token of the last completed frame.
// The slice is only valid until the next call to Parse.
func (p *Parser) Type() []byte {
	return p.typ[:p.typeLen]
}

// Payload returns the payload of the last completed frame.
// The slice is only valid until the next call to Parse.
func (p *Parser) Payload() []byte {
	return p.payload[:p.payloadLen]
}

// Frame returns a copy of the last completed frame.
func (p *Parser) Frame() Frame {
	return Frame{Type: string(p.Type()), Payload: string(p.Payload())}
}

func (p *Parser) awaitStart(b byte) ParseResult {
	if b == FrameStart {
		p.state, p.typeLen = stateReadType, 0
	}
	return NoMessage
}

func (p *Parser) readType(b byte) ParseResult {
	switch {
	case b == FrameSeparator:
		p.state, p.payloadLen = stateReadPayload, 0
	case b == FrameEnd:
		p.state, p.payloadLen = stateAwaitStart, 0
		return NewMessage
	case p.typeLen == MaxTypeLen:
		p.Reset()
	default:
		p.typ[p.typeLen] = b
		p.typeLen++
	}
	return NoMessage
}

func (p *Parser) readPayload(b byte) ParseResult {
	switch {
	case b == FrameEnd:
		p.state = stateAwaitStart
		return NewMessage
	case p.payloadLen == MaxPayloadLen:
		p.Reset()
	default:
		p.payload[p.payloadLen] = b
		p.payloadLen++
	}
	return NoMessage
}
