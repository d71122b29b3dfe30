// Package comm provides L0 protocol support.
package comm

// L0 protocol is a line-agnostic ASCII framing spoken over the serial link
// between the firmware and the ground side:
//
//	$TYPE,PAYLOAD*
//
// TYPE is at most 6 characters and PAYLOAD at most 100. The comma is
// omitted when PAYLOAD is empty ($TYPE*). There is no checksum, no
// sequence number and no retransmission; a frame which is too long is
// silently discarded and the receiver resynchronizes on the next '$'.
//
// Producer: firmware telemetry ($MAG, $YAW, $ERR)
// Consumer: ground console, which also produces $RATE commands
