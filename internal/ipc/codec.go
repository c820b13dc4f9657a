package ipc

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/yndnr/libos-go/internal/core/domain"
)

// MessageType is the first byte of every IPC payload.
type MessageType byte

const (
	// MsgChildExit reports that a child thread exited.
	MsgChildExit MessageType = 1
)

// Field numbers of a ChildExit payload.
const (
	fieldDest       protowire.Number = 1
	fieldChildTID   protowire.Number = 2
	fieldExitCode   protowire.Number = 3
	fieldTermSignal protowire.Number = 4
)

// ChildExit tells the process holding a parent thread that one of its
// children exited.
type ChildExit struct {
	Dest       int32 `json:"dest"`
	ChildTID   int32 `json:"child_tid"`
	ExitCode   int   `json:"exit_code"`
	TermSignal int   `json:"term_signal"`
}

// Marshal encodes m as a type byte followed by protobuf wire fields.
func (m ChildExit) Marshal() []byte {
	b := make([]byte, 0, 24)
	b = append(b, byte(MsgChildExit))
	b = protowire.AppendTag(b, fieldDest, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(m.Dest)))
	b = protowire.AppendTag(b, fieldChildTID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(m.ChildTID)))
	b = protowire.AppendTag(b, fieldExitCode, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(m.ExitCode)))
	b = protowire.AppendTag(b, fieldTermSignal, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(m.TermSignal)))
	return b
}

// Decode parses a payload produced by Marshal. Unknown fields are skipped.
func Decode(b []byte) (ChildExit, error) {
	var m ChildExit
	if len(b) == 0 {
		return m, domain.ErrMalformedMessage.WithDetails("empty payload")
	}
	if t := MessageType(b[0]); t != MsgChildExit {
		return m, domain.ErrUnknownMessage.WithDetails(fmt.Sprintf("type %d", t))
	}
	b = b[1:]

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return m, domain.ErrMalformedMessage.WithCause(protowire.ParseError(n))
		}
		b = b[n:]

		if typ != protowire.VarintType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return m, domain.ErrMalformedMessage.WithCause(protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return m, domain.ErrMalformedMessage.WithCause(protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldDest:
			m.Dest = int32(int64(v))
		case fieldChildTID:
			m.ChildTID = int32(int64(v))
		case fieldExitCode:
			m.ExitCode = int(protowire.DecodeZigZag(v))
		case fieldTermSignal:
			m.TermSignal = int(int64(v))
		}
	}
	return m, nil
}
