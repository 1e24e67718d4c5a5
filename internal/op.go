package internal

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Kind is the kind of an asynchronous operation.
type Kind uint8

const (
	OpConnect Kind = iota + 1
	OpRead
	OpWrite
	OpAccept
	OpReceive
	OpSend
)

func (k Kind) String() string {
	switch k {
	case OpConnect:
		return "connect"
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpAccept:
		return "accept"
	case OpReceive:
		return "receive"
	case OpSend:
		return "send"
	default:
		return fmt.Sprintf("op(%d)", uint8(k))
	}
}

var opSeq uint64

// Op is the handle of one outstanding operation.
//
// Owners record the handle of the operation they started and compare it with
// the handle passed to the completion; a mismatch means the owner lost
// interest (teardown, disable) and the result must be discarded.
type Op struct {
	kind Kind
	seq  uint64

	log *logrus.Entry
}

// NewOp creates a handle; panics recovered while it runs are logged to log,
// or to the standard logger when log is nil.
func NewOp(kind Kind, log *logrus.Entry) *Op {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Op{
		kind: kind,
		seq:  atomic.AddUint64(&opSeq, 1),
		log:  log,
	}
}

func (o *Op) Kind() Kind {
	return o.kind
}

func (o *Op) String() string {
	return fmt.Sprintf("%s#%d", o.kind, o.seq)
}
