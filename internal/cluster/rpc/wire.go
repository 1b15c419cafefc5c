package rpc

import (
	"errors"
	"sync"
)

// ErrWireClosed is returned by a Wire after Close or when its remote end
// went away.
var ErrWireClosed = errors.New("rpc: wire closed")

// Wire carries frames to and from one remote peer.
//
// Send is called by a single goroutine, Recv by another. Close may be
// called from the sending goroutine and makes a blocked Recv return.
type Wire interface {
	Send(Frame) error
	Recv() (Frame, error)
	Close() error
}

// NewPipe returns the two ends of an in-memory wire. Frames are copied
// through the msgpack codec so each end sees its own values, as over a
// network.
func NewPipe() (Wire, Wire) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	aClosed := make(chan struct{})
	bClosed := make(chan struct{})

	a := &pipeEnd{in: ba, out: ab, closed: aClosed, remote: bClosed}
	b := &pipeEnd{in: ab, out: ba, closed: bClosed, remote: aClosed}
	return a, b
}

type pipeEnd struct {
	in     <-chan []byte
	out    chan<- []byte
	closed chan struct{}
	remote chan struct{}
	once   sync.Once
}

func (p *pipeEnd) Send(f Frame) error {
	b, err := Codec{}.Marshal(&f)
	if err != nil {
		return err
	}
	select {
	case <-p.closed:
		return ErrWireClosed
	case <-p.remote:
		return ErrWireClosed
	default:
	}
	select {
	case p.out <- b:
		return nil
	case <-p.closed:
		return ErrWireClosed
	case <-p.remote:
		return ErrWireClosed
	}
}

func (p *pipeEnd) Recv() (Frame, error) {
	// Drain frames already sent before reporting a closed remote.
	select {
	case b := <-p.in:
		return decodeFrame(b)
	default:
	}
	select {
	case b := <-p.in:
		return decodeFrame(b)
	case <-p.closed:
		return Frame{}, ErrWireClosed
	case <-p.remote:
		return Frame{}, ErrWireClosed
	}
}

func decodeFrame(b []byte) (Frame, error) {
	var f Frame
	err := Codec{}.Unmarshal(b, &f)
	return f, err
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}
