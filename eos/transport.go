package eos

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/hypebeast/go-osc/osc"
)

// Config selects how to reach the console.
type Config struct {
	Address  string
	Port     int
	Protocol string // "tcp" or "udp"

	// ReceivePort is the local UDP listen port for console replies.
	// Zero selects the console's default reply port, 8001. Ignored for TCP,
	// which carries both directions on one connection.
	ReceivePort int
}

const (
	defaultReceivePort = 8001
	dialTimeout        = 5 * time.Second
	writeTimeout       = 5 * time.Second
	readBufferSize     = 65535
)

// ErrNotConnected is returned by Send after the connection has closed.
// There is no queueing: callers reconnect explicitly.
var ErrNotConnected = errors.New("eos: not connected")

// Handler receives each inbound OSC message, bundles already flattened.
type Handler func(*osc.Message)

// Conn is a framed OSC connection to the console. Implementations are safe
// for concurrent Send.
type Conn interface {
	Send(*osc.Message) error
	Close() error
}

// Dial opens a transport per cfg. A non-nil return means the far side is
// reachable (for TCP, the connect completed; UDP is connectionless and is
// ready immediately). onMessage is called from a single reader goroutine;
// onClosed fires once if the connection is lost, and not on a local Close.
func Dial(cfg Config, onMessage Handler, onClosed func(error)) (Conn, error) {
	switch cfg.Protocol {
	case "tcp":
		return dialTCP(cfg, onMessage, onClosed)
	case "udp":
		return dialUDP(cfg, onMessage, onClosed)
	}
	return nil, fmt.Errorf("eos: unknown protocol %q", cfg.Protocol)
}

// dispatch flattens a parsed packet into messages. Bundles nest.
func dispatch(pkt osc.Packet, h Handler) {
	switch p := pkt.(type) {
	case *osc.Message:
		h(p)
	case *osc.Bundle:
		for _, m := range p.Messages {
			h(m)
		}
		for _, b := range p.Bundles {
			dispatch(b, h)
		}
	}
}

// ---------------------------------------------------------------------------
// TCP with SLIP framing
// ---------------------------------------------------------------------------

type tcpConn struct {
	conn net.Conn

	wmu    sync.Mutex
	closed bool

	onClosed func(error)
	once     sync.Once
}

func dialTCP(cfg Config, onMessage Handler, onClosed func(error)) (Conn, error) {
	addr := net.JoinHostPort(cfg.Address, fmt.Sprintf("%d", cfg.Port))
	c, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("eos: dial %s: %w", addr, err)
	}

	t := &tcpConn{conn: c, onClosed: onClosed}
	go t.readLoop(onMessage)
	return t, nil
}

func (t *tcpConn) readLoop(onMessage Handler) {
	var dec slipDecoder
	buf := make([]byte, readBufferSize)

	for {
		n, err := t.conn.Read(buf)
		if n > 0 {
			for _, frame := range dec.Feed(buf[:n]) {
				pkt, perr := osc.ParsePacket(string(frame))
				if perr != nil {
					log.Printf("[osc] dropping malformed packet (%d bytes): %v", len(frame), perr)
					continue
				}
				dispatch(pkt, onMessage)
			}
		}
		if err != nil {
			t.lost(err)
			return
		}
	}
}

// lost reports a connection failure exactly once, unless the close was local.
func (t *tcpConn) lost(err error) {
	t.wmu.Lock()
	wasClosed := t.closed
	t.closed = true
	t.wmu.Unlock()
	if wasClosed {
		return
	}
	t.conn.Close()
	if t.onClosed != nil {
		t.once.Do(func() { t.onClosed(err) })
	}
}

func (t *tcpConn) Send(msg *osc.Message) error {
	data, err := msg.MarshalBinary()
	if err != nil {
		return fmt.Errorf("eos: marshal %s: %w", msg.Address, err)
	}
	framed := slipEncode(data)

	t.wmu.Lock()
	defer t.wmu.Unlock()
	if t.closed {
		return ErrNotConnected
	}
	t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := t.conn.Write(framed); err != nil {
		return fmt.Errorf("eos: write: %w", err)
	}
	return nil
}

func (t *tcpConn) Close() error {
	t.wmu.Lock()
	if t.closed {
		t.wmu.Unlock()
		return nil
	}
	t.closed = true
	t.wmu.Unlock()
	return t.conn.Close()
}

// ---------------------------------------------------------------------------
// UDP, one OSC message per datagram
// ---------------------------------------------------------------------------

type udpConn struct {
	out *net.UDPConn // bound to the console's address
	in  *net.UDPConn // local listen socket for replies

	wmu    sync.Mutex
	closed bool

	onClosed func(error)
	once     sync.Once
}

func dialUDP(cfg Config, onMessage Handler, onClosed func(error)) (Conn, error) {
	raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(cfg.Address, fmt.Sprintf("%d", cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("eos: resolve %s: %w", cfg.Address, err)
	}
	out, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("eos: dial udp: %w", err)
	}

	rx := cfg.ReceivePort
	if rx == 0 {
		rx = defaultReceivePort
	}
	in, err := net.ListenUDP("udp", &net.UDPAddr{Port: rx})
	if err != nil {
		out.Close()
		return nil, fmt.Errorf("eos: listen udp :%d: %w", rx, err)
	}

	u := &udpConn{out: out, in: in, onClosed: onClosed}
	go u.readLoop(onMessage)
	return u, nil
}

func (u *udpConn) readLoop(onMessage Handler) {
	buf := make([]byte, readBufferSize)
	for {
		n, _, err := u.in.ReadFromUDP(buf)
		if n > 0 {
			pkt, perr := osc.ParsePacket(string(buf[:n]))
			if perr != nil {
				log.Printf("[osc] dropping malformed datagram (%d bytes): %v", n, perr)
			} else {
				dispatch(pkt, onMessage)
			}
		}
		if err != nil {
			u.lost(err)
			return
		}
	}
}

func (u *udpConn) lost(err error) {
	u.wmu.Lock()
	wasClosed := u.closed
	u.closed = true
	u.wmu.Unlock()
	if wasClosed {
		return
	}
	u.out.Close()
	u.in.Close()
	if u.onClosed != nil {
		u.once.Do(func() { u.onClosed(err) })
	}
}

func (u *udpConn) Send(msg *osc.Message) error {
	data, err := msg.MarshalBinary()
	if err != nil {
		return fmt.Errorf("eos: marshal %s: %w", msg.Address, err)
	}

	u.wmu.Lock()
	defer u.wmu.Unlock()
	if u.closed {
		return ErrNotConnected
	}
	u.out.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := u.out.Write(data); err != nil {
		return fmt.Errorf("eos: write: %w", err)
	}
	return nil
}

func (u *udpConn) Close() error {
	u.wmu.Lock()
	if u.closed {
		u.wmu.Unlock()
		return nil
	}
	u.closed = true
	u.wmu.Unlock()
	u.out.Close()
	return u.in.Close()
}
