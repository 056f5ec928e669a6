package flight

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

// Link is a byte transport carrying protocol frames.
type Link interface {
	// Recv returns the next chunk of received bytes. It returns
	// errLinkIdle when no data arrived within the poll interval.
	Recv() ([]byte, error)
	Send(b []byte) error
	Close() error
}

var errLinkIdle = errors.New("flight: no data")

const recvPollInterval = 100 * time.Millisecond

// Dial opens a link described by a connection string:
//
//	udp:host:port     listen for packets from an autopilot that sends to us
//	udpout:host:port  send to a listening autopilot
//	tcp:host:port     connect to a TCP bridge
func Dial(conn string) (Link, error) {
	scheme, addr, ok := strings.Cut(conn, ":")
	if !ok {
		return nil, fmt.Errorf("malformed connection string %q", conn)
	}
	switch scheme {
	case "udp":
		laddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", addr, err)
		}
		c, err := net.ListenUDP("udp", laddr)
		if err != nil {
			return nil, fmt.Errorf("listen %q: %w", addr, err)
		}
		return &udpLink{conn: c}, nil
	case "udpout":
		raddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", addr, err)
		}
		c, err := net.DialUDP("udp", nil, raddr)
		if err != nil {
			return nil, fmt.Errorf("dial %q: %w", addr, err)
		}
		return &udpLink{conn: c, remote: raddr}, nil
	case "tcp":
		c, err := net.DialTimeout("tcp", addr, 10*time.Second)
		if err != nil {
			return nil, fmt.Errorf("dial %q: %w", addr, err)
		}
		return &tcpLink{conn: c}, nil
	default:
		return nil, fmt.Errorf("unsupported connection scheme %q", scheme)
	}
}

// udpLink reads datagrams from a UDP socket. In listen mode the peer
// address is learned from the first packet and replies go back to it.
type udpLink struct {
	conn   *net.UDPConn
	remote *net.UDPAddr
	buf    [2048]byte
}

func (l *udpLink) Recv() ([]byte, error) {
	if err := l.conn.SetReadDeadline(time.Now().Add(recvPollInterval)); err != nil {
		return nil, err
	}
	n, addr, err := l.conn.ReadFromUDP(l.buf[:])
	if err != nil {
		if isTimeout(err) {
			return nil, errLinkIdle
		}
		return nil, err
	}
	if l.remote == nil {
		l.remote = addr
	}
	out := make([]byte, n)
	copy(out, l.buf[:n])
	return out, nil
}

func (l *udpLink) Send(b []byte) error {
	if l.conn.RemoteAddr() != nil {
		_, err := l.conn.Write(b)
		return err
	}
	if l.remote == nil {
		return errors.New("flight: no peer yet")
	}
	_, err := l.conn.WriteToUDP(b, l.remote)
	return err
}

func (l *udpLink) Close() error { return l.conn.Close() }

type tcpLink struct {
	conn net.Conn
	buf  [2048]byte
}

func (l *tcpLink) Recv() ([]byte, error) {
	if err := l.conn.SetReadDeadline(time.Now().Add(recvPollInterval)); err != nil {
		return nil, err
	}
	n, err := l.conn.Read(l.buf[:])
	if err != nil {
		if isTimeout(err) {
			return nil, errLinkIdle
		}
		return nil, err
	}
	out := make([]byte, n)
	copy(out, l.buf[:n])
	return out, nil
}

func (l *tcpLink) Send(b []byte) error {
	_, err := l.conn.Write(b)
	return err
}

func (l *tcpLink) Close() error { return l.conn.Close() }

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}
