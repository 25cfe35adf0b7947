package sink

import (
	"context"
	"fmt"
	"net"
	"sync"
)

// DefaultUDPTarget is the TAK situational-awareness multicast group.
const DefaultUDPTarget = "239.2.3.1:6969"

// UDP sends each message as a single datagram.
type UDP struct {
	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// DialUDP connects a UDP socket to target ("host:port").
func DialUDP(ctx context.Context, target string) (*UDP, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", target)
	if err != nil {
		return nil, fmt.Errorf("dial udp %s: %w", target, err)
	}
	return &UDP{conn: conn}, nil
}

func (u *UDP) Name() string { return KindUDP }

func (u *UDP) Send(ctx context.Context, _ string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return ErrClosed
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = u.conn.SetWriteDeadline(deadline)
	}
	if _, err := u.conn.Write(payload); err != nil {
		return fmt.Errorf("udp write: %w", err)
	}
	return nil
}

func (u *UDP) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true
	return u.conn.Close()
}
