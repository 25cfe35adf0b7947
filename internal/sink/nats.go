package sink

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// DefaultSubject prefixes pub/sub subjects and keys.
const DefaultSubject = "telemgen"

// natsConn is the part of *nats.Conn the sink needs.
type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATS publishes every message on "<subject>.<agentID>".
type NATS struct {
	conn    natsConn
	subject string
}

// DialNATS connects to url (nats.DefaultURL when empty).
func DialNATS(url, subject string) (*NATS, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url, nats.Name("telemgen"))
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return newNATS(conn, subject), nil
}

func newNATS(conn natsConn, subject string) *NATS {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATS{conn: conn, subject: subject}
}

func (n *NATS) Name() string { return KindNATS }

// Subject returns the subject messages of agentID are published on.
func (n *NATS) Subject(agentID string) string {
	return n.subject + "." + agentID
}

func (n *NATS) Send(ctx context.Context, agentID string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.conn.Publish(n.Subject(agentID), payload); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Close drains pending publishes before closing the connection.
func (n *NATS) Close() error {
	return n.conn.Drain()
}
