package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/arelis/hub/event"
)

// NATSPublisher publishes the wire payload of each event to
// "hub.events.<type>".
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to url with automatic reconnection. Extra options
// are appended to the defaults.
func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	defaults := []nats.Option{
		nats.Name("arelis-hub"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc}, nil
}

// Publish sends the event's wire payload. The event ID travels in the
// Nats-Msg-Id header so JetStream streams can de-duplicate.
func (p *NATSPublisher) Publish(_ context.Context, evt *event.Event) error {
	body, err := evt.Body()
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	msg := nats.NewMsg(Subject(evt.Type))
	msg.Header.Set(nats.MsgIdHdr, evt.ID.String())
	msg.Data = body
	return p.conn.PublishMsg(msg)
}

// Flush waits until the server has processed everything published so far.
func (p *NATSPublisher) Flush() error {
	return p.conn.Flush()
}

// Close drops the connection without draining pending messages.
func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}
