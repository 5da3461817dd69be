package manager

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// DefaultSubjectPrefix is used when NATSPublisher is given an empty prefix.
const DefaultSubjectPrefix = "modelrunner.events"

// NATSPublisher forwards events as JSON to "<prefix>.<event name>".
// Publish failures are logged and dropped.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	log    zerolog.Logger
}

// NewNATSPublisher connects to url.
func NewNATSPublisher(url, prefix string, log zerolog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("modelrunner"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSPublisher{nc: nc, prefix: normalizePrefix(prefix), log: log}, nil
}

// natsEvent is the wire form of an Event.
type natsEvent struct {
	Name    string         `json:"event"`
	ModelID string         `json:"model_id,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
	Time    time.Time      `json:"time"`
}

func (p *NATSPublisher) Publish(e Event) {
	data, err := encodeEvent(e, time.Now())
	if err != nil {
		p.log.Debug().Err(err).Str("event", e.Name).Msg("manager event=nats_encode_failed")
		return
	}
	if err := p.nc.Publish(subjectFor(p.prefix, e.Name), data); err != nil {
		p.log.Debug().Err(err).Str("event", e.Name).Msg("manager event=nats_publish_failed")
	}
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}

func encodeEvent(e Event, at time.Time) ([]byte, error) {
	return json.Marshal(natsEvent{Name: e.Name, ModelID: e.ModelID, Fields: e.Fields, Time: at.UTC()})
}

func normalizePrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), ".")
	if p == "" {
		return DefaultSubjectPrefix
	}
	return p
}

func subjectFor(prefix, name string) string {
	return prefix + "." + name
}

// MultiPublisher fans an event out to several publishers.
type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(e Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(e)
		}
	}
}
