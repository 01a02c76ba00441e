package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/cheapgasoline/fuelmap/internal/core/domain"
	"github.com/cheapgasoline/fuelmap/internal/core/ports"
)

// Subjects.
const (
	SubjectStationSelectedPrefix = "fuelmap.station.selected."
	SubjectCatalogUpdated        = "fuelmap.catalog.updated"
	StreamStationEvents          = "STATION_EVENTS"
)

// StationSelectedEvent is published when a user clicks a station marker.
type StationSelectedEvent struct {
	SessionID  string          `json:"session_id"`
	StationID  string          `json:"station_id"`
	Name       string          `json:"name"`
	Brand      string          `json:"brand,omitempty"`
	Location   domain.GeoPoint `json:"location"`
	SelectedAt time.Time       `json:"selected_at"`
}

var subjectReplacer = strings.NewReplacer(".", "_", ",", "_", "*", "_", ">", "_", " ", "_")

// StationSelectedSubject returns the subject for a station's selection events.
// Station IDs derived from coordinates contain dots, which NATS treats as token separators.
func StationSelectedSubject(stationID string) string {
	return SubjectStationSelectedPrefix + subjectReplacer.Replace(stationID)
}

// Publisher implements ports.EventPublisher using NATS JetStream for
// station events and core NATS for catalog fan-out.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure streams exist
	streams := []nats.StreamConfig{
		{
			Name:      StreamStationEvents,
			Subjects:  []string{SubjectStationSelectedPrefix + ">"},
			Retention: nats.LimitsPolicy,
			MaxAge:    7 * 24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// stream may already exist, update it instead
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

func (p *Publisher) PublishStationSelected(ctx context.Context, sessionID string, st *domain.Station) error {
	data, err := json.Marshal(StationSelectedEvent{
		SessionID:  sessionID,
		StationID:  st.ID,
		Name:       st.Name,
		Brand:      st.Brand,
		Location:   st.Location,
		SelectedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	_, err = p.js.Publish(StationSelectedSubject(st.ID), data, nats.Context(ctx))
	return err
}

func (p *Publisher) PublishCatalogUpdated(ctx context.Context, update ports.CatalogUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}
	return p.conn.Publish(SubjectCatalogUpdated, data)
}

// Conn exposes the underlying connection for health checks.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection.
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("fuelmap"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
