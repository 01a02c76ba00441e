package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/cheapgasoline/fuelmap/internal/core/ports"
)

// Subscriber implements ports.EventSubscriber. Catalog updates use core
// pub/sub so every API instance receives each announcement.
type Subscriber struct {
	conn *nats.Conn
	subs []*nats.Subscription
}

// NewSubscriber connects to NATS.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Subscriber{conn: conn}, nil
}

func (s *Subscriber) SubscribeCatalogUpdates(ctx context.Context, handler func(ctx context.Context, update ports.CatalogUpdate) error) error {
	sub, err := s.conn.Subscribe(SubjectCatalogUpdated, func(msg *nats.Msg) {
		update, err := DecodeCatalogUpdate(msg.Data)
		if err != nil {
			slog.Warn("invalid catalog update", "error", err)
			return
		}
		if err := handler(ctx, update); err != nil {
			slog.Warn("catalog update handler", "version", update.Version, "error", err)
		}
	})
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// DecodeCatalogUpdate parses a catalog update message.
func DecodeCatalogUpdate(data []byte) (ports.CatalogUpdate, error) {
	var u ports.CatalogUpdate
	if err := json.Unmarshal(data, &u); err != nil {
		return u, fmt.Errorf("decode catalog update: %w", err)
	}
	if u.Version == "" {
		return u, fmt.Errorf("decode catalog update: missing version")
	}
	return u, nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
