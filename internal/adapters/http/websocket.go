package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/cheapgasoline/fuelmap/internal/core/ports"
	"github.com/cheapgasoline/fuelmap/internal/core/usecases"
)

// MapSessionHandler returns a handler that runs one interactive station map
// per WebSocket connection. The server drives the map with command frames
// (map.init, marker.add, marker.remove, map.fly_to, location.request) and the
// client reports viewport changes, marker clicks and its location.
func MapSessionHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		sessionID := uuid.NewString()
		logger := slog.Default().With("session_id", sessionID, "remote", c.RemoteAddr().String())

		var mu sync.Mutex
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		if deps.Catalog == nil {
			_ = writeJSON(outbound{Type: msgError, Message: "station catalog not configured"})
			return
		}

		surface := newWSSurface(func(m outbound) error { return writeJSON(m) }, deps.TileURL, logger)
		view := usecases.NewMapView(sessionID, usecases.MapViewDeps{
			Surface:   surface,
			Geo:       surface,
			Catalog:   deps.Catalog,
			Selector:  deps.Selector,
			Location:  deps.Location,
			Publisher: deps.Publisher,
		}, deps.MapView)

		if err := writeJSON(outbound{Type: msgSession, SessionID: sessionID}); err != nil {
			return
		}
		logger.Info("map session opened")

		if deps.Views != nil {
			deps.Views.Add(view)
			defer deps.Views.Remove(sessionID)
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			if err := view.Start(ctx); err != nil && !errors.Is(err, ports.ErrSurfaceClosed) && ctx.Err() == nil {
				logger.Warn("map view start", "error", err)
			}
		}()

		// Keep-alive ping
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				break
			}
			m, err := decodeInbound(data)
			if err != nil {
				_ = writeJSON(outbound{Type: msgError, Message: err.Error()})
				continue
			}
			surface.handle(m)
		}

		close(done)
		surface.close()
		cancel()
		view.Close(context.Background())
		logger.Info("map session closed", "reconciliations", view.Reconciliations())
	}
}
