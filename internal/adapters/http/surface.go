package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cheapgasoline/fuelmap/internal/core/domain"
	"github.com/cheapgasoline/fuelmap/internal/core/ports"
	"github.com/cheapgasoline/fuelmap/internal/pkg/metrics"
	"github.com/cheapgasoline/fuelmap/internal/pkg/validator"
)

// Server to client message types.
const (
	msgSession         = "session"
	msgMapInit         = "map.init"
	msgMarkerAdd       = "marker.add"
	msgMarkerRemove    = "marker.remove"
	msgFlyTo           = "map.fly_to"
	msgLocationRequest = "location.request"
	msgStationSelected = "station.selected"
	msgError           = "error"
)

// Client to server message types.
const (
	msgMoveEnd       = "moveend"
	msgZoomEnd       = "zoomend"
	msgMarkerClick   = "marker.click"
	msgLocation      = "location"
	msgLocationError = "location.error"
	msgTilesError    = "tiles.error"
)

// outbound is a frame sent to the browser map.
type outbound struct {
	Type      string           `json:"type"`
	SessionID string           `json:"session_id,omitempty"`
	ID        string           `json:"id,omitempty"`
	Center    *domain.GeoPoint `json:"center,omitempty"`
	Zoom      int              `json:"zoom,omitempty"`
	TileURL   string           `json:"tile_url,omitempty"`
	Station   *domain.Station  `json:"station,omitempty"`
	TimeoutMs int64            `json:"timeout_ms,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// inbound is a frame received from the browser map.
type inbound struct {
	Type     string           `json:"type" validate:"required,oneof=moveend zoomend marker.click location location.error tiles.error"`
	Center   *domain.GeoPoint `json:"center"`
	Zoom     int              `json:"zoom" validate:"min=0,max=22"`
	ID       string           `json:"id" validate:"max=128"`
	Lat      *float64         `json:"lat" validate:"omitempty,latitude"`
	Lon      *float64         `json:"lon" validate:"omitempty,longitude"`
	Accuracy float64          `json:"accuracy" validate:"min=0"`
	Code     string           `json:"code"` // location.error: unavailable, denied, timeout
	Message  string           `json:"message"`
}

// decodeInbound parses and validates one client frame.
func decodeInbound(data []byte) (inbound, error) {
	var m inbound
	if err := json.Unmarshal(data, &m); err != nil {
		return inbound{}, errors.New("invalid JSON")
	}
	if err := validator.Validate(&m); err != nil {
		return inbound{}, errors.New(validator.Message(err))
	}
	switch m.Type {
	case msgMoveEnd, msgZoomEnd:
		if m.Center == nil {
			return inbound{}, fmt.Errorf("%s requires center", m.Type)
		}
	case msgMarkerClick:
		if m.ID == "" {
			return inbound{}, errors.New("marker.click requires id")
		}
	case msgLocation:
		if m.Lat == nil || m.Lon == nil {
			return inbound{}, errors.New("location requires lat and lon")
		}
	}
	return m, nil
}

type wsMarker string

func (m wsMarker) StationID() string { return string(m) }

type locationReply struct {
	pos domain.Position
	err error
}

// wsSurface is the map surface and geolocation provider of one browser
// session. Commands go out as frames; viewport, click and location frames
// come back through handle.
type wsSurface struct {
	send    func(outbound) error
	tileURL string
	logger  *slog.Logger

	mu        sync.Mutex
	closed    bool
	center    domain.GeoPoint
	markers   map[string]func()
	listeners map[int]func(domain.ViewportEvent)
	nextID    int
	pending   chan locationReply
}

var (
	_ ports.MapSurface          = (*wsSurface)(nil)
	_ ports.GeolocationProvider = (*wsSurface)(nil)
)

func newWSSurface(send func(outbound) error, tileURL string, logger *slog.Logger) *wsSurface {
	if logger == nil {
		logger = slog.Default()
	}
	return &wsSurface{
		send:      send,
		tileURL:   tileURL,
		logger:    logger,
		markers:   make(map[string]func()),
		listeners: make(map[int]func(domain.ViewportEvent)),
	}
}

func (s *wsSurface) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *wsSurface) Init(ctx context.Context, center domain.GeoPoint, zoom int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ports.ErrSurfaceClosed
	}
	s.center = center
	s.mu.Unlock()
	return s.send(outbound{Type: msgMapInit, Center: &center, Zoom: zoom, TileURL: s.tileURL})
}

func (s *wsSurface) AddMarker(ctx context.Context, st domain.Station, onClick func()) (ports.MarkerHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, ports.ErrSurfaceClosed
	}
	if err := s.send(outbound{Type: msgMarkerAdd, ID: st.ID, Station: &st}); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.markers[st.ID] = onClick
	s.mu.Unlock()
	return wsMarker(st.ID), nil
}

func (s *wsSurface) RemoveMarker(ctx context.Context, h ports.MarkerHandle) error {
	if s.isClosed() {
		return ports.ErrSurfaceClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	id := h.StationID()
	if err := s.send(outbound{Type: msgMarkerRemove, ID: id}); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.markers, id)
	s.mu.Unlock()
	return nil
}

func (s *wsSurface) FlyTo(ctx context.Context, p domain.GeoPoint, zoom int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ports.ErrSurfaceClosed
	}
	s.center = p
	s.mu.Unlock()
	return s.send(outbound{Type: msgFlyTo, Center: &p, Zoom: zoom})
}

func (s *wsSurface) Center() domain.GeoPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.center
}

func (s *wsSurface) OnViewportChange(fn func(domain.ViewportEvent)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// CurrentPosition asks the browser for its location and waits for the
// location or location.error frame, or for ctx to end.
func (s *wsSurface) CurrentPosition(ctx context.Context) (domain.Position, error) {
	ch := make(chan locationReply, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Position{}, ports.ErrSurfaceClosed
	}
	s.pending = ch
	s.mu.Unlock()

	var timeoutMs int64
	if dl, ok := ctx.Deadline(); ok {
		timeoutMs = time.Until(dl).Milliseconds()
	}
	if err := s.send(outbound{Type: msgLocationRequest, TimeoutMs: timeoutMs}); err != nil {
		s.clearPending(ch)
		return domain.Position{}, err
	}

	select {
	case r := <-ch:
		return r.pos, r.err
	case <-ctx.Done():
		s.clearPending(ch)
		return domain.Position{}, ctx.Err()
	}
}

func (s *wsSurface) clearPending(ch chan locationReply) {
	s.mu.Lock()
	if s.pending == ch {
		s.pending = nil
	}
	s.mu.Unlock()
}

func (s *wsSurface) reply(r locationReply) {
	s.mu.Lock()
	ch := s.pending
	s.pending = nil
	s.mu.Unlock()
	if ch != nil {
		ch <- r
	}
}

// handle applies one client frame.
func (s *wsSurface) handle(m inbound) {
	switch m.Type {
	case msgMoveEnd, msgZoomEnd:
		s.mu.Lock()
		s.center = *m.Center
		fns := make([]func(domain.ViewportEvent), 0, len(s.listeners))
		for _, fn := range s.listeners {
			fns = append(fns, fn)
		}
		s.mu.Unlock()

		ev := domain.ViewportEvent{
			Kind:     domain.ViewportEventKind(m.Type),
			Viewport: domain.Viewport{Center: *m.Center, Zoom: m.Zoom},
		}
		for _, fn := range fns {
			fn(ev)
		}

	case msgMarkerClick:
		s.mu.Lock()
		onClick, ok := s.markers[m.ID]
		s.mu.Unlock()
		if !ok {
			_ = s.send(outbound{Type: msgError, Message: "unknown marker " + m.ID})
			return
		}
		if onClick != nil {
			onClick()
		}
		_ = s.send(outbound{Type: msgStationSelected, ID: m.ID})

	case msgLocation:
		s.reply(locationReply{pos: domain.Position{Lat: *m.Lat, Lon: *m.Lon, Accuracy: m.Accuracy}})

	case msgLocationError:
		var err error
		if m.Code == "unavailable" {
			err = ports.ErrGeolocationUnavailable
		} else {
			err = fmt.Errorf("geolocation %s: %s", m.Code, m.Message)
		}
		s.reply(locationReply{err: err})

	case msgTilesError:
		metrics.TileErrors.Inc()
		s.logger.Warn("map tiles failed to load", "message", m.Message)
	}
}

// close fails a pending location request and makes every further command
// return ports.ErrSurfaceClosed.
func (s *wsSurface) close() {
	s.mu.Lock()
	s.closed = true
	ch := s.pending
	s.pending = nil
	s.listeners = make(map[int]func(domain.ViewportEvent))
	s.mu.Unlock()
	if ch != nil {
		ch <- locationReply{err: ports.ErrSurfaceClosed}
	}
}
