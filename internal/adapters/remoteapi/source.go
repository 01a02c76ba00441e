package remoteapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/cheapgasoline/fuelmap/internal/core/domain"
)

// StationsPath is the listing endpoint of the station backend.
const StationsPath = "/api/stations"

type priceDTO struct {
	ID    string   `json:"id"`
	Type  string   `json:"type"`
	Price *float64 `json:"price"`
}

// flexID accepts numeric and string identifiers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type stationDTO struct {
	ID     flexID     `json:"id"`
	Name   string     `json:"name"`
	Brand  string     `json:"brand"`
	Lat    float64    `json:"lat"`
	Lng    float64    `json:"lng"`
	Prices []priceDTO `json:"prices"`
}

// Source implements ports.StationSource over GET /api/stations.
type Source struct {
	client  *fasthttp.Client
	baseURL string
	timeout time.Duration
}

// New creates a Source. A nil client uses a default fasthttp.Client.
func New(baseURL string, timeout time.Duration, client *fasthttp.Client) *Source {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if client == nil {
		client = &fasthttp.Client{
			Name:                "fuelmap",
			MaxConnsPerHost:     4,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		}
	}
	return &Source{client: client, baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout}
}

// Stations implements ports.StationSource.
func (s *Source) Stations(ctx context.Context) ([]domain.Station, error) {
	timeout := s.timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.baseURL + StationsPath)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	if err := s.client.DoTimeout(req, resp, timeout); err != nil {
		return nil, fmt.Errorf("get %s: %w", StationsPath, err)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return nil, fmt.Errorf("get %s: unexpected status %d", StationsPath, code)
	}
	return Decode(resp.Body())
}

// Decode parses the /api/stations response body.
func Decode(body []byte) ([]domain.Station, error) {
	var dtos []stationDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		return nil, fmt.Errorf("decode stations: %w", err)
	}
	out := make([]domain.Station, 0, len(dtos))
	for _, d := range dtos {
		st := domain.Station{
			ID:       string(d.ID),
			Name:     d.Name,
			Brand:    strings.ToUpper(d.Brand),
			Location: domain.GeoPoint{Lat: d.Lat, Lon: d.Lng},
		}
		if len(d.Prices) > 0 {
			st.Prices = make(map[string]*float64, len(d.Prices))
			st.FuelLabels = make(map[string]string, len(d.Prices))
			for _, p := range d.Prices {
				st.Prices[p.ID] = p.Price
				st.FuelLabels[p.ID] = p.Type
			}
		}
		out = append(out, st)
	}
	return out, nil
}
