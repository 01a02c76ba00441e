package seedfile

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cheapgasoline/fuelmap/internal/core/domain"
)

//go:embed default_stations.json
var defaultStations []byte

type record struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Brand       string              `json:"brand"`
	Lat         float64             `json:"lat"`
	Lng         float64             `json:"lng"`
	Description string              `json:"description"`
	Image       string              `json:"image"`
	Prices      map[string]*float64 `json:"prices"`
}

// Source implements ports.StationSource over a JSON array of station records.
type Source struct {
	path string
}

// New returns a Source reading path on every call. An empty path uses the embedded seed.
func New(path string) *Source {
	return &Source{path: path}
}

// Stations implements ports.StationSource.
func (s *Source) Stations(_ context.Context) ([]domain.Station, error) {
	data := defaultStations
	if s.path != "" {
		b, err := os.ReadFile(s.path)
		if err != nil {
			return nil, fmt.Errorf("read seed %s: %w", s.path, err)
		}
		data = b
	}
	return Decode(data)
}

// Decode parses seed records into stations.
func Decode(data []byte) ([]domain.Station, error) {
	var recs []record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	out := make([]domain.Station, 0, len(recs))
	for _, r := range recs {
		out = append(out, domain.Station{
			ID:          r.ID,
			Name:        r.Name,
			Brand:       r.Brand,
			Location:    domain.GeoPoint{Lat: r.Lat, Lon: r.Lng},
			Description: r.Description,
			Image:       r.Image,
			Prices:      r.Prices,
		})
	}
	return out, nil
}
