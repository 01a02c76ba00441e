package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Station is a fuel station shown on the map.
type Station struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Brand       string              `json:"brand,omitempty"`
	Location    GeoPoint            `json:"location"`
	Description string              `json:"description,omitempty"`
	Image       string              `json:"image,omitempty"`
	Prices      map[string]*float64 `json:"prices,omitempty"` // fuel id -> price, nil when unknown
	FuelLabels  map[string]string   `json:"fuel_labels,omitempty"`
}

// HasPrices reports whether at least one fuel has a known price.
func (s *Station) HasPrices() bool {
	for _, p := range s.Prices {
		if p != nil {
			return true
		}
	}
	return false
}

// MinPrice returns the cheapest known price, or false when none is known.
func (s *Station) MinPrice() (float64, bool) {
	min := math.Inf(1)
	for _, p := range s.Prices {
		if p != nil && *p < min {
			min = *p
		}
	}
	if math.IsInf(min, 1) {
		return 0, false
	}
	return min, true
}

// RankedStation is a station together with its distance from a reference point.
type RankedStation struct {
	Station    Station `json:"station"`
	DistanceKm float64 `json:"distance_km"`
}

// Selection is the nearest-first set of stations visible around a center.
type Selection struct {
	Center   GeoPoint        `json:"center"`
	RadiusKm float64         `json:"radius_km"`
	Fallback bool            `json:"fallback"`
	Items    []RankedStation `json:"items"`
}

// IDs returns the station IDs of the selection in rank order.
func (s Selection) IDs() []string {
	ids := make([]string, len(s.Items))
	for i, it := range s.Items {
		ids[i] = it.Station.ID
	}
	return ids
}

// FuelGrade is one fuel a brand sells.
type FuelGrade struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

var brandFuelGrades = map[string][]FuelGrade{
	"SOCAR":     {{"n95", "NANO 95"}, {"n92", "NANO 92"}, {"diesel", "NANO DT"}, {"lpg", "LPG"}},
	"GULF":      {{"g98", "G-Force 98"}, {"g95", "G-Force 95"}, {"reg", "Euro Reg"}, {"diesel", "G-Force D"}},
	"WISSOL":    {{"eko_super", "EKO SUPER"}, {"eko_premium", "EKO PREMIUM"}, {"eko_regular", "EKO REGULAR"}, {"diesel", "EKO DIESEL"}, {"EUdiesel", "EURO DIESEL"}},
	"LUKOIL":    {{"ecto_100", "100 ECTO"}, {"ecto_95", "95 ECTO"}, {"ecto_92", "92 ECTO"}, {"diesel", "D ECTO"}},
	"ROMPETROL": {{"efix_98", "98 EFIX"}, {"efix_95", "95 EFIX"}, {"efix_92", "92 EFIX"}, {"diesel", "D EFIX"}, {"LPDdiesel", "LPD EFIX"}},
}

// knownBrands is checked in order; the first brand found in a name wins.
var knownBrands = []string{"WISSOL", "GULF", "LUKOIL", "ROMPETROL", "SOCAR"}

// InferBrand guesses the brand from a station name. Empty when unknown.
func InferBrand(name string) string {
	upper := strings.ToUpper(name)
	for _, b := range knownBrands {
		if strings.Contains(upper, b) {
			return b
		}
	}
	return ""
}

// FuelGradesFor returns the fuel configuration of a brand, or nil.
func FuelGradesFor(brand string) []FuelGrade {
	return brandFuelGrades[strings.ToUpper(brand)]
}

// ParseFuelConfig decodes a JSON fuel configuration such as
// [{"id":"n95","label":"NANO 95"}]. Empty input yields nil.
func ParseFuelConfig(raw string) ([]FuelGrade, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var grades []FuelGrade
	if err := json.Unmarshal([]byte(raw), &grades); err != nil {
		return nil, fmt.Errorf("parse fuel config: %w", err)
	}
	return grades, nil
}

// ApplyFuelGrades sets the station's fuel labels from grades and fills Prices
// from latest. Fuels without a latest price are present with a nil price.
func (s *Station) ApplyFuelGrades(grades []FuelGrade, latest map[string]float64) {
	if len(grades) == 0 {
		grades = FuelGradesFor(s.Brand)
	}
	if len(grades) == 0 {
		return
	}
	s.FuelLabels = make(map[string]string, len(grades))
	s.Prices = make(map[string]*float64, len(grades))
	for _, g := range grades {
		s.FuelLabels[g.ID] = g.Label
		if p, ok := latest[g.ID]; ok {
			p := p
			s.Prices[g.ID] = &p
		} else {
			s.Prices[g.ID] = nil
		}
	}
}
