package http

import (
	"errors"
	"sort"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/cheapgasoline/fuelmap/internal/core/domain"
	"github.com/cheapgasoline/fuelmap/internal/core/usecases"
)

// fuelPrice is the GraphQL view of one entry of Station.Prices.
type fuelPrice struct {
	Fuel  string   `json:"fuel"`
	Label string   `json:"label"`
	Price *float64 `json:"price"`
}

func stationFromSource(src interface{}) (domain.Station, bool) {
	switch s := src.(type) {
	case domain.Station:
		return s, true
	case *domain.Station:
		if s != nil {
			return *s, true
		}
	}
	return domain.Station{}, false
}

func fuelPrices(st domain.Station) []fuelPrice {
	out := make([]fuelPrice, 0, len(st.Prices))
	for fuel, p := range st.Prices {
		out = append(out, fuelPrice{Fuel: fuel, Label: st.FuelLabels[fuel], Price: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fuel < out[j].Fuel })
	return out
}

// buildSchema creates the GraphQL schema wired to the station services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	fuelPriceType := graphql.NewObject(graphql.ObjectConfig{
		Name: "FuelPrice",
		Fields: graphql.Fields{
			"fuel":  &graphql.Field{Type: graphql.String},
			"label": &graphql.Field{Type: graphql.String},
			"price": &graphql.Field{Type: graphql.Float},
		},
	})

	stationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Station",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String},
			"name":        &graphql.Field{Type: graphql.String},
			"brand":       &graphql.Field{Type: graphql.String},
			"location":    &graphql.Field{Type: geoPointType},
			"description": &graphql.Field{Type: graphql.String},
			"image":       &graphql.Field{Type: graphql.String},
			"prices": &graphql.Field{
				Type: graphql.NewList(fuelPriceType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					st, ok := stationFromSource(p.Source)
					if !ok {
						return nil, nil
					}
					return fuelPrices(st), nil
				},
			},
		},
	})

	rankedType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RankedStation",
		Fields: graphql.Fields{
			"station":     &graphql.Field{Type: stationType},
			"distance_km": &graphql.Field{Type: graphql.Float},
		},
	})

	selectionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Selection",
		Fields: graphql.Fields{
			"center":    &graphql.Field{Type: geoPointType},
			"radius_km": &graphql.Field{Type: graphql.Float},
			"fallback":  &graphql.Field{Type: graphql.Boolean},
			"items":     &graphql.Field{Type: graphql.NewList(rankedType)},
		},
	})

	pageType := graphql.NewObject(graphql.ObjectConfig{
		Name: "StationPage",
		Fields: graphql.Fields{
			"items": &graphql.Field{Type: graphql.NewList(rankedType)},
			"total": &graphql.Field{Type: graphql.Int},
		},
	})

	directionsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Directions",
		Fields: graphql.Fields{
			"station_id": &graphql.Field{Type: graphql.String},
			"google":     &graphql.Field{Type: graphql.String},
			"apple":      &graphql.Field{Type: graphql.String},
			"waze":       &graphql.Field{Type: graphql.String},
			"yandex":     &graphql.Field{Type: graphql.String},
		},
	})

	catalogType := graphql.NewObject(graphql.ObjectConfig{
		Name: "CatalogStatus",
		Fields: graphql.Fields{
			"count":     &graphql.Field{Type: graphql.Int},
			"version":   &graphql.Field{Type: graphql.String},
			"loaded_at": &graphql.Field{Type: graphql.DateTime},
			"source":    &graphql.Field{Type: graphql.String},
		},
	})

	argPoint := func(args map[string]interface{}, latKey, lonKey string) *domain.GeoPoint {
		lat, okLat := args[latKey].(float64)
		lon, okLon := args[lonKey].(float64)
		if !okLat || !okLon {
			return nil
		}
		return &domain.GeoPoint{Lat: lat, Lon: lon}
	}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"nearestStations": &graphql.Field{
				Type:        selectionType,
				Description: "Nearest stations around a point, using the expanding-radius selection",
				Args: graphql.FieldConfigArgument{
					"lat":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					ref := domain.GeoPoint{Lat: p.Args["lat"].(float64), Lon: p.Args["lon"].(float64)}
					if !ref.Valid() {
						return nil, errInvalidPoint
					}
					return deps.Stations.Nearest(p.Context, ref, p.Args["limit"].(int))
				},
			},
			"stations": &graphql.Field{
				Type:        pageType,
				Description: "A page of stations ordered by nearest, with_prices or cheapest",
				Args: graphql.FieldConfigArgument{
					"sort":   &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: string(usecases.SortWithPrices)},
					"lat":    &graphql.ArgumentConfig{Type: graphql.Float},
					"lon":    &graphql.ArgumentConfig{Type: graphql.Float},
					"fuel":   &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Stations.List(p.Context, usecases.ListQuery{
						Sort:   usecases.SortMode(p.Args["sort"].(string)),
						Ref:    argPoint(p.Args, "lat", "lon"),
						Fuel:   p.Args["fuel"].(string),
						Offset: p.Args["offset"].(int),
						Limit:  p.Args["limit"].(int),
					})
				},
			},
			"station": &graphql.Field{
				Type:        stationType,
				Description: "Get a station by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Stations.GetByID(p.Context, p.Args["id"].(string))
				},
			},
			"directions": &graphql.Field{
				Type:        directionsType,
				Description: "Navigation links to a station",
				Args: graphql.FieldConfigArgument{
					"id":       &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"from_lat": &graphql.ArgumentConfig{Type: graphql.Float},
					"from_lon": &graphql.ArgumentConfig{Type: graphql.Float},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Stations.Directions(p.Context, p.Args["id"].(string), argPoint(p.Args, "from_lat", "from_lon"))
				},
			},
			"catalogStatus": &graphql.Field{
				Type:        catalogType,
				Description: "Version and size of the loaded station catalog",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Catalog == nil {
						return nil, nil
					}
					return deps.Catalog.Status(), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}

var errInvalidPoint = errors.New("lat/lon out of range")
