package http

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/cheapgasoline/fuelmap/internal/core/domain"
	"github.com/cheapgasoline/fuelmap/internal/core/usecases"
	"github.com/cheapgasoline/fuelmap/internal/pkg/qrpng"
	"github.com/cheapgasoline/fuelmap/internal/pkg/validator"
)

type nearestQuery struct {
	Lat   *float64 `query:"lat" validate:"required,latitude"`
	Lon   *float64 `query:"lon" validate:"required,longitude"`
	Limit int      `query:"limit" validate:"omitempty,min=1,max=50"`
}

type listQuery struct {
	Sort   string   `query:"sort" validate:"omitempty,oneof=nearest with_prices cheapest"`
	Lat    *float64 `query:"lat" validate:"omitempty,latitude"`
	Lon    *float64 `query:"lon" validate:"omitempty,longitude"`
	Fuel   string   `query:"fuel" validate:"omitempty,max=32"`
	Offset int      `query:"offset" validate:"min=0"`
	Limit  int      `query:"limit" validate:"omitempty,min=1,max=100"`
}

type directionsQuery struct {
	FromLat *float64 `query:"from_lat" validate:"omitempty,latitude"`
	FromLon *float64 `query:"from_lon" validate:"omitempty,longitude"`
}

// parseQuery binds and validates the query string into dst.
func parseQuery(c *fiber.Ctx, dst interface{}) error {
	if err := c.QueryParser(dst); err != nil {
		return fmt.Errorf("malformed query: %w", err)
	}
	if err := validator.Validate(dst); err != nil {
		return errors.New(validator.Message(err))
	}
	return nil
}

var errHalfPoint = errors.New("latitude and longitude must be given together")

// optionalPoint returns nil when neither coordinate is set.
func optionalPoint(lat, lon *float64) (*domain.GeoPoint, error) {
	if (lat == nil) != (lon == nil) {
		return nil, errHalfPoint
	}
	return point(lat, lon), nil
}

func point(lat, lon *float64) *domain.GeoPoint {
	if lat == nil || lon == nil {
		return nil
	}
	return &domain.GeoPoint{Lat: *lat, Lon: *lon}
}

// ListStationsHandler returns a page of stations ordered by distance,
// price availability or price.
func ListStationsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var q listQuery
		if err := parseQuery(c, &q); err != nil {
			return errBadRequest(c, err.Error())
		}
		sort := usecases.SortMode(q.Sort)
		if sort == "" {
			sort = usecases.SortNearest
		}
		ref, err := optionalPoint(q.Lat, q.Lon)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		if sort == usecases.SortNearest && ref == nil {
			return errBadRequest(c, "lat and lon are required for sort=nearest")
		}
		if q.Limit == 0 {
			q.Limit = 20
		}

		res, err := deps.Stations.List(c.UserContext(), usecases.ListQuery{
			Sort:   sort,
			Ref:    ref,
			Fuel:   q.Fuel,
			Offset: q.Offset,
			Limit:  q.Limit,
		})
		if err != nil {
			LoggerFromCtx(c.UserContext()).Error("list stations", "error", err)
			return errInternal(c, "failed to list stations")
		}

		pg := Pagination{Offset: q.Offset, Limit: q.Limit, Total: res.Total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: res.Items, Pagination: pg})
	}
}

// NearestStationsHandler returns the proximity selection around lat/lon.
func NearestStationsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var q nearestQuery
		if err := parseQuery(c, &q); err != nil {
			return errBadRequest(c, err.Error())
		}

		sel, err := deps.Stations.Nearest(c.UserContext(), *point(q.Lat, q.Lon), q.Limit)
		if err != nil {
			LoggerFromCtx(c.UserContext()).Error("nearest stations", "error", err)
			return errInternal(c, "failed to select stations")
		}
		return c.JSON(sel)
	}
}

// NearestGeoJSONHandler returns the proximity selection as a GeoJSON
// FeatureCollection of points.
func NearestGeoJSONHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var q nearestQuery
		if err := parseQuery(c, &q); err != nil {
			return errBadRequest(c, err.Error())
		}

		sel, err := deps.Stations.Nearest(c.UserContext(), *point(q.Lat, q.Lon), q.Limit)
		if err != nil {
			LoggerFromCtx(c.UserContext()).Error("nearest stations", "error", err)
			return errInternal(c, "failed to select stations")
		}

		data, err := selectionFeatures(sel).MarshalJSON()
		if err != nil {
			return errInternal(c, "failed to encode geojson")
		}
		c.Set(fiber.HeaderContentType, "application/geo+json")
		return c.Send(data)
	}
}

func selectionFeatures(sel domain.Selection) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.ExtraMembers = geojson.Properties{
		"radius_km": sel.RadiusKm,
		"fallback":  sel.Fallback,
	}
	for i, it := range sel.Items {
		f := geojson.NewFeature(it.Station.Location.Point())
		f.ID = it.Station.ID
		f.Properties["rank"] = i + 1
		f.Properties["name"] = it.Station.Name
		f.Properties["distance_km"] = it.DistanceKm
		if it.Station.Brand != "" {
			f.Properties["brand"] = it.Station.Brand
		}
		if len(it.Station.Prices) > 0 {
			f.Properties["prices"] = it.Station.Prices
		}
		fc.Append(f)
	}
	return fc
}

// GetStationHandler returns a single station by ID.
func GetStationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		st, err := deps.Stations.GetByID(c.UserContext(), c.Params("id"))
		if err != nil {
			return stationError(c, err)
		}
		return c.JSON(st)
	}
}

// DirectionsHandler returns navigation deep links to a station.
func DirectionsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var q directionsQuery
		if err := parseQuery(c, &q); err != nil {
			return errBadRequest(c, err.Error())
		}
		from, err := optionalPoint(q.FromLat, q.FromLon)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		d, err := deps.Stations.Directions(c.UserContext(), c.Params("id"), from)
		if err != nil {
			return stationError(c, err)
		}
		return c.JSON(d)
	}
}

// ShareQRHandler renders a QR code PNG linking to the station location.
func ShareQRHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		size := c.QueryInt("size", qrpng.DefaultSize)
		if size < 64 || size > qrpng.MaxSize {
			return errBadRequest(c, fmt.Sprintf("size must be between 64 and %d", qrpng.MaxSize))
		}

		link, err := deps.Stations.ShareURL(c.UserContext(), c.Params("id"))
		if err != nil {
			return stationError(c, err)
		}
		png, err := qrpng.Encode(link, size)
		if err != nil {
			LoggerFromCtx(c.UserContext()).Error("encode share qr", "error", err)
			return errInternal(c, "failed to render qr code")
		}
		c.Set(fiber.HeaderContentType, "image/png")
		return c.Send(png)
	}
}

// CatalogStatusHandler reports the loaded catalog version and live map views.
func CatalogStatusHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Catalog == nil {
			return errUnavailable(c, "catalog not configured")
		}
		views := 0
		if deps.Views != nil {
			views = deps.Views.Len()
		}
		return c.JSON(catalogStatusResponse{
			CatalogStatus: deps.Catalog.Status(),
			MapViews:      views,
		})
	}
}

type catalogStatusResponse struct {
	usecases.CatalogStatus
	MapViews int `json:"map_views"`
}

func stationError(c *fiber.Ctx, err error) error {
	if errors.Is(err, usecases.ErrStationNotFound) {
		return errNotFound(c, "station not found")
	}
	LoggerFromCtx(c.UserContext()).Error("station lookup", "error", err)
	return errInternal(c, "failed to load station")
}
