package models

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
)

// ParseGeoPoint accepts an orb.Point, a {"lon","lat"} object or a [lon, lat] pair.
func ParseGeoPoint(v any) (orb.Point, error) {
	var p orb.Point
	switch val := v.(type) {
	case orb.Point:
		p = val
	case map[string]any:
		lon, err := toFloat(val["lon"])
		if err != nil {
			return p, fmt.Errorf("geoPoint lon: %w", err)
		}
		lat, err := toFloat(val["lat"])
		if err != nil {
			return p, fmt.Errorf("geoPoint lat: %w", err)
		}
		p = orb.Point{lon, lat}
	case []any:
		if len(val) != 2 {
			return p, fmt.Errorf("geoPoint must have exactly 2 coordinates")
		}
		lon, err := toFloat(val[0])
		if err != nil {
			return p, err
		}
		lat, err := toFloat(val[1])
		if err != nil {
			return p, err
		}
		p = orb.Point{lon, lat}
	case []float64:
		if len(val) != 2 {
			return p, fmt.Errorf("geoPoint must have exactly 2 coordinates")
		}
		p = orb.Point{val[0], val[1]}
	default:
		return p, fmt.Errorf("unsupported geoPoint value %T", v)
	}

	if p.Lon() < -180 || p.Lon() > 180 {
		return p, fmt.Errorf("geoPoint lon %v out of range", p.Lon())
	}
	if p.Lat() < -90 || p.Lat() > 90 {
		return p, fmt.Errorf("geoPoint lat %v out of range", p.Lat())
	}
	return p, nil
}

// GeoPointJSON encodes a point the way it is stored.
func GeoPointJSON(p orb.Point) (string, error) {
	b, err := json.Marshal(map[string]float64{"lon": p.Lon(), "lat": p.Lat()})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
