// Package geo ranks restaurants by geodesic distance from a user.
package geo

import (
	"sort"

	"github.com/tidwall/geodesic"

	"github.com/uvolbolmasin/boxbot/internal/models"
)

// DefaultRadiusKm is how far a user is willing to travel for a box.
const DefaultRadiusKm = 10.0

type Point struct {
	Lat float64
	Lon float64
}

// Ranked is a restaurant together with its distance from the user.
type Ranked struct {
	models.Restaurant
	DistanceKm float64
}

// Distance returns the WGS84 geodesic distance between a and b in kilometres.
func Distance(a, b Point) float64 {
	var meters float64
	geodesic.WGS84.Inverse(a.Lat, a.Lon, b.Lat, b.Lon, &meters, nil, nil)
	return meters / 1000
}

// RankNearby keeps restaurants strictly closer than radiusKm and orders them
// nearest first. Equal distances keep their input order.
func RankNearby(user Point, restaurants []models.Restaurant, radiusKm float64) []Ranked {
	ranked := make([]Ranked, 0, len(restaurants))
	for _, r := range restaurants {
		d := Distance(user, Point{Lat: r.Lat, Lon: r.Lon})
		if d >= radiusKm {
			continue
		}
		ranked = append(ranked, Ranked{Restaurant: r, DistanceKm: d})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].DistanceKm < ranked[j].DistanceKm
	})
	return ranked
}
