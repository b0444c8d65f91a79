package geo

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/example/ambulance-tracking/internal/models"
)

// Index is the minimal vehicle position store used by the tracking hooks
// and the nearby endpoint.
type Index interface {
	Upsert(v models.Vehicle)
	Remove(id string)
	Nearby(lat, lon float64, limit int) []models.Vehicle
}

// Offset returns p shifted by the given degrees.
func Offset(p models.GeoPoint, dLat, dLon float64) models.GeoPoint {
	return models.GeoPoint{Latitude: p.Latitude + dLat, Longitude: p.Longitude + dLon}
}

// Within reports whether both axis differences are strictly below tol.
func Within(a, b models.GeoPoint, tol float64) bool {
	return math.Abs(b.Latitude-a.Latitude) < tol && math.Abs(b.Longitude-a.Longitude) < tol
}

// Euclidean distance in degree space.
func Euclidean(a, b models.GeoPoint) float64 {
	return math.Hypot(b.Latitude-a.Latitude, b.Longitude-a.Longitude)
}

// Distance in meters between two points.
func Distance(a, b models.GeoPoint) float64 {
	return Haversine(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

type MemoryIndex struct {
	mu       sync.RWMutex
	vehicles map[string]models.Vehicle
}

func NewIndex() *MemoryIndex {
	return &MemoryIndex{vehicles: make(map[string]models.Vehicle)}
}

func (g *MemoryIndex) Upsert(v models.Vehicle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v.Updated = time.Now()
	g.vehicles[v.ID] = v
}

func (g *MemoryIndex) Remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.vehicles, id)
}

func (g *MemoryIndex) Get(id string) (models.Vehicle, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.vehicles[id]
	return v, ok
}

// naive scan; the fleet of simulated units is small
func (g *MemoryIndex) Nearby(lat, lon float64, limit int) []models.Vehicle {
	g.mu.RLock()
	defer g.mu.RUnlock()
	type pair struct {
		v    models.Vehicle
		dist float64
	}
	arr := make([]pair, 0, len(g.vehicles))
	for _, v := range g.vehicles {
		arr = append(arr, pair{v, Haversine(lat, lon, v.Loc.Latitude, v.Loc.Longitude)})
	}
	sort.Slice(arr, func(i, j int) bool { return arr[i].dist < arr[j].dist })
	if limit > 0 && limit < len(arr) {
		arr = arr[:limit]
	}
	out := make([]models.Vehicle, 0, len(arr))
	for _, p := range arr {
		out = append(out, p.v)
	}
	return out
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
