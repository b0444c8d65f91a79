package geo

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/ambulance-tracking/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisGeo implements Index using Redis GEO commands. Writes are best-effort;
// failures are logged and never block the caller for longer than timeout.
type RedisGeo struct {
	client  *redis.Client
	key     string
	timeout time.Duration
	logger  *slog.Logger
}

func NewRedisGeo(addr, password, key string, logger *slog.Logger) *RedisGeo {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisGeo{client: c, key: key, timeout: time.Second, logger: logger}
}

func (r *RedisGeo) Upsert(v models.Vehicle) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: v.Loc.Longitude, Latitude: v.Loc.Latitude, Name: v.ID}).Err(); err != nil {
		r.logger.Warn("redis geoadd failed", "vehicle_id", v.ID, "error", err)
		return
	}
	if err := r.client.HSet(ctx, MetaKey(v.ID), MetaFields(v)).Err(); err != nil {
		r.logger.Warn("redis hset failed", "vehicle_id", v.ID, "error", err)
	}
}

func (r *RedisGeo) Remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.client.ZRem(ctx, r.key, id).Err(); err != nil {
		r.logger.Warn("redis zrem failed", "vehicle_id", id, "error", err)
	}
	_ = r.client.Del(ctx, MetaKey(id)).Err()
}

func (r *RedisGeo) Nearby(lat, lon float64, limit int) []models.Vehicle {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	res, err := r.client.GeoRadius(ctx, r.key, lon, lat, &redis.GeoRadiusQuery{Radius: 50, Unit: "km", WithCoord: true, WithDist: true, Count: limit, Sort: "ASC"}).Result()
	if err != nil {
		r.logger.Warn("redis georadius failed", "error", err)
		return nil
	}
	out := make([]models.Vehicle, 0, len(res))
	for _, g := range res {
		v := models.Vehicle{ID: g.Name}
		v.Loc.Latitude = g.Latitude
		v.Loc.Longitude = g.Longitude
		if m, err := r.client.HGetAll(ctx, MetaKey(g.Name)).Result(); err == nil {
			v.SessionID = m["session_id"]
			v.Plate = m["plate"]
			v.Status = models.Status(m["status"])
			if ts, err := time.Parse(time.RFC3339, m["updated"]); err == nil {
				v.Updated = ts
			}
		}
		out = append(out, v)
	}
	return out
}

func (r *RedisGeo) Close() error { return r.client.Close() }

// MetaKey is the hash holding a tracked vehicle's metadata.
func MetaKey(id string) string { return "ambulance:meta:" + id }

// MetaFields is shared with the event consumer so both writers agree on the
// hash layout.
func MetaFields(v models.Vehicle) map[string]interface{} {
	updated := v.Updated
	if updated.IsZero() {
		updated = time.Now()
	}
	return map[string]interface{}{
		"session_id": v.SessionID,
		"plate":      v.Plate,
		"status":     string(v.Status),
		"updated":    updated.UTC().Format(time.RFC3339),
	}
}
