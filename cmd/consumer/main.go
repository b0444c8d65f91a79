package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/ambulance-tracking/internal/config"
	"github.com/example/ambulance-tracking/internal/geo"
	"github.com/example/ambulance-tracking/internal/logging"
	"github.com/example/ambulance-tracking/internal/models"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total dispatch event messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	redisUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_redis_updates_total",
		Help: "Total successful redis updates",
	})
	redisErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_redis_errors_total",
		Help: "Total redis errors",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, redisUpdates, redisErrors)
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("dotenv load failed", "error", err)
	}
	cfg, err := config.LoadConsumerConfig()
	logger := logging.NewLogger("dispatch-consumer", cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// allow overriding the metrics address for local runs
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address to serve prometheus metrics on")
	flag.Parse()

	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	radapter := &redisAdapter{c: rc}

	// start metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := rc.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic, GroupID: cfg.KafkaGroup, MinBytes: 1, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	logger.Info("consumer listening", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		msgsConsumed.Inc()

		var ev models.DispatchEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			msgsInvalid.Inc()
			logger.Warn("invalid message", "error", err, "offset", m.Offset)
			continue
		}

		applied, err := applyEventWithRetry(ctx, radapter, cfg.RedisGeoKey, ev, cfg.RetryAttempts, cfg.RetryDelay)
		if err != nil {
			redisErrors.Inc()
			logger.Error("redis update failed", "dispatch_id", ev.DispatchID, "kind", ev.Kind, "error", err)
			continue
		}
		if applied {
			redisUpdates.Inc()
		}
	}
}

// RedisUpdater defines the small subset of redis operations we need for tests and production.
type RedisUpdater interface {
	GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error
	HSet(ctx context.Context, key string, values map[string]interface{}) error
	Remove(ctx context.Context, key, member, metaKey string) error
}

type redisAdapter struct{ c *redis.Client }

func (r *redisAdapter) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	_, err := r.c.GeoAdd(ctx, key, loc).Result()
	return err
}

func (r *redisAdapter) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	_, err := r.c.HSet(ctx, key, values).Result()
	return err
}

func (r *redisAdapter) Remove(ctx context.Context, key, member, metaKey string) error {
	pipe := r.c.TxPipeline()
	pipe.ZRem(ctx, key, member)
	pipe.Del(ctx, metaKey)
	_, err := pipe.Exec(ctx)
	return err
}

var errNoDispatch = errors.New("event has no dispatch id")

// applyEventWithRetry projects one event into redis with retry/backoff. It
// reports false for events that carry nothing to project.
func applyEventWithRetry(ctx context.Context, rc RedisUpdater, geoKey string, ev models.DispatchEvent, attempts int, delay time.Duration) (bool, error) {
	var op func() error
	switch ev.Kind {
	case "en_route", "moved", "arrived":
		if ev.DispatchID == "" {
			return false, errNoDispatch
		}
		if ev.Vehicle == nil {
			return false, nil
		}
		v := models.Vehicle{ID: ev.DispatchID, SessionID: ev.SessionID, Plate: ev.Plate, Loc: *ev.Vehicle, Status: ev.Status, Updated: ev.At}
		op = func() error {
			if err := rc.GeoAdd(ctx, geoKey, &redis.GeoLocation{Longitude: v.Loc.Longitude, Latitude: v.Loc.Latitude, Name: v.ID}); err != nil {
				return err
			}
			return rc.HSet(ctx, geo.MetaKey(v.ID), geo.MetaFields(v))
		}
	case "reset":
		if ev.DispatchID == "" {
			return false, nil
		}
		op = func() error { return rc.Remove(ctx, geoKey, ev.DispatchID, geo.MetaKey(ev.DispatchID)) }
	default:
		return false, nil
	}

	for i := 0; i < attempts; i++ {
		err := op()
		if err == nil {
			return true, nil
		}
		if i == attempts-1 {
			return false, err
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return false, nil
}
