// Driver-presence consumer: reads driver status/location updates from
// Kafka and writes them into the driver directory the dispatch engine
// searches. This is the external driver-presence subsystem's write
// path for deployments where presence flows through the broker instead
// of the HTTP endpoint.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/example/smartcabb-dispatch/internal/models"
	"github.com/example/smartcabb-dispatch/internal/store"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "presence_messages_consumed_total",
		Help: "Total driver presence messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "presence_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	storeUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "presence_store_updates_total",
		Help: "Total successful driver directory updates",
	})
	storeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "presence_store_errors_total",
		Help: "Total driver directory update errors",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, storeUpdates, storeErrors)
}

func main() {
	// allow some flags for local runs
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	brokersEnv := os.Getenv("KAFKA_BROKERS")
	if brokersEnv == "" {
		brokersEnv = os.Getenv("KAFKA_BROKER")
	}
	brokers := []string{}
	if brokersEnv != "" {
		for _, b := range strings.Split(brokersEnv, ",") {
			if s := strings.TrimSpace(b); s != "" {
				brokers = append(brokers, s)
			}
		}
	} else {
		brokers = []string{"localhost:9092"}
	}

	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "driver-presence"
	}
	group := os.Getenv("KAFKA_GROUP")
	if group == "" {
		group = "smartcabb-presence-consumer"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	rs := store.NewRedis(redisAddr, os.Getenv("REDIS_PASSWORD"))

	// start metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := rs.Ping(r.Context()); err != nil {
				http.Error(w, "redis not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		log.Printf("metrics/health listening on %s", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: group, MinBytes: 10e3, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = rs.Close()
	}()

	log.Printf("presence consumer listening topic=%s brokers=%v group=%s", topic, brokers, group)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("shutting down consumer")
				return
			}
			log.Printf("kafka read error: %v; backing off %s", err, backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		// reset backoff on success
		backoff = time.Second

		msgsConsumed.Inc()

		var d models.Driver
		if err := json.Unmarshal(m.Value, &d); err != nil || d.ID == "" {
			msgsInvalid.Inc()
			log.Printf("invalid message: %v", err)
			continue
		}
		if d.Status == "" {
			d.Status = models.DriverAvailable
		}
		d.Updated = time.Now()

		if err := updateDirectoryWithRetry(ctx, rs, &d, 3, 200*time.Millisecond); err != nil {
			storeErrors.Inc()
			log.Printf("directory update failed for driver=%s: %v", d.ID, err)
			continue
		}
		storeUpdates.Inc()
	}
}

// DirectoryWriter is the small subset of store operations we need, so
// tests can swap in a fake.
type DirectoryWriter interface {
	PutDriver(ctx context.Context, d *models.Driver) error
}

// updateDirectoryWithRetry writes the driver record with retry/backoff.
func updateDirectoryWithRetry(ctx context.Context, w DirectoryWriter, d *models.Driver, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = w.PutDriver(ctx, d); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}
