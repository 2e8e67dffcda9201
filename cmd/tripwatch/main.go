// Command tripwatch subscribes to trip lifecycle events on NATS and logs
// each one. It is an operational tap on the event stream.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/WessleyAI/wessley-trips/engine/domain"
	"github.com/WessleyAI/wessley-trips/pkg/natsutil"
)

func main() {
	var (
		natsURL     = flag.String("nats", nats.DefaultURL, "NATS server URL")
		subject     = flag.String("subject", "trips.>", "subject to watch")
		metricsAddr = flag.String("metrics", ":9092", "metrics listen address, empty to disable")
		debug       = flag.Bool("debug", false, "log event payloads")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config{NATSURL: *natsURL, Subject: *subject, MetricsAddr: *metricsAddr}
	reg := prometheus.NewRegistry()
	if err := run(ctx, cfg, reg, newWatcher(reg, logger), logger); err != nil {
		logger.Error("tripwatch exited with error", "err", err)
		os.Exit(1)
	}
}

type config struct {
	NATSURL     string
	Subject     string
	MetricsAddr string
}

// run consumes cfg.Subject into w until ctx is done.
func run(ctx context.Context, cfg config, reg *prometheus.Registry, w *watcher, logger *slog.Logger) error {
	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("wessley-tripwatch"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return err
	}
	defer nc.Drain()

	sub, err := natsutil.Subscribe(nc, cfg.Subject, w.handle, natsutil.OnMalformed(w.onMalformed))
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	logger.Info("watching trip events", "url", cfg.NATSURL, "subject", cfg.Subject)

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "err", err)
			}
		}()
		defer srv.Close()
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")
	return nil
}

type watcher struct {
	events    *prometheus.CounterVec
	malformed prometheus.Counter
	km        prometheus.Counter
	logger    *slog.Logger
}

func newWatcher(reg prometheus.Registerer, logger *slog.Logger) *watcher {
	f := promauto.With(reg)
	return &watcher{
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tripwatch",
			Name:      "events_total",
			Help:      "Trip lifecycle events received, by kind.",
		}, []string{"kind"}),
		malformed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "tripwatch",
			Name:      "malformed_total",
			Help:      "Messages that could not be decoded.",
		}),
		km: f.NewCounter(prometheus.CounterOpts{
			Namespace: "tripwatch",
			Name:      "completed_km_total",
			Help:      "Length of completed trips seen on the stream.",
		}),
		logger: logger,
	}
}

func (w *watcher) handle(ctx context.Context, ev domain.TripEvent) {
	w.events.WithLabelValues(string(ev.Kind)).Inc()

	attrs := []any{"kind", ev.Kind, "trip", ev.Trip.TripID, "vehicle", ev.Trip.VehicleID, "at", ev.At}
	switch ev.Kind {
	case domain.EventPositionAdded:
		if ev.Position != nil {
			attrs = append(attrs, "lat", ev.Position.Latitude, "lon", ev.Position.Longitude)
		}
		w.logger.DebugContext(ctx, "trip event", attrs...)
		return
	case domain.EventTripCompleted:
		w.km.Add(ev.Trip.Length)
		attrs = append(attrs, "length_km", ev.Trip.Length, "duration_h", ev.Trip.Duration)
	}
	w.logger.InfoContext(ctx, "trip event", attrs...)
}

func (w *watcher) onMalformed(msg *nats.Msg, err error) {
	w.malformed.Inc()
	w.logger.Warn("malformed trip event", "subject", msg.Subject, "err", err)
}
