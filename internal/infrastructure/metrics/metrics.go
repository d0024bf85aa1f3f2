package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder owns the Prometheus collectors for the HTTP layer and the
// catalog. It implements ports.CatalogEvents.
type Recorder struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	downloads       *prometheus.CounterVec
	ratings         *prometheus.CounterVec
	visitors        prometheus.Counter
	itemsAdded      prometheus.Counter
	itemsDeleted    prometheus.Counter
	actions         map[string]bool
}

// New creates the collectors and registers them with reg. Only the listed
// actions get their own label value; anything else is counted as "other".
func New(reg prometheus.Registerer, actions ...string) *Recorder {
	r := &Recorder{
		actions: make(map[string]bool, len(actions)),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "action", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "action"},
		),
		downloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_downloads_total",
				Help: "Download increments, by whether the item existed",
			},
			[]string{"found"},
		),
		ratings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_ratings_total",
				Help: "Rating submissions by outcome",
			},
			[]string{"result"},
		),
		visitors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_visitors_total",
			Help: "Visitor increments",
		}),
		itemsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_items_added_total",
			Help: "Items added to the catalog",
		}),
		itemsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_items_deleted_total",
			Help: "Items removed from the catalog",
		}),
	}

	reg.MustRegister(
		r.requestsTotal,
		r.requestDuration,
		r.downloads,
		r.ratings,
		r.visitors,
		r.itemsAdded,
		r.itemsDeleted,
	)

	for _, a := range actions {
		r.actions[a] = true
	}

	return r
}

func (r *Recorder) actionLabel(action string) string {
	if action == "" || r.actions[action] {
		return action
	}
	return "other"
}

// Middleware records request counts and latencies. The action query
// parameter is part of the labels because every API call shares one path.
func (r *Recorder) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			duration := time.Since(start)
			status := responseStatus(c, err)
			action := r.actionLabel(c.QueryParam("action"))

			r.requestsTotal.WithLabelValues(
				c.Request().Method,
				c.Path(),
				action,
				fmt.Sprintf("%d", status),
			).Inc()

			r.requestDuration.WithLabelValues(
				c.Request().Method,
				c.Path(),
				action,
			).Observe(duration.Seconds())

			return err
		}
	}
}

// responseStatus returns the status the client will see. A returned error is
// rendered by the HTTP error handler after the middleware chain unwinds.
func responseStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

func (r *Recorder) ItemAdded() { r.itemsAdded.Inc() }

func (r *Recorder) ItemsDeleted(n int) { r.itemsDeleted.Add(float64(n)) }

func (r *Recorder) Downloaded(found bool) {
	r.downloads.WithLabelValues(fmt.Sprintf("%t", found)).Inc()
}

func (r *Recorder) Rated(result string) { r.ratings.WithLabelValues(result).Inc() }

func (r *Recorder) Visited() { r.visitors.Inc() }
