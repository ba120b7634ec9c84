// Package httpapi exposes the control API and the device API over HTTP with
// JSON bodies.
package httpapi

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"
	metrics "github.com/docker/go-metrics"
	"github.com/meshkit/meshkit/api"
	"github.com/meshkit/meshkit/identity"
	"github.com/meshkit/meshkit/log"
	"github.com/meshkit/meshkit/manager/controlapi"
	"github.com/meshkit/meshkit/manager/dispatcher"
	digest "github.com/opencontainers/go-digest"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const maxBodySize = 1 << 20

var (
	requestTimer       metrics.LabeledTimer
	rateLimitedCounter metrics.LabeledCounter
)

func init() {
	ns := metrics.NewNamespace("meshkit", "http", nil)
	requestTimer = ns.NewLabeledTimer("request_latency", "HTTP request latency by route.", "route", "status")
	rateLimitedCounter = ns.NewLabeledCounter("rate_limited", "Requests rejected by rate limiting.", "route")
	metrics.Register(ns)
}

// Config configures the HTTP surfaces.
type Config struct {
	EnrollLimit Limit
	ConfigLimit Limit
	BundleLimit Limit

	// DeviceRate and DeviceBurst bound the device API as a whole,
	// before any request is authenticated. Zero disables the bound.
	DeviceRate  rate.Limit
	DeviceBurst int

	Clock clock.Clock
}

// DefaultConfig returns the default limits.
func DefaultConfig() Config {
	return Config{
		EnrollLimit: EnrollLimit,
		ConfigLimit: ConfigLimit,
		BundleLimit: BundleLimit,
		DeviceRate:  DeviceRate,
		DeviceBurst: DeviceBurst,
	}
}

// Server holds the handlers of both surfaces.
type Server struct {
	control    *controlapi.Server
	dispatcher *dispatcher.Dispatcher

	enrollLimiter *keyedLimiter
	configLimiter *keyedLimiter
	bundleLimiter *keyedLimiter
	deviceLimiter *globalLimiter
}

// New returns a Server. Either control or d may be nil when only one
// surface is served.
func New(control *controlapi.Server, d *dispatcher.Dispatcher, config Config) *Server {
	if config.Clock == nil {
		config.Clock = clock.NewClock()
	}
	return &Server{
		control:       control,
		dispatcher:    d,
		enrollLimiter: newKeyedLimiter(config.EnrollLimit, config.Clock),
		configLimiter: newKeyedLimiter(config.ConfigLimit, config.Clock),
		bundleLimiter: newKeyedLimiter(config.BundleLimit, config.Clock),
		deviceLimiter: newGlobalLimiter(config.DeviceRate, config.DeviceBurst, config.Clock),
	}
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// handle registers h on mux under pattern with request logging, latency
// metrics and error rendering.
func handle(mux *http.ServeMux, pattern, route string, h handlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := identity.NewID()
		ctx := log.WithLogger(r.Context(), log.G(r.Context()).WithFields(logrus.Fields{
			"request.id": requestID,
			"route":      route,
		}))
		r = r.WithContext(ctx)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		rec.Header().Set("X-Request-Id", requestID)

		if err := h(rec, r); err != nil {
			apiErr := apiError(err)
			if apiErr.Code == api.CodeInternal {
				log.G(ctx).WithError(err).Error("request failed")
			} else {
				log.G(ctx).WithField("code", apiErr.Code).Debug(apiErr.Message)
			}
			writeJSON(rec, HTTPStatus(apiErr.Code), apiErr)
		}

		log.G(ctx).WithFields(logrus.Fields{
			"method":   r.Method,
			"status":   rec.status,
			"duration": time.Since(start),
		}).Debug("request served")
		requestTimer.WithValues(route, strconv.Itoa(rec.status)).UpdateSince(start)
	})
}

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return api.Errorf(api.CodeInvalidArgument, "invalid request body: %v", err)
	}
	return nil
}

// etag is the quoted hex sha256 of body.
func etag(body []byte) string {
	return `"` + digest.FromBytes(body).Encoded() + `"`
}

func writeBody(w http.ResponseWriter, status int, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("ETag", etag(body))
	w.WriteHeader(status)
	w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	writeBody(w, status, "application/json", append(body, '\n'))
}

// writeCached writes body, or 304 when the client already has it.
func writeCached(w http.ResponseWriter, r *http.Request, contentType string, body []byte) {
	tag := etag(body)
	for _, candidate := range strings.Split(r.Header.Get("If-None-Match"), ",") {
		if strings.TrimSpace(candidate) == tag {
			w.Header().Set("ETag", tag)
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	writeBody(w, http.StatusOK, contentType, body)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", api.Errorf(api.CodeUnauthenticated, "missing bearer token")
	}
	return strings.TrimSpace(h[len(prefix):]), nil
}

func rateLimited(route string) error {
	rateLimitedCounter.WithValues(route).Inc(1)
	return api.Errorf(api.CodeRateLimited, "too many requests, slow down")
}
