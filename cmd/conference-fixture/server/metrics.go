package server

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics are registered on a registry of their own so that several
// servers can run in one test binary.
type metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	roomsCreated    prometheus.Counter
	joins           *prometheus.CounterVec
	peerConnections prometheus.Gauge
	rtpPackets      *prometheus.CounterVec
	keyframes       prometheus.Counter
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &metrics{
		registry: reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fixture_http_requests_total",
			Help: "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		roomsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "fixture_rooms_created_total",
			Help: "Rooms created.",
		}),
		joins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fixture_room_joins_total",
			Help: "Room join attempts by result.",
		}, []string{"result"}),
		peerConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "fixture_peer_connections",
			Help: "Open WebRTC peer connections.",
		}),
		rtpPackets: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fixture_rtp_packets_total",
			Help: "RTP packets received by media kind.",
		}, []string{"kind"}),
		keyframes: f.NewCounter(prometheus.CounterOpts{
			Name: "fixture_keyframe_requests_total",
			Help: "Picture loss indications sent to publishers.",
		}),
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument counts requests by their route template.
func (m *metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unknown"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(rec.code)).Inc()
	})
}
