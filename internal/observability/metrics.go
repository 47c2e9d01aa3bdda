// Package observability wires Prometheus metrics and OpenTelemetry
// tracing for the simulator.
package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SimCollector bundles Prometheus metrics for the simulation engine and
// the HTTP surface. It satisfies the engine's MetricsRecorder and the
// sim state's SimMetricsRecorder so a single instance can be threaded
// through both.
type SimCollector struct {
	gatherer prometheus.Gatherer

	PacketsCreated   *prometheus.CounterVec
	PacketsDelivered prometheus.Counter
	PacketsDropped   *prometheus.CounterVec
	DeliveryLatency  prometheus.Histogram
	ActivePacketsG   prometheus.Gauge
	BytesForwardedC  *prometheus.CounterVec

	TopologyDevices    prometheus.Gauge
	TopologyInterfaces prometheus.Gauge
	TopologyLinks      prometheus.Gauge
	TopologyVLANs      prometheus.Gauge

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec
}

// NewSimCollector registers simulator Prometheus metrics against the
// provided registerer, defaulting to the global Prometheus registry
// when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vlansim_packets_created_total",
		Help: "Packets admitted into the simulation, labeled by protocol.",
	}, []string{"protocol"})
	created, err := registerCounterVec(reg, created, "vlansim_packets_created_total")
	if err != nil {
		return nil, err
	}

	delivered, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vlansim_packets_delivered_total",
		Help: "Packets that reached their target device.",
	}), "vlansim_packets_delivered_total")
	if err != nil {
		return nil, err
	}

	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vlansim_packets_dropped_total",
		Help: "Packets dropped, labeled by drop reason.",
	}, []string{"reason"})
	dropped, err = registerCounterVec(reg, dropped, "vlansim_packets_dropped_total")
	if err != nil {
		return nil, err
	}

	latency, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vlansim_delivery_latency_ms",
		Help:    "Simulated end to end latency of delivered packets in milliseconds.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}), "vlansim_delivery_latency_ms")
	if err != nil {
		return nil, err
	}

	active, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vlansim_active_packets",
		Help: "Packets currently queued or in transit.",
	}), "vlansim_active_packets")
	if err != nil {
		return nil, err
	}

	bytesFwd := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vlansim_bytes_forwarded_total",
		Help: "Payload bytes forwarded across hops, labeled by device and VLAN.",
	}, []string{"device", "vlan"})
	bytesFwd, err = registerCounterVec(reg, bytesFwd, "vlansim_bytes_forwarded_total")
	if err != nil {
		return nil, err
	}

	devices, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vlansim_topology_devices",
		Help: "Current number of devices in the topology.",
	}), "vlansim_topology_devices")
	if err != nil {
		return nil, err
	}
	interfaces, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vlansim_topology_interfaces",
		Help: "Current number of interfaces in the topology.",
	}), "vlansim_topology_interfaces")
	if err != nil {
		return nil, err
	}
	links, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vlansim_topology_links",
		Help: "Current number of connections in the topology.",
	}), "vlansim_topology_links")
	if err != nil {
		return nil, err
	}
	vlans, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vlansim_topology_vlans",
		Help: "Current number of VLAN definitions in the registry.",
	}), "vlansim_topology_vlans")
	if err != nil {
		return nil, err
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vlansim_http_requests_total",
		Help: "Total number of handled HTTP requests, labeled by route and status code.",
	}, []string{"route", "code"})
	requests, err = registerCounterVec(reg, requests, "vlansim_http_requests_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vlansim_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"route"})
	durations, err = registerHistogramVec(reg, durations, "vlansim_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:           gatherer,
		PacketsCreated:     created,
		PacketsDelivered:   delivered,
		PacketsDropped:     dropped,
		DeliveryLatency:    latency,
		ActivePacketsG:     active,
		BytesForwardedC:    bytesFwd,
		TopologyDevices:    devices,
		TopologyInterfaces: interfaces,
		TopologyLinks:      links,
		TopologyVLANs:      vlans,
		HTTPRequests:       requests,
		HTTPDurations:      durations,
	}, nil
}

// PacketCreated records an admitted packet.
func (c *SimCollector) PacketCreated(protocol string) {
	if c == nil || c.PacketsCreated == nil {
		return
	}
	c.PacketsCreated.WithLabelValues(protocol).Inc()
}

// PacketDelivered records a delivery and its simulated latency.
func (c *SimCollector) PacketDelivered(latencyMs float64) {
	if c == nil {
		return
	}
	if c.PacketsDelivered != nil {
		c.PacketsDelivered.Inc()
	}
	if c.DeliveryLatency != nil {
		c.DeliveryLatency.Observe(latencyMs)
	}
}

// PacketDropped records a drop under its reason label.
func (c *SimCollector) PacketDropped(reason string) {
	if c == nil || c.PacketsDropped == nil {
		return
	}
	c.PacketsDropped.WithLabelValues(reason).Inc()
}

// ActivePackets tracks the in flight packet count after each tick.
func (c *SimCollector) ActivePackets(n int) {
	if c == nil || c.ActivePacketsG == nil {
		return
	}
	c.ActivePacketsG.Set(float64(n))
}

// BytesForwarded accumulates per device, per VLAN forwarded bytes.
func (c *SimCollector) BytesForwarded(deviceID string, vlanID uint16, bytes int) {
	if c == nil || c.BytesForwardedC == nil {
		return
	}
	c.BytesForwardedC.WithLabelValues(deviceID, strconv.Itoa(int(vlanID))).Add(float64(bytes))
}

// SetTopologyCounts updates the topology gauges from the sim state.
func (c *SimCollector) SetTopologyCounts(devices, interfaces, links, vlans int) {
	if c == nil {
		return
	}
	if c.TopologyDevices != nil {
		c.TopologyDevices.Set(float64(devices))
	}
	if c.TopologyInterfaces != nil {
		c.TopologyInterfaces.Set(float64(interfaces))
	}
	if c.TopologyLinks != nil {
		c.TopologyLinks.Set(float64(links))
	}
	if c.TopologyVLANs != nil {
		c.TopologyVLANs.Set(float64(vlans))
	}
}

// Middleware records request counts and durations for an HTTP handler
// under the given route label.
func (c *SimCollector) Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		if c == nil {
			return
		}
		if c.HTTPRequests != nil {
			c.HTTPRequests.WithLabelValues(route, strconv.Itoa(sw.code)).Inc()
		}
		if c.HTTPDurations != nil {
			c.HTTPDurations.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

// Handler exposes the /metrics scrape endpoint for the collector's
// gatherer.
func (c *SimCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	return c, nil
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	return c, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	return h, nil
}

func registerHistogramVec(reg prometheus.Registerer, h *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, g prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	return g, nil
}
