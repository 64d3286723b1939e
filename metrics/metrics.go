// Package metrics wires Prometheus instrumentation for the dispatcher, NVRAM
// helper, and controller: a struct of collectors built once via sync.Once,
// with nil-receiver-safe Record* methods so call sites never need a nil
// check.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Dispatcher instruments znp.ZNP: in-flight SREQs, listener-table size,
// unhandled-frame count, and request timeouts.
type Dispatcher struct {
	InFlightSREQs   prometheus.Gauge
	ListenerTable   prometheus.Gauge
	UnhandledFrames prometheus.Counter
	Timeouts        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

var (
	dispatcherOnce sync.Once
	dispatcher     *Dispatcher
)

// NewDispatcher returns the process-wide Dispatcher metrics, registering its
// collectors with registerer on first call. registerer may be nil, in which
// case prometheus.DefaultRegisterer is used.
func NewDispatcher(registerer prometheus.Registerer) *Dispatcher {
	dispatcherOnce.Do(func() {
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}
		d := &Dispatcher{
			InFlightSREQs: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "znp",
				Subsystem: "dispatcher",
				Name:      "inflight_sreqs",
				Help:      "Number of SREQs currently awaiting an SRSP.",
			}),
			ListenerTable: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "znp",
				Subsystem: "dispatcher",
				Name:      "listeners",
				Help:      "Number of registered one-shot and callback listeners.",
			}),
			UnhandledFrames: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "znp",
				Subsystem: "dispatcher",
				Name:      "unhandled_frames_total",
				Help:      "Number of inbound frames matched by no listener.",
			}),
			Timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "znp",
				Subsystem: "dispatcher",
				Name:      "timeouts_total",
				Help:      "Number of request/callback waits that exceeded their deadline, by kind.",
			}, []string{"kind"}),
			RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "znp",
				Subsystem: "dispatcher",
				Name:      "request_duration_seconds",
				Help:      "Round-trip latency of SREQ/SRSP exchanges, by command.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"command"}),
		}
		registerer.MustRegister(
			d.InFlightSREQs, d.ListenerTable, d.UnhandledFrames, d.Timeouts, d.RequestDuration,
		)
		dispatcher = d
	})
	return dispatcher
}

func (d *Dispatcher) recordTimeout(kind string) {
	if d == nil {
		return
	}
	d.Timeouts.WithLabelValues(kind).Inc()
}

// RecordSREQTimeout increments the SREQ timeout counter.
func (d *Dispatcher) RecordSREQTimeout() { d.recordTimeout("sreq") }

// RecordCallbackTimeout increments the callback-wait timeout counter.
func (d *Dispatcher) RecordCallbackTimeout() { d.recordTimeout("callback") }

// RecordUnhandledFrame increments the unhandled-frame counter.
func (d *Dispatcher) RecordUnhandledFrame() {
	if d == nil {
		return
	}
	d.UnhandledFrames.Inc()
}

// SetInFlightSREQs sets the current in-flight SREQ gauge.
func (d *Dispatcher) SetInFlightSREQs(n int) {
	if d == nil {
		return
	}
	d.InFlightSREQs.Set(float64(n))
}

// SetListenerTableSize sets the current listener-table gauge.
func (d *Dispatcher) SetListenerTableSize(n int) {
	if d == nil {
		return
	}
	d.ListenerTable.Set(float64(n))
}

// ObserveRequestDuration records the round-trip latency of one SREQ/SRSP
// exchange for command (e.g. "SYS.Ping").
func (d *Dispatcher) ObserveRequestDuration(command string, seconds float64) {
	if d == nil {
		return
	}
	d.RequestDuration.WithLabelValues(command).Observe(seconds)
}

// NVRAM instruments nvram.Store: bytes read/written and resize events.
type NVRAM struct {
	BytesRead    prometheus.Counter
	BytesWritten prometheus.Counter
	Resizes      prometheus.Counter
}

var (
	nvramOnce sync.Once
	nvram     *NVRAM
)

// NewNVRAM returns the process-wide NVRAM metrics, registering on first call.
func NewNVRAM(registerer prometheus.Registerer) *NVRAM {
	nvramOnce.Do(func() {
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}
		n := &NVRAM{
			BytesRead: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "znp", Subsystem: "nvram", Name: "bytes_read_total",
				Help: "Total bytes read from NVRAM items.",
			}),
			BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "znp", Subsystem: "nvram", Name: "bytes_written_total",
				Help: "Total bytes written to NVRAM items.",
			}),
			Resizes: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "znp", Subsystem: "nvram", Name: "resizes_total",
				Help: "Number of delete+init+write resize cycles performed.",
			}),
		}
		registerer.MustRegister(n.BytesRead, n.BytesWritten, n.Resizes)
		nvram = n
	})
	return nvram
}

// RecordRead increments the bytes-read counter by n.
func (m *NVRAM) RecordRead(n int) {
	if m == nil {
		return
	}
	m.BytesRead.Add(float64(n))
}

// RecordWrite increments the bytes-written counter by n.
func (m *NVRAM) RecordWrite(n int) {
	if m == nil {
		return
	}
	m.BytesWritten.Add(float64(n))
}

// RecordResize increments the resize counter.
func (m *NVRAM) RecordResize() {
	if m == nil {
		return
	}
	m.Resizes.Inc()
}

// Controller instruments zigbee.Controller: data-request outcomes and
// watchdog/reconnect events.
type Controller struct {
	DataRequests  *prometheus.CounterVec
	Reconnects    prometheus.Counter
	WatchdogMisses prometheus.Counter
}

var (
	controllerOnce sync.Once
	controller     *Controller
)

// NewController returns the process-wide Controller metrics, registering on
// first call.
func NewController(registerer prometheus.Registerer) *Controller {
	controllerOnce.Do(func() {
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}
		c := &Controller{
			DataRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "znp", Subsystem: "controller", Name: "data_requests_total",
				Help: "AF data requests, by outcome (success, failure, recovered).",
			}, []string{"outcome"}),
			Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "znp", Subsystem: "controller", Name: "reconnects_total",
				Help: "Number of successful auto-reconnects after connection loss.",
			}),
			WatchdogMisses: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "znp", Subsystem: "controller", Name: "watchdog_misses_total",
				Help: "Number of watchdog polls that failed to get a response.",
			}),
		}
		registerer.MustRegister(c.DataRequests, c.Reconnects, c.WatchdogMisses)
		controller = c
	})
	return controller
}

// RecordDataRequest increments the data-request counter for outcome.
func (c *Controller) RecordDataRequest(outcome string) {
	if c == nil {
		return
	}
	c.DataRequests.WithLabelValues(outcome).Inc()
}

// RecordReconnect increments the reconnect counter.
func (c *Controller) RecordReconnect() {
	if c == nil {
		return
	}
	c.Reconnects.Inc()
}

// RecordWatchdogMiss increments the watchdog-miss counter.
func (c *Controller) RecordWatchdogMiss() {
	if c == nil {
		return
	}
	c.WatchdogMisses.Inc()
}
