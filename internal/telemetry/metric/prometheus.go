package metric

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "libos"

// Termination paths recorded by ThreadsTerminated.
const (
	PathLocalParent = "local_parent"
	PathRemote      = "remote"
	PathInternal    = "internal"
)

// Remote notification reasons.
const (
	ReasonInVM   = "in_vm"
	ReasonOrphan = "orphan"
)

// Process exit outcomes.
const (
	OutcomeCleanup       = "cleanup"
	OutcomeTerminateOnly = "terminate_only"
	OutcomeFatal         = "fatal"
)

// Registry holds all exit-path metrics on a private Prometheus registry.
type Registry struct {
	registry *prometheus.Registry

	ThreadsTerminated     *prometheus.CounterVec
	DuplicateTerminations prometheus.Counter
	RemoteNotifications   *prometheus.CounterVec
	SigchldEnqueued       prometheus.Counter
	ResourcesReleased     *prometheus.CounterVec
	ProcessExits          *prometheus.CounterVec
	HelperDrain           prometheus.Histogram
	IPCDropped            prometheus.Counter
}

// NewRegistry creates the metrics and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,
		ThreadsTerminated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threads_terminated_total",
			Help:      "Threads whose termination completed, by notification path.",
		}, []string{"path"}),
		DuplicateTerminations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_terminations_total",
			Help:      "Terminations requested for threads that were already dead.",
		}),
		RemoteNotifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_notifications_total",
			Help:      "Child-exit messages sent to a remote parent, by reason.",
		}, []string{"reason"}),
		SigchldEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sigchld_enqueued_total",
			Help:      "SIGCHLD signals queued on local parents.",
		}),
		ResourcesReleased: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resources_released_total",
			Help:      "Thread-owned resources released at exit, by kind.",
		}, []string{"kind"}),
		ProcessExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_exits_total",
			Help:      "Process exits driven by the last thread, by outcome.",
		}, []string{"outcome"}),
		HelperDrain: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "helper_drain_seconds",
			Help:      "Time spent stopping helper threads at process exit.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		IPCDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ipc_dropped_total",
			Help:      "Inbound or outbound IPC messages dropped.",
		}),
	}

	reg.MustRegister(
		r.ThreadsTerminated,
		r.DuplicateTerminations,
		r.RemoteNotifications,
		r.SigchldEnqueued,
		r.ResourcesReleased,
		r.ProcessExits,
		r.HelperDrain,
		r.IPCDropped,
	)
	return r
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		global = NewRegistry()
	})
	return global
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Registerer lets other components add collectors to the registry.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Handler returns the /metrics handler of the global registry.
func Handler() http.Handler {
	return Global().Handler()
}
