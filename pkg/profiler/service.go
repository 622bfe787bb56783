package profiler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const (
	minPort = 1024
	maxPort = 49151

	defaultStatsInterval = time.Minute
	metricsNamespace     = "hwsignd"
)

// ServiceOpts holds configuration options for the profiler service.
type ServiceOpts struct {
	Port          int
	StatsInterval time.Duration
	Datadir       string
	// Registry is where runtime gauges are registered and metrics are
	// gathered from. Defaults to the prometheus default registry, that is
	// the one the signing metrics sink uses when not configured otherwise.
	Registry *prometheus.Registry
}

func (o ServiceOpts) validate() error {
	if len(o.Datadir) == 0 {
		return fmt.Errorf("missing profiler datadir")
	}
	if o.Port < minPort || o.Port > maxPort {
		return fmt.Errorf("port must be in range [%d, %d]", minPort, maxPort)
	}
	if o.StatsInterval < 0 {
		return fmt.Errorf("stats interval must not be negative")
	}
	return nil
}

func (o ServiceOpts) address() string {
	return fmt.Sprintf(":%d", o.Port)
}

func (o ServiceOpts) registry() (prometheus.Registerer, prometheus.Gatherer) {
	if o.Registry == nil {
		return prometheus.DefaultRegisterer, prometheus.DefaultGatherer
	}
	return o.Registry, o.Registry
}

type runtimeGauges struct {
	heapBytes  prometheus.Gauge
	totalBytes prometheus.Gauge
	goroutines prometheus.Gauge
}

func newRuntimeGauges(reg prometheus.Registerer) (*runtimeGauges, error) {
	heapBytes, err := registerGauge(reg, "heap_allocated_bytes",
		"Bytes of allocated heap objects at the last stats tick.")
	if err != nil {
		return nil, err
	}
	totalBytes, err := registerGauge(reg, "total_allocated_bytes",
		"Cumulative bytes allocated at the last stats tick.")
	if err != nil {
		return nil, err
	}
	goroutines, err := registerGauge(reg, "goroutines",
		"Number of goroutines at the last stats tick.")
	if err != nil {
		return nil, err
	}
	return &runtimeGauges{heapBytes, totalBytes, goroutines}, nil
}

// registerGauge returns the gauge already registered with the same name, if
// any, so that more profilers can share a registry.
func registerGauge(
	reg prometheus.Registerer, name, help string,
) (prometheus.Gauge, error) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace, Name: name, Help: help,
	})
	if err := reg.Register(gauge); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(prometheus.Gauge)
		if !ok {
			return nil, err
		}
		return existing, nil
	}
	return gauge, nil
}

// ProfilerService is a webserver exposing pprof profiles under /debug/pprof/
// and prometheus metrics under /metrics. It also samples memory and
// goroutine usage at every stats interval and, when stopped, dumps the
// gathered metrics into its datadir.
type ProfilerService struct {
	opts     ServiceOpts
	server   *http.Server
	gatherer prometheus.Gatherer
	gauges   *runtimeGauges
	stopFn   context.CancelFunc

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

// NewService returns a new Profiler instance.
func NewService(opts ServiceOpts) (*ProfilerService, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.StatsInterval == 0 {
		opts.StatsInterval = defaultStatsInterval
	}

	reg, gatherer := opts.registry()
	gauges, err := newRuntimeGauges(reg)
	if err != nil {
		return nil, err
	}

	server := &http.Server{
		Addr:              opts.address(),
		Handler:           newRouter(gatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("profiler: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("profiler: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	return &ProfilerService{
		opts:     opts,
		server:   server,
		gatherer: gatherer,
		gauges:   gauges,
		log:      logFn,
		warn:     warnFn,
	}, nil
}

func newRouter(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Start starts the profiler.
func (s *ProfilerService) Start() error {
	runtime.SetBlockProfileRate(1)
	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.warn(err, "server stopped unexpectedly")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	s.stopFn = cancel
	go s.sampleStats(ctx)

	s.log("start at url http://localhost:%d/debug/pprof/", s.opts.Port)
	s.log("metrics available at http://localhost:%d/metrics", s.opts.Port)
	return nil
}

// Stop stops the profiler.
func (s *ProfilerService) Stop() {
	if s.stopFn != nil {
		s.stopFn()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// nolint
	s.server.Shutdown(ctx)
	s.log("stop")
}

func (s *ProfilerService) sampleStats(ctx context.Context) {
	ticker := time.NewTicker(s.opts.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.updateStats()
		case <-ctx.Done():
			if err := s.dumpMetrics(s.opts.Datadir); err != nil {
				s.warn(err, "error while dumping metrics")
			}
			return
		}
	}
}

func (s *ProfilerService) updateStats() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	routines := runtime.NumGoroutine()

	s.gauges.heapBytes.Set(float64(memStats.HeapAlloc))
	s.gauges.totalBytes.Set(float64(memStats.TotalAlloc))
	s.gauges.goroutines.Set(float64(routines))

	s.log(
		"total allocated: %.3fMB, heap allocated: %.3fMB, "+
			"allocated objects count: %v, freed objects count: %v, goroutines: %d",
		toMegabytes(memStats.TotalAlloc), toMegabytes(memStats.HeapAlloc),
		memStats.Mallocs, memStats.Frees, routines,
	)
}

// dumpMetrics writes the gathered metric families to a file named after the
// current time in the given dir.
func (s *ProfilerService) dumpMetrics(dir string) error {
	file, err := os.OpenFile(
		filepath.Join(dir, time.Now().Format(time.RFC3339)),
		os.O_APPEND|os.O_CREATE|os.O_RDWR,
		0644,
	)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	families, err := s.gatherer.Gather()
	if err != nil {
		return err
	}
	for _, f := range families {
		if _, err := writer.WriteString(f.String() + "\n"); err != nil {
			return err
		}
	}
	return nil
}

func toMegabytes(bytes uint64) float64 {
	return float64(bytes) / (1 << 20)
}
