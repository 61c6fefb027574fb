package stats

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

const (
	BYTE = 1 << (10 * iota)
	KILOBYTE
	MEGABYTE
	GIGABYTE
)

// Reporter periodically logs the memory usage of the process and the
// gathered prometheus metrics. When stopped, it appends a snapshot of the
// metrics to the dump file, if any.
type Reporter struct {
	interval time.Duration
	dumpPath string
	gatherer prometheus.Gatherer
}

// NewReporter returns a reporter for the default prometheus registry.
func NewReporter(interval time.Duration, dumpPath string) (*Reporter, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	return &Reporter{interval, dumpPath, prometheus.DefaultGatherer}, nil
}

// Start runs the reporter until ctx is canceled.
func (r *Reporter) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				PrintMemoryStatistics()
				PrintNumOfRoutines()
				r.printMetrics()
			case <-ctx.Done():
				if r.dumpPath == "" {
					return
				}
				if err := r.DumpMetrics(); err != nil {
					log.WithError(err).Warn("failed to dump metrics")
				}
				return
			}
		}
	}()
}

// toMegabytes returns given memory in bytes to megabytes.
func toMegabytes(bytes uint64) float64 {
	return float64(bytes) / MEGABYTE
}

// PrintMemoryStatistics prints memory statistics using go runtime library.
func PrintMemoryStatistics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	log.Infof(
		"total allocated: %.3fMB, heap allocated: %.3fMB, "+
			"allocated objects count: %v, freed objects count: %v",
		toMegabytes(memStats.TotalAlloc),
		toMegabytes(memStats.HeapAlloc),
		memStats.Mallocs,
		memStats.Frees,
	)
}

// PrintNumOfRoutines prints number of go routines currently running
func PrintNumOfRoutines() {
	log.Infof("num of go routines: %v", runtime.NumGoroutine())
}

// printMetrics logs the value of the counters and gauges of the escrow
// namespace.
func (r *Reporter) printMetrics() {
	families, err := r.gatherer.Gather()
	if err != nil {
		log.WithError(err).Debug("failed to gather metrics")
		return
	}
	for _, f := range families {
		if !strings.HasPrefix(f.GetName(), metricsPrefix) {
			continue
		}
		var total float64
		for _, m := range f.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			}
		}
		log.Infof("%s: %v", f.GetName(), total)
	}
}

const metricsPrefix = "escrow_"

// DumpMetrics appends the gathered prometheus metrics to the dump file.
func (r *Reporter) DumpMetrics() error {
	file, err := os.OpenFile(
		r.dumpPath,
		os.O_APPEND|os.O_CREATE|os.O_WRONLY,
		0644,
	)
	if err != nil {
		return err
	}
	defer file.Close()

	families, err := r.gatherer.Gather()
	if err != nil {
		return err
	}

	writer := bufio.NewWriter(file)
	fmt.Fprintf(writer, "# %s\n", time.Now().UTC().Format(time.RFC3339))
	for _, f := range families {
		if _, err := writer.WriteString(f.String() + "\n"); err != nil {
			return err
		}
	}
	return writer.Flush()
}
