// Command arenabench times set/get/scan/remove over an arenamap table and,
// with -demo, runs a short string key walkthrough.
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/homier/arenamap"
	"github.com/homier/arenamap/promcollector"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Configuration struct {
	TestCases   int
	Seed        uint
	Hasher      string
	LogLevel    string
	MetricsAddr string
	Demo        bool
}

func main() {
	config := parseArguments()

	logger, err := newLogger(config.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(context.Background(), config, logger, os.Stdout); err != nil {
		logger.Error("benchmark failed", "error", err)
		os.Exit(1)
	}
}

func parseArguments() Configuration {
	var config Configuration

	flag.IntVar(&config.TestCases, "n", 1_000_000, "Number of test cases")
	flag.UintVar(&config.Seed, "seed", 0, "Hash seed")
	flag.StringVar(&config.Hasher, "hasher", "murmur", "Hash function: murmur, xxhash or maphash")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn or error")
	flag.StringVar(&config.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	flag.BoolVar(&config.Demo, "demo", false, "Run the string key demo instead of the benchmark")

	flag.Parse()

	return config
}

func newLogger(level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})), nil
}

func hasherByName(name string) (arenamap.Hasher, error) {
	switch name {
	case "murmur":
		return arenamap.MurmurHasher, nil
	case "xxhash":
		return arenamap.XXHasher, nil
	case "maphash":
		return arenamap.NewMaphashHasher(), nil
	default:
		return nil, fmt.Errorf("unknown hasher %q", name)
	}
}

func run(ctx context.Context, config Configuration, logger *slog.Logger, w io.Writer) error {
	hasher, err := hasherByName(config.Hasher)
	if err != nil {
		return err
	}

	opts := []arenamap.Option{
		arenamap.WithSeed(uint32(config.Seed)),
		arenamap.WithHasher(hasher),
		arenamap.WithLogger(logger),
	}

	if config.Demo {
		return runDemo(w, opts)
	}

	t, err := arenamap.New(8, 8, opts...)
	if err != nil {
		return err
	}
	defer t.Destroy()

	if config.MetricsAddr != "" {
		stop, err := serveMetrics(config.MetricsAddr, t, logger)
		if err != nil {
			return err
		}
		defer stop(ctx)
	}

	return benchmarkAll(t, config.TestCases, logger, w)
}

// serveMetrics exposes the table stats. The table is only scraped between
// benchmark phases in practice; scrapes are not synchronized with writes.
func serveMetrics(addr string, t *arenamap.Table, logger *slog.Logger) (func(context.Context), error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(promcollector.New("arenabench", "bench", t)); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)

	return func(ctx context.Context) {
		_ = srv.Shutdown(ctx)
	}, nil
}

type phase struct {
	name string
	fn   func(t *arenamap.Table, n int) error
}

var phases = []phase{
	{"hashmap_add   ", benchmarkSet},
	{"hashmap_get   ", benchmarkGet},
	{"hashmap_scan  ", benchmarkScan},
	{"hashmap_remove", benchmarkRemove},
}

func benchmarkAll(t *arenamap.Table, n int, logger *slog.Logger, w io.Writer) error {
	fmt.Fprintln(w, "testing started")

	for _, p := range phases {
		begin := time.Now()
		err := p.fn(t, n)
		elapsed := time.Since(begin)

		if err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}

		fmt.Fprintf(w, "%s - %d test cases took: %f sec\n", p.name, n, elapsed.Seconds())
		logger.Debug("phase completed", "phase", p.name, "stats", t.Stats())
	}

	return nil
}

type caseError struct {
	testCase int
	err      error
}

func (e *caseError) Error() string { return fmt.Sprintf("test case %d: %v", e.testCase, e.err) }
func (e *caseError) Unwrap() error { return e.err }

func benchmarkSet(t *arenamap.Table, n int) error {
	buf := make([]byte, 8)
	for i := range n {
		binary.LittleEndian.PutUint64(buf, uint64(i))
		if err := t.Set(buf, buf); err != nil {
			return &caseError{testCase: i, err: err}
		}
	}

	return nil
}

func benchmarkGet(t *arenamap.Table, n int) error {
	buf := make([]byte, 8)
	for i := range n {
		binary.LittleEndian.PutUint64(buf, uint64(i))
		if _, err := t.Get(buf); err != nil {
			return &caseError{testCase: i, err: err}
		}
	}

	return nil
}

func benchmarkScan(t *arenamap.Table, n int) error {
	length := 0
	if err := t.Scan(func(_, _ []byte) bool {
		length++
		return true
	}); err != nil {
		return err
	}

	if length != n {
		return fmt.Errorf("scanned %d entries, want %d", length, n)
	}

	return nil
}

func benchmarkRemove(t *arenamap.Table, n int) error {
	buf := make([]byte, 8)
	for i := range n {
		binary.LittleEndian.PutUint64(buf, uint64(i))
		if err := t.Remove(buf); err != nil {
			return &caseError{testCase: i, err: err}
		}
	}

	return nil
}

func runDemo(w io.Writer, opts []arenamap.Option) error {
	m, err := arenamap.NewMap(arenamap.StringCodec(8), arenamap.Int32Codec, opts...)
	if err != nil {
		return err
	}
	defer m.Destroy()

	for i, k := range []string{"one", "two", "three", "four"} {
		if err := m.Set(k, int32(i+1)); err != nil {
			return err
		}
	}

	if two, ok := m.Get("two"); ok {
		fmt.Fprintf(w, "two: %d\n", two)
	} else {
		fmt.Fprintf(w, "hashmap error: %v\n", m.Table().LastError())
	}

	if _, err := m.Delete("four"); err != nil {
		return err
	}
	fmt.Fprintf(w, "count: %d\n", m.Len())

	for k, v := range m.All() {
		fmt.Fprintf(w, "{key -> %s : val -> %d}\n", k, v)
	}

	var sum int32
	err = m.Table().Scan(func(_, v []byte) bool {
		sum += arenamap.Int32Codec.Decode(v)
		return true
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "sum: %d\n", sum)

	return nil
}
