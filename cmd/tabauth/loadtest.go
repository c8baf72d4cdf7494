package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quillpress/tabAuth/tokenstore"
)

func newLoadtestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure token store read and renewal write latency",
		Long: `Seeds one record per tab in the Redis token store, then runs a read
phase (hydration) and a write phase (renewal) across random tabs.`,
		Args: cobra.NoArgs,
		RunE: runLoadtest,
	}

	f := cmd.Flags()
	f.Int("tabs", 10000, "number of tab records to seed")
	f.Int("concurrency", 64, "number of concurrent workers")
	f.Int("ops", 50000, "operations per phase")
	f.String("redis", "miniredis", `redis address, or "miniredis" for in-process`)
	f.String("prefix", "tabauth-load", "key prefix")

	for _, name := range []string{"tabs", "concurrency", "ops", "redis", "prefix"} {
		_ = viper.BindPFlag("loadtest."+strings.ReplaceAll(name, "-", "_"), f.Lookup(name))
	}
	return cmd
}

func runLoadtest(cmd *cobra.Command, _ []string) error {
	tabs := viper.GetInt("loadtest.tabs")
	concurrency := viper.GetInt("loadtest.concurrency")
	ops := viper.GetInt("loadtest.ops")
	if tabs <= 0 || concurrency <= 0 || ops <= 0 {
		return fmt.Errorf("loadtest: tabs, concurrency and ops must be > 0")
	}

	log := newLogger("loadtest")
	ctx := cmd.Context()
	client, cleanup, err := openRedis(ctx, viper.GetString("loadtest.redis"), log)
	if err != nil {
		return err
	}
	defer cleanup()

	stores, err := seedTabs(ctx, client, viper.GetString("loadtest.prefix"), tabs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	rtt, err := stores[0].Ping(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "seeded %d tabs, redis ping %s\n", len(stores), rtt.Round(time.Microsecond))

	readStats := runPhase(ops, concurrency, len(stores), func(i, idx int) error {
		_, _, err := stores[idx].Read(ctx)
		return err
	})
	writeStats := runPhase(ops, concurrency, len(stores), func(i, idx int) error {
		return stores[idx].Write(ctx, tokenstore.Record{
			AccessToken: fmt.Sprintf("renewed-%d-%d", idx, i),
			Username:    fmt.Sprintf("user-%d", idx),
		})
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "read", readStats)
	printStats(out, "write", writeStats)
	return nil
}

func seedTabs(ctx context.Context, client redis.UniversalClient, prefix string, n int) ([]*tokenstore.RedisStore, error) {
	stores := make([]*tokenstore.RedisStore, n)
	for i := range stores {
		s, err := tokenstore.NewRedisStore(client, prefix, tokenstore.NewTabID(), time.Hour)
		if err != nil {
			return nil, err
		}
		if err := s.Write(ctx, tokenstore.Record{AccessToken: fmt.Sprintf("seed-%d", i), Username: fmt.Sprintf("user-%d", i)}); err != nil {
			return nil, fmt.Errorf("seed tab %d: %w", i, err)
		}
		stores[i] = s
	}
	return stores, nil
}

// runPhase calls op ops times from concurrency workers, each call against a
// random tab index below tabs.
func runPhase(ops, concurrency, tabs int, op func(i, idx int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(i, r.Intn(tabs))
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

// percentile expects samples sorted ascending.
func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(w io.Writer, name string, s phaseStats) {
	fmt.Fprintf(w, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
