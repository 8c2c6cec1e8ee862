package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	mathrand "math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	backDashboard "github.com/orbitadevhub/backDashboard"
	"github.com/orbitadevhub/backDashboard/store/memory"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type benchOptions struct {
	accounts    int
	concurrency int
	ops         int
	redisAddr   string
}

// newBenchCmd measures login and token validation throughput against an
// in-memory account store.
func newBenchCmd() *cobra.Command {
	opts := &benchOptions{}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure login and token validation latency",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.accounts <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
				return fmt.Errorf("accounts, concurrency and ops must be > 0")
			}
			return runBench(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&opts.accounts, "accounts", 50, "number of accounts to seed")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 32, "number of concurrent workers")
	cmd.Flags().IntVar(&opts.ops, "ops", 2000, "operations per phase (login + validate)")
	cmd.Flags().StringVar(&opts.redisAddr, "redis-addr", "", "redis address; miniredis is used when empty")
	return cmd
}

const benchPassword = "Bench!pass1"

func runBench(ctx context.Context, opts *benchOptions, out io.Writer) error {
	addr := opts.redisAddr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Fprintf(out, "using miniredis at %s\n", addr)
	} else {
		fmt.Fprintf(out, "using redis at %s\n", addr)
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	cfg := backDashboard.DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.TOTP.EnrollOnRegister = false
	cfg.Security.EnableIPThrottle = false
	cfg.Security.MaxLoginAttempts = opts.ops + 1

	engine, err := backDashboard.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(memory.New()).
		WithLogger(zerolog.Nop()).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	emails := make([]string, opts.accounts)
	fmt.Fprintf(out, "seeding %d accounts...\n", opts.accounts)
	startSeed := time.Now()
	for i := range emails {
		emails[i] = fmt.Sprintf("bench-%d@example.com", i)
		if _, err := engine.Register(ctx, backDashboard.RegisterRequest{Email: emails[i], Password: benchPassword}); err != nil {
			return fmt.Errorf("seed %s: %w", emails[i], err)
		}
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	var tokensMu sync.Mutex
	tokens := make([]string, opts.accounts)
	loginStats := runPhase(opts.ops, opts.concurrency, 7919, func(r *mathrand.Rand) error {
		idx := r.Intn(len(emails))
		res, err := engine.Login(ctx, emails[idx], benchPassword)
		if err != nil {
			return err
		}
		tokensMu.Lock()
		tokens[idx] = res.Token
		tokensMu.Unlock()
		return nil
	})

	// Fill the accounts the login phase happened to miss.
	for i, tok := range tokens {
		if tok != "" {
			continue
		}
		res, err := engine.Login(ctx, emails[i], benchPassword)
		if err != nil {
			return err
		}
		tokens[i] = res.Token
	}

	validateStats := runPhase(opts.ops, opts.concurrency, 6151, func(r *mathrand.Rand) error {
		_, err := engine.Authorize(tokens[r.Intn(len(tokens))], backDashboard.OpProfile)
		return err
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "login", loginStats)
	printStats(out, "validate", validateStats)
	return nil
}

// runPhase runs ops calls of fn over concurrency workers.
func runPhase(ops, concurrency int, seed int64, fn func(r *mathrand.Rand) error) phaseStats {
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
			r := mathrand.New(mathrand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := fn(r)
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
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
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
