package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	emailauth "github.com/krista-software/krista-email-authentication"
	"github.com/krista-software/krista-email-authentication/mailer"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		links       = flag.Int("links", 20000, "number of verification links to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations for the resolve phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *links <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "links, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var cleanup func()
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		cleanup = mr.Close
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		cleanup = func() {}
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: *concurrency,
	})
	defer func() { _ = client.Close() }()

	capture := newCaptureTransport(*links)

	cfg := loadTestConfig(*links)
	engine, err := emailauth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccounts(newStubAccounts()).
		WithRoles(&stubRoles{}).
		WithMailTransport(capture).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d verification links...\n", *links)
	startSeed := time.Now()
	for i := 0; i < *links; i++ {
		email := fmt.Sprintf("load-%d@example.com", i)
		if _, err := engine.RequestLogin(ctx, "/app", email); err != nil {
			fmt.Fprintf(os.Stderr, "request login failed: %v\n", err)
			os.Exit(1)
		}
	}
	codes := capture.waitForCodes(*links, time.Minute)
	if codes == nil {
		fmt.Fprintln(os.Stderr, "timed out waiting for seeded mail")
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	verifyStats, sessionIDs := runVerifyPhase(ctx, engine, codes, *concurrency)
	resolveStats := runResolvePhase(ctx, engine, sessionIDs, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("verify", verifyStats)
	printStats("resolve", resolveStats)
}

func loadTestConfig(queue int) emailauth.Config {
	cfg, err := emailauth.ParseAttributes(map[string]string{
		emailauth.AttrKeyAllowNewAccounts: "true",
		emailauth.AttrKeyUseDefaultMailer: "true",
	})
	if err != nil {
		panic(err)
	}
	cfg.ServerURL = "https://login.example.com"
	cfg.Mail.QueueSize = queue
	cfg.RequestLimit.Enabled = false
	return cfg
}

// runVerifyPhase consumes every seeded link exactly once, spread across the
// workers, and collects the minted session ids for the resolve phase.
func runVerifyPhase(ctx context.Context, engine *emailauth.Engine, codes []string, concurrency int) (phaseStats, []string) {
	var (
		wg         sync.WaitGroup
		cursor     int64
		failures   int64
		latencies  = make([]time.Duration, 0, len(codes))
		sessionIDs = make([]string, 0, len(codes))
		mu         sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= len(codes) {
					return
				}
				t0 := time.Now()
				res, err := engine.VerifyLink(ctx, codes[i], "/app")
				d := time.Since(t0)

				mu.Lock()
				latencies = append(latencies, d)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				} else {
					sessionIDs = append(sessionIDs, res.SessionID)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures), sessionIDs
}

func runResolvePhase(ctx context.Context, engine *emailauth.Engine, sessionIDs []string, ops, concurrency int) phaseStats {
	if len(sessionIDs) == 0 {
		return phaseStats{}
	}

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
				sid := sessionIDs[r.Intn(len(sessionIDs))]
				t0 := time.Now()
				_, ok := engine.ResolveSession(ctx, sid)
				d := time.Since(t0)
				if !ok {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
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
		return phaseStats{total: total}
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

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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

// captureTransport collects verification codes from queued mail instead of
// delivering it.
type captureTransport struct {
	mu    sync.Mutex
	codes []string
}

func newCaptureTransport(capacity int) *captureTransport {
	return &captureTransport{codes: make([]string, 0, capacity)}
}

func (t *captureTransport) Connect() (mailer.Transport, error) { return t, nil }

func (t *captureTransport) Send(msg mailer.Message) error {
	const marker = "code="
	idx := strings.Index(msg.Body, marker)
	if idx < 0 {
		return fmt.Errorf("no verification code in mail to %s", msg.To)
	}
	code := msg.Body[idx+len(marker):]
	if amp := strings.IndexByte(code, '&'); amp >= 0 {
		code = code[:amp]
	}

	t.mu.Lock()
	t.codes = append(t.codes, code)
	t.mu.Unlock()
	return nil
}

func (t *captureTransport) Close() error { return nil }

func (t *captureTransport) waitForCodes(want int, timeout time.Duration) []string {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		t.mu.Lock()
		if len(t.codes) >= want {
			out := append([]string(nil), t.codes...)
			t.mu.Unlock()
			return out
		}
		t.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

// stubAccounts is a minimal in-memory account directory for load runs.
type stubAccounts struct {
	mu       sync.Mutex
	accounts map[string]*emailauth.Account
	nextID   int
}

func newStubAccounts() *stubAccounts {
	return &stubAccounts{accounts: map[string]*emailauth.Account{}}
}

func (s *stubAccounts) Lookup(_ context.Context, email string) (*emailauth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[email]
	if !ok {
		return nil, emailauth.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (s *stubAccounts) Create(_ context.Context, account emailauth.NewAccount) (*emailauth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account.Email]; ok {
		return nil, emailauth.ErrAccountExists
	}
	s.nextID++
	created := &emailauth.Account{
		ID:          "acct-" + strconv.Itoa(s.nextID),
		Email:       account.Email,
		DisplayName: account.DisplayName,
		RoleIDs:     append([]string(nil), account.RoleIDs...),
		Attributes:  account.Attributes,
	}
	s.accounts[account.Email] = created
	copied := *created
	return &copied, nil
}

func (s *stubAccounts) AssignRoles(_ context.Context, accountID string, roleIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.accounts {
		if account.ID == accountID {
			account.RoleIDs = append(account.RoleIDs, roleIDs...)
			return nil
		}
	}
	return emailauth.ErrAccountNotFound
}

type stubRoles struct {
	mu     sync.Mutex
	roles  []emailauth.Role
	nextID int
}

func (s *stubRoles) List(_ context.Context) ([]emailauth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]emailauth.Role(nil), s.roles...), nil
}

func (s *stubRoles) Create(_ context.Context, name string) (emailauth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, role := range s.roles {
		if role.Name == name {
			return emailauth.Role{}, emailauth.ErrRoleExists
		}
	}
	s.nextID++
	role := emailauth.Role{ID: "role-" + strconv.Itoa(s.nextID), Name: name}
	s.roles = append(s.roles, role)
	return role, nil
}
