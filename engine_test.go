package emailauth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/krista-software/krista-email-authentication/mailer"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

type memoryAccounts struct {
	mu       sync.Mutex
	accounts map[string]*Account
	nextID   int

	lookupCalls int
	createCalls int
}

func newMemoryAccounts() *memoryAccounts {
	return &memoryAccounts{accounts: map[string]*Account{}}
}

func (m *memoryAccounts) Lookup(_ context.Context, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookupCalls++
	account, ok := m.accounts[email]
	if !ok {
		return nil, ErrAccountNotFound
	}
	copied := *account
	copied.RoleIDs = append([]string(nil), account.RoleIDs...)
	return &copied, nil
}

func (m *memoryAccounts) Create(_ context.Context, account NewAccount) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if _, ok := m.accounts[account.Email]; ok {
		return nil, ErrAccountExists
	}
	m.nextID++
	created := &Account{
		ID:          "acct-" + strconv.Itoa(m.nextID),
		Email:       account.Email,
		DisplayName: account.DisplayName,
		RoleIDs:     append([]string(nil), account.RoleIDs...),
		Attributes:  account.Attributes,
	}
	m.accounts[account.Email] = created
	copied := *created
	return &copied, nil
}

func (m *memoryAccounts) AssignRoles(_ context.Context, accountID string, roleIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.accounts {
		if account.ID == accountID {
			account.RoleIDs = append(account.RoleIDs, roleIDs...)
			return nil
		}
	}
	return ErrAccountNotFound
}

func (m *memoryAccounts) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts)
}

type memoryRoles struct {
	mu     sync.Mutex
	roles  []Role
	nextID int

	createCalls int
}

func (m *memoryRoles) List(_ context.Context) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Role(nil), m.roles...), nil
}

func (m *memoryRoles) Create(_ context.Context, name string) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	for _, role := range m.roles {
		if role.Name == name {
			return Role{}, ErrRoleExists
		}
	}
	m.nextID++
	role := Role{ID: "role-" + strconv.Itoa(m.nextID), Name: name}
	m.roles = append(m.roles, role)
	return role, nil
}

type captureMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (c *captureMailer) Send(msg mailer.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *captureMailer) Close() error { return nil }

func (c *captureMailer) Connect() (mailer.Transport, error) { return c, nil }

func (c *captureMailer) waitForMail(t *testing.T) mailer.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		if len(c.sent) > 0 {
			msg := c.sent[len(c.sent)-1]
			c.mu.Unlock()
			return msg
		}
		c.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no mail delivered")
	return mailer.Message{}
}

func (c *captureMailer) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type staticWorkspace struct {
	domains []string
	err     error
}

func (w staticWorkspace) SupportedDomains(context.Context) ([]string, error) {
	return w.domains, w.err
}

func loginTestConfig() Config {
	cfg := defaultConfig()
	cfg.ServerURL = "https://login.example.com"
	cfg.AllowNewAccounts = true
	cfg.Mail.QueueSize = 16
	cfg.RequestLimit.Enabled = false
	return cfg
}

func newLoginEngine(t *testing.T, cfg Config, accounts *memoryAccounts, roles *memoryRoles) (*Engine, *captureMailer) {
	t.Helper()

	_, rdb := newTestRedis(t)
	transport := &captureMailer{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccounts(accounts).
		WithRoles(roles).
		WithMailTransport(transport).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, transport
}

func TestRequestLoginIssuesLinkAndProvisionsAccount(t *testing.T) {
	accounts := newMemoryAccounts()
	roles := &memoryRoles{}
	engine, transport := newLoginEngine(t, loginTestConfig(), accounts, roles)
	ctx := context.Background()

	res, err := engine.RequestLogin(ctx, "/app/home", "New.User@Example.com")
	if err != nil {
		t.Fatalf("RequestLogin failed: %v", err)
	}
	if res.Email != "new.user@example.com" {
		t.Fatalf("expected normalized email, got %q", res.Email)
	}
	if res.PendingSessionID == "" {
		t.Fatal("expected pending session id")
	}

	if accounts.count() != 1 {
		t.Fatalf("expected one provisioned account, got %d", accounts.count())
	}
	account, err := accounts.Lookup(ctx, "new.user@example.com")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if account.DisplayName != "new.user" {
		t.Fatalf("expected local-part display name, got %q", account.DisplayName)
	}
	if len(account.RoleIDs) != 1 {
		t.Fatalf("expected default role assigned, got %v", account.RoleIDs)
	}
	if account.Attributes[AttrOrg] != "example.com" {
		t.Fatalf("expected ORG attribute, got %q", account.Attributes[AttrOrg])
	}
	if account.Attributes[AttrSource] != ProvisioningSource {
		t.Fatalf("expected provisioning source attribute, got %q", account.Attributes[AttrSource])
	}

	mail := transport.waitForMail(t)
	if mail.To != "new.user@example.com" {
		t.Fatalf("mail addressed to %q", mail.To)
	}
	if !strings.Contains(mail.Body, "https://login.example.com/?code=") {
		t.Fatalf("mail body missing verification link:\n%s", mail.Body)
	}
	if !strings.Contains(mail.Body, "originalUrl=%2Fapp%2Fhome") {
		t.Fatalf("mail body missing original url:\n%s", mail.Body)
	}
}

func TestRequestLoginRejectsUnsupportedDomain(t *testing.T) {
	cfg := loginTestConfig()
	cfg.SupportedDomains = []string{"kristasoft.com"}
	cfg.AllowNewAccounts = false

	accounts := newMemoryAccounts()
	engine, transport := newLoginEngine(t, cfg, accounts, &memoryRoles{})

	_, err := engine.RequestLogin(context.Background(), "/app", "a@other.com")
	if !errors.Is(err, ErrDomainNotSupported) {
		t.Fatalf("expected ErrDomainNotSupported, got %v", err)
	}

	if accounts.count() != 0 {
		t.Fatal("no account should be created for a rejected domain")
	}
	time.Sleep(20 * time.Millisecond)
	if transport.sentCount() != 0 {
		t.Fatal("no mail should be sent for a rejected domain")
	}
}

func TestRequestLoginDeniedWhenCreationDisabled(t *testing.T) {
	cfg := loginTestConfig()
	cfg.AllowNewAccounts = false

	accounts := newMemoryAccounts()
	engine, _ := newLoginEngine(t, cfg, accounts, &memoryRoles{})

	_, err := engine.RequestLogin(context.Background(), "/app", "unknown@example.com")
	if !errors.Is(err, ErrNewAccountsDisabled) {
		t.Fatalf("expected ErrNewAccountsDisabled, got %v", err)
	}
	if accounts.count() != 0 {
		t.Fatal("no account should be created when creation is disabled")
	}
}

func TestRequestLoginExistingAccountWhenCreationDisabled(t *testing.T) {
	cfg := loginTestConfig()
	cfg.AllowNewAccounts = false

	accounts := newMemoryAccounts()
	roles := &memoryRoles{}
	if _, err := accounts.Create(context.Background(), NewAccount{Email: "known@example.com"}); err != nil {
		t.Fatalf("seed account: %v", err)
	}

	engine, transport := newLoginEngine(t, cfg, accounts, roles)

	res, err := engine.RequestLogin(context.Background(), "/app", "known@example.com")
	if err != nil {
		t.Fatalf("RequestLogin failed: %v", err)
	}
	if res.Email != "known@example.com" {
		t.Fatalf("unexpected email %q", res.Email)
	}
	transport.waitForMail(t)
}

func TestRequestLoginInvalidInput(t *testing.T) {
	engine, _ := newLoginEngine(t, loginTestConfig(), newMemoryAccounts(), &memoryRoles{})
	ctx := context.Background()

	if _, err := engine.RequestLogin(ctx, "", "user@example.com"); !errors.Is(err, ErrOriginalURLRequired) {
		t.Fatalf("expected ErrOriginalURLRequired, got %v", err)
	}
	if _, err := engine.RequestLogin(ctx, "/app", "not-an-email"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	if _, err := engine.RequestLogin(ctx, "/app", "Display Name <user@example.com>"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail for display-name form, got %v", err)
	}
}

func TestRequestLoginIdempotentProvisioning(t *testing.T) {
	accounts := newMemoryAccounts()
	roles := &memoryRoles{}
	engine, _ := newLoginEngine(t, loginTestConfig(), accounts, roles)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := engine.RequestLogin(ctx, "/app", "repeat@example.com"); err != nil {
			t.Fatalf("RequestLogin %d failed: %v", i, err)
		}
	}

	if accounts.count() != 1 {
		t.Fatalf("expected one account after repeated logins, got %d", accounts.count())
	}
	account, err := accounts.Lookup(ctx, "repeat@example.com")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if len(account.RoleIDs) != 1 {
		t.Fatalf("expected one role after repeated logins, got %v", account.RoleIDs)
	}
	if roles.createCalls != 1 {
		t.Fatalf("expected one role creation, got %d", roles.createCalls)
	}
}

func TestRequestLoginRateLimited(t *testing.T) {
	cfg := loginTestConfig()
	cfg.RequestLimit = RequestLimitConfig{Enabled: true, MaxRequests: 2, Window: time.Minute}

	engine, _ := newLoginEngine(t, cfg, newMemoryAccounts(), &memoryRoles{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := engine.RequestLogin(ctx, "/app", "burst@example.com"); err != nil {
			t.Fatalf("RequestLogin %d failed: %v", i, err)
		}
	}

	if _, err := engine.RequestLogin(ctx, "/app", "burst@example.com"); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected ErrLoginRateLimited, got %v", err)
	}
}

func requestLink(t *testing.T, engine *Engine, transport *captureMailer, email string) string {
	t.Helper()

	if _, err := engine.RequestLogin(context.Background(), "/app", email); err != nil {
		t.Fatalf("RequestLogin failed: %v", err)
	}
	mail := transport.waitForMail(t)

	const marker = "code="
	idx := strings.Index(mail.Body, marker)
	if idx < 0 {
		t.Fatalf("no code in mail body:\n%s", mail.Body)
	}
	rest := mail.Body[idx+len(marker):]
	if amp := strings.IndexByte(rest, '&'); amp >= 0 {
		rest = rest[:amp]
	}
	return rest
}

func TestVerifyLinkMintsFreshSession(t *testing.T) {
	engine, transport := newLoginEngine(t, loginTestConfig(), newMemoryAccounts(), &memoryRoles{})
	ctx := context.Background()

	res, err := engine.RequestLogin(ctx, "/app", "user@example.com")
	if err != nil {
		t.Fatalf("RequestLogin failed: %v", err)
	}

	mail := transport.waitForMail(t)
	idx := strings.Index(mail.Body, "code=")
	if idx < 0 {
		t.Fatalf("no code in mail body:\n%s", mail.Body)
	}
	code := mail.Body[idx+len("code="):]
	if amp := strings.IndexByte(code, '&'); amp >= 0 {
		code = code[:amp]
	}

	verified, err := engine.VerifyLink(ctx, code, "/app")
	if err != nil {
		t.Fatalf("VerifyLink failed: %v", err)
	}
	if verified.SessionID == "" {
		t.Fatal("expected session id")
	}
	if verified.SessionID == res.PendingSessionID {
		t.Fatal("verification must mint a fresh session, not activate the pending one")
	}
	if verified.RedirectURL != "/app" {
		t.Fatalf("unexpected redirect %q", verified.RedirectURL)
	}

	accountID, ok := engine.ResolveSession(ctx, verified.SessionID)
	if !ok {
		t.Fatal("expected session to resolve")
	}
	if accountID != verified.AccountID {
		t.Fatalf("session resolves to %q, want %q", accountID, verified.AccountID)
	}
}

func TestVerifyLinkSingleUse(t *testing.T) {
	engine, transport := newLoginEngine(t, loginTestConfig(), newMemoryAccounts(), &memoryRoles{})
	ctx := context.Background()

	code := requestLink(t, engine, transport, "once@example.com")

	if _, err := engine.VerifyLink(ctx, code, "/app"); err != nil {
		t.Fatalf("first VerifyLink failed: %v", err)
	}
	if _, err := engine.VerifyLink(ctx, code, "/app"); !errors.Is(err, ErrLinkAlreadyUsed) {
		t.Fatalf("expected ErrLinkAlreadyUsed on replay, got %v", err)
	}
}

func TestVerifyLinkUnknownCode(t *testing.T) {
	engine, _ := newLoginEngine(t, loginTestConfig(), newMemoryAccounts(), &memoryRoles{})
	ctx := context.Background()

	if _, err := engine.VerifyLink(ctx, "", "/app"); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound for empty code, got %v", err)
	}
	if _, err := engine.VerifyLink(ctx, "%%%", "/app"); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound for malformed code, got %v", err)
	}
	if _, err := engine.VerifyLink(ctx, strings.Repeat("A", 43), "/app"); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound for unknown code, got %v", err)
	}
}

func TestVerifyLinkHonorsPolicyChange(t *testing.T) {
	accounts := newMemoryAccounts()
	roles := &memoryRoles{}
	_, rdb := newTestRedis(t)
	transport := &captureMailer{}

	cfg := loginTestConfig()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccounts(accounts).
		WithRoles(roles).
		WithMailTransport(transport).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	code := requestLink(t, engine, transport, "user@other.com")

	// Tighten the allow-list between request and click.
	restricted := loginTestConfig()
	restricted.SupportedDomains = []string{"kristasoft.com"}

	engine2, err := New().
		WithConfig(restricted).
		WithRedis(rdb).
		WithAccounts(accounts).
		WithRoles(roles).
		WithMailTransport(&captureMailer{}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine2.Close)

	if _, err := engine2.VerifyLink(context.Background(), code, "/app"); !errors.Is(err, ErrDomainNotSupported) {
		t.Fatalf("expected ErrDomainNotSupported after policy change, got %v", err)
	}

	// The link survives a policy rejection and is consumable once allowed.
	if _, err := engine.VerifyLink(context.Background(), code, "/app"); err != nil {
		t.Fatalf("VerifyLink after policy rejection failed: %v", err)
	}
}

func TestVerifyLinkWorkspaceDomainsWhenCreationDisabled(t *testing.T) {
	accounts := newMemoryAccounts()
	if _, err := accounts.Create(context.Background(), NewAccount{Email: "user@allowed.com"}); err != nil {
		t.Fatalf("seed account: %v", err)
	}

	cfg := loginTestConfig()
	cfg.AllowNewAccounts = false

	_, rdb := newTestRedis(t)
	transport := &captureMailer{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccounts(accounts).
		WithRoles(&memoryRoles{}).
		WithWorkspace(staticWorkspace{domains: []string{"Blocked.org"}}).
		WithMailTransport(transport).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	code := requestLink(t, engine, transport, "user@allowed.com")

	if _, err := engine.VerifyLink(context.Background(), code, "/app"); !errors.Is(err, ErrDomainNotSupported) {
		t.Fatalf("expected workspace domain rejection, got %v", err)
	}
}

func TestVerifyLinkExpired(t *testing.T) {
	accounts := newMemoryAccounts()
	cfg := loginTestConfig()
	cfg.LinkTTL = time.Second

	_, rdb := newTestRedis(t)
	transport := &captureMailer{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccounts(accounts).
		WithRoles(&memoryRoles{}).
		WithMailTransport(transport).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	code := requestLink(t, engine, transport, "expiring@example.com")

	time.Sleep(1100 * time.Millisecond)

	if _, err := engine.VerifyLink(context.Background(), code, "/app"); !errors.Is(err, ErrLinkExpired) {
		t.Fatalf("expected ErrLinkExpired, got %v", err)
	}
	// Expired links are deleted on lookup; a second attempt sees not-found.
	if _, err := engine.VerifyLink(context.Background(), code, "/app"); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound after expiry delete, got %v", err)
	}
}

func TestLogout(t *testing.T) {
	engine, transport := newLoginEngine(t, loginTestConfig(), newMemoryAccounts(), &memoryRoles{})
	ctx := context.Background()

	code := requestLink(t, engine, transport, "logout@example.com")
	verified, err := engine.VerifyLink(ctx, code, "/app")
	if err != nil {
		t.Fatalf("VerifyLink failed: %v", err)
	}

	if err := engine.Logout(ctx, verified.SessionID); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, ok := engine.ResolveSession(ctx, verified.SessionID); ok {
		t.Fatal("session should not resolve after logout")
	}

	// Removing an absent session succeeds; an empty id is an input error.
	if err := engine.Logout(ctx, verified.SessionID); err != nil {
		t.Fatalf("Logout of absent session failed: %v", err)
	}
	if err := engine.Logout(ctx, ""); err == nil {
		t.Fatal("expected error for empty session id")
	}
}

func TestResolveSessionAnonymous(t *testing.T) {
	engine, _ := newLoginEngine(t, loginTestConfig(), newMemoryAccounts(), &memoryRoles{})
	ctx := context.Background()

	if _, ok := engine.ResolveSession(ctx, ""); ok {
		t.Fatal("empty session id must resolve anonymous")
	}
	if _, ok := engine.ResolveSession(ctx, "unknown-session"); ok {
		t.Fatal("unknown session id must resolve anonymous")
	}
}

func TestEngineMetricsSnapshot(t *testing.T) {
	engine, transport := newLoginEngine(t, loginTestConfig(), newMemoryAccounts(), &memoryRoles{})
	ctx := context.Background()

	code := requestLink(t, engine, transport, "metrics@example.com")
	if _, err := engine.VerifyLink(ctx, code, "/app"); err != nil {
		t.Fatalf("VerifyLink failed: %v", err)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricLinkIssued] != 1 {
		t.Fatalf("expected one issued link, got %d", snap.Counters[MetricLinkIssued])
	}
	if snap.Counters[MetricLinkVerified] != 1 {
		t.Fatalf("expected one verified link, got %d", snap.Counters[MetricLinkVerified])
	}
	if snap.Counters[MetricSessionCreated] != 1 {
		t.Fatalf("expected one created session, got %d", snap.Counters[MetricSessionCreated])
	}
	if snap.Counters[MetricAccountProvisioned] != 1 {
		t.Fatalf("expected one provisioned account, got %d", snap.Counters[MetricAccountProvisioned])
	}
}
