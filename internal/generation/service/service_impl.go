package service

import (
	"context"
	"errors"
	"strings"
	"time"

	accountdomain "github.com/studyloop/studyloop/internal/account/domain"
	"github.com/studyloop/studyloop/internal/clock"
	"github.com/studyloop/studyloop/internal/config"
	generationdomain "github.com/studyloop/studyloop/internal/generation/domain"
	"github.com/studyloop/studyloop/internal/keypool"
	ledgerdomain "github.com/studyloop/studyloop/internal/ledger/domain"
	obsmetrics "github.com/studyloop/studyloop/internal/observability/metrics"
	"github.com/studyloop/studyloop/internal/provider"
	"github.com/studyloop/studyloop/internal/quota"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultMaxTokens = 1024

type ServiceParam struct {
	fx.In

	Log      *zap.Logger
	Cfg      config.Config
	Routing  config.RoutingConfig
	Clock    clock.Clock
	Repo     accountdomain.Repository
	Tracker  *quota.Tracker
	Pool     *keypool.Pool
	Resolver *keypool.Resolver
	Adapters provider.Adapters
	Ledger   ledgerdomain.Service `optional:"true"`
	Metrics  *obsmetrics.Metrics  `optional:"true"`
}

// Service routes each generation request through the tier, own-key, and
// pooled-key attempts in strict order. Each attempt returns an outcome value
// the policy branches on; provider failures never steer control flow by
// panic or unwrapped propagation.
type Service struct {
	log       *zap.Logger
	cfg       config.Config
	routing   config.RoutingConfig
	clock     clock.Clock
	repo      accountdomain.Repository
	tracker   *quota.Tracker
	pool      *keypool.Pool
	resolver  *keypool.Resolver
	primary   provider.Adapter
	secondary provider.Adapter
	ledger    ledgerdomain.Service
	metrics   *obsmetrics.Metrics

	// sleep is the bounded pool-recovery wait; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(p ServiceParam) generationdomain.Service {
	return &Service{
		log:       p.Log.Named("generation.service"),
		cfg:       p.Cfg,
		routing:   p.Routing,
		clock:     p.Clock,
		repo:      p.Repo,
		tracker:   p.Tracker,
		pool:      p.Pool,
		resolver:  p.Resolver,
		primary:   p.Adapters.Primary,
		secondary: p.Adapters.Secondary,
		ledger:    p.Ledger,
		metrics:   p.Metrics,
		sleep:     sleepContext,
	}
}

func (s *Service) Generate(ctx context.Context, req generationdomain.GenerateRequest) (*generationdomain.GenerateResponse, error) {
	started := time.Now()
	resp, err := s.generate(ctx, req)
	if s.metrics != nil {
		prov, outcome := classifyOutcome(resp, err)
		var tokens int64
		if resp != nil {
			tokens = resp.Tokens
		}
		s.metrics.RecordGeneration(prov, outcome, tokens, time.Since(started))
	}
	return resp, err
}

func (s *Service) generate(ctx context.Context, req generationdomain.GenerateRequest) (*generationdomain.GenerateResponse, error) {
	callerID := strings.TrimSpace(req.CallerID)
	if callerID == "" {
		return nil, accountdomain.ErrInvalidCaller
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, generationdomain.ErrInvalidPrompt
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	acct, err := s.repo.GetByID(ctx, callerID)
	if err != nil {
		return nil, err
	}
	acct, err = s.tracker.CheckAndResetPeriod(ctx, acct)
	if err != nil {
		return nil, err
	}

	// Server-funded primary attempt for active pro-tier callers. Failures
	// here never surface; there is always a further tier to try.
	if acct.TierIsActive(s.clock.Now()) && s.cfg.OpenAIServerKey != "" {
		res, err := s.primary.Generate(ctx, s.cfg.OpenAIServerKey, s.routing.ProTierModel, req.Prompt, maxTokens)
		if err == nil {
			return s.complete(ctx, acct, accountdomain.ProviderPrimary, s.routing.ProTierModel, req.Prompt, res)
		}
		s.log.Warn("server-funded primary attempt failed, falling back",
			zap.String("caller_id", callerID), zap.Error(err))
	}

	// Caller-owned primary attempt, gated by the primary quota. Failures
	// are logged and swallowed for the same reason.
	if acct.HasOwnPrimaryKey() && acct.PrimaryUsage < acct.PrimaryMonthlyLimit {
		model := acct.PrimaryModel
		if model == "" {
			model = s.routing.DefaultPrimaryModel
		}
		res, err := s.primary.Generate(ctx, *acct.PrimaryKey, model, req.Prompt, maxTokens)
		if err == nil {
			return s.complete(ctx, acct, accountdomain.ProviderPrimary, model, req.Prompt, res)
		}
		s.log.Warn("caller primary attempt failed, falling back",
			zap.String("caller_id", callerID), zap.Error(err))
	}

	// Secondary quota is the last gate: exceeding it is terminal.
	if acct.SecondaryUsage >= acct.SecondaryMonthlyLimit {
		return nil, &generationdomain.QuotaExceededError{Provider: accountdomain.ProviderSecondary}
	}

	return s.generateSecondary(ctx, callerID, acct, req.Prompt, maxTokens)
}

// generateSecondary runs the pooled-key retry loop: every distinct pool key
// gets at most one attempt per request, then one bounded wait for the
// soonest-recovering key before the final attempt.
func (s *Service) generateSecondary(ctx context.Context, callerID string, acct *accountdomain.Account, prompt string, maxTokens int) (*generationdomain.GenerateResponse, error) {
	model := acct.SecondaryModel
	if model == "" {
		model = s.routing.DefaultSecondaryModel
	}

	credential, dedicated := s.resolver.Resolve(callerID, acct)
	if credential == "" {
		return nil, generationdomain.ErrNoSecondaryCredential
	}

	budget := s.pool.Size()
	if budget < 1 {
		budget = 1
	}

	var lastRetryAfter time.Duration
	noAlternate := false
	for attempt := 0; attempt < budget; attempt++ {
		res, err := s.secondary.Generate(ctx, credential, model, prompt, maxTokens)
		if err == nil {
			s.pool.MarkSuccess(credential)
			return s.complete(ctx, acct, accountdomain.ProviderSecondary, model, prompt, res)
		}

		var rl *provider.RateLimitError
		if !errors.As(err, &rl) {
			return nil, &generationdomain.UpstreamError{Provider: accountdomain.ProviderSecondary, Cause: err}
		}
		s.markRateLimited(credential, rl.RetryAfter)
		lastRetryAfter = rl.RetryAfter

		next := s.pool.NextKey(credential)
		if next == "" {
			noAlternate = true
			break
		}
		credential = next
	}
	if !noAlternate {
		return nil, generationdomain.ErrCapacityExceeded
	}

	// No alternate key remains. Wait, capped, then try once more with
	// whatever the resolver now returns. A dedicated key never enters the
	// pool, so its wait comes from the upstream retry-after signal rather
	// than unrelated pool cooldowns.
	var wait time.Duration
	if dedicated {
		wait = lastRetryAfter
	} else {
		wait = s.pool.SoonestRecovery()
	}
	if wait > s.routing.PoolBackoffMax {
		wait = s.routing.PoolBackoffMax
	}
	if wait > 0 {
		if s.metrics != nil {
			s.metrics.RecordPoolWait()
		}
		if err := s.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	credential, _ = s.resolver.Resolve(callerID, acct)
	if credential == "" {
		return nil, generationdomain.ErrCapacityExceeded
	}
	res, err := s.secondary.Generate(ctx, credential, model, prompt, maxTokens)
	if err == nil {
		s.pool.MarkSuccess(credential)
		return s.complete(ctx, acct, accountdomain.ProviderSecondary, model, prompt, res)
	}
	var rl *provider.RateLimitError
	if errors.As(err, &rl) {
		s.markRateLimited(credential, rl.RetryAfter)
		return nil, generationdomain.ErrCapacityExceeded
	}
	return nil, &generationdomain.UpstreamError{Provider: accountdomain.ProviderSecondary, Cause: err}
}

// complete records usage and history and normalizes the response. The quota
// increment must be durable before the request is considered done; the
// ledger write is best effort.
func (s *Service) complete(ctx context.Context, acct *accountdomain.Account, prov accountdomain.Provider, model, prompt string, res *provider.Result) (*generationdomain.GenerateResponse, error) {
	tokens := res.Tokens
	estimated := false
	if tokens <= 0 {
		tokens = quota.EstimateTokens(prompt, res.Text)
		estimated = true
	}

	if err := s.tracker.IncrementUsage(ctx, acct.ID, prov, tokens); err != nil {
		return nil, err
	}

	if s.ledger != nil {
		if err := s.ledger.Record(ctx, ledgerdomain.RecordRequest{
			CallerID:  acct.ID,
			Provider:  string(prov),
			Model:     model,
			Tokens:    tokens,
			Estimated: estimated,
		}); err != nil {
			s.log.Warn("ledger record failed", zap.String("caller_id", acct.ID), zap.Error(err))
		}
	}

	return &generationdomain.GenerateResponse{
		Text:     res.Text,
		Provider: prov,
		Model:    model,
		Tokens:   tokens,
	}, nil
}

func (s *Service) RemainingQuota(ctx context.Context, callerID string) (*generationdomain.QuotaReport, error) {
	acct, err := s.repo.GetByID(ctx, strings.TrimSpace(callerID))
	if err != nil {
		return nil, err
	}
	acct, err = s.tracker.CheckAndResetPeriod(ctx, acct)
	if err != nil {
		return nil, err
	}

	report := &generationdomain.QuotaReport{
		Primary: generationdomain.ProviderQuota{
			Used:         acct.PrimaryUsage,
			Limit:        acct.PrimaryMonthlyLimit,
			HasKey:       acct.HasOwnPrimaryKey(),
			CostEstimate: float64(acct.PrimaryUsage) / 1000 * s.routing.PrimaryCostPer1K,
		},
		Secondary: generationdomain.ProviderQuota{
			Used:    acct.SecondaryUsage,
			Limit:   acct.SecondaryMonthlyLimit,
			KeyType: s.secondaryKeyType(acct),
		},
	}
	report.Secondary.HasKey = report.Secondary.KeyType != generationdomain.KeyTypeNone
	return report, nil
}

func (s *Service) secondaryKeyType(acct *accountdomain.Account) generationdomain.KeyType {
	switch {
	case acct.HasDedicatedSecondaryKey():
		return generationdomain.KeyTypeDedicated
	case acct.SecondaryKeyValue() != "" || s.pool.Size() > 0:
		return generationdomain.KeyTypeShared
	default:
		return generationdomain.KeyTypeNone
	}
}

func (s *Service) markRateLimited(credential string, retryAfter time.Duration) {
	s.pool.MarkRateLimited(credential, retryAfter)
	if s.metrics != nil {
		s.metrics.RecordRateLimit()
	}
}

func classifyOutcome(resp *generationdomain.GenerateResponse, err error) (string, string) {
	if err == nil {
		return string(resp.Provider), "success"
	}
	switch {
	case errors.Is(err, generationdomain.ErrQuotaExceeded):
		return "none", "quota_exceeded"
	case errors.Is(err, generationdomain.ErrCapacityExceeded):
		return "none", "capacity_exceeded"
	case errors.Is(err, generationdomain.ErrUpstream):
		return "none", "upstream_error"
	default:
		return "none", "error"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
