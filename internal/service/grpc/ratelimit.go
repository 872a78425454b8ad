package grpcsvc

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// RateLimitConfig задаёт лимиты на одного вызывающего.
// Strict-лимит действует для платежей и проверок реквизитов.
type RateLimitConfig struct {
	RPS         float64
	Burst       int
	StrictRPS   float64
	StrictBurst int
	IdleTTL     time.Duration
}

// DefaultRateLimitConfig возвращает лимиты по умолчанию.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RPS:         50,
		Burst:       100,
		StrictRPS:   5,
		StrictBurst: 10,
		IdleTTL:     10 * time.Minute,
	}
}

var strictMethods = map[string]struct{}{
	FullMethod(MethodProcessPayment): {},
	FullMethod(MethodValidateCard):   {},
	FullMethod(MethodVerifyUpi):      {},
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter — token bucket на каждого вызывающего и уровень лимита.
type RateLimiter struct {
	cfg    RateLimitConfig
	logger *log.Entry
	now    func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
}

// NewRateLimiter создаёт ограничитель. Нулевые поля берутся из DefaultRateLimitConfig.
func NewRateLimiter(cfg RateLimitConfig, logger *log.Entry) *RateLimiter {
	defaults := DefaultRateLimitConfig()
	if cfg.RPS <= 0 {
		cfg.RPS = defaults.RPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaults.Burst
	}
	if cfg.StrictRPS <= 0 {
		cfg.StrictRPS = defaults.StrictRPS
	}
	if cfg.StrictBurst <= 0 {
		cfg.StrictBurst = defaults.StrictBurst
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaults.IdleTTL
	}
	if logger == nil {
		logger = log.WithField("component", "grpc-rate-limiter")
	}
	return &RateLimiter{
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

// Allow расходует токен вызывающего для метода.
func (l *RateLimiter) Allow(caller, fullMethod string) bool {
	tier, limit, burst := "general", rate.Limit(l.cfg.RPS), l.cfg.Burst
	if _, strict := strictMethods[fullMethod]; strict {
		tier, limit, burst = "strict", rate.Limit(l.cfg.StrictRPS), l.cfg.StrictBurst
	}
	key := tier + ":" + caller
	now := l.now()

	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(limit, burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// Evict удаляет вызывающих, неактивных дольше IdleTTL. Возвращает число удалённых.
func (l *RateLimiter) Evict() int {
	cutoff := l.now().Add(-l.cfg.IdleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, key)
			removed++
		}
	}
	return removed
}

// Len — число отслеживаемых вызывающих.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// Run периодически вычищает неактивных вызывающих до отмены контекста.
func (l *RateLimiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.IdleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if removed := l.Evict(); removed > 0 {
				l.logger.WithField("removed", removed).Debug("evicted idle rate limit visitors")
			}
		}
	}
}

// UnaryInterceptor отклоняет запросы сверх лимита с ResourceExhausted.
// Health и reflection не лимитируются.
func (l *RateLimiter) UnaryInterceptor() grpc.UnaryServerInterceptor {
	prefix := "/" + ServiceName + "/"
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, prefix) {
			return handler(ctx, req)
		}
		caller := callerKey(ctx)
		if !l.Allow(caller, info.FullMethod) {
			l.logger.WithFields(log.Fields{
				"caller": caller,
				"method": info.FullMethod,
			}).Warn("rate limit exceeded")
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}

// callerKey — x-user-id, иначе адрес пира без порта.
func callerKey(ctx context.Context) string {
	if id := metadataValue(ctx, UserIDHeader); id != "" {
		return "user:" + id
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		addr := p.Addr.String()
		if i := strings.LastIndex(addr, ":"); i > 0 {
			addr = addr[:i]
		}
		return "peer:" + addr
	}
	return "anonymous"
}
