package service

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/MorphGate/morphgate/internal/config"
	"github.com/MorphGate/morphgate/internal/model"
)

// TenantManager keeps the tenant registry and per-tenant rate limiters
// in memory, backed by an optional repo for keys issued at runtime.
type TenantManager struct {
	mu            sync.RWMutex
	tenants       map[string]*model.Tenant // key: gateway api key
	limiters      map[string]*rate.Limiter // key: tenant id
	defaultTenant *model.Tenant
	repo          TenantRepo
}

type TenantRepo interface {
	GetByApiKey(ctx context.Context, apiKey string) (*model.Tenant, error)
}

func NewTenantManager(cfg *config.Config, repo TenantRepo) *TenantManager {
	tm := &TenantManager{
		tenants:  make(map[string]*model.Tenant),
		limiters: make(map[string]*rate.Limiter),
		repo:     repo,
	}

	if len(cfg.Tenants) > 0 {
		for _, tc := range cfg.Tenants {
			tenant := &model.Tenant{
				ID:     tc.ID,
				Name:   tc.Name,
				ApiKey: tc.APIKey,
				Account: model.AccountCreds{
					Address: tc.Address,
				},
				Risk: model.RiskConfig{
					MaxSupplyAssets:   chooseString(cfg.Risk.MaxSupplyAssets, tc.Risk.MaxSupplyAssets),
					MaxBorrowAssets:   chooseString(cfg.Risk.MaxBorrowAssets, tc.Risk.MaxBorrowAssets),
					RestrictedMarkets: chooseStringSlice(cfg.Risk.RestrictedMarkets, tc.Risk.RestrictedMarkets),
				},
				Rate: model.RateLimitConfig{
					QPS:   tc.QPS,
					Burst: tc.Burst,
				},
			}
			tm.RegisterTenant(tenant)
		}
		return tm
	}

	// single-tenant mode: one implicit tenant behind the global api key
	if cfg.Auth.APIKey != "" {
		defaultTenant := &model.Tenant{
			ID:     "default-tenant",
			Name:   "Default Tenant",
			ApiKey: cfg.Auth.APIKey,
			Risk: model.RiskConfig{
				MaxSupplyAssets:   cfg.Risk.MaxSupplyAssets,
				MaxBorrowAssets:   cfg.Risk.MaxBorrowAssets,
				RestrictedMarkets: cfg.Risk.RestrictedMarkets,
			},
			Rate: model.RateLimitConfig{
				QPS:   10,
				Burst: 20,
			},
		}
		tm.RegisterTenant(defaultTenant)
		tm.defaultTenant = defaultTenant
	}

	return tm
}

func (tm *TenantManager) RegisterTenant(t *model.Tenant) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if t == nil {
		return
	}
	tm.tenants[t.ApiKey] = t

	limit := rate.Limit(t.Rate.QPS)
	if limit == 0 {
		limit = rate.Inf
	}
	burst := t.Rate.Burst
	if burst == 0 {
		burst = 1
	}
	tm.limiters[t.ID] = rate.NewLimiter(limit, burst)
}

func (tm *TenantManager) ReplaceTenant(t *model.Tenant) {
	tm.RemoveTenantByID(t.ID)
	tm.RegisterTenant(t)
}

func (tm *TenantManager) RemoveTenantByID(id string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	for key, tenant := range tm.tenants {
		if tenant != nil && tenant.ID == id {
			delete(tm.tenants, key)
			delete(tm.limiters, tenant.ID)
		}
	}
}

func (tm *TenantManager) GetTenantByID(id string) (*model.Tenant, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	for _, tenant := range tm.tenants {
		if tenant != nil && tenant.ID == id {
			return tenant, true
		}
	}
	return nil, false
}

func (tm *TenantManager) ListTenants() []*model.Tenant {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	results := make([]*model.Tenant, 0, len(tm.tenants))
	seen := make(map[string]struct{})
	for _, tenant := range tm.tenants {
		if tenant == nil {
			continue
		}
		if _, ok := seen[tenant.ID]; ok {
			continue
		}
		seen[tenant.ID] = struct{}{}
		results = append(results, tenant)
	}
	return results
}

func (tm *TenantManager) GetTenantByApiKey(apiKey string) (*model.Tenant, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	t, ok := tm.tenants[apiKey]
	return t, ok
}

func (tm *TenantManager) GetTenantByApiKeyWithFallback(ctx context.Context, apiKey string) (*model.Tenant, bool) {
	if t, ok := tm.GetTenantByApiKey(apiKey); ok {
		return t, true
	}
	if tm.repo == nil {
		return nil, false
	}
	t, err := tm.repo.GetByApiKey(ctx, apiKey)
	if err != nil || t == nil {
		return nil, false
	}
	tm.RegisterTenant(t)
	return t, true
}

func (tm *TenantManager) DefaultTenant() *model.Tenant {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.defaultTenant
}

func (tm *TenantManager) GetLimiterForTenant(tenantID string) *rate.Limiter {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.limiters[tenantID]
}

func chooseString(base, override string) string {
	if override != "" {
		return override
	}
	return base
}

func chooseStringSlice(base, override []string) []string {
	if len(override) > 0 {
		return override
	}
	return base
}
