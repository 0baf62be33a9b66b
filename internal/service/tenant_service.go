package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/MorphGate/morphgate/internal/model"
)

type TenantService struct {
	repo    TenantRepoCRUD
	manager *TenantManager
}

type TenantRepoCRUD interface {
	TenantRepo
	List(ctx context.Context, limit, offset int) ([]*model.Tenant, error)
	GetByID(ctx context.Context, id string) (*model.Tenant, error)
	Create(ctx context.Context, t *model.Tenant) error
	Update(ctx context.Context, t *model.Tenant) error
	Delete(ctx context.Context, id string) error
}

type TenantCreateRequest struct {
	ID      string                `json:"id" binding:"required"`
	Name    string                `json:"name"`
	APIKey  string                `json:"api_key" binding:"required"`
	Account model.AccountCreds    `json:"account"`
	Risk    model.RiskConfig      `json:"risk"`
	Rate    model.RateLimitConfig `json:"rate_limit"`
}

type TenantUpdateRequest struct {
	Name    *string                `json:"name"`
	APIKey  *string                `json:"api_key"`
	Account *model.AccountCreds    `json:"account"`
	Risk    *model.RiskConfig      `json:"risk"`
	Rate    *model.RateLimitConfig `json:"rate_limit"`
}

func NewTenantService(manager *TenantManager, repo TenantRepoCRUD) *TenantService {
	return &TenantService{
		repo:    repo,
		manager: manager,
	}
}

func (s *TenantService) List(ctx context.Context, limit, offset int) ([]*model.Tenant, error) {
	if s.repo != nil {
		return s.repo.List(ctx, limit, offset)
	}
	return s.manager.ListTenants(), nil
}

func (s *TenantService) Get(ctx context.Context, id string) (*model.Tenant, error) {
	if s.repo != nil {
		tenant, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrTenantNotFound
		}
		return tenant, err
	}
	tenant, ok := s.manager.GetTenantByID(id)
	if !ok {
		return nil, model.ErrTenantNotFound
	}
	return tenant, nil
}

func (s *TenantService) Create(ctx context.Context, req TenantCreateRequest) (*model.Tenant, error) {
	tenant := &model.Tenant{
		ID:      strings.TrimSpace(req.ID),
		Name:    req.Name,
		ApiKey:  strings.TrimSpace(req.APIKey),
		Account: req.Account,
		Risk:    req.Risk,
		Rate:    req.Rate,
	}
	if tenant.ID == "" || tenant.ApiKey == "" {
		return nil, fmt.Errorf("id and api_key are required")
	}
	if s.repo != nil {
		if err := s.repo.Create(ctx, tenant); err != nil {
			return nil, err
		}
	}
	s.manager.RegisterTenant(tenant)
	return tenant, nil
}

func (s *TenantService) Update(ctx context.Context, id string, req TenantUpdateRequest) (*model.Tenant, error) {
	var tenant *model.Tenant
	if s.repo != nil {
		current, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrTenantNotFound
		}
		if err != nil {
			return nil, err
		}
		tenant = current
	} else {
		current, _ := s.manager.GetTenantByID(id)
		if current == nil {
			return nil, model.ErrTenantNotFound
		}
		tenant = current
	}

	if req.Name != nil {
		tenant.Name = *req.Name
	}
	if req.APIKey != nil && *req.APIKey != "" {
		tenant.ApiKey = *req.APIKey
	}
	if req.Account != nil {
		tenant.Account = *req.Account
	}
	if req.Risk != nil {
		tenant.Risk = *req.Risk
	}
	if req.Rate != nil {
		tenant.Rate = *req.Rate
	}

	if s.repo != nil {
		if err := s.repo.Update(ctx, tenant); err != nil {
			return nil, err
		}
	}
	s.manager.ReplaceTenant(tenant)
	return tenant, nil
}

func (s *TenantService) Delete(ctx context.Context, id string) error {
	if s.repo != nil {
		if err := s.repo.Delete(ctx, id); err != nil {
			return err
		}
	}
	s.manager.RemoveTenantByID(id)
	return nil
}
