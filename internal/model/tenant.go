package model

import "errors"

// ErrTenantNotFound is the shared sentinel for tenant lookups that miss,
// regardless of backing store.
var ErrTenantNotFound = errors.New("tenant not found")

// RiskConfig defines per-tenant pre-flight limits applied before any call
// is forwarded to the ledger. Amounts are decimal strings in base units;
// empty means unlimited.
type RiskConfig struct {
	MaxSupplyAssets   string   `json:"max_supply_assets"`
	MaxBorrowAssets   string   `json:"max_borrow_assets"`
	RestrictedMarkets []string `json:"restricted_markets"` // market ids (hex)
}

// RateLimitConfig defines the tenant's request throttle.
type RateLimitConfig struct {
	QPS   float64 `json:"qps"`
	Burst int     `json:"burst"`
}

// AccountCreds holds the tenant's on-chain identity. The address is the
// account supplies and borrows are made on behalf of; the private key is
// only set for custodial tenants whose transactions the gateway signs.
type AccountCreds struct {
	Address    string `json:"address"`
	PrivateKey string `json:"private_key"` // store encrypted or via KMS in production
}

// Tenant represents one integration client of the gateway.
type Tenant struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	ApiKey  string          `json:"api_key"` // access key issued by the gateway
	Account AccountCreds    `json:"account"`
	Risk    RiskConfig      `json:"risk"`
	Rate    RateLimitConfig `json:"rate_limit"`
}
