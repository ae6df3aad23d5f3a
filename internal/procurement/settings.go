package procurement

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-procure/internal/money"
)

// Settings resolves tenant configured defaults.
type Settings interface {
	Currency(tenantID string) string
	DefaultTaxRate(tenantID string) decimal.Decimal
	ApprovalPolicy(tenantID string) ApprovalPolicy
}

// StaticSettings serves settings loaded once from configuration.
type StaticSettings struct {
	DefaultCurrency string
	TaxRate         decimal.Decimal
	TenantTaxRates  map[string]decimal.Decimal
	Policy          ApprovalPolicy
	TenantPolicies  map[string]ApprovalPolicy
}

// Validate checks every configured currency, rate and policy. An empty
// default policy is allowed and resolves to DefaultApprovalPolicy.
func (s StaticSettings) Validate() error {
	if _, err := money.ParseCurrency(s.DefaultCurrency); err != nil {
		return newError(ErrValidation, "default currency: %v", err)
	}
	if !ValidTaxRate(s.TaxRate) {
		return newError(ErrValidation, "default tax rate %s%% not allowed", s.TaxRate.String())
	}
	for tenant, rate := range s.TenantTaxRates {
		if !ValidTaxRate(rate) {
			return newError(ErrValidation, "tenant %s tax rate %s%% not allowed", tenant, rate.String())
		}
	}
	if len(s.Policy.Levels) > 0 {
		if err := s.Policy.Validate(); err != nil {
			return err
		}
	}
	for _, policy := range s.TenantPolicies {
		if err := policy.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s StaticSettings) Currency(string) string {
	return strings.ToUpper(s.DefaultCurrency)
}

func (s StaticSettings) DefaultTaxRate(tenantID string) decimal.Decimal {
	if rate, ok := s.TenantTaxRates[tenantID]; ok {
		return rate
	}
	return s.TaxRate
}

func (s StaticSettings) ApprovalPolicy(tenantID string) ApprovalPolicy {
	if policy, ok := s.TenantPolicies[tenantID]; ok {
		return policy
	}
	if len(s.Policy.Levels) == 0 {
		return DefaultApprovalPolicy()
	}
	return s.Policy
}
