// Package plans maps users to subscription tiers and tiers to quota ceilings.
package plans

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/SscSPs/agent_governance/internal/apperrors"
	"github.com/SscSPs/agent_governance/internal/core/domain"
	portsrepo "github.com/SscSPs/agent_governance/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/agent_governance/internal/core/ports/services"
	"gopkg.in/yaml.v3"
)

//go:embed tiers.yaml
var defaultTierCatalog []byte

// Catalog holds the quota ceilings of every known tier.
type Catalog struct {
	tiers map[string]domain.QuotaLimits
}

type catalogFile struct {
	Tiers map[string]domain.QuotaLimits `yaml:"tiers"`
}

// LoadCatalog reads the tier catalog from path, or the embedded catalog when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultTierCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read plan catalog %s: %w", path, err)
		}
		data = b
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML tier catalog. Every tier is clamped to the safe quota ranges.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse plan catalog: %w", err)
	}
	if len(file.Tiers) == 0 {
		return nil, fmt.Errorf("%w: plan catalog defines no tiers", apperrors.ErrValidation)
	}
	tiers := make(map[string]domain.QuotaLimits, len(file.Tiers))
	for name, limits := range file.Tiers {
		tiers[name] = domain.ClampLimits(limits)
	}
	return &Catalog{tiers: tiers}, nil
}

// Tier returns the ceilings of the named tier.
func (c *Catalog) Tier(name string) (domain.QuotaLimits, bool) {
	limits, ok := c.tiers[name]
	return limits, ok
}

// TierNames lists the known tiers in alphabetical order.
func (c *Catalog) TierNames() []string {
	names := make([]string, 0, len(c.tiers))
	for name := range c.tiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CatalogProvider resolves a user's tier from storage and looks its ceilings up in the catalog.
type CatalogProvider struct {
	catalog     *Catalog
	tiers       portsrepo.PlanTierRepository
	defaultTier string
}

var _ portssvc.PlanQuotaProvider = (*CatalogProvider)(nil)

// NewCatalogProvider fails when the default tier is not in the catalog.
func NewCatalogProvider(catalog *Catalog, tiers portsrepo.PlanTierRepository, defaultTier string) (*CatalogProvider, error) {
	if _, ok := catalog.Tier(defaultTier); !ok {
		return nil, fmt.Errorf("%w: default plan tier %q is not in the catalog", apperrors.ErrValidation, defaultTier)
	}
	return &CatalogProvider{catalog: catalog, tiers: tiers, defaultTier: defaultTier}, nil
}

// EffectivePlanQuotas returns the ceilings of the user's tier. Users without an explicit tier get
// the default tier. A tier missing from the catalog is an error so the caller denies rather than widens.
func (p *CatalogProvider) EffectivePlanQuotas(ctx context.Context, userID string) (domain.QuotaLimits, error) {
	tier, err := p.tiers.FindPlanTier(ctx, userID)
	if errors.Is(err, apperrors.ErrNotFound) {
		tier = p.defaultTier
	} else if err != nil {
		return domain.QuotaLimits{}, fmt.Errorf("failed to look up plan tier for user %s: %w", userID, err)
	}
	limits, ok := p.catalog.Tier(tier)
	if !ok {
		return domain.QuotaLimits{}, fmt.Errorf("%w: user %s is on unknown plan tier %q", apperrors.ErrValidation, userID, tier)
	}
	return limits, nil
}
