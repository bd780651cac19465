package payment

import (
	"sort"
	"strings"

	"github.com/cassiomorais/reconciler/internal/domain/errors"
)

// UnknownPlanSlug is assigned when an external plan id maps to no configured plan.
const UnknownPlanSlug = "unknown"

const defaultPrice = "N/A"

// Plan is one purchasable offering and its provider-side identifier.
type Plan struct {
	Slug       string
	ExternalID string
	Name       string
	Price      string
}

// PlanCatalog is the fixed slug to external plan id table.
type PlanCatalog struct {
	plans      map[string]Plan
	byExternal map[string]string
	collisions map[string][]string
}

func NewPlanCatalog(plans []Plan) *PlanCatalog {
	c := &PlanCatalog{
		plans:      make(map[string]Plan, len(plans)),
		byExternal: make(map[string]string),
		collisions: make(map[string][]string),
	}
	for _, p := range plans {
		c.plans[p.Slug] = p
	}

	// First slug in lexical order wins a shared external id.
	for _, slug := range c.Slugs() {
		ext := c.plans[slug].ExternalID
		if ext == "" {
			continue
		}
		if owner, taken := c.byExternal[ext]; taken {
			if len(c.collisions[ext]) == 0 {
				c.collisions[ext] = []string{owner}
			}
			c.collisions[ext] = append(c.collisions[ext], slug)
			continue
		}
		c.byExternal[ext] = slug
	}
	return c
}

// Slugs returns every configured slug, sorted.
func (c *PlanCatalog) Slugs() []string {
	slugs := make([]string, 0, len(c.plans))
	for slug := range c.plans {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

// Lookup returns a plan that can be checked out.
func (c *PlanCatalog) Lookup(slug string) (Plan, error) {
	p, ok := c.plans[slug]
	if !ok {
		return Plan{}, errors.ErrPlanNotFound
	}
	if p.ExternalID == "" {
		return p, errors.ErrPlanNotConfigured
	}
	return p, nil
}

// ResolveSlug reverse-maps a provider plan id. Empty and unmapped ids
// resolve to UnknownPlanSlug.
func (c *PlanCatalog) ResolveSlug(externalID string) string {
	if externalID == "" {
		return UnknownPlanSlug
	}
	if slug, ok := c.byExternal[externalID]; ok {
		return slug
	}
	return UnknownPlanSlug
}

// DisplayName falls back to the capitalised slug.
func (c *PlanCatalog) DisplayName(slug string) string {
	if p, ok := c.plans[slug]; ok && p.Name != "" {
		return p.Name
	}
	if slug == "" {
		return ""
	}
	return strings.ToUpper(slug[:1]) + slug[1:]
}

func (c *PlanCatalog) Price(slug string) string {
	if p, ok := c.plans[slug]; ok && p.Price != "" {
		return p.Price
	}
	return defaultPrice
}

// Collisions lists external ids configured on more than one slug. Records for
// the losing slugs can never be matched by the recent-pending fallback.
func (c *PlanCatalog) Collisions() map[string][]string {
	return c.collisions
}
