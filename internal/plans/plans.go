// Package plans holds the static plan catalog: the mapping from plan
// identifiers to entitlement limits and Stripe price references. The
// catalog is built once at process start and never mutated, so it is safe
// to share across concurrent requests without locking.
package plans

import "os"

// Plan type identifiers. These are the only valid values for
// Workspace.PlanType; every caller must resolve before any side effect.
const (
	PlanIndividual = "individual"
	PlanFonoPlus   = "fono_plus"
	PlanPro        = "pro"
)

// Unlimited is the sentinel for uncapped patient/member limits.
const Unlimited = -1

// Config describes a single plan catalog entry. Immutable at runtime.
type Config struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Price         int      `json:"price"` // BRL per month
	StripePriceID string   `json:"stripe_price_id"`
	MaxPatients   int      `json:"max_patients"`
	MaxMembers    int      `json:"max_members"`
	Popular       bool     `json:"popular,omitempty"`
	Features      []string `json:"features"`
}

// Catalog is an immutable plan lookup table.
type Catalog struct {
	plans map[string]*Config
	order []string
}

// NewCatalog builds the catalog. Stripe price IDs can be overridden via
// STRIPE_PRICE_INDIVIDUAL / STRIPE_PRICE_FONO_PLUS / STRIPE_PRICE_PRO for
// test and staging accounts.
func NewCatalog() *Catalog {
	plans := map[string]*Config{
		PlanIndividual: {
			ID:            PlanIndividual,
			Name:          "Plano Individual",
			Description:   "Ideal para profissionais autônomos",
			Price:         97,
			StripePriceID: priceID("STRIPE_PRICE_INDIVIDUAL", "price_1RLz2HJ7ZqaKlLkgT0h7fbj7"),
			MaxPatients:   15,
			MaxMembers:    1,
			Features: []string{
				"Até 15 pacientes",
				"1 membro (você)",
				"Gestão de agenda",
				"Prontuário eletrônico",
				"Lembretes automáticos",
				"Suporte via email",
			},
		},
		PlanFonoPlus: {
			ID:            PlanFonoPlus,
			Name:          "Plano Fono+",
			Description:   "Para clínicas pequenas e médias",
			Price:         197,
			StripePriceID: priceID("STRIPE_PRICE_FONO_PLUS", "price_1SUFu5J7ZqaKlLkgU9unKGZN"),
			MaxPatients:   30,
			MaxMembers:    3,
			Popular:       true,
			Features: []string{
				"Até 30 pacientes",
				"Até 3 membros (1 owner + 2 membros)",
				"Gestão de agenda compartilhada",
				"Prontuário eletrônico",
				"Lembretes automáticos",
				"Relatórios básicos",
				"Suporte prioritário",
			},
		},
		PlanPro: {
			ID:            PlanPro,
			Name:          "Plano Pro",
			Description:   "Para clínicas grandes sem limites",
			Price:         397,
			StripePriceID: priceID("STRIPE_PRICE_PRO", "price_1RLz3YJ7ZqaKlLkgHElrd0BX"),
			MaxPatients:   Unlimited,
			MaxMembers:    Unlimited,
			Features: []string{
				"Pacientes ilimitados",
				"Membros ilimitados",
				"Gestão de agenda avançada",
				"Prontuário eletrônico",
				"Lembretes automáticos",
				"Relatórios avançados",
				"Integrações personalizadas",
				"Suporte prioritário 24/7",
				"Treinamento personalizado",
			},
		},
	}

	return &Catalog{
		plans: plans,
		order: []string{PlanIndividual, PlanFonoPlus, PlanPro},
	}
}

// Resolve looks up a plan by type. Unknown plan types return (nil, false)
// and must be rejected by the caller before any side effect; there is no
// defaulting.
func (c *Catalog) Resolve(planType string) (*Config, bool) {
	cfg, ok := c.plans[planType]
	return cfg, ok
}

// List returns all catalog entries in display order.
func (c *Catalog) List() []*Config {
	out := make([]*Config, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.plans[id])
	}
	return out
}

// Name returns the display name for a plan type, falling back to the raw
// identifier when unknown.
func (c *Catalog) Name(planType string) string {
	if cfg, ok := c.plans[planType]; ok {
		return cfg.Name
	}
	return planType
}

// Price returns the monthly price for a plan type, 0 when unknown.
func (c *Catalog) Price(planType string) int {
	if cfg, ok := c.plans[planType]; ok {
		return cfg.Price
	}
	return 0
}

// StripePriceID returns the remote price reference for a plan type, empty
// when unknown.
func (c *Catalog) StripePriceID(planType string) string {
	if cfg, ok := c.plans[planType]; ok {
		return cfg.StripePriceID
	}
	return ""
}

func priceID(envKey, fallback string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return fallback
}
