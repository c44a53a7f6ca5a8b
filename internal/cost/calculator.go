// Package cost computes the billed fee for a research run: a flat price per
// workflow scaled by the account tier's discount multiplier.
package cost

import (
	"github.com/sells-group/deep-research/internal/model"
)

// Tier identifies an account pricing tier.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Rates holds the workflow price table and tier discounts.
type Rates struct {
	Workflows map[string]float64 `yaml:"workflows" mapstructure:"workflows"`
	Tiers     map[string]float64 `yaml:"tiers" mapstructure:"tiers"`
	// Fallback is charged for workflows missing from the table.
	Fallback float64 `yaml:"fallback" mapstructure:"fallback"`
}

// Calculator computes fees for research runs.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Fee returns the charge for one run of the given workflow at the given
// tier. Unknown workflows bill at the fallback rate; unknown tiers pay full
// price.
func (c *Calculator) Fee(workflow model.Workflow, tier Tier) float64 {
	price, ok := c.rates.Workflows[string(workflow)]
	if !ok {
		price = c.rates.Fallback
	}

	mul, ok := c.rates.Tiers[string(tier)]
	if !ok {
		mul = 1.0
	}

	return price * mul
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Workflows: map[string]float64{
			string(model.WorkflowDirect):      0.10,
			string(model.WorkflowExploratory): 0.20,
			string(model.WorkflowSynthesis):   0.30,
		},
		Tiers: map[string]float64{
			string(TierFree):       1.0,
			string(TierPro):        0.8,
			string(TierEnterprise): 0.5,
		},
		Fallback: 0.20,
	}
}
