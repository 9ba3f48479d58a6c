package rules

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RuleSet captures per-watch eligibility constraints. All bounds are optional;
// an absent bound means no constraint. Stored as JSON on the watch row.
type RuleSet struct {
	FloatMin          *float64 `json:"float_min,omitempty"`
	FloatMax          *float64 `json:"float_max,omitempty"`
	SeedWhitelist     []int    `json:"seed_whitelist,omitempty"`
	StickerAny        []string `json:"sticker_any,omitempty"`
	TargetResaleCents int64    `json:"target_resale_cents"`
	MinProfitCents    int64    `json:"min_profit_cents"`
}

// NeedsEnrichment reports whether any rule depends on inspect data.
func (r RuleSet) NeedsEnrichment() bool {
	return r.FloatMin != nil || r.FloatMax != nil || len(r.SeedWhitelist) > 0
}

// Validate rejects rule sets that cannot be evaluated.
func (r RuleSet) Validate() error {
	if r.TargetResaleCents <= 0 {
		return fmt.Errorf("target_resale_cents must be greater than zero")
	}
	if r.MinProfitCents < 0 {
		return fmt.Errorf("min_profit_cents cannot be negative")
	}
	if r.FloatMin != nil && r.FloatMax != nil && *r.FloatMin > *r.FloatMax {
		return fmt.Errorf("float_min exceeds float_max")
	}
	return nil
}

// FeeModel holds marketplace fee parameters, injected per deployment.
type FeeModel struct {
	// Rate is the combined fee fraction applied to the resale amount.
	Rate decimal.Decimal
	// MinCents is the flat minimum fee deducted after the rate.
	MinCents int64
}

// Enrichment is the inspect data relevant to rule evaluation.
type Enrichment struct {
	FloatValue float64
	PaintSeed  *int
	Stickers   []string
}

// Verdict is the outcome of evaluating one listing against a rule set.
type Verdict struct {
	Eligible    bool
	ProfitCents int64
	Reasons     []string
}

// Evaluate applies the rule set to a listing observation. Pure: same inputs
// always produce the same verdict. Checks short-circuit in order, recording
// the first failing reason.
func Evaluate(priceCents int64, enrichment *Enrichment, rs RuleSet, fees FeeModel) Verdict {
	if rs.FloatMin != nil || rs.FloatMax != nil {
		if enrichment == nil {
			return fail("enrichment required for float bounds but unavailable")
		}
		if rs.FloatMin != nil && enrichment.FloatValue < *rs.FloatMin {
			return fail(fmt.Sprintf("float %.6f below min %.6f", enrichment.FloatValue, *rs.FloatMin))
		}
		if rs.FloatMax != nil && enrichment.FloatValue > *rs.FloatMax {
			return fail(fmt.Sprintf("float %.6f above max %.6f", enrichment.FloatValue, *rs.FloatMax))
		}
	}

	if len(rs.SeedWhitelist) > 0 {
		if enrichment == nil || enrichment.PaintSeed == nil {
			return fail("enrichment required for seed whitelist but unavailable")
		}
		if !containsInt(rs.SeedWhitelist, *enrichment.PaintSeed) {
			return fail(fmt.Sprintf("seed %d not in whitelist", *enrichment.PaintSeed))
		}
	}

	if len(rs.StickerAny) > 0 {
		var stickers []string
		if enrichment != nil {
			stickers = enrichment.Stickers
		}
		if !intersects(stickers, rs.StickerAny) {
			return fail("no sticker matched sticker_any")
		}
	}

	profit := NetProceedsCents(rs.TargetResaleCents, fees) - priceCents
	if profit < rs.MinProfitCents {
		verdict := fail(fmt.Sprintf("profit %d below minimum %d", profit, rs.MinProfitCents))
		verdict.ProfitCents = profit
		return verdict
	}

	return Verdict{Eligible: true, ProfitCents: profit}
}

// NetProceedsCents computes the seller's take-home for a resale amount:
// floor(resale * (1 - rate)) - minFee. Floored so profit estimates stay
// conservative.
func NetProceedsCents(resaleCents int64, fees FeeModel) int64 {
	keep := decimal.NewFromInt(1).Sub(fees.Rate)
	proceeds := decimal.NewFromInt(resaleCents).Mul(keep).Floor().IntPart()
	return proceeds - fees.MinCents
}

func fail(reason string) Verdict {
	return Verdict{Reasons: []string{reason}}
}

func containsInt(values []int, want int) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func intersects(have, want []string) bool {
	if len(have) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(have))
	for _, v := range have {
		set[v] = struct{}{}
	}
	for _, v := range want {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
