// Package scoring turns per-criterion raw scores into a single 0-5 total.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"cohortflow/internal/domain"
	"cohortflow/internal/errcode"
)

// Scale is the upper bound of a total score.
const Scale = 5.0

const weightSumTolerance = 1e-6

// WeightPolicy 决定 rubric 权重之和不为 1 时的处理方式。
type WeightPolicy string

const (
	// WeightsProportional 接受任意权重，总分按配置的权重等比缩放。
	WeightsProportional WeightPolicy = "proportional"
	// WeightsStrict 拒绝权重之和不为 1 的 rubric。
	WeightsStrict WeightPolicy = "strict"
)

// ParseWeightPolicy maps a config value to a policy. Empty means proportional.
func ParseWeightPolicy(raw string) (WeightPolicy, error) {
	switch WeightPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", WeightsProportional:
		return WeightsProportional, nil
	case WeightsStrict:
		return WeightsStrict, nil
	default:
		return "", fmt.Errorf("unknown weight policy %q", raw)
	}
}

// Scorer 在计算总分前按配置的策略校验 rubric。
type Scorer struct {
	policy WeightPolicy
}

func NewScorer(policy WeightPolicy) Scorer {
	if policy == "" {
		policy = WeightsProportional
	}
	return Scorer{policy: policy}
}

func (s Scorer) Policy() WeightPolicy { return s.policy }

// ValidateRubric checks the structural rules every rubric must satisfy, plus the
// weight-sum rule when the policy is strict.
func (s Scorer) ValidateRubric(r domain.Rubric) error {
	if len(r.Criteria) == 0 {
		return errcode.NewValidation("rubric must have at least one criterion")
	}
	seen := make(map[string]struct{}, len(r.Criteria))
	sum := 0.0
	for _, c := range r.Criteria {
		id := strings.TrimSpace(c.ID)
		if id == "" {
			return errcode.NewValidation("rubric criterion id is required")
		}
		if _, dup := seen[id]; dup {
			return errcode.NewValidationf("duplicate rubric criterion %q", id)
		}
		seen[id] = struct{}{}
		if c.Weight < 0 || c.Weight > 1 || math.IsNaN(c.Weight) {
			return errcode.NewValidationf("criterion %q weight must be within [0,1]", id)
		}
		if c.MaxScore <= 0 {
			return errcode.NewValidationf("criterion %q max score must be positive", id)
		}
		sum += c.Weight
	}
	if s.policy == WeightsStrict && math.Abs(sum-1) > weightSumTolerance {
		return errcode.NewValidationf("rubric weights must sum to 1, got %.4f", sum)
	}
	return nil
}

// Score validates the rubric and returns its Total.
func (s Scorer) Score(r domain.Rubric, applied map[string]int) (float64, error) {
	if err := s.ValidateRubric(r); err != nil {
		return 0, err
	}
	return Total(r, applied), nil
}

// Total 计算 Σ(applied/max)*weight*5 并四舍五入到一位小数。
// 缺失的维度按 0 计；分值不做范围校验。
func Total(r domain.Rubric, applied map[string]int) float64 {
	total := 0.0
	for _, c := range r.Criteria {
		if c.MaxScore <= 0 {
			continue
		}
		total += float64(applied[c.ID]) / float64(c.MaxScore) * c.Weight * Scale
	}
	return roundTenth(total)
}

// ValidateScores is the range check callers run before Total: every key must name a
// criterion and every value must lie in [0, MaxScore].
func ValidateScores(r domain.Rubric, applied map[string]int) error {
	byID := make(map[string]domain.Criterion, len(r.Criteria))
	for _, c := range r.Criteria {
		byID[c.ID] = c
	}
	for id, v := range applied {
		c, ok := byID[id]
		if !ok {
			return errcode.NewValidationf("unknown rubric criterion %q", id)
		}
		if v < 0 || v > c.MaxScore {
			return errcode.NewValidationf("score for %q must be within [0,%d]", id, c.MaxScore)
		}
	}
	return nil
}

// roundTenth drops float noise below 1e-6 before rounding half away from zero.
func roundTenth(v float64) float64 {
	return math.Round(math.Round(v*1e6)/1e5) / 10
}
