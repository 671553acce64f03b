package engine

import "math"

// SplitResult is the outcome of partitioning a recipient set for a test.
type SplitResult struct {
	TotalTestRecipients int                 `json:"total_test_recipients"`
	TestGroups          map[string][]string `json:"test_groups"`
	RemainingIDs        []string            `json:"remaining_recipient_ids"`
}

// SplitRecipients partitions recipientIDs for an A/B test: round(total ×
// percent/100) ids are divided as evenly as possible across the variants,
// remainder going to the first variants, and the rest of the set is held
// back for the winner rollout. Pure function: deterministic for a given
// input order, no side effects.
func SplitRecipients(recipientIDs []string, samplePercent int, variantIDs []string) SplitResult {
	total := len(recipientIDs)
	testCount := int(math.Round(float64(total) * float64(samplePercent) / 100))
	// Out-of-range percentages clamp instead of panicking on a negative
	// slice size.
	if testCount < 0 {
		testCount = 0
	}
	if testCount > total {
		testCount = total
	}
	if len(variantIDs) == 0 {
		return SplitResult{TestGroups: map[string][]string{}, RemainingIDs: append([]string(nil), recipientIDs...)}
	}

	groups := make(map[string][]string, len(variantIDs))
	perGroup := testCount / len(variantIDs)
	extra := testCount % len(variantIDs)

	idx := 0
	for i, vid := range variantIDs {
		size := perGroup
		if i < extra {
			size++
		}
		groups[vid] = append([]string(nil), recipientIDs[idx:idx+size]...)
		idx += size
	}

	return SplitResult{
		TotalTestRecipients: testCount,
		TestGroups:          groups,
		RemainingIDs:        append([]string(nil), recipientIDs[idx:]...),
	}
}
