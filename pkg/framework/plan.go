package framework

import (
	"fmt"
	"slices"

	"github.com/stemforge/stemforge/pkg/contract"
)

// ResolvePlan filters the registry's declared order down to the enabled set
// and validates it. A nil enabled slice means all declared stages; an empty
// non-nil slice means an empty plan.
//
// Every enabled id must be declared, and every dependency of a retained
// stage must also be retained; otherwise the plan is invalid.
func ResolvePlan(reg *contract.Registry, enabled []string) ([]contract.Contract, error) {
	all := reg.AllInOrder()

	if enabled == nil {
		return all, nil
	}

	for _, id := range enabled {
		if _, err := reg.Get(id); err != nil {
			return nil, fmt.Errorf("resolve plan: %w", err)
		}
	}

	plan := make([]contract.Contract, 0, len(enabled))

	for _, c := range all {
		if !slices.Contains(enabled, c.ID) {
			continue
		}

		for _, dep := range c.DependsOn {
			if !slices.Contains(enabled, dep) {
				return nil, fmt.Errorf("%w: stage %s requires %s which is not enabled",
					ErrInvalidPlan, c.ID, dep)
			}
		}

		plan = append(plan, c)
	}

	return plan, nil
}
