package projection

import (
	"sort"
	"strings"

	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/model"
)

// ChangedFields compares an existing projection with its replacement
// field-by-field. Array fields are compared as sorted, comma-joined strings;
// scalar fields by direct inequality. Returns ["all"] when there is no
// previous projection and ["none"] when nothing changed.
func ChangedFields(old *model.ProfileProjection, updated model.ProfileProjection) []string {
	if old == nil {
		return []string{"all"}
	}

	var changed []string
	appendIf := func(name string, differs bool) {
		if differs {
			changed = append(changed, name)
		}
	}

	appendIf("desiredRoles", sortedJoin(old.DesiredRoles) != sortedJoin(updated.DesiredRoles))
	appendIf("skillIds", sortedJoin(old.SkillIDs) != sortedJoin(updated.SkillIDs))
	appendIf("experienceYears", old.ExperienceYears != updated.ExperienceYears)
	appendIf("desiredLocations", sortedJoin(old.DesiredLocations) != sortedJoin(updated.DesiredLocations))
	appendIf("expectedSalary", old.ExpectedSalary != updated.ExpectedSalary)
	appendIf("employmentTypes",
		sortedJoin(employmentTypesToStrings(old.EmploymentTypes)) !=
			sortedJoin(employmentTypesToStrings(updated.EmploymentTypes)))
	appendIf("isActive", old.IsActive != updated.IsActive)

	if len(changed) == 0 {
		return []string{"none"}
	}
	return changed
}

// sortedJoin canonicalises an array field for comparison: order-insensitive,
// content-sensitive.
func sortedJoin(values []string) string {
	cp := make([]string, len(values))
	copy(cp, values)
	sort.Strings(cp)
	return strings.Join(cp, ",")
}
