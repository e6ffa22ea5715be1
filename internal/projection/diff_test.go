package projection_test

import (
	"reflect"
	"testing"

	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/model"
	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/projection"
)

func sampleProjection() model.ProfileProjection {
	return model.ProfileProjection{
		ProfileID:        "p-1",
		SubscriberID:     "u-1",
		DesiredRoles:     []string{"backend engineer"},
		SkillIDs:         []string{"go", "sql"},
		SkillNames:       []string{"Go", "SQL"},
		ExperienceYears:  3,
		DesiredLocations: []string{"Remote"},
		ExpectedSalary:   model.SalaryRange{Min: 1000, Max: 3000, Currency: "USD"},
		EmploymentTypes:  []model.EmploymentType{model.EmploymentFullTime},
		IsActive:         true,
	}
}

func TestChangedFields_NoPreviousProjectionIsAll(t *testing.T) {
	got := projection.ChangedFields(nil, sampleProjection())
	if !reflect.DeepEqual(got, []string{"all"}) {
		t.Errorf("ChangedFields(nil, p) = %v, want [all]", got)
	}
}

func TestChangedFields_IdenticalIsNone(t *testing.T) {
	old := sampleProjection()
	got := projection.ChangedFields(&old, sampleProjection())
	if !reflect.DeepEqual(got, []string{"none"}) {
		t.Errorf("ChangedFields(p, p) = %v, want [none]", got)
	}
}

func TestChangedFields_ArrayOrderDoesNotCount(t *testing.T) {
	old := sampleProjection()
	updated := sampleProjection()
	updated.SkillIDs = []string{"sql", "go"}
	updated.SkillNames = []string{"SQL", "Go"}

	got := projection.ChangedFields(&old, updated)
	if !reflect.DeepEqual(got, []string{"none"}) {
		t.Errorf("reordered arrays reported as changed: %v", got)
	}
}

func TestChangedFields_ReportsEachChangedField(t *testing.T) {
	old := sampleProjection()
	updated := sampleProjection()
	updated.SkillIDs = []string{"go", "rust"}
	updated.ExperienceYears = 5
	updated.ExpectedSalary.Min = 2000
	updated.IsActive = false

	got := projection.ChangedFields(&old, updated)
	want := []string{"skillIds", "experienceYears", "expectedSalary", "isActive"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ChangedFields = %v, want %v", got, want)
	}
}

func TestChangedFields_ArrayContentChange(t *testing.T) {
	old := sampleProjection()
	updated := sampleProjection()
	updated.DesiredLocations = []string{"Remote", "Berlin"}
	updated.EmploymentTypes = []model.EmploymentType{model.EmploymentFullTime, model.EmploymentContract}

	got := projection.ChangedFields(&old, updated)
	want := []string{"desiredLocations", "employmentTypes"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ChangedFields = %v, want %v", got, want)
	}
}
