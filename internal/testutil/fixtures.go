package testutil

import (
	"time"

	"github.com/cassiomorais/reconciler/internal/domain/payment"
	"github.com/cassiomorais/reconciler/internal/domain/user"
	"github.com/google/uuid"
)

// NewTestCatalog mirrors the default plan table with external ids filled in
// for every slug except "relationship".
func NewTestCatalog() *payment.PlanCatalog {
	return payment.NewPlanCatalog([]payment.Plan{
		{Slug: "opposition", ExternalID: "plan_opposition"},
		{Slug: "guidance", ExternalID: "plan_guidance", Name: "Numerology Reading", Price: "$280"},
		{Slug: "two-hour", ExternalID: "plan_two_hour", Name: "2 Hour Session", Price: "$575"},
		{Slug: "emergency", ExternalID: "plan_emergency", Name: "Emergency Services", Price: "$980"},
		{Slug: "soulmate", ExternalID: "plan_soulmate"},
		{Slug: "relationship"},
	})
}

// NewPendingRecordAt returns a pending record for slug created at the given time.
func NewPendingRecordAt(catalog *payment.PlanCatalog, slug string, createdAt time.Time) *payment.Record {
	plan, _ := catalog.Lookup(slug)
	if plan.Slug == "" {
		plan = payment.Plan{Slug: slug}
	}
	return payment.NewPendingRecord(plan, "", createdAt)
}

func NewTestUser(name, email string) *user.User {
	return &user.User{
		ID:        uuid.New(),
		Name:      name,
		Email:     email,
		UpdatedAt: time.Now().Add(-time.Hour),
	}
}
