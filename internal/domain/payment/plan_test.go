package payment_test

import (
	"testing"

	domainErrors "github.com/cassiomorais/reconciler/internal/domain/errors"
	"github.com/cassiomorais/reconciler/internal/domain/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() *payment.PlanCatalog {
	return payment.NewPlanCatalog([]payment.Plan{
		{Slug: "guidance", ExternalID: "plan_guidance", Name: "Numerology Reading", Price: "$280"},
		{Slug: "two-hour", ExternalID: "plan_2h", Name: "2 Hour Session", Price: "$575"},
		{Slug: "soulmate", ExternalID: ""},
		{Slug: "opposition", ExternalID: "plan_shared"},
		{Slug: "relationship", ExternalID: "plan_shared"},
	})
}

func TestPlanCatalog_Lookup(t *testing.T) {
	c := testCatalog()

	p, err := c.Lookup("two-hour")
	require.NoError(t, err)
	assert.Equal(t, "plan_2h", p.ExternalID)

	_, err = c.Lookup("platinum")
	assert.ErrorIs(t, err, domainErrors.ErrPlanNotFound)

	_, err = c.Lookup("soulmate")
	assert.ErrorIs(t, err, domainErrors.ErrPlanNotConfigured)
}

func TestPlanCatalog_ResolveSlug(t *testing.T) {
	c := testCatalog()

	assert.Equal(t, "guidance", c.ResolveSlug("plan_guidance"))
	assert.Equal(t, "two-hour", c.ResolveSlug("plan_2h"))
	assert.Equal(t, payment.UnknownPlanSlug, c.ResolveSlug("plan_nope"))
	// an unconfigured slug must not swallow events without a plan id
	assert.Equal(t, payment.UnknownPlanSlug, c.ResolveSlug(""))
}

func TestPlanCatalog_CollisionsAreReportedNotFixed(t *testing.T) {
	c := testCatalog()

	assert.Equal(t, "opposition", c.ResolveSlug("plan_shared"))
	assert.Equal(t, map[string][]string{"plan_shared": {"opposition", "relationship"}}, c.Collisions())
}

func TestPlanCatalog_DisplayNameAndPrice(t *testing.T) {
	c := testCatalog()

	assert.Equal(t, "Numerology Reading", c.DisplayName("guidance"))
	assert.Equal(t, "Soulmate", c.DisplayName("soulmate"))
	assert.Equal(t, "Unknown", c.DisplayName(payment.UnknownPlanSlug))
	assert.Equal(t, "$575", c.Price("two-hour"))
	assert.Equal(t, "N/A", c.Price("soulmate"))
}

func TestPlanCatalog_Slugs(t *testing.T) {
	assert.Equal(t, []string{"guidance", "opposition", "relationship", "soulmate", "two-hour"}, testCatalog().Slugs())
}
