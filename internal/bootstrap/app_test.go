package bootstrap

import (
	"bytes"
	"testing"

	"github.com/cassiomorais/reconciler/internal/infrastructure/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCatalog(t *testing.T) {
	var buf bytes.Buffer
	catalog := BuildCatalog(map[string]config.PlanConfig{
		"guidance":     {ExternalPlanID: "plan_a", Name: "Numerology Reading", Price: "$280"},
		"opposition":   {ExternalPlanID: "plan_a"},
		"relationship": {},
	}, zerolog.New(&buf))

	plan, err := catalog.Lookup("guidance")
	require.NoError(t, err)
	assert.Equal(t, "plan_a", plan.ExternalID)
	assert.Equal(t, "Numerology Reading", catalog.DisplayName("guidance"))

	assert.Equal(t, "guidance", catalog.ResolveSlug("plan_a"))
	assert.Contains(t, buf.String(), "Provider plan id mapped to several plans")
	assert.Contains(t, buf.String(), `"plan_slug":"relationship"`)
}
