package model

import (
    "testing"

    "github.com/stretchr/testify/assert"
)

func TestParsePlan(t *testing.T) {
    for _, p := range Plans {
        got, ok := ParsePlan(string(p))
        assert.True(t, ok)
        assert.Equal(t, p, got)
    }
    _, ok := ParsePlan("gold")
    assert.False(t, ok)
    _, ok = ParsePlan("FREE")
    assert.False(t, ok)
}

func TestPlanPaidAndOverrideType(t *testing.T) {
    assert.False(t, PlanFree.Paid())
    assert.True(t, PlanBasic.Paid())
    assert.True(t, PlanPremium.Paid())
    assert.Equal(t, "plan_pro", PlanPro.OverrideType())
}

func TestPlanFromOverride(t *testing.T) {
    p, ok := PlanFromOverride(PlanPremium.OverrideType())
    assert.True(t, ok)
    assert.Equal(t, PlanPremium, p)

    for _, bad := range []string{"premium", "plan_gold", "plan_", ""} {
        _, ok := PlanFromOverride(bad)
        assert.False(t, ok, bad)
    }
}
