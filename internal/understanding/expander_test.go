package understanding

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nithin8919/policyretrieval/internal/retrieval"
)

func TestExpand_AppendsWithinBudget(t *testing.T) {
	entities := map[string][]string{retrieval.EntityScheme: {"irrigation"}}
	expanded := Expand("irrigation scheme eligibility", retrieval.ModeQA, entities, nil)

	assert.True(t, strings.HasPrefix(expanded, "irrigation scheme eligibility"))
	added := strings.Fields(expanded)[3:]
	assert.LessOrEqual(t, len(added), ExpansionQA)
}

func TestExpand_NeverDropsOriginalTokens(t *testing.T) {
	original := "what does section 45 say"
	expanded := Expand(original, retrieval.ModePolicy, map[string][]string{retrieval.EntitySection: {"45"}}, nil)
	assert.True(t, strings.HasPrefix(expanded, original))
}

func TestExpand_HigherBudgetForDeepthink(t *testing.T) {
	entities := map[string][]string{
		retrieval.EntityScheme:     {"x"},
		retrieval.EntityDepartment: {"y"},
	}
	keywords := []string{"policy", "budget", "compliance"}

	qa := Expand("base query", retrieval.ModeQA, entities, keywords)
	deep := Expand("base query", retrieval.ModeDeepthink, entities, keywords)

	qaAdded := len(strings.Fields(qa)) - 2
	deepAdded := len(strings.Fields(deep)) - 2
	assert.GreaterOrEqual(t, deepAdded, qaAdded)
}

func TestExpand_NoClusterMatchReturnsUnchanged(t *testing.T) {
	expanded := Expand("xyzzy plugh", retrieval.ModeQA, nil, nil)
	assert.Equal(t, "xyzzy plugh", expanded)
}

func TestExpandAll_PreservesOrder(t *testing.T) {
	rewrites := []string{"a scheme", "b scheme"}
	out := ExpandAll(rewrites, retrieval.ModeQA, map[string][]string{retrieval.EntityScheme: {"a"}}, nil)
	assert.Len(t, out, 2)
	assert.True(t, strings.HasPrefix(out[0], "a scheme"))
	assert.True(t, strings.HasPrefix(out[1], "b scheme"))
}
