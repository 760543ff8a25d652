package understanding

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nithin8919/policyretrieval/internal/retrieval"
)

func TestInterpret_QAByLength(t *testing.T) {
	interp := Interpret("what about teacher transfers")
	assert.Equal(t, retrieval.ModeQA, interp.Mode)
}

func TestInterpret_QAByCitation(t *testing.T) {
	interp := Interpret("what does section 45 of the revenue act say about land mutation timelines")
	assert.Equal(t, retrieval.ModeQA, interp.Mode)
	assert.Equal(t, []string{"45"}, interp.Entities[retrieval.EntitySection])
}

func TestInterpret_QAByLeadingWord(t *testing.T) {
	interp := Interpret("define agricultural income for the purpose of land revenue exemption rules")
	assert.Equal(t, retrieval.ModeQA, interp.Mode)
}

func TestInterpret_Deepthink(t *testing.T) {
	interp := Interpret("analyze the teacher transfer policy comprehensively across all departments and years in a structured policy analysis framework")
	assert.Equal(t, retrieval.ModeDeepthink, interp.Mode)
	assert.Equal(t, retrieval.ScopeBroad, interp.Scope)
}

func TestInterpret_Brainstorm(t *testing.T) {
	interp := Interpret("what are some innovative best practices for irrigation scheme delivery across the state")
	assert.Equal(t, retrieval.ModeBrainstorm, interp.Mode)
}

func TestInterpret_DefaultPolicy(t *testing.T) {
	interp := Interpret("explain how the scheme eligibility criteria changed after the last amendment was issued")
	assert.Equal(t, retrieval.ModePolicy, interp.Mode)
}

func TestInterpret_GONumberEntity(t *testing.T) {
	interp := Interpret("what changed under go ms no 112 about teacher postings")
	assert.Equal(t, []string{"112"}, interp.Entities[retrieval.EntityGONumber])
}

func TestInterpret_ConfidenceCapped(t *testing.T) {
	interp := Interpret("analyze comprehensive policy analysis framework deep idea innovative creative best practices global")
	assert.LessOrEqual(t, interp.Confidence, 1.0)
}

func TestInterpret_NeedsInternet(t *testing.T) {
	interp := Interpret("what is the latest teacher transfer notification")
	assert.True(t, interp.NeedsInternet)
}
