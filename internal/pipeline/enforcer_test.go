package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnforceThresholdKeepsAgreeingVerdict(t *testing.T) {
	in := Decision{Selected: true, Reason: "Strong match for the role."}
	out := EnforceThreshold(in, 82, 75)

	assert.True(t, out.Selected)
	assert.Equal(t, "Strong match for the role.", out.Reason, "an agreeing verdict must pass through untouched")
}

func TestEnforceThresholdOverridesFalseNegative(t *testing.T) {
	// The model claims rejection while the score clears the threshold.
	in := Decision{Selected: false, Reason: "Candidate seems junior."}
	out := EnforceThreshold(in, 82, 75)

	assert.True(t, out.Selected)
	assert.Equal(t, "Automatic override: score 82 meets threshold 75. Candidate seems junior.", out.Reason)
}

func TestEnforceThresholdOverridesFalsePositive(t *testing.T) {
	in := Decision{Selected: true, Reason: "Great cultural fit."}
	out := EnforceThreshold(in, 70, 75)

	assert.False(t, out.Selected)
	assert.Equal(t, "Automatic override: score 70 does not meet threshold 75. Great cultural fit.", out.Reason)
}

func TestEnforceThresholdBoundaryScoreSelects(t *testing.T) {
	out := EnforceThreshold(Decision{Selected: false, Reason: "Borderline."}, 75, 75)
	assert.True(t, out.Selected, "score equal to the threshold selects")
}

func TestEnforceThresholdEmptyReason(t *testing.T) {
	out := EnforceThreshold(Decision{Selected: true}, 10, 75)

	assert.False(t, out.Selected)
	assert.Equal(t, "Automatic override: score 10 does not meet threshold 75", out.Reason)
}
