package t30

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJudgePageQualityThresholds(t *testing.T) {
	assert.Equal(t, QualityBad, JudgePageQuality(0, 0))
	assert.Equal(t, QualityGood, JudgePageQuality(1, 51))
	assert.Equal(t, QualityPoor, JudgePageQuality(1, 21))
	assert.Equal(t, QualityBad, JudgePageQuality(1, 20))
	assert.Equal(t, QualityGood, JudgePageQuality(0, 1))
}
