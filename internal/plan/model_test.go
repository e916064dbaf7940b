package plan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestType_Valid(t *testing.T) {
	assert.True(t, TypeDaily.Valid())
	assert.True(t, TypeWeekly.Valid())
	assert.True(t, TypeMonthly.Valid())
	assert.False(t, Type("hourly").Valid())
	assert.False(t, Type("").Valid())
}

func TestType_Extend(t *testing.T) {
	base := time.Date(2026, time.January, 31, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, base.AddDate(0, 0, 1), TypeDaily.Extend(base))
	assert.Equal(t, base.AddDate(0, 0, 7), TypeWeekly.Extend(base))

	// Monthly follows the calendar, not a fixed 30 days: Jan 31 + 1 month
	// normalizes past February's end.
	assert.Equal(t, base.AddDate(0, 1, 0), TypeMonthly.Extend(base))
}

func TestUserPlan_TokensRemaining(t *testing.T) {
	p := UserPlan{TokenLimit: 1000, TokensUsed: 400}
	assert.Equal(t, int64(600), p.TokensRemaining())

	// Overshoot clamps to zero rather than going negative.
	p.TokensUsed = 1200
	assert.Equal(t, int64(0), p.TokensRemaining())
}
