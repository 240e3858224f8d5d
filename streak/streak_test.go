package streak

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imalive/server/calendar"
	"github.com/imalive/server/models"
)

var day0 = calendar.New(2024, 1, 1)

func days(offsets ...int) []calendar.Date {
	out := make([]calendar.Date, 0, len(offsets))
	for _, o := range offsets {
		out = append(out, day0.AddDays(o))
	}
	return out
}

func tiers() []models.Achievement {
	defs := models.DefaultAchievements()
	for i := range defs {
		defs[i].ID = uint(i + 1)
	}
	return defs
}

func TestComputeEmpty(t *testing.T) {
	assert.Equal(t, 0, Compute(nil, day0))
	assert.Equal(t, 0, Compute([]calendar.Date{}, day0))
}

func TestComputeTable(t *testing.T) {
	cases := []struct {
		name  string
		dates []calendar.Date
		today calendar.Date
		want  int
	}{
		{"checked in today only", days(0), day0, 1},
		{"checked in yesterday only", days(0), day0.AddDays(1), 1},
		{"lapsed after two days", days(0), day0.AddDays(2), 0},
		{"run through today", days(0, 1, 2, 3), day0.AddDays(3), 4},
		{"run through yesterday stays alive", days(0, 1, 2, 3), day0.AddDays(4), 4},
		{"gap inside history stops the walk", days(0, 1, 3, 4, 5), day0.AddDays(5), 3},
		{"unordered input", days(5, 3, 4, 0, 1), day0.AddDays(5), 3},
		{"duplicates do not double count", days(1, 1, 2, 2, 2), day0.AddDays(2), 2},
		{"across a month boundary", []calendar.Date{calendar.New(2024, 1, 31), calendar.New(2024, 2, 1)}, calendar.New(2024, 2, 1), 2},
		{"across a leap day", []calendar.Date{calendar.New(2024, 2, 28), calendar.New(2024, 2, 29), calendar.New(2024, 3, 1)}, calendar.New(2024, 3, 2), 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Compute(tc.dates, tc.today))
		})
	}
}

// reference walks the definition directly: run length ending at max(D) when within grace.
func reference(dates []calendar.Date, today calendar.Date) int {
	if len(dates) == 0 {
		return 0
	}
	present := map[calendar.Date]bool{}
	latest := dates[0]
	for _, d := range dates {
		present[d] = true
		if d.After(latest) {
			latest = d
		}
	}
	if today.DaysSince(latest) > 1 {
		return 0
	}
	n := 0
	for present[latest.AddDays(-n)] {
		n++
	}
	return n
}

func TestComputeProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		var dates []calendar.Date
		for j, n := 0, rng.Intn(40); j < n; j++ {
			dates = append(dates, day0.AddDays(rng.Intn(60)))
		}
		today := day0.AddDays(rng.Intn(70))
		if len(dates) > 0 {
			// keep "today" on or after every check-in, as in production
			for _, d := range dates {
				if d.After(today) {
					today = d
				}
			}
		}

		got := Compute(dates, today)
		require.Equal(t, reference(dates, today), got, "dates=%v today=%v", dates, today)
		// pure: same inputs, same answer
		require.Equal(t, got, Compute(dates, today))
		require.GreaterOrEqual(t, got, 0)
	}
}

func TestEvaluateUnlockExactMatch(t *testing.T) {
	defs := tiers()

	tier := EvaluateUnlock(1, nil, defs)
	require.NotNil(t, tier)
	assert.Equal(t, 1, tier.RequiredDays)

	tier = EvaluateUnlock(7, map[uint]struct{}{1: {}}, defs)
	require.NotNil(t, tier)
	assert.Equal(t, 7, tier.RequiredDays)

	assert.Nil(t, EvaluateUnlock(8, nil, defs), "8 days is past the 7 day tier, not equal to it")
	assert.Nil(t, EvaluateUnlock(0, nil, defs))
	assert.Nil(t, EvaluateUnlock(-3, nil, defs))
}

func TestEvaluateUnlockNeverReturnsHeldTier(t *testing.T) {
	defs := tiers()
	held := map[uint]struct{}{}
	for _, d := range defs {
		held[d.ID] = struct{}{}
	}
	for s := 0; s <= 1000; s++ {
		assert.Nil(t, EvaluateUnlock(s, held, defs))
	}

	// partially held: whatever comes back must not be held and must match exactly
	partial := map[uint]struct{}{2: {}, 4: {}}
	for s := 0; s <= 1000; s++ {
		got := EvaluateUnlock(s, partial, defs)
		if got == nil {
			continue
		}
		_, isHeld := partial[got.ID]
		assert.False(t, isHeld)
		assert.Equal(t, s, got.RequiredDays)
	}
}

func TestEvaluateUnlockReturnsCopy(t *testing.T) {
	defs := tiers()
	tier := EvaluateUnlock(1, nil, defs)
	require.NotNil(t, tier)
	tier.Name = "changed"
	assert.NotEqual(t, "changed", defs[0].Name)
}

func TestScenarioBResetAfterMissedDay(t *testing.T) {
	// days 1..6, miss day 7, check in on day 8
	history := days(1, 2, 3, 4, 5, 6, 8)
	assert.Equal(t, 1, Compute(history, day0.AddDays(8)))
}

func TestScenarioDRegrowthDoesNotReunlock(t *testing.T) {
	defs := tiers()
	held := map[uint]struct{}{1: {}, 2: {}}
	// reset then seven fresh days
	history := days(0, 1, 2, 3, 4, 5, 6, 7, 8, 20, 21, 22, 23, 24, 25, 26)
	s := Compute(history, day0.AddDays(26))
	require.Equal(t, 7, s)
	assert.Nil(t, EvaluateUnlock(s, held, defs))
}

func TestLongest(t *testing.T) {
	assert.Equal(t, 0, Longest(nil))
	assert.Equal(t, 9, Longest(days(0, 1, 2, 3, 4, 5, 6, 7, 8, 20, 21)))
	assert.Equal(t, 3, Longest(days(10, 11, 12, 1, 1)))
}
