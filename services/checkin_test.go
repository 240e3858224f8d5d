package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imalive/server/calendar"
	"github.com/imalive/server/models"
	"github.com/imalive/server/repository"
)

var day1 = calendar.New(2024, 3, 1)

func newCheckinService(t *testing.T, tags ...string) (*CheckinService, *models.User, func(calendar.Date) *CheckinService) {
	t.Helper()
	db := newTestDB(t)
	u := createUser(t, db, "alice", "secret1")
	if len(tags) == 0 {
		tags = []string{"*"}
	}
	base := NewCheckinService(repository.NewCheckinRepository(db), NewMoodValidator(tags), time.Local)
	at := func(d calendar.Date) *CheckinService { return base.WithClock(clockAt(d)) }
	return base, &u, at
}

func TestCheckInScenarioAFirstDayUnlocksFirstTier(t *testing.T) {
	_, u, at := newCheckinService(t)

	res, err := at(day1).CheckIn(context.Background(), u.ID, "😊")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak)
	require.NotNil(t, res.NewlyUnlockedAchievement)
	assert.Equal(t, 1, res.NewlyUnlockedAchievement.RequiredDays)
	assert.Equal(t, "😊", res.CheckIn.Mood)
	assert.Equal(t, day1, res.CheckIn.CheckDate)
}

func TestCheckInScenarioBResetsAfterMissedDay(t *testing.T) {
	_, u, at := newCheckinService(t)
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		_, err := at(day1.AddDays(i)).CheckIn(ctx, u.ID, "")
		require.NoError(t, err)
	}

	res, err := at(day1.AddDays(7)).CheckIn(ctx, u.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak)
	assert.Nil(t, res.NewlyUnlockedAchievement, "tier 1 is already held")
}

func TestCheckInScenarioCSeventhDayAndRetry(t *testing.T) {
	svc, u, at := newCheckinService(t)
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		_, err := at(day1.AddDays(i)).CheckIn(ctx, u.ID, "")
		require.NoError(t, err)
	}

	day7 := at(day1.AddDays(6))
	res, err := day7.CheckIn(ctx, u.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 7, res.Streak)
	require.NotNil(t, res.NewlyUnlockedAchievement)
	assert.Equal(t, 7, res.NewlyUnlockedAchievement.RequiredDays)

	_, err = day7.CheckIn(ctx, u.ID, "")
	assert.ErrorIs(t, err, ErrAlreadyCheckedIn)

	n, err := svc.repo.CountCheckIns(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)
	unlocked, err := svc.Unlocked(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, unlocked, 2)
}

func TestCheckInScenarioDRegrowthDoesNotReunlock(t *testing.T) {
	_, u, at := newCheckinService(t)
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		_, err := at(day1.AddDays(i)).CheckIn(ctx, u.ID, "")
		require.NoError(t, err)
	}
	// two weeks away, then a fresh week
	start := day1.AddDays(21)
	var last *CheckinResult
	for i := 0; i < 7; i++ {
		res, err := at(start.AddDays(i)).CheckIn(ctx, u.ID, "")
		require.NoError(t, err)
		last = res
	}
	assert.Equal(t, 7, last.Streak)
	assert.Nil(t, last.NewlyUnlockedAchievement)
}

func TestCheckInConcurrentSameDay(t *testing.T) {
	svc, u, at := newCheckinService(t)
	s := at(day1)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.CheckIn(context.Background(), u.ID, "")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyCheckedIn)
	}
	assert.Equal(t, 1, ok)
	n, err := svc.repo.CountCheckIns(context.Background(), u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestCheckInRejectsInvalidMood(t *testing.T) {
	svc, u, at := newCheckinService(t, "😊", "😢")

	_, err := at(day1).CheckIn(context.Background(), u.ID, "🤖")
	assert.ErrorIs(t, err, ErrInvalidMoodTag)
	_, err = at(day1).CheckIn(context.Background(), u.ID, "<b>")
	assert.ErrorIs(t, err, ErrInvalidMoodTag)

	n, err := svc.repo.CountCheckIns(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing is written for a rejected mood")
}

// failingRepo breaks UnlockAchievement inside the transaction.
type failingRepo struct {
	repository.CheckinRepository
}

func (f failingRepo) UnlockAchievement(context.Context, uint, uint, time.Time) (bool, error) {
	return false, errors.New("disk on fire")
}

func (f failingRepo) Transaction(ctx context.Context, fn func(repository.CheckinRepository) error) error {
	return f.CheckinRepository.Transaction(ctx, func(tx repository.CheckinRepository) error {
		return fn(failingRepo{tx})
	})
}

func TestCheckInStorageFailureRollsBack(t *testing.T) {
	db := newTestDB(t)
	u := createUser(t, db, "bob", "secret1")
	repo := repository.NewCheckinRepository(db)
	svc := NewCheckinService(failingRepo{repo}, NewMoodValidator([]string{"*"}), time.Local).WithClock(clockAt(day1))

	_, err := svc.CheckIn(context.Background(), u.ID, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.NotErrorIs(t, err, ErrAlreadyCheckedIn)

	n, err := repo.CountCheckIns(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Zero(t, n, "the check-in must not survive a failed unlock")
}

// staleReadRepo never sees an existing check-in, as if another request committed between read and insert.
type staleReadRepo struct {
	repository.CheckinRepository
}

func (s staleReadRepo) FindCheckIn(context.Context, uint, calendar.Date) (*models.CheckIn, error) {
	return nil, repository.ErrNotFound
}

func (s staleReadRepo) Transaction(ctx context.Context, fn func(repository.CheckinRepository) error) error {
	return s.CheckinRepository.Transaction(ctx, func(tx repository.CheckinRepository) error {
		return fn(staleReadRepo{tx})
	})
}

func TestCheckInDuplicateInsertIsAlreadyCheckedIn(t *testing.T) {
	db := newTestDB(t)
	u := createUser(t, db, "carol", "secret1")
	repo := repository.NewCheckinRepository(db)
	svc := NewCheckinService(staleReadRepo{repo}, NewMoodValidator([]string{"*"}), time.Local).WithClock(clockAt(day1))
	ctx := context.Background()

	_, err := svc.CheckIn(ctx, u.ID, "")
	require.NoError(t, err)

	_, err = svc.CheckIn(ctx, u.ID, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyCheckedIn)
	assert.NotErrorIs(t, err, ErrStorageUnavailable)

	n, err := repo.CountCheckIns(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestStatus(t *testing.T) {
	_, u, at := newCheckinService(t)
	ctx := context.Background()

	st, err := at(day1).Status(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, st.HasCheckedInToday)
	assert.Nil(t, st.TodayMood)
	assert.Zero(t, st.Streak)
	assert.Nil(t, st.LatestAchievement)

	_, err = at(day1).CheckIn(ctx, u.ID, "😴")
	require.NoError(t, err)

	st, err = at(day1).Status(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, st.HasCheckedInToday)
	require.NotNil(t, st.TodayMood)
	assert.Equal(t, "😴", *st.TodayMood)
	assert.Equal(t, 1, st.Streak)
	require.NotNil(t, st.LatestAchievement)

	// next day, before checking in: grace keeps the streak
	st, err = at(day1.AddDays(1)).Status(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, st.HasCheckedInToday)
	assert.Equal(t, 1, st.Streak)

	st, err = at(day1.AddDays(2)).Status(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, st.Streak)
}

func TestStatsAndCalendar(t *testing.T) {
	_, u, at := newCheckinService(t)
	ctx := context.Background()
	// Feb 28, Mar 1..3, Mar 5
	for _, d := range []calendar.Date{calendar.New(2024, 2, 28), day1, day1.AddDays(1), day1.AddDays(2), day1.AddDays(4)} {
		_, err := at(d).CheckIn(ctx, u.ID, "")
		require.NoError(t, err)
	}

	st, err := at(day1.AddDays(4)).Stats(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ConsecutiveDays)
	assert.Equal(t, 3, st.LongestStreak)
	assert.EqualValues(t, 5, st.TotalCheckins)
	assert.Equal(t, 4, st.MonthCheckins)
	assert.Equal(t, 5, st.DaysInMonth)
	assert.Equal(t, 80, st.CheckinRate)

	rows, err := at(day1).Calendar(ctx, u.ID, 2024, time.March)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, day1.AddDays(4), rows[0].CheckDate, "newest first")

	rows, err = at(day1).Calendar(ctx, u.ID, 2024, time.February)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, calendar.New(2024, 2, 28), rows[0].CheckDate)
}

func TestDefinitionsOrdered(t *testing.T) {
	svc, _, _ := newCheckinService(t)
	defs, err := svc.Definitions(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, len(models.DefaultAchievements()))
	for i := 1; i < len(defs); i++ {
		assert.Less(t, defs[i-1].RequiredDays, defs[i].RequiredDays)
	}
}
