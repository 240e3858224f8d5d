package services

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/imalive/server/calendar"
	"github.com/imalive/server/models"
	"github.com/imalive/server/repository"
	"github.com/imalive/server/streak"
)

// CheckinResult is what a successful check-in reports back.
type CheckinResult struct {
	Streak                   int                 `json:"streak"`
	NewlyUnlockedAchievement *models.Achievement `json:"newlyUnlockedAchievement"`
	CheckIn                  models.CheckIn      `json:"-"`
}

// CheckinStatus describes today's state for one user.
type CheckinStatus struct {
	HasCheckedInToday bool                        `json:"hasCheckedInToday"`
	TodayMood         *string                     `json:"todayMood"`
	Streak            int                         `json:"streak"`
	CheckTime         *time.Time                  `json:"checkTime"`
	LatestAchievement *models.UnlockedAchievement `json:"latestAchievement"`
}

// CheckinStats summarizes a user's history for the profile page.
type CheckinStats struct {
	ConsecutiveDays int   `json:"consecutiveDays"`
	LongestStreak   int   `json:"longestStreak"`
	TotalCheckins   int64 `json:"totalCheckins"`
	MonthCheckins   int   `json:"monthCheckins"`
	CheckinRate     int   `json:"checkinRate"`
	DaysInMonth     int   `json:"daysInMonth"`
}

// CheckinService runs the daily check-in and everything derived from check-in history.
type CheckinService struct {
	repo  repository.CheckinRepository
	moods MoodValidator
	loc   *time.Location
	now   func() time.Time
}

// NewCheckinService wires the service. loc decides where a calendar day starts.
func NewCheckinService(repo repository.CheckinRepository, moods MoodValidator, loc *time.Location) *CheckinService {
	if loc == nil {
		loc = time.Local
	}
	return &CheckinService{repo: repo, moods: moods, loc: loc, now: time.Now}
}

// WithClock replaces the clock; tests use it to pin "today".
func (s *CheckinService) WithClock(now func() time.Time) *CheckinService {
	cp := *s
	cp.now = now
	return &cp
}

// Today is the current calendar day in the service's location.
func (s *CheckinService) Today() calendar.Date {
	return calendar.Today(s.loc, s.now())
}

// Moods exposes the mood validator for the public config endpoint.
func (s *CheckinService) Moods() MoodValidator {
	return s.moods
}

// CheckIn records today's check-in for userID, recomputes the streak and unlocks the
// matching tier. The insert, the evaluation and the unlock share one transaction.
func (s *CheckinService) CheckIn(ctx context.Context, userID uint, mood string) (*CheckinResult, error) {
	mood, err := s.moods.Normalize(mood)
	if err != nil {
		return nil, err
	}

	now := s.now()
	today := calendar.Today(s.loc, now)
	var result CheckinResult

	err = s.repo.Transaction(ctx, func(tx repository.CheckinRepository) error {
		_, err := tx.FindCheckIn(ctx, userID, today)
		switch {
		case err == nil:
			return ErrAlreadyCheckedIn
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		result.CheckIn = models.CheckIn{UserID: userID, CheckDate: today, Mood: mood, CheckTime: now}
		if err := tx.CreateCheckIn(ctx, &result.CheckIn); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrAlreadyCheckedIn
			}
			return err
		}

		dates, err := tx.CheckInDates(ctx, userID)
		if err != nil {
			return err
		}
		result.Streak = streak.Compute(dates, today)

		defs, err := tx.Achievements(ctx)
		if err != nil {
			return err
		}
		held, err := tx.UnlockedAchievementIDs(ctx, userID)
		if err != nil {
			return err
		}
		tier := streak.EvaluateUnlock(result.Streak, held, defs)
		if tier == nil {
			return nil
		}
		created, err := tx.UnlockAchievement(ctx, userID, tier.ID, now)
		if err != nil {
			return err
		}
		if created {
			result.NewlyUnlockedAchievement = tier
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyCheckedIn) {
			return nil, ErrAlreadyCheckedIn
		}
		return nil, storageErr(err)
	}
	return &result, nil
}

// Status reports whether userID checked in today, with the current streak.
func (s *CheckinService) Status(ctx context.Context, userID uint) (*CheckinStatus, error) {
	today := s.Today()
	st := &CheckinStatus{}

	c, err := s.repo.FindCheckIn(ctx, userID, today)
	switch {
	case err == nil:
		st.HasCheckedInToday = true
		mood := c.Mood
		st.TodayMood = &mood
		t := c.CheckTime
		st.CheckTime = &t
	case !errors.Is(err, repository.ErrNotFound):
		return nil, storageErr(err)
	}

	dates, err := s.repo.CheckInDates(ctx, userID)
	if err != nil {
		return nil, storageErr(err)
	}
	st.Streak = streak.Compute(dates, today)

	if st.LatestAchievement, err = s.repo.LatestAchievement(ctx, userID); err != nil {
		return nil, storageErr(err)
	}
	return st, nil
}

// Stats summarizes the user's history relative to today.
func (s *CheckinService) Stats(ctx context.Context, userID uint) (*CheckinStats, error) {
	today := s.Today()
	dates, err := s.repo.CheckInDates(ctx, userID)
	if err != nil {
		return nil, storageErr(err)
	}

	monthStart := calendar.New(today.Year, today.Month, 1)
	month := 0
	for _, d := range dates {
		if !d.Before(monthStart) && !d.After(today) {
			month++
		}
	}

	st := &CheckinStats{
		ConsecutiveDays: streak.Compute(dates, today),
		LongestStreak:   streak.Longest(dates),
		TotalCheckins:   int64(len(dates)),
		MonthCheckins:   month,
		DaysInMonth:     today.Day,
	}
	st.CheckinRate = int(math.Round(float64(month) / float64(today.Day) * 100))
	return st, nil
}

// Calendar lists the user's check-ins in the given month, newest first.
func (s *CheckinService) Calendar(ctx context.Context, userID uint, year int, month time.Month) ([]models.CheckIn, error) {
	from := calendar.New(year, month, 1)
	to := from.AddDays(31)
	to = calendar.New(to.Year, to.Month, 1).AddDays(-1)
	rows, err := s.repo.CheckInsBetween(ctx, userID, from, to)
	if err != nil {
		return nil, storageErr(err)
	}
	return rows, nil
}

// Definitions lists every tier ordered by required days.
func (s *CheckinService) Definitions(ctx context.Context) ([]models.Achievement, error) {
	defs, err := s.repo.Achievements(ctx)
	if err != nil {
		return nil, storageErr(err)
	}
	return defs, nil
}

// Unlocked lists the tiers userID holds.
func (s *CheckinService) Unlocked(ctx context.Context, userID uint) ([]models.UnlockedAchievement, error) {
	out, err := s.repo.UnlockedAchievements(ctx, userID)
	if err != nil {
		return nil, storageErr(err)
	}
	return out, nil
}
