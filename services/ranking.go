package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/imalive/server/calendar"
	"github.com/imalive/server/models"
	"github.com/imalive/server/streak"
	"github.com/imalive/server/utils"
)

const (
	nationalLimit    = 100
	nationalCacheKey = "ranking:national:"
	nationalCacheTTL = time.Minute
)

// RankEntry is one row of a leaderboard.
type RankEntry struct {
	Rank            int    `json:"rank"`
	UserID          uint   `json:"userId" db:"id"`
	Username        string `json:"username" db:"username"`
	Avatar          string `json:"avatar" db:"avatar"`
	Region          string `json:"region" db:"region"`
	SurviveDays     int    `json:"surviveDays"`
	HasCheckedToday bool   `json:"hasCheckedToday"`
	IsOnCooldown    bool   `json:"isOnCooldown,omitempty"`
	IsMe            bool   `json:"isMe"`
}

type dateRow struct {
	UserID    uint          `db:"user_id"`
	CheckDate calendar.Date `db:"check_date"`
}

// RankingService builds leaderboards with plain SQL reads.
type RankingService struct {
	db       *sqlx.DB
	loc      *time.Location
	cooldown time.Duration
	now      func() time.Time
}

// NewRankingService reads through db. cooldown is the friend reminder cooldown shown on the friends board.
func NewRankingService(db *sqlx.DB, loc *time.Location, cooldown time.Duration) *RankingService {
	if loc == nil {
		loc = time.Local
	}
	return &RankingService{db: db, loc: loc, cooldown: cooldown, now: time.Now}
}

// Friends ranks userID together with the user's accepted friends.
func (s *RankingService) Friends(ctx context.Context, userID uint) ([]RankEntry, error) {
	q, args, err := s.in(`
		SELECT CASE WHEN requester_id = ? THEN addressee_id ELSE requester_id END AS friend_id
		FROM friendships
		WHERE status = ? AND (requester_id = ? OR addressee_id = ?)`,
		userID, models.FriendshipAccepted, userID, userID)
	if err != nil {
		return nil, err
	}
	var ids []uint
	if err := s.db.SelectContext(ctx, &ids, q, args...); err != nil {
		return nil, storageErr(fmt.Errorf("load friends: %w", err))
	}
	ids = append(ids, userID)

	users, err := s.usersByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	entries, err := s.rank(ctx, users, userID)
	if err != nil {
		return nil, err
	}

	reminded, err := s.remindedSince(ctx, userID, s.now().Add(-s.cooldown))
	if err != nil {
		return nil, err
	}
	for i := range entries {
		_, entries[i].IsOnCooldown = reminded[entries[i].UserID]
	}
	return entries, nil
}

// Region ranks every user sharing userID's region.
func (s *RankingService) Region(ctx context.Context, userID uint) ([]RankEntry, error) {
	var region string
	if err := s.db.GetContext(ctx, &region, s.db.Rebind(`SELECT region FROM users WHERE id = ?`), userID); err != nil {
		return nil, storageErr(fmt.Errorf("load region: %w", err))
	}
	users := []RankEntry{}
	err := s.db.SelectContext(ctx, &users,
		s.db.Rebind(`SELECT id, username, avatar, region FROM users WHERE region = ?`), region)
	if err != nil {
		return nil, storageErr(fmt.Errorf("load region users: %w", err))
	}
	return s.rank(ctx, users, userID)
}

// National returns the top streaks across all users. The board (without IsMe) is cached briefly.
func (s *RankingService) National(ctx context.Context, userID uint) ([]RankEntry, error) {
	today := calendar.Today(s.loc, s.now())
	key := nationalCacheKey + today.String()

	var board []RankEntry
	if !utils.CacheGetJSON(ctx, key, &board) {
		// only users active today or yesterday can hold a live streak
		var ids []uint
		err := s.db.SelectContext(ctx, &ids,
			s.db.Rebind(`SELECT DISTINCT user_id FROM check_ins WHERE check_date >= ?`), today.AddDays(-streak.GraceDays))
		if err != nil {
			return nil, storageErr(fmt.Errorf("load active users: %w", err))
		}
		users, err := s.usersByID(ctx, ids)
		if err != nil {
			return nil, err
		}
		if board, err = s.rank(ctx, users, 0); err != nil {
			return nil, err
		}
		if len(board) > nationalLimit {
			board = board[:nationalLimit]
		}
		utils.CacheSetJSON(ctx, key, board, nationalCacheTTL)
	}

	for i := range board {
		board[i].IsMe = board[i].UserID == userID
	}
	return board, nil
}

// in expands slice arguments and rebinds the query for the driver.
func (s *RankingService) in(query string, args ...any) (string, []any, error) {
	q, args, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, storageErr(fmt.Errorf("expand query: %w", err))
	}
	return s.db.Rebind(q), args, nil
}

func (s *RankingService) usersByID(ctx context.Context, ids []uint) ([]RankEntry, error) {
	users := []RankEntry{}
	ids = utils.UniqueUint(ids)
	if len(ids) == 0 {
		return users, nil
	}
	q, args, err := s.in(`SELECT id, username, avatar, region FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	if err := s.db.SelectContext(ctx, &users, q, args...); err != nil {
		return nil, storageErr(fmt.Errorf("load users: %w", err))
	}
	return users, nil
}

// rank fills streaks from one batched date query and sorts the board.
func (s *RankingService) rank(ctx context.Context, users []RankEntry, me uint) ([]RankEntry, error) {
	if len(users) == 0 {
		return users, nil
	}
	ids := make([]uint, len(users))
	for i, u := range users {
		ids[i] = u.UserID
	}
	q, args, err := s.in(`SELECT user_id, check_date FROM check_ins WHERE user_id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []dateRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, storageErr(fmt.Errorf("load check-in dates: %w", err))
	}
	history := make(map[uint][]calendar.Date, len(users))
	for _, r := range rows {
		history[r.UserID] = append(history[r.UserID], r.CheckDate)
	}

	today := calendar.Today(s.loc, s.now())
	for i := range users {
		dates := history[users[i].UserID]
		users[i].SurviveDays = streak.Compute(dates, today)
		for _, d := range dates {
			if d == today {
				users[i].HasCheckedToday = true
				break
			}
		}
		users[i].IsMe = me != 0 && users[i].UserID == me
	}

	sort.SliceStable(users, func(a, b int) bool {
		ua, ub := users[a], users[b]
		if ua.SurviveDays != ub.SurviveDays {
			return ua.SurviveDays > ub.SurviveDays
		}
		if ua.HasCheckedToday != ub.HasCheckedToday {
			return ua.HasCheckedToday
		}
		return ua.Username < ub.Username
	})
	for i := range users {
		users[i].Rank = i + 1
	}
	return users, nil
}

func (s *RankingService) remindedSince(ctx context.Context, sender uint, since time.Time) (map[uint]struct{}, error) {
	var ids []uint
	err := s.db.SelectContext(ctx, &ids, s.db.Rebind(`
		SELECT DISTINCT receiver_id FROM messages
		WHERE sender_id = ? AND message_type = ? AND is_batch = ? AND created_at >= ?`),
		sender, models.MessageReminder, false, since)
	if err != nil {
		return nil, storageErr(fmt.Errorf("load reminders: %w", err))
	}
	out := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}
