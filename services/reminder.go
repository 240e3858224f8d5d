package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/imalive/server/calendar"
	"github.com/imalive/server/models"
)

const systemReminderText = "⏰ 今天还没有打卡哦，记得告诉大家你还活着！"

// PendingReminder is a user due for a reminder.
type PendingReminder struct {
	UserID       uint   `json:"userId"`
	Username     string `json:"username"`
	ReminderTime string `json:"reminderTime"`
}

// ReminderService sends the daily system reminder to users who have not checked in.
type ReminderService struct {
	db       *gorm.DB
	messages *MessageService
	loc      *time.Location
	window   time.Duration
}

func NewReminderService(db *gorm.DB, messages *MessageService, loc *time.Location, window time.Duration) *ReminderService {
	if loc == nil {
		loc = time.Local
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &ReminderService{db: db, messages: messages, loc: loc, window: window}
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	return h*60 + m, nil
}

// Pending lists users whose reminder window contains now, who have not checked in today
// and who did not get a system reminder today.
func (s *ReminderService) Pending(ctx context.Context, now time.Time) ([]PendingReminder, error) {
	now = now.In(s.loc)
	var users []models.User
	err := s.db.WithContext(ctx).
		Select("id", "username", "reminder_time").
		Where("notification_enabled = ? AND do_not_disturb = ?", true, false).
		Find(&users).Error
	if err != nil {
		return nil, storageErr(err)
	}

	minute := now.Hour()*60 + now.Minute()
	win := int(s.window / time.Minute)
	due := make([]PendingReminder, 0)
	ids := make([]uint, 0)
	for _, u := range users {
		at, err := ParseClock(u.ReminderTime)
		if err != nil {
			continue
		}
		// The window stays inside the day so a late reminder never fires for tomorrow.
		if minute < at || minute >= min(at+win, 24*60) {
			continue
		}
		due = append(due, PendingReminder{UserID: u.ID, Username: u.Username, ReminderTime: u.ReminderTime})
		ids = append(ids, u.ID)
	}
	if len(ids) == 0 {
		return due, nil
	}

	skip, err := s.alreadyHandled(ctx, ids, now)
	if err != nil {
		return nil, err
	}
	out := due[:0]
	for _, p := range due {
		if _, ok := skip[p.UserID]; !ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// SendDue sends reminders to every pending user and returns how many were sent.
func (s *ReminderService) SendDue(ctx context.Context, now time.Time) (int, error) {
	pending, err := s.Pending(ctx, now)
	if err != nil {
		return 0, err
	}
	ids := make([]uint, len(pending))
	for i, p := range pending {
		ids[i] = p.UserID
	}
	return s.send(ctx, ids, now)
}

// SendTo reminds the given users regardless of their reminder time, skipping anyone
// who already checked in or was already reminded today.
func (s *ReminderService) SendTo(ctx context.Context, userIDs []uint, now time.Time) (int, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	var existing []uint
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id IN ?", userIDs).Pluck("id", &existing).Error; err != nil {
		return 0, storageErr(err)
	}
	if len(existing) == 0 {
		return 0, nil
	}
	skip, err := s.alreadyHandled(ctx, existing, now.In(s.loc))
	if err != nil {
		return 0, err
	}
	ids := existing[:0]
	for _, id := range existing {
		if _, ok := skip[id]; !ok {
			ids = append(ids, id)
		}
	}
	return s.send(ctx, ids, now)
}

func (s *ReminderService) send(ctx context.Context, ids []uint, now time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	msgs := make([]*models.Message, len(ids))
	for i, id := range ids {
		msgs[i] = &models.Message{
			SenderID:   models.SystemSenderID,
			ReceiverID: id,
			Kind:       models.MessageReminder,
			Content:    systemReminderText,
			CreatedAt:  now.In(s.loc),
		}
	}
	if err := s.messages.Send(ctx, msgs...); err != nil {
		return 0, err
	}
	return len(msgs), nil
}

// alreadyHandled returns the ids that checked in today or already got today's system reminder.
func (s *ReminderService) alreadyHandled(ctx context.Context, ids []uint, now time.Time) (map[uint]struct{}, error) {
	today := calendar.Of(now)
	out := map[uint]struct{}{}

	var checked []uint
	err := s.db.WithContext(ctx).Model(&models.CheckIn{}).
		Where("user_id IN ? AND check_date = ?", ids, today).
		Pluck("user_id", &checked).Error
	if err != nil {
		return nil, storageErr(err)
	}

	var reminded []uint
	err = s.db.WithContext(ctx).Model(&models.Message{}).
		Where("receiver_id IN ? AND sender_id = ? AND message_type = ? AND created_at >= ?",
			ids, models.SystemSenderID, models.MessageReminder, today.Time(s.loc)).
		Pluck("receiver_id", &reminded).Error
	if err != nil {
		return nil, storageErr(err)
	}

	for _, id := range append(checked, reminded...) {
		out[id] = struct{}{}
	}
	return out, nil
}
