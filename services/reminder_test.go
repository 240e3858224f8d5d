package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imalive/server/models"
)

func TestParseClock(t *testing.T) {
	m, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 570, m)

	m, err = ParseClock(" 23:59 ")
	require.NoError(t, err)
	assert.Equal(t, 23*60+59, m)

	for _, bad := range []string{"", "9:30", "24:00", "12:60", "ab:cd", "1200"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func at(hh, mm int) time.Time {
	return day1.Time(time.Local).Add(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute)
}

func setReminder(t *testing.T, svc *ReminderService, id uint, clock string) {
	t.Helper()
	require.NoError(t, svc.db.Model(&models.User{}).Where("id = ?", id).Update("reminder_time", clock).Error)
}

func TestPendingWindow(t *testing.T) {
	db := newTestDB(t)
	svc := NewReminderService(db, NewMessageService(db, nil), time.Local, 5*time.Minute)
	early := createUser(t, db, "early", "pw1234")
	late := createUser(t, db, "late", "pw1234")
	muted := createUser(t, db, "muted", "pw1234")
	setReminder(t, svc, early.ID, "09:00")
	setReminder(t, svc, late.ID, "23:58")
	setReminder(t, svc, muted.ID, "09:00")
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", muted.ID).Update("do_not_disturb", true).Error)

	got, err := svc.Pending(context.Background(), at(9, 3))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, early.ID, got[0].UserID)

	got, err = svc.Pending(context.Background(), at(9, 5))
	require.NoError(t, err)
	assert.Empty(t, got, "window is half open")

	got, err = svc.Pending(context.Background(), at(8, 59))
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = svc.Pending(context.Background(), at(0, 1))
	require.NoError(t, err)
	assert.Empty(t, got, "window stops at midnight")

	got, err = svc.Pending(context.Background(), at(23, 59))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, late.ID, got[0].UserID)
}

func TestSendDueLateReminderFiresSameDay(t *testing.T) {
	db := newTestDB(t)
	svc := NewReminderService(db, NewMessageService(db, nil), time.Local, 5*time.Minute)
	late := createUser(t, db, "late", "pw1234")
	setReminder(t, svc, late.ID, "23:58")

	n, err := svc.SendDue(context.Background(), at(0, 1))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = svc.SendDue(context.Background(), at(23, 58))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var count int64
	require.NoError(t, db.Model(&models.Message{}).Where("receiver_id = ?", late.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestSendDueSkipsCheckedAndReminded(t *testing.T) {
	db := newTestDB(t)
	notes := &recordingNotifier{}
	svc := NewReminderService(db, NewMessageService(db, notes), time.Local, 5*time.Minute)
	a := createUser(t, db, "a", "pw1234")
	b := createUser(t, db, "b", "pw1234")
	c := createUser(t, db, "c", "pw1234")
	seedCheckIns(t, db, b.ID, day1)

	n, err := svc.SendDue(context.Background(), at(9, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, notes.events, 2)
	assert.Equal(t, EventMessage, notes.events[0].event)

	var msgs []models.Message
	require.NoError(t, db.Order("receiver_id").Find(&msgs).Error)
	require.Len(t, msgs, 2)
	assert.Equal(t, a.ID, msgs[0].ReceiverID)
	assert.Equal(t, c.ID, msgs[1].ReceiverID)
	assert.Equal(t, models.MessageReminder, msgs[0].Kind)
	assert.Equal(t, models.SystemSenderID, msgs[0].SenderID)

	// a second tick inside the same window sends nothing new
	n, err = svc.SendDue(context.Background(), at(9, 2))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSendToIgnoresReminderTime(t *testing.T) {
	db := newTestDB(t)
	svc := NewReminderService(db, NewMessageService(db, nil), time.Local, 0)
	a := createUser(t, db, "a", "pw1234")
	b := createUser(t, db, "b", "pw1234")
	seedCheckIns(t, db, b.ID, day1)

	n, err := svc.SendTo(context.Background(), []uint{a.ID, b.ID, 404}, at(15, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = svc.SendTo(context.Background(), []uint{a.ID}, at(16, 0))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = svc.SendTo(context.Background(), nil, at(16, 0))
	require.NoError(t, err)
	assert.Zero(t, n)
}
