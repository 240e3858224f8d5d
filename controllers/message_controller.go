package controllers

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/imalive/server/models"
	"github.com/imalive/server/services"
	"github.com/imalive/server/utils"
)

const systemSenderName = "系统"

// MessageController handles friendships, the inbox and friend check-in reminders.
type MessageController struct {
	db       *gorm.DB
	messages *services.MessageService
	checkins *services.CheckinService
	cooldown time.Duration
	now      func() time.Time
}

// NewMessageController wires the controller. cooldown limits how often one user may remind another.
func NewMessageController(db *gorm.DB, messages *services.MessageService, checkins *services.CheckinService, cooldown time.Duration) *MessageController {
	if cooldown <= 0 {
		cooldown = time.Hour
	}
	return &MessageController{db: db, messages: messages, checkins: checkins, cooldown: cooldown, now: time.Now}
}

type messageView struct {
	ID               uint      `json:"id"`
	SenderID         uint      `json:"sender_id"`
	MessageType      string    `json:"message_type"`
	Content          string    `json:"content"`
	IsRead           bool      `json:"is_read"`
	CreatedAt        time.Time `json:"created_at"`
	SenderUsername   string    `json:"sender_username"`
	FriendshipStatus *string   `json:"friendship_status"`
}

func (m *MessageController) username(ctx *gin.Context, id uint) (string, error) {
	var u models.User
	err := m.db.WithContext(ctx.Request.Context()).Select("id", "username").First(&u, id).Error
	return u.Username, err
}

// SendFriendRequest asks the user named in the body to become friends.
func (m *MessageController) SendFriendRequest(ctx *gin.Context) {
	senderID, ok := requireUser(ctx)
	if !ok {
		return
	}
	var req struct {
		Username string `json:"username"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Username) == "" {
		utils.Error(ctx, http.StatusBadRequest, 40001, "用户名不能为空")
		return
	}

	var target models.User
	err := m.db.WithContext(ctx.Request.Context()).Where("username = ?", strings.TrimSpace(req.Username)).First(&target).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.Error(ctx, http.StatusNotFound, 40401, "用户不存在")
		return
	}
	if err != nil {
		dbError(ctx, err)
		return
	}
	if target.ID == senderID {
		utils.Error(ctx, http.StatusBadRequest, 40020, "不能添加自己为好友")
		return
	}
	senderName, err := m.username(ctx, senderID)
	if err != nil {
		dbError(ctx, err)
		return
	}

	msg := &models.Message{
		SenderID:   senderID,
		ReceiverID: target.ID,
		Kind:       models.MessageFriendRequest,
		Content:    senderName + " 想要添加您为好友",
		CreatedAt:  m.now(),
	}
	var conflict string
	err = m.db.WithContext(ctx.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var existing models.Friendship
		err := tx.Where("(requester_id = ? AND addressee_id = ?) OR (requester_id = ? AND addressee_id = ?)",
			senderID, target.ID, target.ID, senderID).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(&models.Friendship{RequesterID: senderID, AddresseeID: target.ID, Status: models.FriendshipPending}).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		case existing.Status == models.FriendshipAccepted:
			conflict = "已经是好友了"
			return nil
		case existing.Status == models.FriendshipPending:
			conflict = "好友申请已发送，请等待对方回应"
			return nil
		default:
			// a rejected pair may ask again; the row now points from the new requester
			err := tx.Model(&existing).Updates(map[string]interface{}{
				"requester_id": senderID,
				"addressee_id": target.ID,
				"status":       models.FriendshipPending,
			}).Error
			if err != nil {
				return err
			}
		}
		return tx.Create(msg).Error
	})
	if err != nil {
		dbError(ctx, err)
		return
	}
	if conflict != "" {
		utils.Error(ctx, http.StatusBadRequest, 40021, conflict)
		return
	}
	m.messages.Push(msg)
	utils.SuccessMsg(ctx, "好友申请已发送", nil)
}

// RespondFriendRequest accepts or rejects a pending request addressed to the caller.
func (m *MessageController) RespondFriendRequest(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	action := ctx.Param("action")
	if action != "accept" && action != "reject" {
		utils.Error(ctx, http.StatusBadRequest, 40022, "无效的操作")
		return
	}
	var req struct {
		RequesterID uint `json:"requesterId" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	name, err := m.username(ctx, userID)
	if err != nil {
		dbError(ctx, err)
		return
	}

	status, reply, done := models.FriendshipAccepted, name+" 接受了您的好友申请", "已接受好友申请"
	if action == "reject" {
		status, reply, done = models.FriendshipRejected, name+" 拒绝了您的好友申请", "已拒绝好友申请"
	}
	msg := &models.Message{
		SenderID:   userID,
		ReceiverID: req.RequesterID,
		Kind:       models.MessageSystem,
		Content:    reply,
		CreatedAt:  m.now(),
	}

	var handled bool
	err = m.db.WithContext(ctx.Request.Context()).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Friendship{}).
			Where("requester_id = ? AND addressee_id = ? AND status = ?", req.RequesterID, userID, models.FriendshipPending).
			Update("status", status)
		if res.Error != nil {
			return res.Error
		}
		if handled = res.RowsAffected > 0; !handled {
			return nil
		}
		// the request notification is answered now
		if err := tx.Model(&models.Message{}).
			Where("sender_id = ? AND receiver_id = ? AND message_type = ?", req.RequesterID, userID, models.MessageFriendRequest).
			Update("is_read", true).Error; err != nil {
			return err
		}
		return tx.Create(msg).Error
	})
	if err != nil {
		dbError(ctx, err)
		return
	}
	if !handled {
		utils.Error(ctx, http.StatusNotFound, 40420, "好友申请不存在或已处理")
		return
	}
	m.messages.Push(msg)
	utils.SuccessMsg(ctx, done, nil)
}

// Friends lists the caller's accepted friends.
func (m *MessageController) Friends(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	ids, err := services.FriendIDs(ctx.Request.Context(), m.db, userID)
	if err != nil {
		serviceError(ctx, err)
		return
	}
	out := make([]publicUser, 0, len(ids))
	if len(ids) > 0 {
		var users []models.User
		if err := m.db.WithContext(ctx.Request.Context()).Where("id IN ?", ids).Order("username").Find(&users).Error; err != nil {
			dbError(ctx, err)
			return
		}
		for _, u := range users {
			out = append(out, toPublic(u))
		}
	}
	utils.Success(ctx, out)
}

func (m *MessageController) checkedInToday(ctx *gin.Context, ids []uint) (map[uint]bool, error) {
	var checked []uint
	err := m.db.WithContext(ctx.Request.Context()).Model(&models.CheckIn{}).
		Where("user_id IN ? AND check_date = ?", ids, m.checkins.Today()).
		Pluck("user_id", &checked).Error
	out := make(map[uint]bool, len(checked))
	for _, id := range checked {
		out[id] = true
	}
	return out, err
}

// RemindCheckin nudges one friend who has not checked in today.
func (m *MessageController) RemindCheckin(ctx *gin.Context) {
	senderID, ok := requireUser(ctx)
	if !ok {
		return
	}
	var req struct {
		TargetUserID uint `json:"targetUserId" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "目标用户ID不能为空")
		return
	}
	rctx := ctx.Request.Context()

	friends, err := services.AreFriends(rctx, m.db, senderID, req.TargetUserID)
	if err != nil {
		serviceError(ctx, err)
		return
	}
	if !friends {
		utils.Error(ctx, http.StatusForbidden, 40302, "只能提醒好友打卡")
		return
	}
	checked, err := m.checkedInToday(ctx, []uint{req.TargetUserID})
	if err != nil {
		dbError(ctx, err)
		return
	}
	if checked[req.TargetUserID] {
		utils.Error(ctx, http.StatusBadRequest, 40023, "该用户今日已打卡")
		return
	}

	now := m.now()
	var recent int64
	err = m.db.WithContext(rctx).Model(&models.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND message_type = ? AND created_at > ?",
			senderID, req.TargetUserID, models.MessageReminder, now.Add(-m.cooldown)).
		Count(&recent).Error
	if err != nil {
		dbError(ctx, err)
		return
	}
	if recent > 0 {
		utils.Error(ctx, http.StatusTooManyRequests, 42930, "请勿频繁提醒，每小时最多提醒一次")
		return
	}

	name, err := m.username(ctx, senderID)
	if err != nil {
		dbError(ctx, err)
		return
	}
	msg := &models.Message{
		SenderID:   senderID,
		ReceiverID: req.TargetUserID,
		Kind:       models.MessageReminder,
		Content:    name + " 提醒您：别忘了今天的打卡哦！💪",
		CreatedAt:  now,
	}
	if err := m.messages.Send(rctx, msg); err != nil {
		serviceError(ctx, err)
		return
	}
	utils.SuccessMsg(ctx, "提醒已发送", nil)
}

// lastBatchRemind returns when senderID last used the batch reminder, or the zero time.
func (m *MessageController) lastBatchRemind(ctx *gin.Context, senderID uint) (time.Time, error) {
	var last models.Message
	err := m.db.WithContext(ctx.Request.Context()).
		Where("sender_id = ? AND message_type = ? AND is_batch = ?", senderID, models.MessageReminder, true).
		Order("created_at DESC").Take(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	return last.CreatedAt, err
}

// remaining is the cooldown left in whole minutes, rounded up.
func (m *MessageController) remaining(last time.Time) int {
	if last.IsZero() {
		return 0
	}
	left := last.Add(m.cooldown).Sub(m.now())
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Minutes()))
}

// BatchRemindCooldown reports whether the batch reminder can be used again.
func (m *MessageController) BatchRemindCooldown(ctx *gin.Context) {
	senderID, ok := requireUser(ctx)
	if !ok {
		return
	}
	last, err := m.lastBatchRemind(ctx, senderID)
	if err != nil {
		dbError(ctx, err)
		return
	}
	left := m.remaining(last)
	utils.Success(ctx, gin.H{"isOnCooldown": left > 0, "remainingTime": left})
}

// BatchRemindFriends reminds every friend who has not checked in today, skipping friends
// the caller reminded individually within the cooldown.
func (m *MessageController) BatchRemindFriends(ctx *gin.Context) {
	senderID, ok := requireUser(ctx)
	if !ok {
		return
	}
	rctx := ctx.Request.Context()

	ids, err := services.FriendIDs(rctx, m.db, senderID)
	if err != nil {
		serviceError(ctx, err)
		return
	}
	if len(ids) == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40024, "您还没有好友")
		return
	}
	checked, err := m.checkedInToday(ctx, ids)
	if err != nil {
		dbError(ctx, err)
		return
	}
	unchecked := make([]uint, 0, len(ids))
	for _, id := range ids {
		if !checked[id] {
			unchecked = append(unchecked, id)
		}
	}
	if len(unchecked) == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40025, "所有好友今日都已打卡")
		return
	}

	last, err := m.lastBatchRemind(ctx, senderID)
	if err != nil {
		dbError(ctx, err)
		return
	}
	if m.remaining(last) > 0 {
		utils.Error(ctx, http.StatusTooManyRequests, 42931, "请勿频繁批量提醒，每小时最多一次")
		return
	}

	now := m.now()
	var recent []uint
	err = m.db.WithContext(rctx).Model(&models.Message{}).
		Where("sender_id = ? AND receiver_id IN ? AND message_type = ? AND created_at > ?",
			senderID, unchecked, models.MessageReminder, now.Add(-m.cooldown)).
		Pluck("receiver_id", &recent).Error
	if err != nil {
		dbError(ctx, err)
		return
	}
	skip := make(map[uint]bool, len(recent))
	for _, id := range recent {
		skip[id] = true
	}

	name, err := m.username(ctx, senderID)
	if err != nil {
		dbError(ctx, err)
		return
	}
	var msgs []*models.Message
	var targets []uint
	for _, id := range unchecked {
		if skip[id] {
			continue
		}
		targets = append(targets, id)
		msgs = append(msgs, &models.Message{
			SenderID:   senderID,
			ReceiverID: id,
			Kind:       models.MessageReminder,
			Content:    name + " 批量提醒您：别忘了今天的打卡哦！💪 (来自好友关怀)",
			IsBatch:    true,
			CreatedAt:  now,
		})
	}
	if len(msgs) == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40026, "所有好友都在1小时内已被提醒过")
		return
	}
	if err := m.messages.Send(rctx, msgs...); err != nil {
		serviceError(ctx, err)
		return
	}

	var names []string
	if err := m.db.WithContext(rctx).Model(&models.User{}).Where("id IN ?", targets).Order("username").Pluck("username", &names).Error; err != nil {
		dbError(ctx, err)
		return
	}
	utils.SuccessMsg(ctx, fmt.Sprintf("成功提醒了 %d 位好友", len(msgs)), gin.H{
		"remindedCount":   len(msgs),
		"remindedFriends": names,
		"totalUnchecked":  len(unchecked),
	})
}

// List returns the caller's inbox, newest first.
func (m *MessageController) List(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	page, size := parsePagination(ctx.Query("page"), ctx.Query("page_size"), 50)

	var rows []messageView
	err := m.db.WithContext(ctx.Request.Context()).
		Table("messages AS m").
		Select(`m.id, m.sender_id, m.message_type, m.content, m.is_read, m.created_at,
			CASE WHEN m.message_type IN (?, ?) OR m.sender_id = ? THEN ? ELSE u.username END AS sender_username,
			f.status AS friendship_status`,
			models.MessageReminder, models.MessageSystem, models.SystemSenderID, systemSenderName).
		Joins("LEFT JOIN users u ON u.id = m.sender_id").
		Joins(`LEFT JOIN friendships f ON ((f.requester_id = m.sender_id AND f.addressee_id = m.receiver_id)
			OR (f.requester_id = m.receiver_id AND f.addressee_id = m.sender_id))`).
		Where("m.receiver_id = ?", userID).
		Order("m.created_at DESC, m.id DESC").
		Limit(size).Offset((page - 1) * size).
		Scan(&rows).Error
	if err != nil {
		dbError(ctx, err)
		return
	}
	if rows == nil {
		rows = []messageView{}
	}
	utils.Success(ctx, rows)
}

// UnreadCount returns how many inbox messages are unread.
func (m *MessageController) UnreadCount(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	var n int64
	if err := m.db.WithContext(ctx.Request.Context()).Model(&models.Message{}).
		Where("receiver_id = ? AND is_read = ?", userID, false).Count(&n).Error; err != nil {
		dbError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"unreadCount": n})
}

// MarkRead marks one of the caller's messages as read.
func (m *MessageController) MarkRead(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	if err := m.db.WithContext(ctx.Request.Context()).Model(&models.Message{}).
		Where("id = ? AND receiver_id = ?", id, userID).Update("is_read", true).Error; err != nil {
		dbError(ctx, err)
		return
	}
	utils.SuccessMsg(ctx, "消息已标记为已读", nil)
}

// MarkAllRead marks the whole inbox as read.
func (m *MessageController) MarkAllRead(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	if err := m.db.WithContext(ctx.Request.Context()).Model(&models.Message{}).
		Where("receiver_id = ? AND is_read = ?", userID, false).Update("is_read", true).Error; err != nil {
		dbError(ctx, err)
		return
	}
	utils.SuccessMsg(ctx, "所有消息已标记为已读", nil)
}
