package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/imalive/server/models"
	"github.com/imalive/server/services"
	"github.com/imalive/server/utils"
)

const maxChatLength = 1000

// ChatController serves one-to-one chat between friends.
type ChatController struct {
	db     *gorm.DB
	notify services.Notifier
}

func NewChatController(db *gorm.DB, notify services.Notifier) *ChatController {
	if notify == nil {
		notify = services.NopNotifier{}
	}
	return &ChatController{db: db, notify: notify}
}

type conversationView struct {
	ID            uint                `json:"id"`
	Friend        publicUser          `json:"friend"`
	LastMessage   *models.ChatMessage `json:"last_message"`
	LastMessageAt time.Time           `json:"last_message_at"`
	UnreadCount   int64               `json:"unread_count"`
}

// loadConversation fetches a conversation the caller takes part in.
func (c *ChatController) loadConversation(ctx *gin.Context, userID uint) (*models.Conversation, bool) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return nil, false
	}
	return c.findConversation(ctx, id, userID)
}

func (c *ChatController) findConversation(ctx *gin.Context, id, userID uint) (*models.Conversation, bool) {
	var conv models.Conversation
	err := c.db.WithContext(ctx.Request.Context()).First(&conv, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !conv.Has(userID)) {
		utils.Error(ctx, http.StatusNotFound, 40430, "会话不存在")
		return nil, false
	}
	if err != nil {
		dbError(ctx, err)
		return nil, false
	}
	return &conv, true
}

// Conversations lists the caller's conversations, most recently active first.
func (c *ChatController) Conversations(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	db := c.db.WithContext(ctx.Request.Context())

	var convs []models.Conversation
	if err := db.Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("last_message_at DESC").Find(&convs).Error; err != nil {
		dbError(ctx, err)
		return
	}
	out := make([]conversationView, 0, len(convs))
	if len(convs) == 0 {
		utils.Success(ctx, out)
		return
	}

	convIDs := make([]uint, len(convs))
	others := make([]uint, len(convs))
	for i, conv := range convs {
		convIDs[i] = conv.ID
		others[i] = conv.Other(userID)
	}

	var users []models.User
	if err := db.Where("id IN ?", others).Find(&users).Error; err != nil {
		dbError(ctx, err)
		return
	}
	byID := make(map[uint]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	var lasts []models.ChatMessage
	latest := db.Model(&models.ChatMessage{}).Select("MAX(id)").Where("conversation_id IN ?", convIDs).Group("conversation_id")
	if err := db.Where("id IN (?)", latest).Find(&lasts).Error; err != nil {
		dbError(ctx, err)
		return
	}
	lastByConv := make(map[uint]models.ChatMessage, len(lasts))
	for _, m := range lasts {
		lastByConv[m.ConversationID] = m
	}

	var unread []struct {
		ConversationID uint
		N              int64
	}
	if err := db.Model(&models.ChatMessage{}).Select("conversation_id, COUNT(*) AS n").
		Where("conversation_id IN ? AND sender_id <> ? AND is_read = ?", convIDs, userID, false).
		Group("conversation_id").Scan(&unread).Error; err != nil {
		dbError(ctx, err)
		return
	}
	unreadByConv := make(map[uint]int64, len(unread))
	for _, u := range unread {
		unreadByConv[u.ConversationID] = u.N
	}

	for _, conv := range convs {
		friend, ok := byID[conv.Other(userID)]
		if !ok {
			continue
		}
		view := conversationView{
			ID:            conv.ID,
			Friend:        toPublic(friend),
			LastMessageAt: conv.LastMessageAt,
			UnreadCount:   unreadByConv[conv.ID],
		}
		if m, ok := lastByConv[conv.ID]; ok {
			m := m
			view.LastMessage = &m
		}
		out = append(out, view)
	}
	utils.Success(ctx, out)
}

// OpenConversation returns the conversation with a friend, creating it on first use.
func (c *ChatController) OpenConversation(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	var req struct {
		FriendID uint `json:"friendId" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	rctx := ctx.Request.Context()
	friends, err := services.AreFriends(rctx, c.db, userID, req.FriendID)
	if err != nil {
		serviceError(ctx, err)
		return
	}
	if !friends {
		serviceError(ctx, services.ErrNotFriends)
		return
	}

	a, b := userID, req.FriendID
	if a > b {
		a, b = b, a
	}
	conv := models.Conversation{User1ID: a, User2ID: b, LastMessageAt: time.Now()}
	res := c.db.WithContext(rctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&conv)
	if res.Error != nil {
		dbError(ctx, res.Error)
		return
	}
	created := res.RowsAffected > 0
	if !created {
		if err := c.db.WithContext(rctx).Where("user1_id = ? AND user2_id = ?", a, b).Take(&conv).Error; err != nil {
			dbError(ctx, err)
			return
		}
	}
	utils.Success(ctx, gin.H{"conversationId": conv.ID, "created": created})
}

// Messages returns up to limit messages older than ?before (a message id), oldest first.
func (c *ChatController) Messages(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	conv, ok := c.loadConversation(ctx, userID)
	if !ok {
		return
	}
	limit := 50
	if n, err := strconv.Atoi(ctx.Query("limit")); err == nil && n > 0 && n <= 200 {
		limit = n
	}

	q := c.db.WithContext(ctx.Request.Context()).Where("conversation_id = ?", conv.ID)
	if before, err := strconv.ParseUint(ctx.Query("before"), 10, 64); err == nil && before > 0 {
		q = q.Where("id < ?", before)
	}
	var msgs []models.ChatMessage
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&msgs).Error; err != nil {
		dbError(ctx, err)
		return
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	utils.Success(ctx, msgs)
}

// Send posts a message into a conversation and pushes it to the other participant.
func (c *ChatController) Send(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	var req struct {
		ConversationID uint   `json:"conversationId" binding:"required"`
		Content        string `json:"content"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	content := utils.PlainText(req.Content)
	if strings.TrimSpace(content) == "" {
		utils.Error(ctx, http.StatusBadRequest, 40032, "消息内容不能为空")
		return
	}
	if utf8.RuneCountInString(content) > maxChatLength {
		utils.Error(ctx, http.StatusBadRequest, 40033, "消息内容不能超过1000字符")
		return
	}
	conv, ok := c.findConversation(ctx, req.ConversationID, userID)
	if !ok {
		return
	}
	other := conv.Other(userID)
	friends, err := services.AreFriends(ctx.Request.Context(), c.db, userID, other)
	if err != nil {
		serviceError(ctx, err)
		return
	}
	if !friends {
		serviceError(ctx, services.ErrNotFriends)
		return
	}

	msg := models.ChatMessage{ConversationID: conv.ID, SenderID: userID, Content: content, CreatedAt: time.Now()}
	err = c.db.WithContext(ctx.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).Update("last_message_at", msg.CreatedAt).Error
	})
	if err != nil {
		dbError(ctx, err)
		return
	}
	c.notify.Push(other, services.EventChatMessage, msg)
	utils.Success(ctx, msg)
}

// MarkConversationRead marks the other participant's messages in a conversation as read.
func (c *ChatController) MarkConversationRead(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	conv, ok := c.loadConversation(ctx, userID)
	if !ok {
		return
	}
	if err := c.db.WithContext(ctx.Request.Context()).Model(&models.ChatMessage{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", conv.ID, userID, false).
		Update("is_read", true).Error; err != nil {
		dbError(ctx, err)
		return
	}
	utils.SuccessMsg(ctx, "已读", nil)
}

func (c *ChatController) myConversations(userID uint) *gorm.DB {
	return c.db.Model(&models.Conversation{}).Select("id").Where("user1_id = ? OR user2_id = ?", userID, userID)
}

// UnreadCount counts unread chat messages across all of the caller's conversations.
func (c *ChatController) UnreadCount(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	var n int64
	if err := c.db.WithContext(ctx.Request.Context()).Model(&models.ChatMessage{}).
		Where("conversation_id IN (?) AND sender_id <> ? AND is_read = ?", c.myConversations(userID), userID, false).
		Count(&n).Error; err != nil {
		dbError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"unreadCount": n})
}

// MarkAllRead marks every incoming chat message as read.
func (c *ChatController) MarkAllRead(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	if err := c.db.WithContext(ctx.Request.Context()).Model(&models.ChatMessage{}).
		Where("conversation_id IN (?) AND sender_id <> ? AND is_read = ?", c.myConversations(userID), userID, false).
		Update("is_read", true).Error; err != nil {
		dbError(ctx, err)
		return
	}
	utils.SuccessMsg(ctx, "所有聊天消息已标记为已读", nil)
}
