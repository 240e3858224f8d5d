package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/imalive/server/models"
	"github.com/imalive/server/services"
	"github.com/imalive/server/utils"
)

const (
	maxTitleLength   = 100
	maxPostLength    = 1000
	maxCommentLength = 500
	maxReplyLength   = 300

	plazaCachePrefix = "cache:plaza:"
)

// PlazaController serves the public square: posts, likes, comments and sharing.
type PlazaController struct {
	db       *gorm.DB
	uploads  *services.UploadStore
	messages *services.MessageService
}

func NewPlazaController(db *gorm.DB, uploads *services.UploadStore, messages *services.MessageService) *PlazaController {
	return &PlazaController{db: db, uploads: uploads, messages: messages}
}

type postView struct {
	models.PlazaPost
	AuthorUsername string `json:"author_username"`
	AuthorAvatar   string `json:"author_avatar"`
	UserLiked      bool   `json:"user_liked"`
	IsAuthor       bool   `json:"is_author"`
}

type commentView struct {
	ID             uint          `json:"id"`
	PostID         uint          `json:"post_id"`
	ParentID       *uint         `json:"parent_id,omitempty"`
	Content        string        `json:"content"`
	CreatedAt      time.Time     `json:"created_at"`
	AuthorID       uint          `json:"author_id"`
	AuthorUsername string        `json:"author_username"`
	AuthorAvatar   string        `json:"author_avatar"`
	LikesCount     int64         `json:"likes_count"`
	UserLiked      bool          `json:"user_liked"`
	Replies        []commentView `json:"replies,omitempty"`
}

func (p *PlazaController) invalidate(ctx *gin.Context) {
	utils.InvalidateByPrefix(ctx.Request.Context(), plazaCachePrefix)
}

// withAuthors attaches author info to posts.
func (p *PlazaController) withAuthors(ctx *gin.Context, posts []models.PlazaPost) ([]postView, error) {
	out := make([]postView, len(posts))
	if len(posts) == 0 {
		return out, nil
	}
	ids := make([]uint, len(posts))
	for i, post := range posts {
		ids[i] = post.AuthorID
	}
	var users []models.User
	if err := p.db.WithContext(ctx.Request.Context()).Select("id", "username", "avatar").
		Where("id IN ?", utils.UniqueUint(ids)).Find(&users).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	for i, post := range posts {
		author := byID[post.AuthorID]
		out[i] = postView{PlazaPost: post, AuthorUsername: author.Username, AuthorAvatar: author.Avatar}
	}
	return out, nil
}

// personalize fills the per-viewer flags.
func (p *PlazaController) personalize(ctx *gin.Context, views []postView, userID uint) error {
	if len(views) == 0 {
		return nil
	}
	ids := make([]uint, len(views))
	for i, v := range views {
		ids[i] = v.ID
	}
	var liked []uint
	if err := p.db.WithContext(ctx.Request.Context()).Model(&models.PlazaLike{}).
		Where("user_id = ? AND post_id IN ?", userID, ids).Pluck("post_id", &liked).Error; err != nil {
		return err
	}
	set := make(map[uint]bool, len(liked))
	for _, id := range liked {
		set[id] = true
	}
	for i := range views {
		views[i].UserLiked = set[views[i].ID]
		views[i].IsAuthor = views[i].AuthorID == userID
	}
	return nil
}

// ListPosts returns a page of posts. filter is all, latest, hot or my.
func (p *PlazaController) ListPosts(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	filter := ctx.DefaultQuery("filter", "all")
	page, limit := parsePagination(ctx.Query("page"), ctx.Query("limit"), 20)

	// shared lists are cached without the per-viewer flags
	var views []postView
	cacheKey := fmt.Sprintf("%slist:%s:%d:%d", plazaCachePrefix, filter, page, limit)
	cacheable := filter != "my"
	if !cacheable || !utils.CacheGetJSON(ctx.Request.Context(), cacheKey, &views) {
		q := p.db.WithContext(ctx.Request.Context()).Model(&models.PlazaPost{})
		switch filter {
		case "my":
			q = q.Where("author_id = ?", userID).Order("created_at DESC")
		case "hot":
			q = q.Order("likes_count DESC").Order("views_count DESC").Order("created_at DESC")
		default:
			q = q.Order("created_at DESC")
		}
		var posts []models.PlazaPost
		if err := q.Order("id DESC").Offset((page - 1) * limit).Limit(limit).Find(&posts).Error; err != nil {
			dbError(ctx, err)
			return
		}
		var err error
		if views, err = p.withAuthors(ctx, posts); err != nil {
			dbError(ctx, err)
			return
		}
		if cacheable {
			utils.CacheSetJSON(ctx.Request.Context(), cacheKey, views, 30*time.Second)
		}
	}

	if err := p.personalize(ctx, views, userID); err != nil {
		dbError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"posts": views, "page": page, "limit": limit})
}

func (p *PlazaController) findPost(ctx *gin.Context, id uint) (*models.PlazaPost, bool) {
	var post models.PlazaPost
	err := p.db.WithContext(ctx.Request.Context()).First(&post, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.Error(ctx, http.StatusNotFound, 40440, "帖子不存在")
		return nil, false
	}
	if err != nil {
		dbError(ctx, err)
		return nil, false
	}
	return &post, true
}

// GetPost returns one post and counts the view.
func (p *PlazaController) GetPost(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	if err := p.db.WithContext(ctx.Request.Context()).Model(&models.PlazaPost{}).Where("id = ?", id).
		UpdateColumn("views_count", gorm.Expr("views_count + 1")).Error; err != nil {
		dbError(ctx, err)
		return
	}
	post, ok := p.findPost(ctx, id)
	if !ok {
		return
	}
	views, err := p.withAuthors(ctx, []models.PlazaPost{*post})
	if err == nil {
		err = p.personalize(ctx, views, userID)
	}
	if err != nil {
		dbError(ctx, err)
		return
	}
	utils.Success(ctx, views[0])
}

// CreatePost accepts JSON or a multipart form with an optional "cover" image.
func (p *PlazaController) CreatePost(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	var req struct {
		Title   string `json:"title" form:"title"`
		Content string `json:"content" form:"content"`
		Tags    string `json:"tags" form:"tags"`
	}
	if err := ctx.ShouldBind(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	title := utils.PlainText(req.Title)
	content := strings.TrimSpace(utils.SanitizeHTML(req.Content))
	if title == "" || content == "" {
		utils.Error(ctx, http.StatusBadRequest, 40040, "标题和内容不能为空")
		return
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		utils.Error(ctx, http.StatusBadRequest, 40041, "标题不能超过100字符")
		return
	}
	if utf8.RuneCountInString(content) > maxPostLength {
		utils.Error(ctx, http.StatusBadRequest, 40043, "内容不能超过1000字符")
		return
	}

	post := models.PlazaPost{AuthorID: userID, Title: title, Content: content, Tags: utils.PlainText(req.Tags)}
	if fh, err := ctx.FormFile("cover"); err == nil {
		url, err := p.uploads.SaveCover(ctx.Request.Context(), userID, fh)
		switch {
		case errors.Is(err, services.ErrFileTooLarge):
			utils.Error(ctx, http.StatusBadRequest, 40044, "图片过大")
			return
		case errors.Is(err, services.ErrNotImage):
			utils.Error(ctx, http.StatusBadRequest, 40045, "只允许上传图片文件")
			return
		case err != nil:
			serviceError(ctx, err)
			return
		}
		post.CoverImage = url
	}

	if err := p.db.WithContext(ctx.Request.Context()).Create(&post).Error; err != nil {
		if post.CoverImage != "" {
			_ = p.uploads.Release(p.db.WithContext(ctx.Request.Context()), post.CoverImage, time.Now())
		}
		dbError(ctx, err)
		return
	}
	p.invalidate(ctx)
	utils.SuccessMsg(ctx, "帖子发布成功", gin.H{"postId": post.ID, "post": post})
}

// ToggleLike likes or unlikes a post; the counter moves in the same transaction.
func (p *PlazaController) ToggleLike(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	if _, ok := p.findPost(ctx, id); !ok {
		return
	}

	var liked bool
	var count int64
	err := p.db.WithContext(ctx.Request.Context()).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("post_id = ? AND user_id = ?", id, userID).Delete(&models.PlazaLike{})
		if res.Error != nil {
			return res.Error
		}
		delta := gorm.Expr("CASE WHEN likes_count > 0 THEN likes_count - 1 ELSE 0 END")
		if res.RowsAffected == 0 {
			if err := tx.Create(&models.PlazaLike{PostID: id, UserID: userID}).Error; err != nil {
				return err
			}
			liked = true
			delta = gorm.Expr("likes_count + 1")
		}
		if err := tx.Model(&models.PlazaPost{}).Where("id = ?", id).UpdateColumn("likes_count", delta).Error; err != nil {
			return err
		}
		return tx.Model(&models.PlazaPost{}).Where("id = ?", id).Pluck("likes_count", &count).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// A concurrent toggle inserted the same like first; the post is liked.
		liked = true
		err = p.db.WithContext(ctx.Request.Context()).Model(&models.PlazaPost{}).Where("id = ?", id).Pluck("likes_count", &count).Error
	}
	if err != nil {
		dbError(ctx, err)
		return
	}
	p.invalidate(ctx)
	utils.Success(ctx, gin.H{"liked": liked, "likes_count": count})
}

// Comments lists top-level comments oldest first, each with its replies.
func (p *PlazaController) Comments(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	db := p.db.WithContext(ctx.Request.Context())

	var rows []models.PlazaComment
	if err := db.Where("post_id = ?", id).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		dbError(ctx, err)
		return
	}
	out := []commentView{}
	if len(rows) == 0 {
		utils.Success(ctx, gin.H{"comments": out})
		return
	}

	ids := make([]uint, len(rows))
	authors := make([]uint, len(rows))
	for i, c := range rows {
		ids[i] = c.ID
		authors[i] = c.UserID
	}
	var users []models.User
	if err := db.Select("id", "username", "avatar").Where("id IN ?", utils.UniqueUint(authors)).Find(&users).Error; err != nil {
		dbError(ctx, err)
		return
	}
	byID := make(map[uint]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	var counts []struct {
		CommentID uint
		N         int64
	}
	if err := db.Model(&models.PlazaCommentLike{}).Select("comment_id, COUNT(*) AS n").
		Where("comment_id IN ?", ids).Group("comment_id").Scan(&counts).Error; err != nil {
		dbError(ctx, err)
		return
	}
	likes := make(map[uint]int64, len(counts))
	for _, c := range counts {
		likes[c.CommentID] = c.N
	}
	var mine []uint
	if err := db.Model(&models.PlazaCommentLike{}).Where("user_id = ? AND comment_id IN ?", userID, ids).
		Pluck("comment_id", &mine).Error; err != nil {
		dbError(ctx, err)
		return
	}
	liked := make(map[uint]bool, len(mine))
	for _, cid := range mine {
		liked[cid] = true
	}

	index := map[uint]int{}
	var replies []commentView
	for _, c := range rows {
		author := byID[c.UserID]
		v := commentView{
			ID: c.ID, PostID: c.PostID, ParentID: c.ParentID, Content: c.Content, CreatedAt: c.CreatedAt,
			AuthorID: c.UserID, AuthorUsername: author.Username, AuthorAvatar: author.Avatar,
			LikesCount: likes[c.ID], UserLiked: liked[c.ID],
		}
		if c.ParentID == nil {
			index[c.ID] = len(out)
			out = append(out, v)
		} else {
			replies = append(replies, v)
		}
	}
	for _, r := range replies {
		if i, ok := index[*r.ParentID]; ok {
			out[i].Replies = append(out[i].Replies, r)
		}
	}
	utils.Success(ctx, gin.H{"comments": out})
}

func commentText(ctx *gin.Context, limit int, empty, tooLong string) (string, bool) {
	var req struct {
		Content string `json:"content"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return "", false
	}
	content := utils.PlainText(req.Content)
	if content == "" {
		utils.Error(ctx, http.StatusBadRequest, 40046, empty)
		return "", false
	}
	if utf8.RuneCountInString(content) > limit {
		utils.Error(ctx, http.StatusBadRequest, 40047, tooLong)
		return "", false
	}
	return content, true
}

// addComment stores c and bumps the post's comment counter in one transaction.
func (p *PlazaController) addComment(ctx *gin.Context, c *models.PlazaComment) error {
	return p.db.WithContext(ctx.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		return tx.Model(&models.PlazaPost{}).Where("id = ?", c.PostID).
			UpdateColumn("comments_count", gorm.Expr("comments_count + 1")).Error
	})
}

// AddComment posts a top-level comment.
func (p *PlazaController) AddComment(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	content, ok := commentText(ctx, maxCommentLength, "评论内容不能为空", "评论内容不能超过500字符")
	if !ok {
		return
	}
	if _, ok := p.findPost(ctx, id); !ok {
		return
	}
	c := models.PlazaComment{PostID: id, UserID: userID, Content: content}
	if err := p.addComment(ctx, &c); err != nil {
		dbError(ctx, err)
		return
	}
	p.invalidate(ctx)
	utils.SuccessMsg(ctx, "评论发表成功", gin.H{"commentId": c.ID})
}

func (p *PlazaController) findComment(ctx *gin.Context, id uint, reply bool) (*models.PlazaComment, bool) {
	q := p.db.WithContext(ctx.Request.Context())
	if reply {
		q = q.Where("parent_id IS NOT NULL")
	} else {
		q = q.Where("parent_id IS NULL")
	}
	var c models.PlazaComment
	err := q.First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.Error(ctx, http.StatusNotFound, 40441, "评论不存在")
		return nil, false
	}
	if err != nil {
		dbError(ctx, err)
		return nil, false
	}
	return &c, true
}

// AddReply answers a top-level comment.
func (p *PlazaController) AddReply(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	content, ok := commentText(ctx, maxReplyLength, "回复内容不能为空", "回复内容不能超过300字符")
	if !ok {
		return
	}
	parent, ok := p.findComment(ctx, id, false)
	if !ok {
		return
	}
	c := models.PlazaComment{PostID: parent.PostID, UserID: userID, ParentID: &parent.ID, Content: content}
	if err := p.addComment(ctx, &c); err != nil {
		dbError(ctx, err)
		return
	}
	p.invalidate(ctx)
	utils.SuccessMsg(ctx, "回复发表成功", gin.H{"replyId": c.ID})
}

// ToggleCommentLike likes or unlikes a top-level comment.
func (p *PlazaController) ToggleCommentLike(ctx *gin.Context) {
	p.toggleCommentLike(ctx, false)
}

// ToggleReplyLike likes or unlikes a reply.
func (p *PlazaController) ToggleReplyLike(ctx *gin.Context) {
	p.toggleCommentLike(ctx, true)
}

func (p *PlazaController) toggleCommentLike(ctx *gin.Context, reply bool) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	if _, ok := p.findComment(ctx, id, reply); !ok {
		return
	}

	var liked bool
	var count int64
	err := p.db.WithContext(ctx.Request.Context()).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("comment_id = ? AND user_id = ?", id, userID).Delete(&models.PlazaCommentLike{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := tx.Create(&models.PlazaCommentLike{CommentID: id, UserID: userID}).Error; err != nil {
				return err
			}
			liked = true
		}
		return tx.Model(&models.PlazaCommentLike{}).Where("comment_id = ?", id).Count(&count).Error
	})
	if err != nil {
		dbError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"liked": liked, "likes_count": count})
}

// Share sends the post to the given friends as inbox messages. Non-friends are skipped.
func (p *PlazaController) Share(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	var req struct {
		FriendIDs []uint `json:"friendIds"`
		Message   string `json:"message"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil || len(utils.UniqueUint(req.FriendIDs)) == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40048, "请选择要分享的好友")
		return
	}
	post, ok := p.findPost(ctx, id)
	if !ok {
		return
	}
	rctx := ctx.Request.Context()

	friends, err := services.FriendIDs(rctx, p.db, userID)
	if err != nil {
		serviceError(ctx, err)
		return
	}
	isFriend := make(map[uint]bool, len(friends))
	for _, f := range friends {
		isFriend[f] = true
	}
	var sharer models.User
	if err := p.db.WithContext(rctx).Select("id", "username").First(&sharer, userID).Error; err != nil {
		dbError(ctx, err)
		return
	}

	content := fmt.Sprintf("%s 分享了帖子《%s》给你", sharer.Username, post.Title)
	if note := utils.PlainText(req.Message); note != "" {
		content += "：" + note
	}
	now := time.Now()
	var msgs []*models.Message
	for _, fid := range utils.UniqueUint(req.FriendIDs) {
		if !isFriend[fid] {
			continue
		}
		msgs = append(msgs, &models.Message{
			SenderID:   userID,
			ReceiverID: fid,
			Kind:       models.MessagePostShare,
			Content:    content,
			CreatedAt:  now,
		})
	}
	if len(msgs) == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40049, "分享失败，请检查好友关系")
		return
	}
	if err := p.messages.Send(rctx, msgs...); err != nil {
		serviceError(ctx, err)
		return
	}
	utils.SuccessMsg(ctx, fmt.Sprintf("成功分享给 %d 位好友", len(msgs)), gin.H{"sharedCount": len(msgs)})
}

// DeletePost removes the caller's post with its likes and comments; the cover is scheduled for cleanup.
func (p *PlazaController) DeletePost(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	post, ok := p.findPost(ctx, id)
	if !ok {
		return
	}
	if post.AuthorID != userID {
		utils.Error(ctx, http.StatusForbidden, 40340, "只能删除自己的帖子")
		return
	}

	err := p.db.WithContext(ctx.Request.Context()).Transaction(func(tx *gorm.DB) error {
		comments := tx.Model(&models.PlazaComment{}).Select("id").Where("post_id = ?", id)
		if err := tx.Where("comment_id IN (?)", comments).Delete(&models.PlazaCommentLike{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&models.PlazaLike{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&models.PlazaComment{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.PlazaPost{}, id).Error; err != nil {
			return err
		}
		return p.uploads.Release(tx, post.CoverImage, time.Now())
	})
	if err != nil {
		dbError(ctx, err)
		return
	}
	p.invalidate(ctx)
	utils.SuccessMsg(ctx, "帖子删除成功", nil)
}
