package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/imalive/server/models"
	"github.com/imalive/server/utils"
)

// AccountService handles account level operations that span many tables.
type AccountService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAccountService(db *gorm.DB) *AccountService {
	return &AccountService{db: db, now: time.Now}
}

// Erase deletes userID and everything the user owns after verifying password.
// Either every row goes or none does.
func (s *AccountService) Erase(ctx context.Context, userID uint, password string) error {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return storageErr(err)
	}
	if !utils.CheckPassword(user.PasswordHash, password) {
		return ErrWrongPassword
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return eraseUser(tx, userID, s.now())
	})
	if err != nil {
		return storageErr(err)
	}
	return nil
}

func eraseUser(tx *gorm.DB, userID uint, now time.Time) error {
	steps := []struct {
		name string
		run  func() error
	}{
		{"user achievements", func() error {
			return tx.Where("user_id = ?", userID).Delete(&models.UserAchievement{}).Error
		}},
		{"check-ins", func() error {
			return tx.Where("user_id = ?", userID).Delete(&models.CheckIn{}).Error
		}},
		{"friendships", func() error {
			return tx.Where("requester_id = ? OR addressee_id = ?", userID, userID).Delete(&models.Friendship{}).Error
		}},
		{"messages", func() error {
			return tx.Where("sender_id = ? OR receiver_id = ?", userID, userID).Delete(&models.Message{}).Error
		}},
		{"chat", func() error { return eraseChat(tx, userID) }},
		{"plaza", func() error { return erasePlaza(tx, userID) }},
		{"uploads", func() error {
			return tx.Model(&models.UploadedFile{}).
				Where("owner_id = ? AND (expire_at IS NULL OR expire_at > ?)", userID, now).
				Update("expire_at", now).Error
		}},
		{"user", func() error {
			return tx.Delete(&models.User{}, userID).Error
		}},
	}
	for _, st := range steps {
		if err := st.run(); err != nil {
			return fmt.Errorf("erase %s: %w", st.name, err)
		}
	}
	return nil
}

func eraseChat(tx *gorm.DB, userID uint) error {
	convs := tx.Model(&models.Conversation{}).Select("id").Where("user1_id = ? OR user2_id = ?", userID, userID)
	if err := tx.Where("conversation_id IN (?)", convs).Delete(&models.ChatMessage{}).Error; err != nil {
		return err
	}
	return tx.Where("user1_id = ? OR user2_id = ?", userID, userID).Delete(&models.Conversation{}).Error
}

func erasePlaza(tx *gorm.DB, userID uint) error {
	var postIDs []uint
	if err := tx.Model(&models.PlazaPost{}).Where("author_id = ?", userID).Pluck("id", &postIDs).Error; err != nil {
		return err
	}

	// comments to remove: the user's own, replies to them, and everything under the user's posts
	var commentIDs []uint
	q := tx.Model(&models.PlazaComment{}).Where("user_id = ?", userID)
	if len(postIDs) > 0 {
		q = q.Or("post_id IN ?", postIDs)
	}
	if err := q.Pluck("id", &commentIDs).Error; err != nil {
		return err
	}
	if len(commentIDs) > 0 {
		var replyIDs []uint
		if err := tx.Model(&models.PlazaComment{}).Where("parent_id IN ?", commentIDs).Pluck("id", &replyIDs).Error; err != nil {
			return err
		}
		commentIDs = utils.UniqueUint(append(commentIDs, replyIDs...))
	}

	// posts by others whose counters change
	var touched []uint
	if err := tx.Model(&models.PlazaLike{}).Where("user_id = ?", userID).Pluck("post_id", &touched).Error; err != nil {
		return err
	}
	if len(commentIDs) > 0 {
		var commented []uint
		if err := tx.Model(&models.PlazaComment{}).Where("id IN ?", commentIDs).Pluck("post_id", &commented).Error; err != nil {
			return err
		}
		touched = append(touched, commented...)
	}

	likeQ := tx.Where("user_id = ?", userID)
	if len(commentIDs) > 0 {
		likeQ = likeQ.Or("comment_id IN ?", commentIDs)
	}
	if err := likeQ.Delete(&models.PlazaCommentLike{}).Error; err != nil {
		return err
	}
	postLikeQ := tx.Where("user_id = ?", userID)
	if len(postIDs) > 0 {
		postLikeQ = postLikeQ.Or("post_id IN ?", postIDs)
	}
	if err := postLikeQ.Delete(&models.PlazaLike{}).Error; err != nil {
		return err
	}
	if len(commentIDs) > 0 {
		if err := tx.Where("id IN ?", commentIDs).Delete(&models.PlazaComment{}).Error; err != nil {
			return err
		}
	}
	if err := tx.Where("author_id = ?", userID).Delete(&models.PlazaPost{}).Error; err != nil {
		return err
	}
	return RecountPosts(tx, utils.UniqueUint(touched))
}

// RecountPosts recomputes like and comment counters for the given posts from their rows.
func RecountPosts(tx *gorm.DB, postIDs []uint) error {
	if len(postIDs) == 0 {
		return nil
	}
	return tx.Model(&models.PlazaPost{}).Where("id IN ?", postIDs).Updates(map[string]interface{}{
		"likes_count":    gorm.Expr("(SELECT COUNT(*) FROM plaza_likes WHERE plaza_likes.post_id = plaza_posts.id)"),
		"comments_count": gorm.Expr("(SELECT COUNT(*) FROM plaza_comments WHERE plaza_comments.post_id = plaza_posts.id)"),
	}).Error
}
