package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/imalive/server/models"
)

type world struct {
	db         *gorm.DB
	alice, bob models.User
	bobPost    models.PlazaPost
	alicePost  models.PlazaPost
}

// seedWorld gives alice rows in every table, some of them touching bob's content.
func seedWorld(t *testing.T) *world {
	t.Helper()
	db := newTestDB(t)
	w := &world{db: db}
	w.alice = createUser(t, db, "alice", "secret1")
	w.bob = createUser(t, db, "bob", "secret2")
	befriend(t, db, w.alice.ID, w.bob.ID)
	seedCheckIns(t, db, w.alice.ID, day1, day1.AddDays(1))
	seedCheckIns(t, db, w.bob.ID, day1)
	require.NoError(t, db.Create(&models.UserAchievement{UserID: w.alice.ID, AchievementID: 1, UnlockedAt: time.Now()}).Error)
	require.NoError(t, db.Create(&models.UserAchievement{UserID: w.bob.ID, AchievementID: 1, UnlockedAt: time.Now()}).Error)
	require.NoError(t, db.Create(&models.Message{SenderID: w.bob.ID, ReceiverID: w.alice.ID, Kind: models.MessageSystem, Content: "hi"}).Error)
	require.NoError(t, db.Create(&models.Message{SenderID: models.SystemSenderID, ReceiverID: w.bob.ID, Kind: models.MessageReminder, Content: "check in"}).Error)

	conv := models.Conversation{User1ID: w.alice.ID, User2ID: w.bob.ID, LastMessageAt: time.Now()}
	require.NoError(t, db.Create(&conv).Error)
	require.NoError(t, db.Create(&models.ChatMessage{ConversationID: conv.ID, SenderID: w.bob.ID, Content: "hey"}).Error)

	w.bobPost = models.PlazaPost{AuthorID: w.bob.ID, Title: "bob", Content: "post"}
	w.alicePost = models.PlazaPost{AuthorID: w.alice.ID, Title: "alice", Content: "post", CoverImage: "/uploads/covers/a.png"}
	require.NoError(t, db.Create(&w.bobPost).Error)
	require.NoError(t, db.Create(&w.alicePost).Error)
	require.NoError(t, db.Create(&models.UploadedFile{OwnerID: w.alice.ID, FilePath: "a.png", URL: w.alicePost.CoverImage}).Error)

	// alice likes and comments on bob's post; bob replies to alice and comments on alice's post
	require.NoError(t, db.Create(&models.PlazaLike{PostID: w.bobPost.ID, UserID: w.alice.ID}).Error)
	require.NoError(t, db.Create(&models.PlazaLike{PostID: w.bobPost.ID, UserID: w.bob.ID}).Error)
	aliceComment := models.PlazaComment{PostID: w.bobPost.ID, UserID: w.alice.ID, Content: "nice"}
	require.NoError(t, db.Create(&aliceComment).Error)
	require.NoError(t, db.Create(&models.PlazaComment{PostID: w.bobPost.ID, UserID: w.bob.ID, ParentID: &aliceComment.ID, Content: "thanks"}).Error)
	bobOwn := models.PlazaComment{PostID: w.bobPost.ID, UserID: w.bob.ID, Content: "mine"}
	require.NoError(t, db.Create(&bobOwn).Error)
	require.NoError(t, db.Create(&models.PlazaComment{PostID: w.alicePost.ID, UserID: w.bob.ID, Content: "on alice"}).Error)
	require.NoError(t, db.Create(&models.PlazaCommentLike{CommentID: bobOwn.ID, UserID: w.alice.ID}).Error)
	require.NoError(t, RecountPosts(db, []uint{w.bobPost.ID, w.alicePost.ID}))
	return w
}

func count(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func TestEraseRemovesEverythingOwned(t *testing.T) {
	w := seedWorld(t)
	db, alice, bob := w.db, w.alice.ID, w.bob.ID

	require.NoError(t, NewAccountService(db).Erase(context.Background(), alice, "secret1"))

	assert.Zero(t, count(t, db, &models.User{}, "id = ?", alice))
	assert.Zero(t, count(t, db, &models.CheckIn{}, "user_id = ?", alice))
	assert.Zero(t, count(t, db, &models.UserAchievement{}, "user_id = ?", alice))
	assert.Zero(t, count(t, db, &models.Friendship{}, ""))
	assert.Zero(t, count(t, db, &models.Message{}, "sender_id = ? OR receiver_id = ?", alice, alice))
	assert.Zero(t, count(t, db, &models.Conversation{}, ""))
	assert.Zero(t, count(t, db, &models.ChatMessage{}, ""))
	assert.Zero(t, count(t, db, &models.PlazaPost{}, "author_id = ?", alice))
	assert.Zero(t, count(t, db, &models.PlazaLike{}, "user_id = ?", alice))
	assert.Zero(t, count(t, db, &models.PlazaCommentLike{}, ""))
	assert.Zero(t, count(t, db, &models.PlazaComment{}, "user_id = ?", alice))
	assert.Zero(t, count(t, db, &models.PlazaComment{}, "post_id = ?", w.alicePost.ID))
	assert.Zero(t, count(t, db, &models.UploadedFile{}, "owner_id = ? AND expire_at IS NULL", alice))

	// bob keeps his own data; the reply to alice's comment went with it
	assert.EqualValues(t, 1, count(t, db, &models.User{}, ""))
	assert.EqualValues(t, 1, count(t, db, &models.CheckIn{}, "user_id = ?", bob))
	assert.EqualValues(t, 1, count(t, db, &models.UserAchievement{}, "user_id = ?", bob))
	assert.EqualValues(t, 1, count(t, db, &models.Message{}, "receiver_id = ?", bob))
	assert.EqualValues(t, 1, count(t, db, &models.PlazaComment{}, "post_id = ?", w.bobPost.ID))

	var post models.PlazaPost
	require.NoError(t, db.First(&post, w.bobPost.ID).Error)
	assert.EqualValues(t, 1, post.LikesCount)
	assert.EqualValues(t, 1, post.CommentsCount)
}

func TestEraseWrongPasswordKeepsData(t *testing.T) {
	w := seedWorld(t)
	err := NewAccountService(w.db).Erase(context.Background(), w.alice.ID, "nope")
	assert.ErrorIs(t, err, ErrWrongPassword)
	assert.EqualValues(t, 2, count(t, w.db, &models.CheckIn{}, "user_id = ?", w.alice.ID))

	err = NewAccountService(w.db).Erase(context.Background(), 999, "secret1")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestEraseIsAllOrNothing(t *testing.T) {
	w := seedWorld(t)
	// the final step fails after every other table was touched
	err := w.db.Callback().Delete().Before("gorm:delete").Register("test:fail_users", func(tx *gorm.DB) {
		if tx.Statement.Table == "users" {
			_ = tx.AddError(errors.New("users table locked"))
		}
	})
	require.NoError(t, err)

	err = NewAccountService(w.db).Erase(context.Background(), w.alice.ID, "secret1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	require.NoError(t, w.db.Callback().Delete().Remove("test:fail_users"))
	assert.EqualValues(t, 2, count(t, w.db, &models.User{}, ""))
	assert.EqualValues(t, 2, count(t, w.db, &models.CheckIn{}, "user_id = ?", w.alice.ID))
	assert.EqualValues(t, 1, count(t, w.db, &models.Friendship{}, ""))
	assert.EqualValues(t, 1, count(t, w.db, &models.ChatMessage{}, ""))
	assert.EqualValues(t, 1, count(t, w.db, &models.PlazaPost{}, "author_id = ?", w.alice.ID))
	assert.EqualValues(t, 1, count(t, w.db, &models.UploadedFile{}, "expire_at IS NULL"))
}
