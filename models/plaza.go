package models

import "time"

// PlazaPost is a public post. Counters are maintained in the same transaction as the rows they count.
type PlazaPost struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	AuthorID      uint      `gorm:"not null;index" json:"author_id"`
	Title         string    `gorm:"size:100;not null" json:"title"`
	Content       string    `gorm:"type:text;not null" json:"content"`
	CoverImage    string    `gorm:"size:255" json:"cover_image"`
	Tags          string    `gorm:"size:255" json:"tags"`
	ViewsCount    int64     `gorm:"not null;default:0;index" json:"views_count"`
	LikesCount    int64     `gorm:"not null;default:0;index" json:"likes_count"`
	CommentsCount int64     `gorm:"not null;default:0" json:"comments_count"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PlazaLike is one user's like on a post.
type PlazaLike struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_plaza_like,priority:1" json:"post_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_plaza_like,priority:2;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// PlazaComment is a comment on a post; replies carry the parent comment id.
type PlazaComment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"not null;index" json:"post_id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	ParentID  *uint     `gorm:"index" json:"parent_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PlazaCommentLike is one user's like on a comment or reply.
type PlazaCommentLike struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CommentID uint      `gorm:"not null;uniqueIndex:idx_plaza_comment_like,priority:1" json:"comment_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_plaza_comment_like,priority:2;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
