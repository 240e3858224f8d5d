package models

// All lists every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&CheckIn{},
		&Achievement{},
		&UserAchievement{},
		&Friendship{},
		&Message{},
		&Conversation{},
		&ChatMessage{},
		&PlazaPost{},
		&PlazaLike{},
		&PlazaComment{},
		&PlazaCommentLike{},
		&UploadedFile{},
		&RequestCount{},
	}
}
