package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/imalive/server/models"
)

// AreFriends reports whether a and b have an accepted friendship in either direction.
func AreFriends(ctx context.Context, db *gorm.DB, a, b uint) (bool, error) {
	if a == b {
		return false, nil
	}
	var n int64
	err := db.WithContext(ctx).Model(&models.Friendship{}).
		Where("status = ?", models.FriendshipAccepted).
		Where("(requester_id = ? AND addressee_id = ?) OR (requester_id = ? AND addressee_id = ?)", a, b, b, a).
		Count(&n).Error
	if err != nil {
		return false, storageErr(err)
	}
	return n > 0, nil
}

// FriendIDs lists the ids of userID's accepted friends.
func FriendIDs(ctx context.Context, db *gorm.DB, userID uint) ([]uint, error) {
	var rows []models.Friendship
	err := db.WithContext(ctx).
		Where("status = ? AND (requester_id = ? OR addressee_id = ?)", models.FriendshipAccepted, userID, userID).
		Find(&rows).Error
	if err != nil {
		return nil, storageErr(err)
	}
	ids := make([]uint, 0, len(rows))
	for _, f := range rows {
		if f.RequesterID == userID {
			ids = append(ids, f.AddresseeID)
		} else {
			ids = append(ids, f.RequesterID)
		}
	}
	return ids, nil
}
