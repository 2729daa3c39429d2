package store

import (
	"context"
	"fmt"
	"time"

	"chat-realtime/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PresenceRepository struct {
	db *gorm.DB
}

func NewPresenceRepository(db *gorm.DB) *PresenceRepository {
	return &PresenceRepository{db: db}
}

func (r *PresenceRepository) SetUserStatus(ctx context.Context, userID string, status models.PresenceStatus, lastSeenAt time.Time) error {
	presence := &UserPresence{
		UserID:     userID,
		Status:     status,
		LastSeenAt: lastSeenAt.UTC(),
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "last_seen_at", "updated_at"}),
	}).Create(presence).Error
	if err != nil {
		return fmt.Errorf("failed to set status for %s: %w", userID, err)
	}
	return nil
}

func (r *PresenceRepository) GetUserStatus(ctx context.Context, userID string) (*UserPresence, error) {
	var presence UserPresence
	if err := r.db.WithContext(ctx).First(&presence, "user_id = ?", userID).Error; err != nil {
		return nil, notFound(err)
	}
	return &presence, nil
}

func (r *PresenceRepository) ListOnline(ctx context.Context) ([]UserPresence, error) {
	var presences []UserPresence
	err := r.db.WithContext(ctx).
		Where("status = ?", models.PresenceOnline).
		Order("user_id").
		Find(&presences).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list online users: %w", err)
	}
	return presences, nil
}

// MarkAllOffline resets users left online by a previous process. The live
// hub starts with no connections, so nobody is online yet.
func (r *PresenceRepository) MarkAllOffline(ctx context.Context, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&UserPresence{}).
		Where("status = ?", models.PresenceOnline).
		Updates(map[string]interface{}{
			"status":       models.PresenceOffline,
			"last_seen_at": at.UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reset presence: %w", result.Error)
	}
	return result.RowsAffected, nil
}
