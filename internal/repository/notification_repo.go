package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/officehub-api/internal/models"
)

// SweepWindow selects open tasks whose due date falls inside a window and that have not been notified recently.
type SweepWindow struct {
	DueAfter      *time.Time
	DueBefore     time.Time
	Category      models.NotificationCategory
	SuppressSince time.Time
}

// NotificationRepository handles persistence for notification entities.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByUser(ctx context.Context, userID uint, unreadOnly bool, limit int) ([]models.NotificationWithSubject, error)
	MarkRead(ctx context.Context, id, userID uint) (models.Notification, error)
	MarkAllRead(ctx context.Context, userID uint) (int64, error)
	ListSweepCandidates(ctx context.Context, window SweepWindow) ([]models.ReminderCandidate, error)
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository constructs a repository backed by GORM.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// Create commits the notification in a transaction of its own on the repository handle.
func (r *notificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(notification).Error
	})
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID uint, unreadOnly bool, limit int) ([]models.NotificationWithSubject, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}

	query := r.db.WithContext(ctx).
		Table("notifications AS n").
		Select("n.id, n.user_id, n.message, n.category, n.priority, n.is_read, n.task_id, n.report_id, n.created_at, COALESCE(t.title, r.title, '') AS subject").
		Joins("LEFT JOIN tasks AS t ON t.id = n.task_id").
		Joins("LEFT JOIN reports AS r ON r.id = n.report_id").
		Where("n.user_id = ?", userID)
	if unreadOnly {
		query = query.Where("n.is_read = ?", false)
	}

	var rows []models.NotificationWithSubject
	if err := query.Order("n.created_at DESC").Order("n.id DESC").Limit(limit).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id, userID uint) (models.Notification, error) {
	var notification models.Notification
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&notification).Error; err != nil {
		return models.Notification{}, err
	}

	if notification.IsRead {
		return notification, nil
	}

	if err := r.db.WithContext(ctx).Model(&notification).UpdateColumn("is_read", true).Error; err != nil {
		return models.Notification{}, err
	}
	notification.IsRead = true

	return notification, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		UpdateColumn("is_read", true)
	return result.RowsAffected, result.Error
}

// ListSweepCandidates resolves every qualifying (task, assignee) pair in a single query.
func (r *notificationRepository) ListSweepCandidates(ctx context.Context, window SweepWindow) ([]models.ReminderCandidate, error) {
	query := r.db.WithContext(ctx).
		Table("tasks AS t").
		Select("t.id AS task_id, t.title AS title, t.assignee_id AS recipient_id, t.due_date AS due_date").
		Where("t.assignee_id IS NOT NULL AND t.due_date IS NOT NULL").
		Where("t.status NOT IN ?", models.ClosedTaskStatuses).
		Where("t.due_date < ?", window.DueBefore)
	if window.DueAfter != nil {
		query = query.Where("t.due_date >= ?", *window.DueAfter)
	}
	query = query.Where(
		"NOT EXISTS (SELECT 1 FROM notifications AS n WHERE n.task_id = t.id AND n.user_id = t.assignee_id AND n.category = ? AND n.created_at >= ?)",
		window.Category, window.SuppressSince,
	)

	var candidates []models.ReminderCandidate
	if err := query.Order("t.due_date ASC").Order("t.id ASC").Scan(&candidates).Error; err != nil {
		return nil, err
	}
	return candidates, nil
}
