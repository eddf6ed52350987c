package dto

import (
	"time"

	"github.com/noah-isme/officehub-api/internal/models"
)

// NotificationCreateRequest describes the payload to create a notification.
type NotificationCreateRequest struct {
	RecipientID uint                        `json:"recipient_id" validate:"required,gt=0"`
	Message     string                      `json:"message" validate:"required,min=1,max=2000"`
	Category    models.NotificationCategory `json:"category" validate:"required,oneof=reminder update overdue new"`
	Priority    models.NotificationPriority `json:"priority" validate:"omitempty,oneof=low medium high"`
	TaskID      *uint                       `json:"task_id" validate:"omitempty,gt=0"`
	ReportID    *uint                       `json:"report_id" validate:"omitempty,gt=0"`
}

// NotificationResponse represents notification data returned to clients.
type NotificationResponse struct {
	ID        uint                        `json:"id"`
	UserID    uint                        `json:"user_id"`
	Message   string                      `json:"message"`
	Category  models.NotificationCategory `json:"category"`
	Priority  models.NotificationPriority `json:"priority"`
	IsRead    bool                        `json:"is_read"`
	TaskID    *uint                       `json:"task_id,omitempty"`
	ReportID  *uint                       `json:"report_id,omitempty"`
	Subject   string                      `json:"subject,omitempty"`
	CreatedAt time.Time                   `json:"created_at"`
}

// SweepResponse reports how many notifications a sweep emitted.
type SweepResponse struct {
	Created int `json:"created"`
}

// MarkAllReadResponse reports how many notifications were flipped.
type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}

// NewNotificationResponse converts a notification model to DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        model.ID,
		UserID:    model.UserID,
		Message:   model.Message,
		Category:  model.Category,
		Priority:  model.Priority,
		IsRead:    model.IsRead,
		TaskID:    model.TaskID,
		ReportID:  model.ReportID,
		CreatedAt: model.CreatedAt,
	}
}

// NewNotificationWithSubjectResponseSlice converts joined rows to DTOs.
func NewNotificationWithSubjectResponseSlice(items []models.NotificationWithSubject) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NotificationResponse{
			ID:        item.ID,
			UserID:    item.UserID,
			Message:   item.Message,
			Category:  item.Category,
			Priority:  item.Priority,
			IsRead:    item.IsRead,
			TaskID:    item.TaskID,
			ReportID:  item.ReportID,
			Subject:   item.Subject,
			CreatedAt: item.CreatedAt,
		})
	}
	return out
}
