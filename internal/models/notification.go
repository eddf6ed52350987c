package models

import "time"

// NotificationCategory groups notifications by what triggered them.
type NotificationCategory string

const (
	NotificationReminder NotificationCategory = "reminder"
	NotificationUpdate   NotificationCategory = "update"
	NotificationOverdue  NotificationCategory = "overdue"
	NotificationNew      NotificationCategory = "new"
)

// NotificationPriority orders notifications by urgency.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
)

// Notification is an append-only alert addressed to one user.
type Notification struct {
	ID        uint                 `gorm:"primaryKey" json:"id"`
	UserID    uint                 `gorm:"not null;index:idx_notification_user_created" json:"user_id"`
	Message   string               `gorm:"type:text;not null" json:"message"`
	Category  NotificationCategory `gorm:"size:16;not null;index" json:"category"`
	Priority  NotificationPriority `gorm:"size:16;not null;default:medium" json:"priority"`
	IsRead    bool                 `gorm:"not null;default:false" json:"is_read"`
	TaskID    *uint                `gorm:"index" json:"task_id,omitempty"`
	ReportID  *uint                `gorm:"index" json:"report_id,omitempty"`
	CreatedAt time.Time            `gorm:"index:idx_notification_user_created" json:"created_at"`
}

// NotificationWithSubject carries the title of the task or report a notification refers to.
type NotificationWithSubject struct {
	ID        uint
	UserID    uint
	Message   string
	Category  NotificationCategory
	Priority  NotificationPriority
	IsRead    bool
	TaskID    *uint
	ReportID  *uint
	CreatedAt time.Time
	Subject   string
}

// ReminderCandidate is a work item that qualifies for a sweep notification.
type ReminderCandidate struct {
	TaskID      uint
	Title       string
	RecipientID uint
	DueDate     time.Time
}
