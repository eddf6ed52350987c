package models

import "time"

// User is the subset of the account table read by the chat core.
type User struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Name  string `gorm:"size:255" json:"name"`
	Email string `gorm:"size:255;index" json:"email"`
}

// Task is the subset of the work-item table scanned by notification sweeps.
type Task struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Title      string     `gorm:"size:255;not null" json:"title"`
	AssigneeID *uint      `gorm:"index" json:"assignee_id,omitempty"`
	DueDate    *time.Time `gorm:"index" json:"due_date,omitempty"`
	Status     string     `gorm:"size:32;index" json:"status"`
}

// Report is the subset of the report table used to label notifications.
type Report struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Title string `gorm:"size:255;not null" json:"title"`
}

// ClosedTaskStatuses lists task statuses that never trigger reminders.
var ClosedTaskStatuses = []string{"done", "completed", "cancelled"}
