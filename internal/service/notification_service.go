package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/officehub-api/internal/dto"
	"github.com/noah-isme/officehub-api/internal/models"
	"github.com/noah-isme/officehub-api/internal/observability"
	"github.com/noah-isme/officehub-api/internal/repository"
	"github.com/noah-isme/officehub-api/pkg/mailer"
)

const (
	defaultMailTimeout       = 10 * time.Second
	defaultNotificationPage  = 50
	overdueSuppressionWindow = 23 * time.Hour
	upcomingLookahead        = 24 * time.Hour
	upcomingSuppression      = 12 * time.Hour
)

// NotificationPusher delivers a persisted notification to the recipient's live sessions.
type NotificationPusher interface {
	PushToUser(ctx context.Context, userID uint, notification dto.NotificationResponse)
}

// AddressBook resolves a user's e-mail address.
type AddressBook interface {
	EmailFor(ctx context.Context, userID uint) (string, error)
}

// NotificationConfig tunes the dispatcher.
type NotificationConfig struct {
	MailTimeout time.Duration
	PageSize    int
}

// NotificationService persists notifications and fans them out to e-mail and realtime sessions.
type NotificationService interface {
	Create(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
	ListForUser(ctx context.Context, userID uint, unreadOnly bool) ([]dto.NotificationResponse, error)
	MarkRead(ctx context.Context, id, userID uint) (dto.NotificationResponse, error)
	MarkAllRead(ctx context.Context, userID uint) (int64, error)
	ScanOverdue(ctx context.Context) (int, error)
	ScanUpcoming(ctx context.Context) (int, error)
}

type notificationService struct {
	repo      repository.NotificationRepository
	addresses AddressBook
	mail      MailSender
	pusher    NotificationPusher
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
	cfg       NotificationConfig
	now       func() time.Time
}

// NewNotificationService constructs the dispatcher. A nil pusher disables realtime delivery and a nil
// mail sender disables e-mail.
func NewNotificationService(repo repository.NotificationRepository, addresses AddressBook, mail MailSender, pusher NotificationPusher, validate *validator.Validate, cfg NotificationConfig, logger zerolog.Logger) NotificationService {
	if cfg.MailTimeout <= 0 {
		cfg.MailTimeout = defaultMailTimeout
	}
	if cfg.PageSize <= 0 || cfg.PageSize > defaultNotificationPage {
		cfg.PageSize = defaultNotificationPage
	}

	return &notificationService{
		repo:      repo,
		addresses: addresses,
		mail:      mail,
		pusher:    pusher,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "notification_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/officehub-api/internal/service/notification"),
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create commits the notification first; e-mail and push never cause it to fail once stored.
func (s *notificationService) Create(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	if err := validateStruct(s.validator, payload); err != nil {
		return dto.NotificationResponse{}, err
	}

	clean := plainText(s.sanitizer, payload.Message)
	if clean == "" {
		return dto.NotificationResponse{}, validationError("notification message empty after sanitization")
	}

	priority := payload.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}

	ctx, span := s.tracer.Start(ctx, "notifications.create", trace.WithAttributes(
		attribute.Int("notification.user_id", int(payload.RecipientID)),
		attribute.String("notification.category", string(payload.Category)),
	))
	defer span.End()

	model := models.Notification{
		UserID:   payload.RecipientID,
		Message:  clean,
		Category: payload.Category,
		Priority: priority,
		TaskID:   payload.TaskID,
		ReportID: payload.ReportID,
	}

	if err := s.repo.Create(ctx, &model); err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}
	observability.NotificationsCreated().WithLabelValues(string(model.Category)).Inc()

	response := dto.NewNotificationResponse(model)

	if err := s.sendMail(ctx, model); err != nil {
		observability.DeliveryFailures().WithLabelValues("email").Inc()
		s.logger.Warn().Err(err).Uint("notification_id", model.ID).Uint("user_id", model.UserID).Msg("notification e-mail not delivered")
	}

	if s.pusher != nil {
		s.pusher.PushToUser(ctx, model.UserID, response)
	}

	return response, nil
}

// sendMail runs detached from the caller's cancellation but bounded by the mail timeout.
func (s *notificationService) sendMail(ctx context.Context, model models.Notification) error {
	if s.mail == nil || s.addresses == nil {
		return nil
	}

	mailCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.MailTimeout)
	defer cancel()

	address, err := s.addresses.EmailFor(mailCtx, model.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Debug().Uint("user_id", model.UserID).Msg("notification recipient has no address")
			return nil
		}
		return fmt.Errorf("%w: resolve recipient address: %w", ErrTransient, err)
	}
	if strings.TrimSpace(address) == "" {
		return nil
	}

	msg := mailer.Message{
		To:      address,
		Subject: mailSubject(model),
		Body:    model.Message,
	}
	if err := s.mail.Send(mailCtx, msg); err != nil {
		return fmt.Errorf("%w: send e-mail: %w", ErrTransient, err)
	}
	return nil
}

func mailSubject(model models.Notification) string {
	switch model.Category {
	case models.NotificationOverdue:
		return "Overdue task"
	case models.NotificationReminder:
		return "Upcoming deadline"
	case models.NotificationUpdate:
		return "Update"
	default:
		return "New notification"
	}
}

func (s *notificationService) ListForUser(ctx context.Context, userID uint, unreadOnly bool) ([]dto.NotificationResponse, error) {
	if userID == 0 {
		return nil, validationError("user id is required")
	}

	rows, err := s.repo.ListByUser(ctx, userID, unreadOnly, s.cfg.PageSize)
	if err != nil {
		return nil, err
	}
	return dto.NewNotificationWithSubjectResponseSlice(rows), nil
}

func (s *notificationService) MarkRead(ctx context.Context, id, userID uint) (dto.NotificationResponse, error) {
	ctx, span := s.tracer.Start(ctx, "notifications.mark_read", trace.WithAttributes(attribute.Int("notification.user_id", int(userID))))
	defer span.End()

	notification, err := s.repo.MarkRead(ctx, id, userID)
	if err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, lookupError(err, "notification")
	}
	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

// ScanOverdue notifies assignees of open tasks past their due date, at most once per 23 hours.
func (s *notificationService) ScanOverdue(ctx context.Context) (int, error) {
	now := s.now()
	return s.sweep(ctx, "notifications.scan_overdue", repository.SweepWindow{
		DueBefore:     now,
		Category:      models.NotificationOverdue,
		SuppressSince: now.Add(-overdueSuppressionWindow),
	}, models.PriorityHigh, func(c models.ReminderCandidate) string {
		return fmt.Sprintf("Task %q is overdue (was due %s UTC)", c.Title, c.DueDate.UTC().Format("2006-01-02 15:04"))
	})
}

// ScanUpcoming reminds assignees of open tasks due within a day, at most once per 12 hours.
func (s *notificationService) ScanUpcoming(ctx context.Context) (int, error) {
	now := s.now()
	return s.sweep(ctx, "notifications.scan_upcoming", repository.SweepWindow{
		DueAfter:      &now,
		DueBefore:     now.Add(upcomingLookahead),
		Category:      models.NotificationReminder,
		SuppressSince: now.Add(-upcomingSuppression),
	}, models.PriorityMedium, func(c models.ReminderCandidate) string {
		return fmt.Sprintf("Task %q is due %s UTC", c.Title, c.DueDate.UTC().Format("2006-01-02 15:04"))
	})
}

func (s *notificationService) sweep(ctx context.Context, name string, window repository.SweepWindow, priority models.NotificationPriority, text func(models.ReminderCandidate) string) (int, error) {
	ctx, span := s.tracer.Start(ctx, name)
	defer span.End()

	candidates, err := s.repo.ListSweepCandidates(ctx, window)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	created := 0
	for _, candidate := range candidates {
		taskID := candidate.TaskID
		_, err := s.Create(ctx, dto.NotificationCreateRequest{
			RecipientID: candidate.RecipientID,
			Message:     text(candidate),
			Category:    window.Category,
			Priority:    priority,
			TaskID:      &taskID,
		})
		if err != nil {
			s.logger.Error().Err(err).Uint("task_id", candidate.TaskID).Uint("user_id", candidate.RecipientID).Msg("sweep notification failed")
			continue
		}
		created++
	}

	span.SetAttributes(attribute.Int("sweep.candidates", len(candidates)), attribute.Int("sweep.created", created))
	s.logger.Info().Str("sweep", string(window.Category)).Int("created", created).Msg("notification sweep finished")
	return created, nil
}
