package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/officehub-api/internal/observability"
	"github.com/noah-isme/officehub-api/internal/repository"
	"github.com/noah-isme/officehub-api/pkg/storage"
)

// DefaultAttachmentMaxBytes caps a single upload when no limit is configured.
const DefaultAttachmentMaxBytes int64 = 10 * 1024 * 1024

const sniffBytes = 3072

var allowedAttachmentTypes = map[string]struct{}{
	"application/pdf":    {},
	"text/plain":         {},
	"text/csv":           {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   {},
	"application/vnd.ms-excel":                                                  {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         {},
	"application/vnd.ms-powerpoint":                                             {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
}

// ObjectStorage abstracts attachment payload backends.
type ObjectStorage interface {
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Upload is a single incoming file as declared by the client.
type Upload struct {
	Reader     io.Reader
	Name       string
	MimeType   string
	Size       int64
	UploaderID uint
}

// AttachmentRef points at a stored payload that is not yet bound to a message.
type AttachmentRef struct {
	StorageKey   string
	OriginalName string
	MimeType     string
	SizeBytes    int64
	UploaderID   uint
}

// Download is an open attachment payload ready to stream.
type Download struct {
	Name     string
	MimeType string
	Size     int64
	Body     io.ReadCloser
}

// AttachmentService validates, stores and serves attachment payloads.
type AttachmentService interface {
	Accept(ctx context.Context, upload Upload) (AttachmentRef, error)
	Discard(ctx context.Context, refs []AttachmentRef)
	Open(ctx context.Context, attachmentID, requesterID uint) (Download, error)
}

type attachmentService struct {
	storage  ObjectStorage
	messages repository.MessageRepository
	maxBytes int64
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewAttachmentService constructs an attachment service.
func NewAttachmentService(store ObjectStorage, messages repository.MessageRepository, maxBytes int64, logger zerolog.Logger) AttachmentService {
	if maxBytes <= 0 {
		maxBytes = DefaultAttachmentMaxBytes
	}
	return &attachmentService{
		storage:  store,
		messages: messages,
		maxBytes: maxBytes,
		logger:   logger.With().Str("component", "attachment_service").Logger(),
		tracer:   otel.Tracer("github.com/noah-isme/officehub-api/internal/service/attachment"),
	}
}

// Accept streams the upload into storage, rejecting oversize payloads and disallowed types
// without buffering more than the sniffing window.
func (s *attachmentService) Accept(ctx context.Context, upload Upload) (AttachmentRef, error) {
	ctx, span := s.tracer.Start(ctx, "attachments.accept", trace.WithAttributes(
		attribute.String("upload.original_name", upload.Name),
		attribute.Int64("upload.declared_size", upload.Size),
		attribute.Int64("upload.max_bytes", s.maxBytes),
	))
	defer span.End()

	if upload.Reader == nil {
		return AttachmentRef{}, validationError("file is required")
	}
	if upload.Size > s.maxBytes {
		return AttachmentRef{}, s.reject(span, "size", validationError("file exceeds maximum allowed size of %d bytes", s.maxBytes))
	}

	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(upload.Reader, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		span.RecordError(err)
		return AttachmentRef{}, err
	}
	head = head[:n]

	mimeType := normalizeMime(upload.MimeType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = normalizeMime(mimetype.Detect(head).String())
	}
	span.SetAttributes(attribute.String("upload.mime", mimeType))
	if !isAllowedAttachmentType(mimeType) {
		return AttachmentRef{}, s.reject(span, "type", validationError("file type %q is not allowed", mimeType))
	}

	key, err := storageKey(upload.Name)
	if err != nil {
		span.RecordError(err)
		return AttachmentRef{}, err
	}

	body := io.LimitReader(io.MultiReader(bytes.NewReader(head), upload.Reader), s.maxBytes+1)
	written, err := s.storage.Put(ctx, key, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		return AttachmentRef{}, fmt.Errorf("store attachment: %w", err)
	}
	if written > s.maxBytes {
		if delErr := s.storage.Delete(ctx, key); delErr != nil {
			s.logger.Warn().Err(delErr).Str("storage_key", key).Msg("failed to remove oversize attachment")
		}
		return AttachmentRef{}, s.reject(span, "size", validationError("file exceeds maximum allowed size of %d bytes", s.maxBytes))
	}

	observability.AttachmentUploads().WithLabelValues(mimeType).Inc()
	span.SetStatus(codes.Ok, "stored")

	return AttachmentRef{
		StorageKey:   key,
		OriginalName: originalName(upload.Name),
		MimeType:     mimeType,
		SizeBytes:    written,
		UploaderID:   upload.UploaderID,
	}, nil
}

// Discard removes payloads that never made it into a message.
func (s *attachmentService) Discard(ctx context.Context, refs []AttachmentRef) {
	for _, ref := range refs {
		if err := s.storage.Delete(context.WithoutCancel(ctx), ref.StorageKey); err != nil {
			s.logger.Warn().Err(err).Str("storage_key", ref.StorageKey).Msg("failed to discard orphaned attachment")
		}
	}
}

func (s *attachmentService) Open(ctx context.Context, attachmentID, requesterID uint) (Download, error) {
	ctx, span := s.tracer.Start(ctx, "attachments.open", trace.WithAttributes(attribute.Int("attachment.id", int(attachmentID))))
	defer span.End()

	attachment, err := s.messages.FindAttachmentForMember(ctx, attachmentID, requesterID)
	if err != nil {
		return Download{}, lookupError(err, "attachment")
	}

	body, err := s.storage.Open(ctx, attachment.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			s.logger.Error().Uint("attachment_id", attachmentID).Str("storage_key", attachment.StorageKey).Msg("attachment payload missing from storage")
			return Download{}, notFoundError("attachment payload")
		}
		span.RecordError(err)
		return Download{}, err
	}

	return Download{
		Name:     attachment.OriginalName,
		MimeType: attachment.MimeType,
		Size:     attachment.SizeBytes,
		Body:     body,
	}, nil
}

func (s *attachmentService) reject(span trace.Span, reason string, err error) error {
	observability.AttachmentRejected().WithLabelValues(reason).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	return err
}

func normalizeMime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(value); err == nil {
		return strings.ToLower(parsed)
	}
	return strings.ToLower(value)
}

func isAllowedAttachmentType(mimeType string) bool {
	if strings.HasPrefix(mimeType, "image/") || strings.HasPrefix(mimeType, "video/") {
		return true
	}
	_, ok := allowedAttachmentTypes[mimeType]
	return ok
}

func storageKey(name string) (string, error) {
	random := make([]byte, 8)
	if _, err := rand.Read(random); err != nil {
		return "", fmt.Errorf("generate storage key: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(originalName(name)))
	if len(ext) > 16 || strings.ContainsAny(ext, "/\\") {
		ext = ""
	}
	return fmt.Sprintf("%d-%s%s", time.Now().UnixNano(), hex.EncodeToString(random), ext), nil
}

func originalName(name string) string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		return "attachment"
	}
	return name
}
