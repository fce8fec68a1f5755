package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ticketflow/helpdesk/internal/config"
	"github.com/ticketflow/helpdesk/internal/domain"
	apperrors "github.com/ticketflow/helpdesk/pkg/util"
)

// MaxFileSize is the inclusive upload size limit.
const MaxFileSize = 10 * 1024 * 1024

var allowedMIMETypes = map[string]struct{}{
	"image/jpeg":         {},
	"image/png":          {},
	"image/gif":          {},
	"application/pdf":    {},
	"text/plain":         {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
}

// File is an attachment candidate held in memory so a failed upload can be
// replayed.
type File struct {
	Name        string
	ContentType string
	Content     []byte
}

// Uploader sends a file to the attachment store and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, file File) (*domain.Attachment, error)
}

// ValidateFile enforces the size and MIME preconditions. It runs before any
// network call so oversized or unsupported files fail fast.
func ValidateFile(file File) error {
	if int64(len(file.Content)) > MaxFileSize {
		return apperrors.NewValidationError(
			fmt.Sprintf("file exceeds the %d MB limit", MaxFileSize/(1024*1024)),
			map[string]any{"size_bytes": len(file.Content)},
		)
	}
	if _, ok := allowedMIMETypes[file.ContentType]; !ok {
		return apperrors.NewValidationError(
			"unsupported file type; use JPEG, PNG, GIF, PDF, TXT, DOC or DOCX",
			map[string]any{"content_type": file.ContentType},
		)
	}
	return nil
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	Error     struct {
		Message string `json:"message"`
	} `json:"error"`
}

// HTTPUploader posts multipart uploads to an unsigned upload endpoint.
// Network and 5xx failures are retried twice with a fixed delay; 4xx
// responses are configuration or validation problems and are terminal.
type HTTPUploader struct {
	cfg        config.UploadConfig
	client     *http.Client
	logger     *zap.Logger
	retryDelay time.Duration
}

// NewHTTPUploader builds the uploader.
func NewHTTPUploader(cfg config.UploadConfig, logger *zap.Logger) *HTTPUploader {
	return &HTTPUploader{
		cfg:        cfg,
		client:     &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
		retryDelay: 2 * time.Second,
	}
}

// Upload validates then sends the file, returning its public URL and name.
func (u *HTTPUploader) Upload(ctx context.Context, file File) (*domain.Attachment, error) {
	if err := ValidateFile(file); err != nil {
		return nil, err
	}

	const extraAttempts = 2
	var lastErr error
	for attempt := 0; attempt <= extraAttempts; attempt++ {
		if attempt > 0 {
			u.logger.Warn("retrying attachment upload",
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, apperrors.NewUnavailable("upload cancelled", ctx.Err())
			case <-time.After(u.retryDelay):
			}
		}

		attachment, retryable, err := u.tryUpload(ctx, file)
		if err == nil {
			return attachment, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (u *HTTPUploader) tryUpload(ctx context.Context, file File) (*domain.Attachment, bool, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", file.Name)
	if err != nil {
		return nil, false, err
	}
	if _, err := part.Write(file.Content); err != nil {
		return nil, false, err
	}
	if err := writer.WriteField("upload_preset", u.cfg.UploadPreset); err != nil {
		return nil, false, err
	}
	if err := writer.WriteField("folder", u.cfg.Folder); err != nil {
		return nil, false, err
	}
	if err := writer.Close(); err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.cfg.UploadURL(), &body)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, true, apperrors.NewUnavailable("attachment store unreachable", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, apperrors.NewUnavailable("attachment store response unreadable", err)
	}

	var parsed uploadResponse
	_ = json.Unmarshal(payload, &parsed)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if parsed.SecureURL == "" {
			return nil, false, apperrors.NewInternalError(fmt.Errorf("upload succeeded without a secure URL"))
		}
		return &domain.Attachment{URL: parsed.SecureURL, Name: file.Name}, false, nil
	case resp.StatusCode >= 500:
		return nil, true, apperrors.NewUnavailable(
			fmt.Sprintf("attachment store error (%d)", resp.StatusCode), nil)
	default:
		message := parsed.Error.Message
		if message == "" {
			message = fmt.Sprintf("upload rejected (%d)", resp.StatusCode)
		}
		return nil, false, apperrors.NewValidationError(message, nil)
	}
}
