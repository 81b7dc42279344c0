// Package publish uploads rendered clips to the video host.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Video is one clip to publish.
type Video struct {
	Path        string
	Title       string
	Description string
	Tags        []string
}

// Publisher uploads a clip and returns the host's ID for it.
type Publisher interface {
	Publish(ctx context.Context, v Video) (string, error)
}

// UploadError represents an error from the upload endpoint.
type UploadError struct {
	StatusCode int
	Body       string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("video upload failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx) and rate limiting.
// Other client errors (4xx) are considered permanent.
func (e *UploadError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

type uploadResponse struct {
	ID string `json:"id"`
}

// HTTPPublisher streams clips as multipart uploads with a bearer token.
type HTTPPublisher struct {
	endpoint   string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPPublisher(endpoint, token string, logger *slog.Logger) *HTTPPublisher {
	return &HTTPPublisher{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		httpClient: &http.Client{
			Timeout: 15 * time.Minute,
		},
		logger: logger,
	}
}

func (p *HTTPPublisher) Publish(ctx context.Context, v Video) (string, error) {
	f, err := os.Open(v.Path)
	if err != nil {
		return "", fmt.Errorf("open clip: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat clip: %w", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, v, f))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, pr)
	if err != nil {
		pr.Close()
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("X-Request-Id", uuid.NewString())

	p.logger.Info("uploading clip",
		"title", v.Title,
		"file", filepath.Base(v.Path),
		"bytes", info.Size(),
	)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		uploadErr := &UploadError{StatusCode: resp.StatusCode, Body: string(respBody)}
		p.logger.Error("clip upload failed",
			"status", resp.StatusCode,
			"body", string(respBody),
			"retryable", uploadErr.IsRetryable(),
		)
		return "", uploadErr
	}

	var result uploadResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("upload response has no id: %s", string(respBody))
	}

	p.logger.Info("clip uploaded", "remote_id", result.ID, "title", v.Title)
	return result.ID, nil
}

func writeForm(mw *multipart.Writer, v Video, video io.Reader) error {
	fields := []struct{ k, v string }{
		{"title", v.Title},
		{"description", v.Description},
		{"tags", strings.Join(v.Tags, ",")},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.k, f.v); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("video", filepath.Base(v.Path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, video); err != nil {
		return err
	}
	return mw.Close()
}

// IsDryRun reports whether p only simulates uploads. Simulated uploads must
// not enter the upload ledger.
func IsDryRun(p Publisher) bool {
	d, ok := p.(interface{ DryRun() bool })
	return ok && d.DryRun()
}

// StubPublisher logs uploads without sending them. Used when no upload
// endpoint is configured.
type StubPublisher struct {
	logger *slog.Logger
}

func NewStubPublisher(logger *slog.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (s *StubPublisher) Publish(ctx context.Context, v Video) (string, error) {
	id := "dryrun-" + uuid.NewString()
	s.logger.Info("publish stub: upload skipped",
		"title", v.Title,
		"file", v.Path,
		"remote_id", id,
	)
	return id, nil
}

func (s *StubPublisher) DryRun() bool { return true }
