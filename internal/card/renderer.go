package card

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const maxImageBytes = 20 << 20

// Renderer writes a rendered card image to dst.
type Renderer interface {
	Render(ctx context.Context, c Card, dst string) error
}

// RenderError is a non-2xx response from the screenshot service.
type RenderError struct {
	StatusCode int
	Body       string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("card render failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// ScreenshotRenderer renders markup through a headless-chromium screenshot
// service that accepts an HTML form upload.
type ScreenshotRenderer struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewScreenshotRenderer(baseURL string, logger *slog.Logger) *ScreenshotRenderer {
	return &ScreenshotRenderer{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

func (r *ScreenshotRenderer) Render(ctx context.Context, c Card, dst string) error {
	html, err := Markup(c)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("files", "index.html")
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.WriteString(part, html); err != nil {
		return fmt.Errorf("write markup: %w", err)
	}
	// width and height set the viewport only; the screenshot keeps the
	// full page height.
	fields := map[string]string{
		"width":          strconv.Itoa(Width),
		"height":         strconv.Itoa(Height),
		"clip":           "false",
		"omitBackground": "true",
		"format":         "png",
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close form: %w", err)
	}

	url := r.baseURL + "/forms/chromium/screenshot/html"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RenderError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	img, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	if len(img) == 0 {
		return fmt.Errorf("renderer returned an empty image")
	}
	if err := os.WriteFile(dst, img, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}

	r.logger.Debug("card rendered", "bytes", len(img), "title", c.Title)
	return nil
}
