// Package screenshot hands changed jobs to an external screenshot service.
package screenshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/watchhook/watchhook/internal/metrics"
	"github.com/watchhook/watchhook/internal/watch"
)

// RequestTimeout bounds a call to the screenshot service.
const RequestTimeout = 10 * time.Second

// Capturer takes a screenshot of a job's page.
type Capturer interface {
	Capture(ctx context.Context, job watch.Job) error
}

// LogCapturer is used when no screenshot service is configured. It only
// records that a capture was requested.
type LogCapturer struct {
	Log zerolog.Logger
}

func (c LogCapturer) Capture(_ context.Context, job watch.Job) error {
	c.Log.Info().Str("job", job.DisplayName()).Str("url", job.URL).Msgf("Screenshot saved for %s", job.DisplayName())
	return nil
}

// HTTPCapturer posts {name, url} to a screenshot service.
type HTTPCapturer struct {
	ServiceURL string
	Client     *http.Client
}

type captureRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (c *HTTPCapturer) Capture(ctx context.Context, job watch.Job) error {
	b, err := json.Marshal(captureRequest{Name: job.DisplayName(), URL: job.URL})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ServiceURL, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build screenshot request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: RequestTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("screenshot service returned %d", resp.StatusCode)
	}
	return nil
}

// New returns an HTTPCapturer when serviceURL is set and a LogCapturer
// otherwise.
func New(serviceURL string, client *http.Client, log zerolog.Logger) Capturer {
	if serviceURL == "" {
		return LogCapturer{Log: log}
	}
	return &HTTPCapturer{ServiceURL: serviceURL, Client: client}
}

// Trigger runs c for job and swallows any failure after logging it.
func Trigger(ctx context.Context, c Capturer, job watch.Job, log zerolog.Logger) {
	if c == nil {
		return
	}
	if err := c.Capture(ctx, job); err != nil {
		metrics.IncScreenshotFailure()
		log.Error().Err(err).Str("job", job.DisplayName()).Msg("Failed to save screenshot")
		return
	}
	metrics.IncScreenshot()
}
