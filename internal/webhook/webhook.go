package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"baqup/internal/config"
	"baqup/internal/logger"
	"baqup/internal/model"

	"go.uber.org/zap"
)

const HMACHeaderName = "X-Baqup-Signature-SHA256"

// WebhookSender delivers backup notifications. Interface so the scheduler
// can be tested without HTTP.
type WebhookSender interface {
	Enqueue(payload NotificationPayload)
	Stop()
}

// NotificationPayload is the JSON body posted for every finished backup
// run.
type NotificationPayload struct {
	JobID           string  `json:"job_id"`
	ContainerID     string  `json:"container_id"`
	ContainerName   string  `json:"container_name"`
	TargetType      string  `json:"target_type"`
	TargetInstance  string  `json:"target_instance"`
	Schedule        string  `json:"schedule"`
	Destination     string  `json:"destination,omitempty"`
	DestinationType string  `json:"destination_type,omitempty"`
	Success         bool    `json:"success"`
	Error           string  `json:"error,omitempty"`
	BackupSize      int64   `json:"backup_size_bytes,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	Timestamp       string  `json:"timestamp_utc"`
}

// PayloadForResult maps a job result onto the wire payload.
func PayloadForResult(res model.BackupResult, destinationType string) NotificationPayload {
	return NotificationPayload{
		JobID:           res.Job.ID,
		ContainerID:     res.Job.Container.ContainerID,
		ContainerName:   res.Job.Container.ContainerName,
		TargetType:      string(res.Job.Target.Type),
		TargetInstance:  res.Job.Target.Instance,
		Schedule:        res.Job.Schedule.Name,
		Destination:     res.Destination,
		DestinationType: destinationType,
		Success:         res.Success,
		Error:           res.Error,
		BackupSize:      res.BytesWritten,
		DurationSeconds: res.Duration.Seconds(),
		Timestamp:       res.Job.TriggeredAt.UTC().Format(time.RFC3339),
	}
}

// Sender posts notifications asynchronously with retries and optional
// HMAC signing.
type Sender struct {
	httpClient *http.Client
	url        string
	secret     string
	maxRetries int
	queue      chan NotificationPayload
	stopChan   chan struct{}
	wg         sync.WaitGroup
}

var _ WebhookSender = (*Sender)(nil)

// NewSender builds the sender from webhook configuration. With no URL
// configured the sender is a no-op.
func NewSender(cfg config.WebhookConfig) *Sender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	s := &Sender{
		httpClient: &http.Client{Timeout: timeout},
		url:        cfg.URL,
		secret:     cfg.Secret,
		maxRetries: maxRetries,
		queue:      make(chan NotificationPayload, 100),
		stopChan:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.worker()

	logger.Log.Info("Webhook sender initialized",
		zap.String("url", s.url),
		zap.Int("maxRetries", s.maxRetries),
		zap.Bool("hmacConfigured", s.secret != ""),
	)
	return s
}

// Enqueue queues a notification for delivery. Drops when the queue is
// full rather than blocking the backup pipeline.
func (s *Sender) Enqueue(payload NotificationPayload) {
	if s.url == "" {
		return
	}
	select {
	case s.queue <- payload:
	default:
		logger.Log.Warn("Webhook queue full, dropping notification",
			zap.String("jobID", payload.JobID),
			zap.String("containerName", payload.ContainerName),
		)
	}
}

func (s *Sender) worker() {
	defer s.wg.Done()
	for {
		select {
		case payload := <-s.queue:
			s.sendWithRetries(payload)
		case <-s.stopChan:
			return
		}
	}
}

func (s *Sender) sendWithRetries(payload NotificationPayload) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		lastErr = s.sendAttempt(payload)
		if lastErr == nil {
			logger.Log.Info("Webhook delivered",
				zap.String("jobID", payload.JobID),
				zap.Int("attempt", attempt+1),
			)
			return
		}
		logger.Log.Warn("Webhook attempt failed",
			zap.String("jobID", payload.JobID),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
		if attempt < s.maxRetries {
			time.Sleep(time.Duration(2<<attempt) * time.Second)
		}
	}
	logger.Log.Error("Webhook failed after all retries",
		zap.String("jobID", payload.JobID),
		zap.Error(lastErr),
	)
}

func (s *Sender) sendAttempt(payload NotificationPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.httpClient.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "baqup/1.0")

	if s.secret != "" {
		mac := hmac.New(sha256.New, []byte(s.secret))
		mac.Write(body)
		req.Header.Set(HMACHeaderName, hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post to %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook returned %s: %s", resp.Status, string(respBody))
	}
	return nil
}

// Stop drains the worker and shuts the sender down.
func (s *Sender) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}
