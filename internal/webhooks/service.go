package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goalstash/goalstash/internal/ledger"
)

// ErrNotOwner is returned when an account tries to remove a subscription it
// did not create.
var ErrNotOwner = fmt.Errorf("subscription belongs to another account")

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// Service manages webhook subscriptions and dispatches ledger events to
// them. It implements ledger.Sink, so it can be wired directly into the
// ledger service as its notification sink.
type Service struct {
	repo       Repository
	httpClient *http.Client
	onMetrics  MetricsRecorder
	logger     *zap.Logger

	// retryDelays[i] is slept before attempt i+1; tests shorten these.
	retryDelays []time.Duration

	wg sync.WaitGroup
}

// NewService creates a new webhook Service.
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{
		repo:        repo,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
		retryDelays: []time.Duration{0, 1 * time.Second, 5 * time.Second},
	}
}

// SetMetricsRecorder configures the metrics callback.
func (s *Service) SetMetricsRecorder(fn MetricsRecorder) {
	s.onMetrics = fn
}

// SetRetryDelays overrides the per-attempt delays. The number of delays is
// the number of delivery attempts.
func (s *Service) SetRetryDelays(delays []time.Duration) {
	s.retryDelays = delays
}

// Subscribe creates a new webhook subscription with a generated HMAC secret
// for the calling account. The secret is only revealed in this response.
func (s *Service) Subscribe(ctx context.Context, account string, req *CreateSubscriptionRequest) (*Subscription, error) {
	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	sub := &Subscription{
		Account: account,
		URL:     req.URL,
		Events:  req.Events,
		Secret:  secret,
	}

	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	return sub, nil
}

// Unsubscribe deletes a subscription, checking ownership.
func (s *Service) Unsubscribe(ctx context.Context, account string, subID uuid.UUID) error {
	sub, err := s.repo.GetByID(ctx, subID)
	if err != nil {
		return err
	}
	if sub.Account != account {
		return ErrNotOwner
	}
	return s.repo.Delete(ctx, subID)
}

// ListByAccount returns all subscriptions the account has created.
func (s *Service) ListByAccount(ctx context.Context, account string) ([]*Subscription, error) {
	return s.repo.ListByAccount(ctx, account)
}

// Emit implements ledger.Sink. Delivery runs asynchronously and outlives the
// originating request, hence the detached context.
func (s *Service) Emit(ctx context.Context, ev ledger.Event) {
	payload := map[string]string{
		"account": ev.Account,
		"amount":  strconv.FormatInt(ev.Amount, 10),
	}
	if ev.Kind == ledger.EventMoneyAdded {
		payload["deposit"] = strconv.FormatInt(ev.Deposit, 10)
	}
	s.Dispatch(context.WithoutCancel(ctx), string(ev.Kind), ev.Account, payload)
}

// Dispatch fans out an event to the account's matching subscriptions.
func (s *Service) Dispatch(ctx context.Context, eventType, account string, payload map[string]string) {
	subs, err := s.repo.ListByEvent(ctx, eventType, account)
	if err != nil {
		s.logger.Error("webhook: list subscribers", zap.Error(err))
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	for _, sub := range subs {
		s.wg.Add(1)
		go func(sub *Subscription) {
			defer s.wg.Done()
			s.deliver(ctx, sub, event)
		}(sub)
	}
}

// Wait blocks until all in-flight deliveries finish (shutdown and tests).
func (s *Service) Wait() { s.wg.Wait() }

// deliver sends the event to a single subscription with retries.
func (s *Service) deliver(ctx context.Context, sub *Subscription, event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("webhook: marshal event", zap.Error(err))
		return
	}

	signature := signPayload(body, sub.Secret)

	for attempt := 1; attempt <= len(s.retryDelays); attempt++ {
		if d := s.retryDelays[attempt-1]; d > 0 {
			time.Sleep(d)
		}

		success, statusCode, errMsg := s.doDelivery(ctx, sub.URL, body, signature)

		delivery := &Delivery{
			SubscriptionID: sub.ID,
			EventType:      event.Type,
			StatusCode:     statusCode,
			Attempt:        attempt,
			Success:        success,
			ErrorMessage:   errMsg,
		}
		if recordErr := s.repo.RecordDelivery(ctx, delivery); recordErr != nil {
			s.logger.Warn("webhook: record delivery", zap.Error(recordErr))
		}

		if s.onMetrics != nil {
			s.onMetrics(success)
		}

		if success {
			return
		}

		s.logger.Warn("webhook: delivery failed",
			zap.String("url", sub.URL),
			zap.Int("attempt", attempt),
			zap.String("error", errMsg),
		)
	}
}

// doDelivery performs a single HTTP POST delivery.
func (s *Service) doDelivery(ctx context.Context, url string, body []byte, signature string) (bool, int, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, 0, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Stash-Signature", signature)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, 0, err.Error()
	}
	defer resp.Body.Close()
	io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	errMsg := ""
	if !success {
		errMsg = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return success, resp.StatusCode, errMsg
}

// signPayload computes an HMAC-SHA256 signature.
func signPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// generateSecret creates a random 32-byte hex-encoded secret.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
