/**
 * @description
 * This package delivers operational alerts for the donation pipeline. Every
 * alert is logged; alerts are additionally pushed to a Slack incoming
 * webhook when one is configured. Delivery failures are logged and swallowed
 * so an unavailable alert channel can never break pipeline processing.
 *
 * @dependencies
 * - log/slog: Structured logging of every alert.
 * - net/http: Slack incoming-webhook delivery.
 */
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Severity classifies an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is a single operational notification.
type Alert struct {
	Title    string
	Message  string
	Severity Severity
	Context  map[string]string
}

// Notifier delivers alerts. Implementations must be safe for concurrent use.
type Notifier interface {
	Send(ctx context.Context, alert Alert)
}

// Service is the default Notifier: slog always, Slack when configured.
type Service struct {
	slackWebhookURL string
	httpClient      *http.Client
	logger          *slog.Logger
}

// New creates an alert Service. slackWebhookURL may be empty, in which case
// alerts only reach the log.
func New(slackWebhookURL string, logger *slog.Logger) *Service {
	return &Service{
		slackWebhookURL: slackWebhookURL,
		httpClient:      &http.Client{Timeout: 10 * time.Second},
		logger:          logger,
	}
}

// Send delivers the alert to every configured channel.
func (s *Service) Send(ctx context.Context, alert Alert) {
	attrs := []any{"title", alert.Title, "severity", string(alert.Severity)}
	for key, value := range alert.Context {
		attrs = append(attrs, key, value)
	}
	s.logger.Warn("alert: "+alert.Message, attrs...)

	if s.slackWebhookURL == "" {
		return
	}
	if err := s.sendSlack(ctx, alert); err != nil {
		s.logger.Error("failed to deliver alert to slack", "title", alert.Title, "error", err)
	}
}

var slackColors = map[Severity]string{
	SeverityInfo:     "#36a64f",
	SeverityWarning:  "#ff9900",
	SeverityCritical: "#ff0000",
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text"`
	Fields []slackField `json:"fields,omitempty"`
	Footer string       `json:"footer"`
	TS     int64        `json:"ts"`
}

func (s *Service) sendSlack(ctx context.Context, alert Alert) error {
	attachment := slackAttachment{
		Color:  slackColors[alert.Severity],
		Title:  alert.Title,
		Text:   alert.Message,
		Footer: "Resgate Prime",
		TS:     time.Now().Unix(),
	}
	for key, value := range alert.Context {
		attachment.Fields = append(attachment.Fields, slackField{Title: key, Value: value, Short: true})
	}

	body, err := json.Marshal(map[string][]slackAttachment{"attachments": {attachment}})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.slackWebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// WithdrawalFailed reports a failed withdrawal attempt. It escalates to
// critical once the attempt count reaches the retry ceiling.
func WithdrawalFailed(ctx context.Context, n Notifier, withdrawalID, errText string, attempts int) {
	severity := SeverityWarning
	if attempts >= 3 {
		severity = SeverityCritical
	}
	n.Send(ctx, Alert{
		Title:    "Withdrawal Failed",
		Message:  fmt.Sprintf("Withdrawal %s failed after %d attempts", withdrawalID, attempts),
		Severity: severity,
		Context: map[string]string{
			"withdrawalId": withdrawalID,
			"error":        errText,
			"attempts":     fmt.Sprintf("%d", attempts),
		},
	})
}

// OrderStuck reports an order that has sat in a non-terminal state too long.
// It escalates to critical past 30 minutes.
func OrderStuck(ctx context.Context, n Notifier, orderID string, minutes int) {
	severity := SeverityWarning
	if minutes > 30 {
		severity = SeverityCritical
	}
	n.Send(ctx, Alert{
		Title:    "Order Stuck",
		Message:  fmt.Sprintf("Order %s has been pending for %d minutes", orderID, minutes),
		Severity: severity,
		Context: map[string]string{
			"orderId": orderID,
			"minutes": fmt.Sprintf("%d", minutes),
		},
	})
}

// HighDiscrepancy reports a suspicious gap between the BRL amount and the
// USDT actually received for a donation.
func HighDiscrepancy(ctx context.Context, n Notifier, donationID, expectedUSDT, receivedUSDT, discrepancy string) {
	n.Send(ctx, Alert{
		Title:    "Conversion Discrepancy",
		Message:  fmt.Sprintf("Suspicious gap between BRL and USDT on donation %s", donationID),
		Severity: SeverityCritical,
		Context: map[string]string{
			"donationId":   donationID,
			"expectedUsdt": expectedUSDT,
			"receivedUsdt": receivedUSDT,
			"discrepancy":  discrepancy,
		},
	})
}

// LowBalance reports a low provider balance for an asset.
func LowBalance(ctx context.Context, n Notifier, asset, balance string) {
	n.Send(ctx, Alert{
		Title:    "Low Balance",
		Message:  fmt.Sprintf("Balance of %s is low: %s", asset, balance),
		Severity: SeverityWarning,
		Context: map[string]string{
			"asset":   asset,
			"balance": balance,
		},
	})
}
