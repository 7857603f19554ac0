package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/seyone-projects/reda-backend/internal/config"
	"github.com/seyone-projects/reda-backend/internal/metrics"
)

// MaxSMSLength is the provider template limit.
const MaxSMSLength = 19

var indianMobile = regexp.MustCompile(`^[6-9]\d{9}$`)

type smsRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// SMSClient posts short messages to an HTTP SMS gateway.
type SMSClient struct {
	providerURL string
	countryCode string
	client      *http.Client
	logger      *zerolog.Logger
}

func NewSMSClient(cfg config.SMSConfig, logger *zerolog.Logger) *SMSClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	l := logger.With().Str("component", "sms").Logger()
	return &SMSClient{
		providerURL: cfg.ProviderURL,
		countryCode: cfg.CountryCode,
		client:      &http.Client{Timeout: timeout},
		logger:      &l,
	}
}

// Send delivers message to a ten-digit mobile number. Messages that are empty
// or too long and numbers that do not look like Indian mobiles are skipped
// without error.
func (c *SMSClient) Send(ctx context.Context, mobile, message string) error {
	mobile = strings.TrimSpace(mobile)

	if message == "" || len([]rune(message)) > MaxSMSLength {
		c.logger.Warn().Int("length", len([]rune(message))).Msg("Skipped SMS: message must be 1-19 characters long")
		metrics.IncNotification("sms", "skipped")
		return nil
	}
	if !indianMobile.MatchString(mobile) {
		c.logger.Warn().Msg("Skipped SMS: invalid mobile number")
		metrics.IncNotification("sms", "skipped")
		return nil
	}

	to := c.countryCode + mobile
	body, err := json.Marshal(smsRequest{To: to, Message: message})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.providerURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.IncNotification("sms", "failed")
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.IncNotification("sms", "failed")
		return fmt.Errorf("sms provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	c.logger.Info().Str("to", to).Msg("SMS sent successfully")
	metrics.IncNotification("sms", "sent")
	return nil
}
