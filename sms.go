package scribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// HTTPSMSSender posts messages to a telephony provider's REST API.
type HTTPSMSSender struct {
	apiURL string
	from   string
	apiKey string
	client *http.Client
	logger *zap.Logger
}

func NewHTTPSMSSender(apiURL, from, apiKey string, logger *zap.Logger) *HTTPSMSSender {
	return &HTTPSMSSender{
		apiURL: apiURL,
		from:   from,
		apiKey: apiKey,
		client: http.DefaultClient,
		logger: logger.Named("HTTPSMSSender"),
	}
}

type smsPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

func (s *HTTPSMSSender) Send(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(smsPayload{From: s.from, To: to, Body: body})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error("failed to send sms", zap.String("to", to), zap.Error(err))
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		s.logger.Error("sms provider rejected message",
			zap.String("to", to),
			zap.Int("status", resp.StatusCode))
		return fmt.Errorf("sms provider returned status %d", resp.StatusCode)
	}
	s.logger.Info("sms sent", zap.String("to", to))
	return nil
}
