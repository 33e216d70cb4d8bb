package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jgoulah/flowmeter/internal/config"
	"github.com/jgoulah/flowmeter/pkg/models"
)

// HomeAssistant posts readings to the AppDaemon backfill endpoint
type HomeAssistant struct {
	cfg    config.HAConfig
	client *http.Client
}

// NewHomeAssistant validates cfg and creates the sink
func NewHomeAssistant(cfg config.HAConfig) (*HomeAssistant, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("Home Assistant URL is required when enabled")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("Home Assistant token is required when enabled")
	}
	if cfg.ElectricityEntity == "" && cfg.GasEntity == "" {
		return nil, fmt.Errorf("Home Assistant needs electricity_entity or gas_entity when enabled")
	}

	return &HomeAssistant{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// HAPayload matches the Home Assistant backfill service call data
type HAPayload struct {
	EntityID    string `json:"entity_id"`
	State       string `json:"state"`
	LastChanged string `json:"last_changed"`
	LastUpdated string `json:"last_updated"`
}

func (h *HomeAssistant) Name() string { return "home_assistant" }

// Publish sends a reading to Home Assistant via HTTP API
func (h *HomeAssistant) Publish(ctx context.Context, reading models.Reading) error {
	entityID := h.cfg.EntityID(reading.Kind)
	if entityID == "" {
		return fmt.Errorf("no Home Assistant entity configured for %s", reading.Kind)
	}

	apiURL := strings.TrimSuffix(h.cfg.URL, "/") + "/api/appdaemon/backfill_state"
	timestamp := reading.Timestamp.Format(time.RFC3339)

	payload := HAPayload{
		EntityID:    entityID,
		State:       strconv.FormatFloat(reading.Value, 'f', reading.Kind.Decimals(), 64),
		LastChanged: timestamp,
		LastUpdated: timestamp,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+h.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP error: status %d, response: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

func (h *HomeAssistant) Close() {}
