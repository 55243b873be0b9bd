package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"savantbot/internal/model"
)

// DiscordNotifier posts rich embeds to a Discord webhook.
type DiscordNotifier struct {
	url    string
	client *http.Client
}

// NewDiscordNotifier creates a Discord webhook notifier.
func NewDiscordNotifier(url string) *DiscordNotifier {
	return &DiscordNotifier{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Timestamp   string       `json:"timestamp"`
	Fields      []embedField `json:"fields,omitempty"`
}

func (d *DiscordNotifier) Send(ctx context.Context, alert Alert) error {
	e := embed{
		Title:       alert.Title,
		Description: alert.Message,
		Color:       colorFor(alert.Kind),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}

	if sig := alert.Signal; sig != nil {
		e.Fields = append(e.Fields,
			embedField{Name: "Price", Value: fmt.Sprintf("$%.3f", sig.Price), Inline: true},
			embedField{Name: "Trigger Armed", Value: fmt.Sprintf("%v", sig.TriggerArmed), Inline: true},
			embedField{Name: "Buy Signal", Value: fmt.Sprintf("%v", sig.BuySignal), Inline: true},
		)
		if sig.EntryLevel != nil {
			e.Fields = append(e.Fields, embedField{Name: "Fib Entry", Value: fmt.Sprintf("$%.3f", *sig.EntryLevel), Inline: true})
		}
		if sig.BandLow != nil {
			e.Fields = append(e.Fields, embedField{Name: "Fib 0", Value: fmt.Sprintf("$%.3f", *sig.BandLow), Inline: true})
		}
		if sig.ATR != nil {
			e.Fields = append(e.Fields, embedField{Name: "ATR", Value: fmt.Sprintf("%.4f", *sig.ATR), Inline: true})
		}
	}
	for _, pos := range alert.Positions {
		e.Fields = append(e.Fields, embedField{
			Name: "Open Position: " + pos.Asset,
			Value: fmt.Sprintf("%s %.4f %s\nEntry: $%.2f\nROE: %.2f%%",
				pos.Direction, pos.Size, pos.Asset, pos.EntryPrice, pos.ReturnOnEquity*100),
		})
	}

	body, err := json.Marshal(map[string]any{"embeds": []embed{e}})
	if err != nil {
		return fmt.Errorf("discord: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func colorFor(kind model.EventKind) int {
	switch kind {
	case model.EventTriggerArmed:
		return 0xffff00
	case model.EventTriggerDisarmed:
		return 0xff6347
	case model.EventBuySignal, model.EventTakeProfitHit:
		return 0x00ff00
	case model.EventTradeExecuted:
		return 0x0099ff
	case model.EventStopLossHit:
		return 0xff0000
	case model.EventTrailingStopHit, model.EventFibTrailStopHit:
		return 0xffa500
	default:
		return 0x888888
	}
}
