// Package notify posts human-readable summaries of completed batch runs to a
// chat webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"macroplanner"
)

// Client posts to a chat webhook. It satisfies macroplanner.Notifier.
type Client struct {
	webhookURL string
	httpClient macroplanner.HTTPClient
}

func NewClient(webhookURL string, httpClient macroplanner.HTTPClient) *Client {
	return &Client{
		webhookURL: webhookURL,
		httpClient: httpClient,
	}
}

func (c *Client) PostMessage(ctx context.Context, channel string, message string) error {
	payload, err := json.Marshal(map[string]any{
		"channel": channel,
		"text":    message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to post message: %s", resp.Status)
	}

	return nil
}

// WeekSummary renders a completed weekly plan as a short webhook message.
func WeekSummary(week *macroplanner.WeeklyPlan, targets macroplanner.NutritionTargets) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Weekly plan %s (week of %s): %d days\n", week.SessionID, week.WeekStartDate, len(week.Days))
	for _, day := range week.Days {
		t := day.Totals()
		fmt.Fprintf(&buf, "- %s: %.0f kcal / %.0fg protein (target %.0f / %.0f)\n",
			day.Date, t.Calories, t.ProteinGrams, targets.CaloriesPerDay, targets.ProteinGrams)
	}
	return buf.String()
}
