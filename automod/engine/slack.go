package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/horizon-devs/warden/automod/event"
	"github.com/horizon-devs/warden/pkg/robusthttp"
)

type SlackNotifier struct {
	SlackWebhookURL string
	Client          *http.Client
}

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		SlackWebhookURL: webhookURL,
		Client:          robusthttp.NewClient(robusthttp.Config{Timeout: 10 * time.Second}),
	}
}

// Alerts moderators that an actor received a flag.
func (n *SlackNotifier) SendFlag(ctx context.Context, actor event.ActorKey, flag string) error {
	msg := "⚠️ Warden Flag ⚠️\n"
	msg += fmt.Sprintf("community `%s` / user `%s`\n", actor.Community, actor.User)
	msg += fmt.Sprintf("Flag: `%s`\n", flag)
	return n.sendSlackMsg(ctx, msg)
}

type SlackWebhookBody struct {
	Text string `json:"text"`
}

// Sends a simple slack message to a channel via "incoming webhook".
//
// The slack incoming webhook must be already configured in the slack workplace.
func (n *SlackNotifier) sendSlackMsg(ctx context.Context, msg string) error {
	body, err := json.Marshal(SlackWebhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.SlackWebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	if resp.StatusCode != http.StatusOK || buf.String() != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}
