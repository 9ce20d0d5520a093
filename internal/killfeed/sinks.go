package killfeed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"arena-shooter/internal/game"
)

// LeaderboardSink credits kills on the per-room leaderboards. Solo kills
// land on the board named SoloRoom.
type LeaderboardSink struct {
	Boards *game.Leaderboards
}

// SoloRoom is the leaderboard key for sessions without a room.
const SoloRoom = "solo"

func (s LeaderboardSink) Name() string { return "leaderboard" }

func (s LeaderboardSink) Deliver(_ context.Context, ev game.KillEvent) error {
	if ev.Killer == "" {
		return fmt.Errorf("kill %s has no killer", ev.EnemyID)
	}
	room := ev.Room
	if room == "" {
		room = SoloRoom
	}
	s.Boards.Room(room).RecordKill(ev.Killer)
	return nil
}

// SinkFunc adapts a function to Sink.
type SinkFunc struct {
	Label string
	Fn    func(ctx context.Context, ev game.KillEvent) error
}

func (s SinkFunc) Name() string { return s.Label }

func (s SinkFunc) Deliver(ctx context.Context, ev game.KillEvent) error { return s.Fn(ctx, ev) }

// WebhookSink posts a JSON kill message to an external URL, such as a chat
// bot relay. A 429 response is reported as ErrThrottled.
type WebhookSink struct {
	URL    string
	Client *http.Client
}

// NewWebhookSink creates a webhook sink with a bounded client timeout.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}

type webhookBody struct {
	Content string         `json:"content"`
	Kill    game.KillEvent `json:"kill"`
}

// FormatKill renders the human-readable kill line.
func FormatKill(ev game.KillEvent) string {
	if ev.Room == "" {
		return fmt.Sprintf("🎯 %s eliminated %s", ev.Killer, ev.EnemyID)
	}
	return fmt.Sprintf("🎯 %s eliminated %s in room %s", ev.Killer, ev.EnemyID, ev.Room)
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Deliver(ctx context.Context, ev game.KillEvent) error {
	body, err := json.Marshal(webhookBody{Content: FormatKill(ev), Kill: ev})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: webhook returned 429", ErrThrottled)
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook error %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}
