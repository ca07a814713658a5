package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
)

const (
	colorGreen = 0x2ecc71
	colorBlue  = 0x3498db
	colorGold  = 0xf1c40f
	colorGrey  = 0x95a5a6
)

// DiscordPublisher posts one embed per message to a Discord webhook.
type DiscordPublisher struct {
	client   *http.Client
	endpoint string
}

func NewDiscordPublisher(endpoint string, timeout time.Duration) *DiscordPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DiscordPublisher{
		client:   &http.Client{Timeout: timeout},
		endpoint: endpoint,
	}
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embed struct {
	Title     string       `json:"title"`
	Color     int          `json:"color"`
	Timestamp string       `json:"timestamp,omitempty"`
	Fields    []embedField `json:"fields"`
	Footer    *embedFooter `json:"footer,omitempty"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

func (p *DiscordPublisher) Publish(ctx context.Context, msg Message) error {
	raw, err := json.Marshal(webhookPayload{Embeds: []embed{formatEmbed(msg)}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("discord webhook failed with status %d", resp.StatusCode)
}

func formatEmbed(msg Message) embed {
	e := embed{Title: titleFor(msg.Type), Color: colorFor(msg.Type)}
	if !msg.At.IsZero() {
		e.Timestamp = msg.At.UTC().Format(time.RFC3339)
	}
	if msg.ScopeID != "" {
		e.Footer = &embedFooter{Text: "scope " + msg.ScopeID}
	}
	if msg.EventID != "" {
		e.Fields = append(e.Fields, embedField{Name: "event", Value: msg.EventID, Inline: true})
	}
	if msg.UserID != "" {
		e.Fields = append(e.Fields, embedField{Name: "user", Value: msg.UserID, Inline: true})
	}
	keys := make([]string, 0, len(msg.Data))
	for k := range msg.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e.Fields = append(e.Fields, embedField{Name: k, Value: fmt.Sprint(msg.Data[k]), Inline: true})
	}
	return e
}

func titleFor(typ string) string {
	switch typ {
	case TypeEventCreated:
		return "New event open for bets"
	case TypeBetPlaced:
		return "Bet placed"
	case TypeEventSettled:
		return "Event settled"
	case TypeChallengeCompleted:
		return "Challenge completed"
	default:
		return typ
	}
}

func colorFor(typ string) int {
	switch typ {
	case TypeEventCreated:
		return colorBlue
	case TypeEventSettled:
		return colorGold
	case TypeChallengeCompleted:
		return colorGreen
	default:
		return colorGrey
	}
}
