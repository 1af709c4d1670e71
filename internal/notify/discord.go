// Package notify delivers login events to per-application webhooks. Delivery
// is best-effort and fully detached from the request lifecycle: events ride a
// buffered queue, failures are logged and swallowed, and a full queue drops
// the event.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/keyforge-io/keyforge/internal/models"

	log "github.com/sirupsen/logrus"
)

// LoginEvent is a successful client login to be reported to a webhook.
type LoginEvent struct {
	URL       string
	AppName   string
	Username  string
	HWID      string
	IP        string
	ExpiresAt time.Time
	Lifetime  bool

	ShowHWID   bool
	ShowIP     bool
	ShowApp    bool
	ShowExpiry bool
}

// embedField is one field of a Discord-compatible embed.
type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// embed is a Discord-compatible rich embed.
type embed struct {
	Title     string       `json:"title"`
	Color     int          `json:"color"`
	Fields    []embedField `json:"fields"`
	Timestamp string       `json:"timestamp"`
}

// webhookPayload is the body posted to the webhook URL.
type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

// discordGreen is the embed accent color for successful logins.
const discordGreen = 0x2ecc71

// BuildEvent filters a login into an event according to the application's
// webhook settings. It returns false when the settings are absent or
// disabled, which suppresses the notification entirely.
func BuildEvent(app *models.Application, user *models.EndUser, hwid, ip string) (LoginEvent, bool) {
	if app == nil || user == nil {
		return LoginEvent{}, false
	}
	settings := app.Webhook.Data()
	if !settings.Enabled || settings.URL == "" {
		return LoginEvent{}, false
	}
	return LoginEvent{
		URL:        settings.URL,
		AppName:    app.Name,
		Username:   user.Username,
		HWID:       hwid,
		IP:         ip,
		ExpiresAt:  user.ExpiresAt,
		Lifetime:   user.ExpiresAt.Year() == 9999,
		ShowHWID:   settings.ShowHWID,
		ShowIP:     settings.ShowIP,
		ShowApp:    settings.ShowApp,
		ShowExpiry: settings.ShowExpiry,
	}, true
}

// payload renders the event into the webhook body, honoring the field
// visibility flags.
func (ev LoginEvent) payload() webhookPayload {
	fields := []embedField{{Name: "User", Value: ev.Username, Inline: true}}
	if ev.ShowApp {
		fields = append(fields, embedField{Name: "Application", Value: ev.AppName, Inline: true})
	}
	if ev.ShowHWID {
		fields = append(fields, embedField{Name: "HWID", Value: ev.HWID, Inline: false})
	}
	if ev.ShowIP {
		fields = append(fields, embedField{Name: "IP", Value: ev.IP, Inline: true})
	}
	if ev.ShowExpiry {
		expiry := ev.ExpiresAt.UTC().Format("2006-01-02 15:04:05")
		if ev.Lifetime {
			expiry = "Lifetime"
		}
		fields = append(fields, embedField{Name: "Expires", Value: expiry, Inline: true})
	}
	return webhookPayload{Embeds: []embed{{
		Title:     "Login successful",
		Color:     discordGreen,
		Fields:    fields,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}}}
}

// post delivers the event to its webhook URL.
func (ev LoginEvent) post(ctx context.Context, client *http.Client) error {
	body, errMarshal := json.Marshal(ev.payload())
	if errMarshal != nil {
		return fmt.Errorf("notify: marshal payload: %w", errMarshal)
	}
	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, ev.URL, bytes.NewReader(body))
	if errReq != nil {
		return fmt.Errorf("notify: build request: %w", errReq)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, errDo := client.Do(req)
	if errDo != nil {
		return fmt.Errorf("notify: post webhook: %w", errDo)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Debug("notify: close webhook response body")
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
