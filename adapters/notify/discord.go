// Package notify sends run summaries to operators.
package notify

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"usage-cost/core/merge"
	"usage-cost/core/pipeline"
	"usage-cost/core/ui"
	"usage-cost/internal/errors"
)

// Color represents Discord embed colors
type Color int

const (
	ColorGreen  Color = 5763719  // 0x57f287
	ColorYellow Color = 16776960 // 0xffff00
	ColorRed    Color = 15548997 // 0xed4245
)

// maxListed caps the resources named in one embed field.
const maxListed = 10

// Notifier reports a finished run
type Notifier interface {
	NotifyRun(result *pipeline.RunResult) error
}

// webhookExecutor is the part of a discordgo session used here
type webhookExecutor interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordNotifier posts run summaries to a Discord webhook
type DiscordNotifier struct {
	webhookID string
	token     string
	username  string
	client    webhookExecutor
}

// Option configures DiscordNotifier
type Option func(*DiscordNotifier)

// WithUsername sets the name the webhook posts as
func WithUsername(name string) Option {
	return func(n *DiscordNotifier) {
		n.username = name
	}
}

func withExecutor(e webhookExecutor) Option {
	return func(n *DiscordNotifier) {
		n.client = e
	}
}

// NewDiscordNotifier creates a notifier for a webhook URL of the form
// https://discord.com/api/webhooks/<id>/<token>.
func NewDiscordNotifier(webhookURL string, opts ...Option) (*DiscordNotifier, error) {
	id, token, err := ParseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}
	n := &DiscordNotifier{
		webhookID: id,
		token:     token,
		username:  "usage-cost",
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.client == nil {
		// Webhooks authenticate with their token; the session needs none.
		session, err := discordgo.New("")
		if err != nil {
			return nil, errors.Wrap(errors.TypeConfig, "failed to create discord session", err)
		}
		n.client = session
	}
	return n, nil
}

// ParseWebhookURL extracts the webhook id and token.
func ParseWebhookURL(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", errors.Wrap(errors.TypeConfig, "invalid discord webhook URL", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", errors.Config("discord webhook URL must end in /webhooks/<id>/<token>")
}

// NotifyRun posts one embed summarising result.
func (n *DiscordNotifier) NotifyRun(result *pipeline.RunResult) error {
	params := &discordgo.WebhookParams{
		Username: n.username,
		Embeds:   []*discordgo.MessageEmbed{Embed(result)},
	}
	if _, err := n.client.WebhookExecute(n.webhookID, n.token, false, params); err != nil {
		return errors.Wrap(errors.TypeInternal, "failed to send discord notification", err)
	}
	return nil
}

// Embed renders a run summary.
func Embed(result *pipeline.RunResult) *discordgo.MessageEmbed {
	conv := result.UnmappedConversions()
	rates := result.UnmappedRates()

	e := &discordgo.MessageEmbed{
		Timestamp: result.StartedAt.UTC().Format(time.RFC3339),
		Footer:    &discordgo.MessageEmbedFooter{Text: "run " + result.RunID},
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Processed", Value: fmt.Sprint(result.Processed()), Inline: true},
			{Name: "Skipped", Value: fmt.Sprint(result.SkippedCount()), Inline: true},
			{Name: "Rows", Value: fmt.Sprint(result.Rows()), Inline: true},
			{Name: "Marker", Value: orNone(result.MarkerAfter), Inline: true},
		},
	}

	switch {
	case !result.Success():
		e.Title = "Usage cost run failed"
		e.Color = int(ColorRed)
		e.Description = result.Err.Error()
		if failed := result.Failed(); failed != nil {
			e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
				Name:  "Failed report",
				Value: fmt.Sprintf("%s (%s)", failed.ID, failed.FailedState),
			})
		}
	case len(conv) > 0 || len(rates) > 0:
		e.Title = "Usage cost run completed with warnings"
		e.Color = int(ColorYellow)
	default:
		e.Title = "Usage cost run completed"
		e.Color = int(ColorGreen)
	}
	if result.DryRun {
		e.Title += " (dry run)"
	}

	if totals := result.Totals(); len(totals) > 0 {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Known cost", Value: strings.Join(ui.FormatTotals(totals), "\n")})
	}
	if len(conv) > 0 {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Missing conversions", Value: listGroups(conv)})
	}
	if len(rates) > 0 {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Missing rates", Value: listGroups(rates)})
	}
	return e
}

func listGroups(groups []merge.Group) string {
	var b strings.Builder
	for i, g := range groups {
		if i == maxListed {
			fmt.Fprintf(&b, "... and %d more", len(groups)-maxListed)
			break
		}
		fmt.Fprintf(&b, "%s (%d)\n", g.Resource, g.Rows)
	}
	return strings.TrimSpace(b.String())
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
