// Package slack posts and updates alert messages via the Slack Web API.
package slack

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	slackapi "github.com/slack-go/slack"

	"github.com/linnemanlabs/herald/internal/alert"
)

// ErrMissingTimestamp is returned when an update is requested for an alert
// that was never successfully posted. It signals an inconsistency and is
// reported, not retried.
var ErrMissingTimestamp = errors.New("alert has no slack timestamp")

const (
	colorFiring   = "#F2303C"
	colorResolved = "#2EC95A"
)

// api is the slice of the Slack client the notifier uses.
type api interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slackapi.MsgOption) (string, string, string, error)
}

// Notifier posts alert messages to a fixed channel and keeps them updated as
// the alert's state changes.
type Notifier struct {
	client  api
	channel string

	// baseURL is where Herald itself is reachable; chart image blocks link
	// back to /api/chart/{id} on it.
	baseURL string

	// explorerURL, when set, adds a triage link button for SLO alerts.
	explorerURL string

	logger log.Logger
}

// New creates a Notifier posting to the given channel with the given bot
// token.
func New(token, channel, baseURL, explorerURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		client:      slackapi.New(token),
		channel:     channel,
		baseURL:     baseURL,
		explorerURL: explorerURL,
		logger:      logger,
	}
}

// PostAlert posts a new message for the alert and returns the channel id and
// message timestamp Slack assigned.
func (n *Notifier) PostAlert(ctx context.Context, a *alert.Alert) (channel, ts string, err error) {
	channel, ts, err = n.client.PostMessageContext(ctx, n.channel, n.messageOptions(a)...)
	if err != nil {
		return "", "", fmt.Errorf("slack: post message: %w", err)
	}
	return channel, ts, nil
}

// UpdateAlert rewrites the existing message for the alert in place.
func (n *Notifier) UpdateAlert(ctx context.Context, a *alert.Alert) error {
	if a.SlackTS == nil {
		return ErrMissingTimestamp
	}

	channel := n.channel
	if a.SlackChannel != nil {
		channel = *a.SlackChannel
	}

	if _, _, _, err := n.client.UpdateMessageContext(ctx, channel, *a.SlackTS, n.messageOptions(a)...); err != nil {
		return fmt.Errorf("slack: update message: %w", err)
	}
	return nil
}

// messageOptions builds the full message as a single colored attachment so the
// sidebar tracks the firing/resolved state.
func (n *Notifier) messageOptions(a *alert.Alert) []slackapi.MsgOption {
	color := colorFiring
	if a.Resolved {
		color = colorResolved
	}

	attachment := slackapi.Attachment{
		Color:  color,
		Blocks: slackapi.Blocks{BlockSet: n.buildBlocks(a)},
	}

	return []slackapi.MsgOption{
		slackapi.MsgOptionText(a.Text, false),
		slackapi.MsgOptionAttachments(attachment),
	}
}

func (n *Notifier) buildBlocks(a *alert.Alert) []slackapi.Block {
	headerText := ":rotating_light: Alert is firing"
	if a.Resolved {
		headerText = ":white_check_mark: Alert was resolved"
	}

	blocks := []slackapi.Block{
		slackapi.NewSectionBlock(
			slackapi.NewTextBlockObject(slackapi.PlainTextType, headerText, true, false),
			nil, nil,
		),
		slackapi.NewSectionBlock(
			slackapi.NewTextBlockObject(slackapi.MarkdownType, a.Text, false, false),
			[]*slackapi.TextBlockObject{
				slackapi.NewTextBlockObject(slackapi.MarkdownType,
					fmt.Sprintf("*Severity*\n%s", severityText(a.Severity)), false, false),
				slackapi.NewTextBlockObject(slackapi.MarkdownType,
					fmt.Sprintf("*Created*\n%s", a.CreatedAt.UTC().Format(time.RFC3339)), false, false),
			},
			nil,
		),
	}

	if a.ChartFilename != nil {
		slo := "unknown"
		if a.SlothSLO != nil {
			slo = *a.SlothSLO
		}
		blocks = append(blocks, slackapi.NewImageBlock(
			fmt.Sprintf("%s/api/chart/%d", strings.TrimRight(n.baseURL, "/"), a.ID),
			fmt.Sprintf("Chart for slo `%s`", slo),
			"", nil,
		))
	}

	if link := n.explorerLink(a); link != "" {
		slo := *a.SlothSLO
		button := slackapi.NewButtonBlockElement(
			"open_explorer", slo,
			slackapi.NewTextBlockObject(slackapi.PlainTextType, "Open in Explorer", false, false),
		)
		button.URL = link
		blocks = append(blocks,
			slackapi.NewSectionBlock(
				slackapi.NewTextBlockObject(slackapi.MarkdownType,
					fmt.Sprintf("Triage `%s` SLO in Explorer", slo), false, false),
				nil, nil,
			),
			slackapi.NewActionBlock("explorer_actions", button),
		)
	}

	return blocks
}

func (n *Notifier) explorerLink(a *alert.Alert) string {
	if n.explorerURL == "" || a.SlothSLO == nil {
		return ""
	}
	return fmt.Sprintf("%s?slo=%s", strings.TrimRight(n.explorerURL, "/"), url.QueryEscape(*a.SlothSLO))
}

func severityText(severity *string) string {
	switch {
	case severity == nil:
		return ":question: Unknown"
	case *severity == "page":
		return ":pager: Page"
	case *severity == "ticket":
		return ":ticket: Ticket"
	default:
		return fmt.Sprintf(":question: %s", *severity)
	}
}
