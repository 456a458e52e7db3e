// Package notification sends operator mail in response to domain events.
// Domain modules publish events and never talk to the mail server directly.
package notification

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/SubscriberSync/portal-sub000/internal/events"
	"github.com/SubscriberSync/portal-sub000/platform/logger"
)

var runFinishedTemplate = template.Must(template.New("run_finished").Parse(
	`Migration run {{.RunID}} finished with status {{.Status}}.
{{if .FailureReason}}
Reason: {{.FailureReason}}
{{end}}
Subscribers:  {{.Total}}
Processed:    {{.Processed}}
Clean:        {{.CleanCount}}
Flagged:      {{.FlaggedCount}}
{{if .FlaggedCount}}
{{.FlaggedCount}} subscribers are waiting in the review queue.
{{end}}`))

var suggestionsTemplate = template.Must(template.New("suggestions").Parse(
	`{{.Count}} product classification suggestions ({{.Source}}) are waiting for review.
`))

// Module handles notification event subscriptions.
type Module struct {
	mailer    Mailer
	recipient string
	log       *logger.Logger
}

// New creates a notification module mailing recipient. An empty recipient
// disables mail.
func New(mailer Mailer, recipient string, log *logger.Logger) *Module {
	return &Module{mailer: mailer, recipient: strings.TrimSpace(recipient), log: log}
}

// RegisterHandlers subscribes to the events that produce operator mail.
func (m *Module) RegisterHandlers(bus *events.InMemoryBus) {
	bus.Subscribe(events.MigrationRunFinished{}.EventName(), m)
	bus.Subscribe(events.SuggestionsCreated{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.MigrationRunFinished:
		return m.handleRunFinished(ctx, e)
	case events.SuggestionsCreated:
		return m.handleSuggestionsCreated(ctx, e)
	default:
		m.log.Warn("unhandled event type in notification module", "event", event.EventName())
		return nil
	}
}

func (m *Module) handleRunFinished(ctx context.Context, e events.MigrationRunFinished) error {
	subject := fmt.Sprintf("Migration run %s: %d clean, %d flagged", e.Status, e.CleanCount, e.FlaggedCount)
	return m.send(ctx, subject, runFinishedTemplate, e)
}

func (m *Module) handleSuggestionsCreated(ctx context.Context, e events.SuggestionsCreated) error {
	if e.Count == 0 {
		return nil
	}
	return m.send(ctx, fmt.Sprintf("%d classification suggestions to review", e.Count), suggestionsTemplate, e)
}

func (m *Module) send(ctx context.Context, subject string, tmpl *template.Template, data any) error {
	if m.recipient == "" {
		return nil
	}
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	if err := m.mailer.Send(ctx, m.recipient, subject, body.String()); err != nil {
		m.log.Error("failed to send notification", "error", err, "subject", subject)
		return err
	}
	m.log.Info("notification sent", "subject", subject)
	return nil
}
