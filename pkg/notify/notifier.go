// Package notify posts plain-text Slack notifications for Approval and
// Budget events. It is a thin, optional layer: disabled entirely when no
// bot token is configured, exactly like the shape it is grounded on.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"

	"github.com/ordermesh/hub/internal/store"
)

// Notifier sends Approval/Budget event messages to a Slack channel.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. If botToken is empty, the notifier is a
// noop (logging only).
func NewNotifier(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

// IsEnabled returns true if the notifier has a valid Slack client.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// NotifyApprovalRequested announces a new pending approval.
func (n *Notifier) NotifyApprovalRequested(ctx context.Context, a store.Approval) error {
	return n.post(ctx, fmt.Sprintf(
		":large_orange_diamond: approval requested: *%s* on %s `%s` (expires %s)",
		a.Action, a.ResourceType, a.ResourceID, a.ExpiresAt.Format("15:04 MST"),
	), "approval_id", a.ID)
}

// NotifyApprovalDecided announces an approval's decision.
func (n *Notifier) NotifyApprovalDecided(ctx context.Context, a store.Approval) error {
	emoji := ":white_check_mark:"
	if a.Status == store.ApprovalStatusRejected {
		emoji = ":x:"
	}
	return n.post(ctx, fmt.Sprintf(
		"%s approval *%s* on %s `%s` was %s",
		emoji, a.Action, a.ResourceType, a.ResourceID, a.Status,
	), "approval_id", a.ID)
}

// NotifyBudgetFrozen announces a budget circuit breaker tripping.
func (n *Notifier) NotifyBudgetFrozen(ctx context.Context, b store.Budget) error {
	return n.post(ctx, fmt.Sprintf(
		":octagonal_sign: budget frozen: *%s* (%s) reached %.2f/%.2f",
		b.Type, b.Period, b.Current, b.Limit,
	), "budget_id", b.ID)
}

// NotifyBudgetUnfrozen announces an operator clearing a budget freeze.
func (n *Notifier) NotifyBudgetUnfrozen(ctx context.Context, b store.Budget) error {
	return n.post(ctx, fmt.Sprintf(
		":large_green_circle: budget unfrozen: *%s* (%s)", b.Type, b.Period,
	), "budget_id", b.ID)
}

func (n *Notifier) post(ctx context.Context, text string, logKey string, logVal any) error {
	if !n.IsEnabled() {
		n.logger.Debug("slack notifier disabled, skipping", logKey, logVal)
		return nil
	}

	_, ts, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("posting notification to slack: %w", err)
	}

	n.logger.Info("posted notification to slack", logKey, logVal, "ts", ts)
	return nil
}
