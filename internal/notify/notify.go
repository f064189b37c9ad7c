// Package notify schedules outbound digests and reminders. Every send is
// deduplicated through the notification log and journaled as a reminder.sent
// event, so redelivery after a crash is idempotent.
package notify

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/louisbranch/attend/internal/attention"
	"github.com/louisbranch/attend/internal/domain/event"
	"github.com/louisbranch/attend/internal/storage"
)

// Notification types in the send log.
const (
	TypeDailyDigest    = "task_daily_digest"
	TypeWeeklyDigest   = "task_weekly_digest"
	TypeUrgentReminder = "task_urgent_reminder"
)

const serviceActor = "notify_service"

// Sender delivers one rendered notification to a channel.
type Sender interface {
	Send(ctx context.Context, channelID, text string) error
}

// Config carries the schedule. Hours are local to the notifier's clock.
type Config struct {
	ChannelID string
	// DailyHour is the hour of day for the daily digest.
	DailyHour int
	// WeeklyDay and WeeklyHour schedule the weekly digest.
	WeeklyDay  time.Weekday
	WeeklyHour int
	// UrgentThreshold is the minimum urgency score for a reminder.
	UrgentThreshold float64
	// ReminderWindowStart and ReminderWindowEnd bound the hours during
	// which urgent reminders may be sent, inclusive.
	ReminderWindowStart int
	ReminderWindowEnd   int
}

// DefaultConfig mirrors the defaults of the original scheduler.
func DefaultConfig() Config {
	return Config{
		DailyHour:           20,
		WeeklyDay:           time.Monday,
		WeeklyHour:          9,
		UrgentThreshold:     60,
		ReminderWindowStart: 8,
		ReminderWindowEnd:   21,
	}
}

// Notifier runs the notification checks.
type Notifier struct {
	attention *attention.Service
	events    storage.EventStore
	sendLog   storage.NotificationLog
	sender    Sender
	config    Config
	clock     func() time.Time
	logger    *log.Logger
}

// NewNotifier constructs a notifier.
func NewNotifier(attentionService *attention.Service, events storage.EventStore, sendLog storage.NotificationLog, sender Sender, config Config, clock func() time.Time, logger *log.Logger) *Notifier {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Notifier{
		attention: attentionService,
		events:    events,
		sendLog:   sendLog,
		sender:    sender,
		config:    config,
		clock:     clock,
		logger:    logger,
	}
}

// Run ticks until the context is cancelled. Check failures are logged and
// retried on the next tick; they never stop the loop.
func (n *Notifier) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	n.logger.Printf("notify: scheduler started (interval %s)", interval)
	for {
		select {
		case <-ctx.Done():
			n.logger.Printf("notify: scheduler stopped")
			return
		case <-ticker.C:
			n.Tick(ctx)
		}
	}
}

// Tick runs all checks once.
func (n *Notifier) Tick(ctx context.Context) {
	if err := n.checkDailyDigest(ctx); err != nil {
		n.logger.Printf("notify: daily digest: %v", err)
	}
	if err := n.checkWeeklyDigest(ctx); err != nil {
		n.logger.Printf("notify: weekly digest: %v", err)
	}
	if err := n.checkUrgentReminders(ctx); err != nil {
		n.logger.Printf("notify: urgent reminders: %v", err)
	}
}

func (n *Notifier) checkDailyDigest(ctx context.Context) error {
	now := n.clock()
	if now.Hour() != n.config.DailyHour || now.Minute() > 5 {
		return nil
	}
	sent, err := n.sendLog.WasSentRecently(ctx, TypeDailyDigest, "", "", 24*time.Hour, now)
	if err != nil || sent {
		return err
	}

	view, err := n.attention.Today(ctx, 5)
	if err != nil {
		return err
	}
	if err := n.sender.Send(ctx, n.config.ChannelID, formatDailyDigest(view, now)); err != nil {
		return fmt.Errorf("send daily digest: %w", err)
	}
	return n.recordSend(ctx, TypeDailyDigest, "", "", now)
}

func (n *Notifier) checkWeeklyDigest(ctx context.Context) error {
	now := n.clock()
	if now.Weekday() != n.config.WeeklyDay || now.Hour() != n.config.WeeklyHour || now.Minute() > 5 {
		return nil
	}
	sent, err := n.sendLog.WasSentRecently(ctx, TypeWeeklyDigest, "", "", 7*24*time.Hour, now)
	if err != nil || sent {
		return err
	}

	view, err := n.attention.Week(ctx)
	if err != nil {
		return err
	}
	if err := n.sender.Send(ctx, n.config.ChannelID, formatWeeklyDigest(view, now)); err != nil {
		return fmt.Errorf("send weekly digest: %w", err)
	}
	return n.recordSend(ctx, TypeWeeklyDigest, "", "", now)
}

func (n *Notifier) checkUrgentReminders(ctx context.Context) error {
	now := n.clock()
	hour := now.Hour()
	if hour < n.config.ReminderWindowStart || hour > n.config.ReminderWindowEnd {
		return nil
	}

	view, err := n.attention.Today(ctx, 20)
	if err != nil {
		return err
	}
	for _, candidate := range view.TopActionable {
		if candidate.UrgencyScore < n.config.UrgentThreshold {
			continue
		}
		fingerprint := urgentFingerprint(candidate.Task.ID, candidate.UrgencyScore)
		sent, err := n.sendLog.WasSentRecently(ctx, TypeUrgentReminder, candidate.Task.ID, fingerprint, 12*time.Hour, now)
		if err != nil {
			return err
		}
		if sent {
			continue
		}
		if err := n.sender.Send(ctx, n.config.ChannelID, formatUrgentReminder(candidate)); err != nil {
			return fmt.Errorf("send urgent reminder for %s: %w", candidate.Task.ID, err)
		}
		if err := n.recordSend(ctx, TypeUrgentReminder, candidate.Task.ID, fingerprint, now); err != nil {
			return err
		}
		n.logger.Printf("notify: sent urgent reminder for %s", candidate.Task.ID)
	}
	return nil
}

// recordSend logs the notification for dedup and journals a reminder.sent
// event. The log write comes first so a crash between the two resends the
// journal entry, never the notification.
func (n *Notifier) recordSend(ctx context.Context, notificationType, objectID, fingerprint string, now time.Time) error {
	if err := n.sendLog.LogNotification(ctx, storage.NotificationRecord{
		NotificationType: notificationType,
		ObjectID:         objectID,
		Fingerprint:      fingerprint,
		SentAt:           now.UTC(),
	}); err != nil {
		return fmt.Errorf("log notification: %w", err)
	}

	payload, err := event.MarshalPayload(event.ReminderSentPayload{
		ReminderType: notificationType,
		ObjectID:     objectID,
		Fingerprint:  fingerprint,
	})
	if err != nil {
		return err
	}
	_, err = n.events.AppendEvent(ctx, event.Event{
		Type:        event.TypeReminderSent,
		Timestamp:   now.UTC(),
		PayloadJSON: payload,
		Metadata:    map[string]string{"service": serviceActor},
	})
	if err != nil {
		return fmt.Errorf("append reminder event: %w", err)
	}
	return nil
}

func urgentFingerprint(taskID string, score float64) string {
	return "urgent:" + taskID + ":" + strconv.FormatFloat(score, 'g', -1, 64)
}
