package infrastructure

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/yourusername/yt-extract-go/internal/domain"
	"go.uber.org/zap"
)

// NotificationService implements domain.Notifier with desktop notifications
type NotificationService struct {
	config *domain.NotificationConfig
	logger *zap.Logger
	run    func(name string, args ...string) error
}

// NewNotificationService creates a new notification service
func NewNotificationService(config *domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		config: config,
		logger: logger,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// Send sends a notification
func (n *NotificationService) Send(title, message string) error {
	if !n.config.Enabled {
		n.logger.Debug("Notifications disabled, skipping",
			zap.String("title", title),
			zap.String("message", message))
		return nil
	}

	var err error
	switch n.config.Method {
	case "osascript":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`, escapeAppleScript(message), escapeAppleScript(title))
		err = n.run("osascript", "-e", script)
	case "notify-send":
		err = n.run("notify-send", title, message)
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}

	if err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", n.config.Method),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent",
		zap.String("title", title),
		zap.String("message", message))
	return nil
}

// NotifyAttemptStarted sends notification when an attempt starts
func (n *NotificationService) NotifyAttemptStarted(url string, mode domain.Mode) {
	n.Send("Download Started", fmt.Sprintf("Processing: %s (%s)", truncateString(url, 40), mode))
}

// NotifyAttemptCompleted sends notification when an attempt completes
func (n *NotificationService) NotifyAttemptCompleted(url string, mode domain.Mode) {
	n.Send("Download Completed", fmt.Sprintf("Success: %s (%s)", truncateString(url, 40), mode))
}

// NotifyAttemptFailed sends notification when an attempt fails
func (n *NotificationService) NotifyAttemptFailed(url string, mode domain.Mode, err error) {
	message := fmt.Sprintf("Failed: %s (%s)", truncateString(url, 40), mode)
	if err != nil {
		message += ": " + truncateString(err.Error(), 80)
	}
	n.Send("Download Failed", message)
}

// escapeAppleScript escapes quotes and backslashes for a string literal
func escapeAppleScript(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
