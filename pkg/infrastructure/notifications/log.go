package notifications

import (
	"context"
	"log"
)

// LogNotifier is a mock notification service for local development
type LogNotifier struct{}

func (n *LogNotifier) SendPushNotification(ctx context.Context, athleteID string, title, body string, tokens []string, data map[string]string) error {
	log.Printf("[LogNotifier] MOCK PUSH to %s (%d tokens): %s - %s", athleteID, len(tokens), title, body)
	return nil
}
