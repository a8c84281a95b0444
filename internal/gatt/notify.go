package gatt

import (
	"fmt"

	"github.com/chaz8081/motivator/internal/ble"
)

// Subscribe enables notifications on b. Errors wrap ErrSubscriptionFailed.
func Subscribe(conn ble.Connection, b Binding, h ble.NotificationHandler) error {
	if !b.Characteristic.Notifiable() {
		return fmt.Errorf("%w: %s does not notify", ErrSubscriptionFailed, b)
	}
	if err := conn.Subscribe(b.Service.UUID, b.Characteristic.UUID, h); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscriptionFailed, b, err)
	}
	return nil
}

// Unsubscribe disables notifications on b. Errors wrap ErrUnsubscriptionFailed.
func Unsubscribe(conn ble.Connection, b Binding) error {
	if err := conn.Unsubscribe(b.Service.UUID, b.Characteristic.UUID); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscriptionFailed, b, err)
	}
	return nil
}
