package notify

import (
	"context"
	"fmt"

	"github.com/gen2brain/beeep"
)

const desktopBodyLimit = 100

// Desktop shows notifications through the operating system's notification
// center.
type Desktop struct {
	// AppName prefixes the title when set.
	AppName string

	send func(title, body string) error
}

// NewDesktop creates a desktop notifier.
func NewDesktop(appName string) *Desktop {
	return &Desktop{
		AppName: appName,
		send: func(title, body string) error {
			return beeep.Notify(title, body, "")
		},
	}
}

// Notify implements Notifier.
func (d *Desktop) Notify(ctx context.Context, n Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	title := n.Title
	if n.SenderID != "" {
		title = "@" + n.SenderID
	}
	if d.AppName != "" {
		title = d.AppName + " · " + title
	}
	if err := d.send(title, truncate(n.Body, desktopBodyLimit)); err != nil {
		return fmt.Errorf("desktop notification: %w", err)
	}
	return nil
}
