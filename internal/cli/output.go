package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"golang.org/x/term"

	"github.com/tOgg1/spark/internal/events"
	"github.com/tOgg1/spark/internal/models"
)

const timeLayout = "2006-01-02 15:04"

func hasTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// readStdinIfPiped returns stdin when it is not a terminal.
func readStdinIfPiped() (string, error) {
	info, err := os.Stdin.Stat()
	if err != nil {
		return "", err
	}
	if info.Mode()&os.ModeCharDevice != 0 {
		return "", nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// oldestFirst reverses a newest-first message sequence.
func oldestFirst(newest []models.Message) []models.Message {
	out := slices.Clone(newest)
	slices.Reverse(out)
	return out
}

func writeMessages(w io.Writer, messages []models.Message, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		for _, msg := range messages {
			if err := enc.Encode(msg); err != nil {
				return err
			}
		}
		return nil
	}

	for _, msg := range messages {
		content := ""
		if msg.Content != nil {
			content = *msg.Content
		}
		if _, err := fmt.Fprintf(w, "%s  %s: %s\n", msg.CreatedAt.Local().Format(timeLayout), msg.SenderID, content); err != nil {
			return err
		}
		for _, att := range msg.Attachments {
			if _, err := fmt.Fprintf(w, "    %s\n", attachmentLine(att)); err != nil {
				return err
			}
		}
	}
	return nil
}

func attachmentLine(att models.Attachment) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(att.Variant()))
	if att.AspectRatio != nil {
		fmt.Fprintf(&b, " %.2f", *att.AspectRatio)
	} else if att.MimeType != "" {
		b.WriteString(" ")
		b.WriteString(att.MimeType)
	}
	b.WriteString("] ")
	b.WriteString(att.Path)
	return b.String()
}

// streamChanges writes every change as one JSON line until ctx ends or the
// channel closes.
func streamChanges(ctx context.Context, w io.Writer, changes <-chan events.Change) error {
	enc := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-changes:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("realtime stream closed")
			}
			if err := enc.Encode(change); err != nil {
				return err
			}
		}
	}
}
