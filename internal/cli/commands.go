package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tOgg1/spark/internal/events"
	"github.com/tOgg1/spark/internal/feed"
	"github.com/tOgg1/spark/internal/models"
	"github.com/tOgg1/spark/internal/tui"
)

const chatCommandName = "chat"

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func conversationArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   chatCommandName + " [conversation]",
		Short: "Open the interactive conversation view",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !hasTTY() {
				return usageError(cmd, "chat needs an interactive terminal; use history, send or tail instead")
			}

			ctx, cancel := signalContext(cmd)
			defer cancel()

			rt, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			conversationID, err := rt.resolveConversation(conversationArg(args))
			if err != nil {
				return usageError(cmd, "%v", err)
			}

			conv := rt.conversation(true)
			defer conv.Wait()
			defer conv.Close()

			if err := conv.Open(ctx, conversationID); err != nil {
				return err
			}
			if err := rt.remember(conversationID); err != nil {
				return err
			}

			return tui.Run(ctx, conv, tui.Options{
				Title:          conversationID,
				UserID:         a.cfg.Identity.UserID,
				Theme:          tui.ThemeByName(a.cfg.TUI.Theme),
				ShowTimestamps: a.cfg.TUI.ShowTimestamps,
			})
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history [conversation]",
		Aliases: []string{"log"},
		Short:   "Print a conversation, oldest message first",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			asJSON, _ := cmd.Flags().GetBool("json")

			ctx := cmd.Context()
			rt, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			conversationID, err := rt.resolveConversation(conversationArg(args))
			if err != nil {
				return usageError(cmd, "%v", err)
			}

			conv := rt.conversation(false)
			defer conv.Close()
			if err := conv.Open(ctx, conversationID); err != nil {
				return err
			}
			if err := conv.Err(); err != nil {
				return err
			}

			for all && conv.HasMore() {
				before := conv.Snapshot().Len()
				conv.LoadOlder(ctx)
				if err := conv.Err(); err != nil {
					return err
				}
				if conv.Snapshot().Len() == before {
					break
				}
			}

			var newest []models.Message
			for msg := range conv.Messages() {
				newest = append(newest, msg)
			}
			if err := writeMessages(cmd.OutOrStdout(), oldestFirst(newest), asJSON); err != nil {
				return err
			}
			if !all && conv.HasMore() && !asJSON {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d older messages not shown (use --all)\n", conv.Remaining())
			}
			return nil
		},
	}
	cmd.Flags().Bool("all", false, "page through the whole history")
	cmd.Flags().Bool("json", false, "print one JSON object per message")
	return cmd
}

func newSendCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send [message...]",
		Short: "Send a message and wait for the backend to accept it",
		RunE: func(cmd *cobra.Command, args []string) error {
			to, _ := cmd.Flags().GetString("to")

			content := strings.Join(args, " ")
			if strings.TrimSpace(content) == "" {
				piped, err := readStdinIfPiped()
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				content = piped
			}

			ctx := cmd.Context()
			rt, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			conversationID, err := rt.resolveConversation(to)
			if err != nil {
				return usageError(cmd, "%v", err)
			}

			conv := rt.conversation(false)
			defer conv.Wait()
			defer conv.Close()
			if err := conv.Open(ctx, conversationID); err != nil {
				return err
			}

			id, done, err := conv.Send(ctx, content)
			switch {
			case errors.Is(err, feed.ErrEmptyMessage):
				return usageError(cmd, "message body is required")
			case errors.Is(err, feed.ErrNoCurrentUser):
				return usageError(cmd, "no user set; pass --user or set identity.user_id")
			case err != nil:
				return err
			}
			if err := <-done; err != nil {
				return &ExitError{Code: ExitCodeFailure, Err: err}
			}
			if err := rt.remember(conversationID); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().String("to", "", "conversation id (default: the last one used)")
	return cmd
}

func newAttachCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attach <message-id> <path>",
		Short: "Attach a stored file to a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mimeType, _ := cmd.Flags().GetString("mime")

			att := models.Attachment{
				ID:        uuid.NewString(),
				MessageID: strings.TrimSpace(args[0]),
				Path:      strings.TrimSpace(args[1]),
				MimeType:  strings.TrimSpace(mimeType),
			}
			if cmd.Flags().Changed("aspect") {
				aspect, _ := cmd.Flags().GetFloat64("aspect")
				att.AspectRatio = &aspect
			}
			if err := att.Validate(); err != nil {
				return usageError(cmd, "%v", err)
			}

			ctx := cmd.Context()
			rt, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			stored, err := rt.backend.AddAttachment(ctx, att)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), stored.ID)
			return nil
		},
	}
	cmd.Flags().String("mime", "", "mime type (default: guessed from the path)")
	cmd.Flags().Float64("aspect", 0, "width/height of an image")
	return cmd
}

func newTailCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tail [conversation]",
		Short: "Stream realtime inserts as JSON lines",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			rt, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			conversationID, err := rt.resolveConversation(conversationArg(args))
			if err != nil {
				return usageError(cmd, "%v", err)
			}

			changes, stop, err := rt.backend.Subscribe(ctx, events.Filter{
				ConversationID: conversationID,
				Types:          []events.ChangeType{events.ChangeInsert},
			})
			if err != nil {
				return err
			}
			defer stop()

			return streamChanges(ctx, cmd.OutOrStdout(), changes)
		},
	}
}

func newUseCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use [conversation]",
		Short: "Show or set the default conversation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			forget, _ := cmd.Flags().GetBool("clear")
			store := contextStore(a.cfg)

			switch {
			case forget:
				return store.Clear()
			case len(args) == 1:
				current, err := store.Load()
				if err != nil {
					return err
				}
				current.SetConversation(strings.TrimSpace(args[0]), a.cfg.Identity.UserID)
				if err := store.Save(current); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), current.String())
				return nil
			default:
				current, err := store.Load()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), current.String())
				return nil
			}
		},
	}
	cmd.Flags().Bool("clear", false, "forget the default conversation")
	return cmd
}

func newPushTokenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "push-token <user> <token>",
		Short: "Register the push notification token of a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.backend.RegisterPushToken(ctx, strings.TrimSpace(args[0]), strings.TrimSpace(args[1])); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "registered")
			return nil
		},
	}
}
