package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/heirloom-restoration/workshop/internal/chat"
	"github.com/heirloom-restoration/workshop/internal/model"
)

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start, follow and answer chat conversations",
}

var chatStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Open a new conversation as a customer",
	Long: `Open a new conversation as a customer.

Examples:
  restorectl chat start --name "Ada" --email ada@example.com
  restorectl chat start --name "Ada" --email ada@example.com --message "My chair has a cracked rung"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")
		message, _ := cmd.Flags().GetString("message")

		syncer := chat.New(newAPIClient(), newLogger())
		conv, err := syncer.StartNewChat(cmd.Context(), name, email)
		if err != nil {
			return err
		}
		if strings.TrimSpace(message) != "" {
			if _, err := syncer.SendMessage(cmd.Context(), chat.SendInput{Content: message}); err != nil {
				return err
			}
		}

		fmt.Fprintln(cmd.OutOrStdout(), conv.ID)
		printSuccess("Started conversation %s", conv.Title)
		return nil
	},
}

var chatSendCmd = &cobra.Command{
	Use:   "send <conversation-id> <message>",
	Short: "Post a message to a conversation",
	Long: `Post a message to a conversation. With --token the message is sent as
staff; otherwise --name and --email identify the customer.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		syncer, err := newSynchronizer(cmd)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if err := syncer.SetCurrentConversation(ctx, model.Conversation{ID: args[0]}); err != nil {
			return err
		}
		msg, err := syncer.SendMessage(ctx, chat.SendInput{Content: strings.Join(args[1:], " ")})
		if err != nil {
			return err
		}

		printMessage(cmd.OutOrStdout(), *msg)
		return nil
	},
}

var chatWatchCmd = &cobra.Command{
	Use:   "watch [conversation-id]",
	Short: "Follow a conversation live",
	Long: `Follow a conversation live, printing its transcript and every new message.
Without a conversation id, staff (--token) follow every conversation.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if len(args) == 0 {
			if adminToken == "" {
				return fmt.Errorf("a conversation id is required without --token")
			}
			return watchInbox(ctx, cmd.OutOrStdout())
		}

		syncer, err := newSynchronizer(cmd)
		if err != nil {
			return err
		}
		return watchConversation(ctx, cmd.OutOrStdout(), syncer, args[0])
	},
}

var chatListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations (staff)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if adminToken == "" {
			return fmt.Errorf("--token is required to list conversations")
		}

		syncer := chat.New(newAPIClient(), newLogger())
		if err := syncer.Refresh(cmd.Context()); err != nil {
			return err
		}

		state := syncer.State()
		if len(state.Conversations) == 0 {
			printWarning("No conversations")
			return nil
		}
		for _, c := range state.Conversations {
			printConversation(cmd.OutOrStdout(), c)
		}
		return nil
	},
}

func init() {
	chatStartCmd.Flags().String("name", "", "customer name")
	chatStartCmd.Flags().String("email", "", "customer email")
	chatStartCmd.Flags().String("message", "", "opening message")

	for _, c := range []*cobra.Command{chatSendCmd, chatWatchCmd} {
		c.Flags().String("name", "", "customer name (without --token)")
		c.Flags().String("email", "", "customer email (without --token)")
	}
}

// newSynchronizer builds a synchronizer acting for the customer named by
// --name/--email, or for staff when a token is set.
func newSynchronizer(cmd *cobra.Command) (*chat.Synchronizer, error) {
	viewer := chat.Viewer{ID: "staff", Name: "staff"}
	if adminToken == "" {
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")
		if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" {
			return nil, fmt.Errorf("--name and --email are required without --token")
		}
		viewer = chat.Viewer{ID: strings.ToLower(strings.TrimSpace(email)), Name: strings.TrimSpace(name)}
	}
	return chat.New(newAPIClient(), newLogger(), chat.WithViewer(viewer)), nil
}

// watchConversation prints each message of conversationID once, in order,
// as the synchronizer learns about it.
func watchConversation(ctx context.Context, w io.Writer, syncer *chat.Synchronizer, conversationID string) error {
	var mu sync.Mutex
	printed := make(map[string]bool)
	unsubscribe := syncer.Subscribe(func(s chat.State) {
		if s.CurrentConversation == nil || s.CurrentConversation.ID != conversationID {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		for _, m := range s.CurrentConversation.Messages {
			if !printed[m.ID] {
				printed[m.ID] = true
				printMessage(w, m)
			}
		}
	})
	defer unsubscribe()

	syncer.ToggleChat()
	if err := syncer.SetCurrentConversation(ctx, model.Conversation{ID: conversationID}); err != nil {
		return err
	}

	printSuccess("Watching %s, press Ctrl+C to stop", conversationID)
	return newAPIClient().Watch(ctx, conversationID, syncer.ApplyEvent)
}

func watchInbox(ctx context.Context, w io.Writer) error {
	printSuccess("Watching all conversations, press Ctrl+C to stop")
	return newAPIClient().Watch(ctx, "", func(ev model.ChatEvent) {
		switch ev.Type {
		case model.EventMessageCreated:
			if ev.Message != nil {
				fmt.Fprintf(w, "%s ", ev.ConversationID)
				printMessage(w, *ev.Message)
			}
		case model.EventMessagesRead:
			fmt.Fprintf(w, "%s read by %s\n", ev.ConversationID, ev.ViewerID)
		case model.EventConversation:
			if ev.Conversation != nil {
				printConversation(w, *ev.Conversation)
			}
		}
	})
}

// --- cache ---

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and invalidate the server query cache (staff)",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if adminToken == "" {
			return fmt.Errorf("--token is required for cache commands")
		}
		return nil
	},
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate [substring]",
	Short: "Drop cached queries whose key contains substring, or everything",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		substr := ""
		if len(args) == 1 {
			substr = args[0]
		}

		n, err := newAPIClient().InvalidateCache(cmd.Context(), substr)
		if err != nil {
			return err
		}
		if n < 0 {
			printSuccess("Cleared the whole cache")
		} else {
			printSuccess("Removed %d entries matching %q", n, substr)
		}
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := newAPIClient().CacheStats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "entries: %d\nhits:    %d\nmisses:  %d\n", stats.Entries, stats.Hits, stats.Misses)
		return nil
	},
}
