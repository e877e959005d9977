package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"connectrpc.com/connect"
	"github.com/rs/xid"
	"github.com/spf13/cobra"

	"github.com/Anmol9893/botservice/internal/turn/turnv1"
	"github.com/Anmol9893/botservice/pkg/dialog"
)

type chatOptions struct {
	conversation string
	user         string
	showStack    bool
}

func newChatCmd(g *globalFlags) *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the bot from the terminal",
		Long: `Chat reads one message per line from stdin and prints the bot's replies.
The conversation opens with a conversation update so the bot can greet you.
Type /quit or send EOF to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, g.client(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.conversation, "conversation", "", "conversation id (generated when empty)")
	cmd.Flags().StringVar(&opts.user, "user", "cli-user", "user id")
	cmd.Flags().BoolVar(&opts.showStack, "stack", false, "print the dialog stack after each turn")
	return cmd
}

func runChat(cmd *cobra.Command, client turnv1.TurnServiceClient, opts *chatOptions) error {
	out := cmd.OutOrStdout()
	conv := opts.conversation
	if conv == "" {
		conv = xid.New().String()
	}

	send := func(a dialog.Activity) error {
		a.ConversationID = conv
		a.UserID = opts.user
		a.ChannelID = "cli"
		resp, err := client.ProcessTurn(cmd.Context(), connect.NewRequest(&turnv1.ProcessTurnRequest{Activity: a}))
		if err != nil {
			return err
		}
		printReplies(out, resp.Msg, opts.showStack)
		return nil
	}

	welcome := dialog.Activity{Kind: dialog.ActivityConversationUpdate, MembersAdded: []string{opts.user}}
	if err := send(welcome); err != nil {
		return fmt.Errorf("open conversation: %w", err)
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			break
		}
		if err := send(dialog.Activity{Kind: dialog.ActivityMessage, Text: line}); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
	fmt.Fprintln(out)
	return scanner.Err()
}

func printReplies(w io.Writer, resp *turnv1.ProcessTurnResponse, showStack bool) {
	for _, r := range resp.Replies {
		if r.Text != "" {
			fmt.Fprintf(w, "bot: %s\n", r.Text)
		}
		for _, att := range r.Attachments {
			fmt.Fprintf(w, "bot: [%s]\n", att.ContentType)
		}
		if len(r.SuggestedActions) > 0 {
			fmt.Fprintf(w, "     (%s)\n", strings.Join(r.SuggestedActions, " | "))
		}
	}
	if showStack {
		ids := make([]string, 0, len(resp.Stack))
		for _, id := range resp.Stack {
			ids = append(ids, string(id))
		}
		fmt.Fprintf(w, "     stack: [%s]\n", strings.Join(ids, " > "))
	}
}
