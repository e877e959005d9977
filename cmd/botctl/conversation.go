package main

import (
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
	"github.com/spf13/cobra"

	"github.com/Anmol9893/botservice/internal/turn/turnv1"
)

func newInspectCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <conversation-id>",
		Short: "Print the dialog stack, history and reference of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := g.client().GetConversation(cmd.Context(),
				connect.NewRequest(&turnv1.GetConversationRequest{ConversationID: args[0]}))
			if err != nil {
				return fmt.Errorf("get conversation: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp.Msg.Conversation)
		},
	}
}

func newResetCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <conversation-id>",
		Short: "Discard the dialog stack of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := g.client().ResetConversation(cmd.Context(),
				connect.NewRequest(&turnv1.ResetConversationRequest{ConversationID: args[0]}))
			if err != nil {
				return fmt.Errorf("reset conversation: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "conversation %s reset\n", args[0])
			return nil
		},
	}
}
