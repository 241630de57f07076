package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/droverlabs/drover/internal/cli"
	"github.com/droverlabs/drover/internal/presentation/graph"
	"github.com/droverlabs/drover/pkg/domain"
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Manage stored conversations",
	Long:    `List, inspect, and remove conversations from the configured storage backend.`,
}

var conversationsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all conversations",
	Run: func(cmd *cobra.Command, args []string) {
		rt := getRuntime(cmd)
		defer rt.Close()

		summaries, err := rt.Supervisor.List(cmd.Context())
		if err != nil {
			fmt.Printf("Error listing conversations: %v\n", err)
			os.Exit(1)
		}

		if len(summaries) == 0 {
			fmt.Println("No conversations found.")
			return
		}

		fmt.Println("Conversations:")
		for _, s := range summaries {
			title := s.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("- %s  [%s, step %d, %d messages]  %s\n",
				s.ID, s.Phase, s.Step, s.MessageCount, title)
		}
	},
}

var conversationsInspectCmd = &cobra.Command{
	Use:   "inspect <conversation-id>",
	Short: "Inspect the state of a conversation",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		conversationID := args[0]
		asGraph, _ := cmd.Flags().GetBool("graph")

		rt := getRuntime(cmd)
		defer rt.Close()

		state, err := rt.Supervisor.Get(cmd.Context(), conversationID)
		if err != nil {
			if errors.Is(err, domain.ErrConversationNotFound) {
				fmt.Printf("Conversation '%s' not found.\n", conversationID)
			} else {
				fmt.Printf("Error loading conversation '%s': %v\n", conversationID, err)
			}
			os.Exit(1)
		}

		if asGraph {
			fmt.Println(graph.GenerateMermaid(state))
			return
		}

		// Pretty print JSON
		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			fmt.Printf("Error marshaling state: %v\n", err)
			os.Exit(1)
		}

		fmt.Println(string(data))
	},
}

var conversationsRmCmd = &cobra.Command{
	Use:   "rm <conversation-id>...",
	Short: "Remove one or more conversations",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rt := getRuntime(cmd)
		defer rt.Close()

		hasError := false
		for _, conversationID := range args {
			if err := rt.Supervisor.Delete(cmd.Context(), conversationID); err != nil {
				fmt.Printf("Error removing '%s': %v\n", conversationID, err)
				hasError = true
			} else {
				fmt.Printf("Removed conversation '%s'\n", conversationID)
			}
		}

		if hasError {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(conversationsCmd)
	conversationsCmd.AddCommand(conversationsLsCmd)
	conversationsCmd.AddCommand(conversationsInspectCmd)
	conversationsCmd.AddCommand(conversationsRmCmd)

	conversationsInspectCmd.Flags().Bool("graph", false, "Print the routing history as a Mermaid flowchart")
}

func getRuntime(cmd *cobra.Command) *cli.Runtime {
	_, rt, _, err := newRuntime(cmd)
	if err != nil {
		fmt.Printf("Error initializing drover: %v\n", err)
		os.Exit(1)
	}
	return rt
}
