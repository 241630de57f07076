package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/droverlabs/drover"
	"github.com/droverlabs/drover/internal/cli"
	"github.com/droverlabs/drover/internal/dto"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <message>",
	Short: "Run a single turn and print the answer",
	Long: `Handles one message as a complete turn and exits. With --conversation
the turn continues an existing conversation; otherwise a new one is
created and its ID printed on stderr so follow-ups can resume it.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		conversationID, _ := cmd.Flags().GetString("conversation")
		userID, _ := cmd.Flags().GetString("user")
		jsonMode, _ := cmd.Flags().GetBool("json")

		_, rt, _, err := newRuntime(cmd)
		if err != nil {
			fmt.Printf("Error initializing drover: %v\n", err)
			os.Exit(1)
		}
		defer rt.Close()

		sc := cli.NewSignalContext(context.Background())
		defer sc.Cancel()

		result, err := rt.Supervisor.Handle(sc, drover.TurnRequest{
			ConversationID: conversationID,
			Message:        strings.Join(args, " "),
			UserID:         userID,
		})
		if err != nil {
			if cli.IsInterrupted(err) {
				os.Exit(130)
			}
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		if jsonMode {
			data, err := json.MarshalIndent(dto.FromTurnResult(result), "", "  ")
			if err != nil {
				fmt.Printf("Error marshaling result: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(data))
		} else {
			if conversationID == "" {
				fmt.Fprintf(os.Stderr, "conversation: %s\n", result.ConversationID)
			}
			fmt.Println(strings.TrimSpace(result.Response))
		}

		if result.Err != nil {
			fmt.Fprintf(os.Stderr, "turn failed: %v\n", result.Err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("conversation", "c", "", "Conversation ID to continue")
	runCmd.Flags().StringP("user", "u", "", "User ID to tag the turn with")
	runCmd.Flags().Bool("json", false, "Print the full turn result as JSON")
}
