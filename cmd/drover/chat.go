package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/droverlabs/drover"
	"github.com/droverlabs/drover/internal/cli"
	"github.com/droverlabs/drover/internal/presentation/tui"
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Opens a line-based chat against the engine. Each line you type is one
turn; the supervisor routes it across the executors and prints the
answer. Type 'exit' or press Ctrl-D to leave.`,
	Run: func(cmd *cobra.Command, args []string) {
		headless, _ := cmd.Flags().GetBool("headless")
		userID, _ := cmd.Flags().GetString("user")
		conversationID, _ := cmd.Flags().GetString("conversation")

		// Piped input gets headless treatment even without the flag.
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			headless = true
		}

		_, rt, _, err := newRuntime(cmd)
		if err != nil {
			fmt.Printf("Error initializing drover: %v\n", err)
			os.Exit(1)
		}
		defer rt.Close()

		sc := cli.NewSignalContext(context.Background())
		defer sc.Cancel()

		if !headless {
			tui.PrintBanner(drover.Version)
		}

		runner := &drover.Runner{
			Input:          cli.NewInterruptibleReader(os.Stdin, sc.Done()),
			Output:         os.Stdout,
			Headless:       headless,
			Renderer:       tui.NewRenderer(),
			UserID:         userID,
			ConversationID: conversationID,
		}

		err = runner.Run(sc, rt.Supervisor)
		if sig := sc.Signal(); sig != nil && !headless {
			fmt.Printf("\nInterrupted (%v)\n", sig)
		}
		if err := cli.ExitError(err); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().Bool("headless", false, "Suppress the banner and prompt (for piped input)")
	chatCmd.Flags().StringP("user", "u", "", "User ID to tag turns with")
	chatCmd.Flags().StringP("conversation", "c", "", "Conversation ID to resume")

	// Make 'chat' the default if no command is provided.
	rootCmd.Run = chatCmd.Run
}
