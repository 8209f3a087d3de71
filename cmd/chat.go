package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ─── chat ─────────────────────────────────────────────────────────────────────

var chatFrom string

var chatCmd = &cobra.Command{
	Use:   "chat --from <phone> <text...>",
	Short: "Send one chat message to the assistant and print the reply",
	Long: `Send one message to the assistant exactly as if it had arrived over
WhatsApp from the given phone number.

An unlinked phone that sends a single word links the account with that
username.`,
	Example: `  agrobot chat --from +15550001 ana
  agrobot chat --from +15550001 "show my parcels"
  agrobot chat --from whatsapp:+15550001 "how is P1 doing?"
  agrobot chat --from +15550001 "set my report frequency to every 3 days"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(chatFrom) == "" {
			return fmt.Errorf("--from is required")
		}
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		svc, err := deps.Assistant()
		if err != nil {
			return err
		}
		reply := svc.HandleMessage(cmd.Context(), chatFrom, strings.Join(args, " "))
		fmt.Fprintln(cmd.OutOrStdout(), reply)
		return nil
	},
}

// ─── link ─────────────────────────────────────────────────────────────────────

var linkCmd = &cobra.Command{
	Use:     "link <phone> <username>",
	Short:   "Link a phone number to a farmer account",
	Example: `  agrobot link +15550001 ana`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		svc, err := deps.Assistant()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), svc.LinkAccount(args[0], args[1]))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(linkCmd)

	chatCmd.Flags().StringVar(&chatFrom, "from", "", "sender phone number (a whatsapp: prefix is stripped)")
}
