package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/agrobot/internal/model"
)

var completionCmd = &cobra.Command{
	Use:   "completion <shell>",
	Short: "Print a shell completion script (bash, zsh, fish, powershell)",
	Long: `Print a completion script for the named shell on stdout.

Besides subcommands and flags, the script completes parcel IDs from the
local database (agrobot parcel show <TAB>, agrobot prompt trend <TAB>) and
metric names for --metric. Parcel lookups honour --db and AGROBOT_DB_PATH.

Install the script once for your shell:

  agrobot completion bash > /etc/bash_completion.d/agrobot
  agrobot completion zsh  > "${fpath[1]}/_agrobot"
  agrobot completion fish > ~/.config/fish/completions/agrobot.fish

or load it into the current session only:

  source <(agrobot completion bash)`,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		root := cmd.Root()
		switch args[0] {
		case "zsh":
			return root.GenZshCompletion(out)
		case "fish":
			return root.GenFishCompletion(out, true)
		case "powershell":
			return root.GenPowerShellCompletionWithDesc(out)
		default:
			return root.GenBashCompletionV2(out, true)
		}
	},
}

// completeParcelIDs offers stored parcel IDs for the first positional
// argument, each described by its parcel name. Store errors yield no
// suggestions rather than breaking the shell.
func completeParcelIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	deps, err := buildDeps()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	defer deps.Close()
	st, err := deps.RequireStore()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	parcels, err := st.ListParcels()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	prefix := normaliseParcelID(toComplete)
	var ids []string
	for _, p := range parcels {
		if strings.HasPrefix(p.ID, prefix) {
			ids = append(ids, p.ID+"\t"+p.Name)
		}
	}
	return ids, cobra.ShellCompDirectiveNoFileComp
}

func completeMetrics(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	names := make([]string, 0, len(model.AllMetrics))
	for _, m := range model.AllMetrics {
		names = append(names, string(m))
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

func init() {
	rootCmd.AddCommand(completionCmd)

	for _, c := range []*cobra.Command{parcelShowCmd, parcelStatusCmd, parcelTrendCmd, parcelHistoryCmd, promptStatusCmd, promptTrendCmd} {
		c.ValidArgsFunction = completeParcelIDs
	}
}
