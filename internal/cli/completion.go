package cli

import (
	"github.com/spf13/cobra"
)

// NewCompletionCmd creates the completion subcommand with shell-specific subcommands.
func NewCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for sitefence.

To load completions:

Bash:
  $ source <(sitefence completion bash)
  # To load completions for each session, execute once:
  $ sitefence completion bash > /etc/bash_completion.d/sitefence

Zsh:
  $ source <(sitefence completion zsh)
  # To load completions for each session, execute once:
  $ sitefence completion zsh > "${fpath[1]}/_sitefence"

Fish:
  $ sitefence completion fish | source
  # To load completions for each session, execute once:
  $ sitefence completion fish > ~/.config/fish/completions/sitefence.fish`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(out, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			}
			return nil
		},
	}

	return cmd
}
