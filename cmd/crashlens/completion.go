package main

import (
	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for crashlens.

To load completions:

Bash:
  $ source <(crashlens completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ crashlens completion bash > /etc/bash_completion.d/crashlens
  # macOS:
  $ crashlens completion bash > $(brew --prefix)/etc/bash_completion.d/crashlens

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ crashlens completion zsh > "${fpath[1]}/_crashlens"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ crashlens completion fish | source

  # To load completions for each session, execute once:
  $ crashlens completion fish > ~/.config/fish/completions/crashlens.fish

PowerShell:
  PS> crashlens completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> crashlens completion powershell > crashlens.ps1
  # and source this file from your PowerShell profile.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := cmd.Root()
		out := cmd.OutOrStdout()

		switch args[0] {
		case "bash":
			return root.GenBashCompletionV2(out, true)
		case "zsh":
			return root.GenZshCompletion(out)
		case "fish":
			return root.GenFishCompletion(out, true)
		case "powershell":
			return root.GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
