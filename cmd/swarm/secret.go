package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"agent-swarm/internal/infra/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Config file helpers",
	}
	cmd.AddCommand(newEncryptCmd())
	return cmd
}

func newEncryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt [value]",
		Short: "Seal a secret config value with " + config.PassphraseEnv,
		Long: "encrypt prints an enc: value for a secret config field such as store.redis_url. " +
			"The value is read from the argument or, when omitted, the first line of stdin. " +
			"swarm unseals it at load time when " + config.PassphraseEnv + " holds the same passphrase.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			passphrase := os.Getenv(config.PassphraseEnv)
			if passphrase == "" {
				return fmt.Errorf("%s is not set", config.PassphraseEnv)
			}

			var value string
			if len(args) == 1 {
				value = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read value from stdin: %w", err)
				}
				value = strings.TrimRight(line, "\r\n")
			}
			if value == "" {
				return fmt.Errorf("empty value")
			}

			sealed, err := config.SealSecret(value, passphrase)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
}
