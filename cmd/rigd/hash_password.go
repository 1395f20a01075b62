package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/KevinKickass/OpenRigCore/internal/auth"
	"github.com/spf13/cobra"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Hash an operator password for the auth.operators section",
	Long: `hash-password reads a password from stdin and prints its argon2id hash.
The password is deliberately not accepted as a flag so it does not end up in
the shell history.`,
	Example: `  echo -n 'secret' | rigd hash-password`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("no password on stdin")
		}
		password := strings.TrimRight(line, "\r\n")
		if password == "" {
			return fmt.Errorf("empty password")
		}

		hash, err := auth.NewPasswordHasher(auth.DefaultHashParams).HashPassword(password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}
