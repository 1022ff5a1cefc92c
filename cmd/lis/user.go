package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/learnerinfo/lis/internal/accounts"
)

var readPasswordFunc = term.ReadPassword // mockable

func userCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(userAddCmd(opts))
	cmd.AddCommand(userListCmd(opts))
	return cmd
}

func userAddCmd(opts *globalOptions) *cobra.Command {
	var (
		acct          accounts.Account
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd, passwordStdin)
			if err != nil {
				return err
			}

			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			created, err := a.Accounts().Register(cmd.Context(), acct, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s <%s>\n", good.Sprint("registered"), created.Name(), created.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&acct.FirstName, "first", "", "First name")
	cmd.Flags().StringVar(&acct.LastName, "last", "", "Last name")
	cmd.Flags().StringVar(&acct.Email, "email", "", "Email address")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// readPassword reads one line from stdin, or prompts without echo.
func readPassword(cmd *cobra.Command, fromStdin bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Enter password: ")
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func userListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List user accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.Accounts().List(cmd.Context())
			if err != nil {
				return err
			}
			for _, u := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%-32s %s\n", u.Email, u.Name())
			}
			return nil
		},
	}
}
