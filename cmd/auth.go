package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/legal-assistant/wordkit/internal/config"
	"github.com/legal-assistant/wordkit/internal/format"
	"github.com/legal-assistant/wordkit/internal/suggest"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the legal assistant API",
	Long: `Sign in with your email and password. The password is read from --password,
the WORDKIT_PASSWORD environment variable, or standard input when piped.
The access token is kept in the settings profile.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a := rt.app

		if apiURL, _ := cmd.Flags().GetString("api-url"); apiURL != "" {
			if err := config.UpdateAPIBaseURL(apiURL); err != nil {
				return err
			}
			a.API = suggest.NewClient(apiURL,
				suggest.WithTimeout(rt.cfg.API.Timeout),
				suggest.WithTokenSource(a.Tokens),
			)
		}

		if refresh, _ := cmd.Flags().GetBool("refresh"); refresh {
			if err := a.Refresh(ctx); err != nil {
				return reauthHint(err)
			}
			return printOutput(cmd, "Token refreshed")
		}

		email, _ := cmd.Flags().GetString("email")
		if email == "" {
			return errors.New("--email is required")
		}
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			password = os.Getenv("WORDKIT_PASSWORD")
		}
		if password == "" {
			if piped, ok := checkStdinPipe(); ok {
				password = piped
			}
		}
		if password == "" {
			return errors.New("no password given: use --password, WORDKIT_PASSWORD, or pipe it on stdin")
		}

		user, err := a.Login(ctx, email, password)
		if err != nil {
			return err
		}
		return printOutput(cmd, describeUser(user))
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored access token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return rt.app.Logout(cmd.Context())
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := rt.app.WhoAmI(cmd.Context())
		if err != nil {
			return reauthHint(err)
		}
		return printOutput(cmd, describeUser(user))
	},
}

func describeUser(u suggest.User) string {
	name := u.FullName
	if name == "" {
		name = u.Email
	}
	s := fmt.Sprintf("%s <%s>", name, u.Email)
	if u.Organization != "" {
		s += ", " + u.Organization
	}
	return s
}

func printOutput(cmd *cobra.Command, content string) error {
	out, err := format.FormatOutput(content, rt.output)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

func init() {
	loginCmd.Flags().String("email", "", "Account email")
	loginCmd.Flags().String("password", "", "Account password")
	loginCmd.Flags().String("api-url", "", "Legal assistant API base URL, saved to the global config")
	loginCmd.Flags().Bool("refresh", false, "Refresh the stored token instead of signing in")
	loginCmd.MarkFlagsMutuallyExclusive("refresh", "email")
}
