// Command walletctl manages the stored WalletFit session from a terminal.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/AneeshNi47/walletfit-ui/internal/app"
	"github.com/AneeshNi47/walletfit-ui/internal/config"
	"github.com/AneeshNi47/walletfit-ui/internal/models"
	"github.com/AneeshNi47/walletfit-ui/internal/session"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cmd := rootCmd(newPrompter(stdin, stdout), stderr)
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.ExecuteContext(context.Background())
}

type cli struct {
	configPath string
	verbose    bool
	prompt     *prompter
	stderr     io.Writer
}

func rootCmd(p *prompter, stderr io.Writer) *cobra.Command {
	c := &cli{prompt: p, stderr: stderr}
	cmd := &cobra.Command{
		Use:           "walletctl",
		Short:         "Manage the WalletFit session",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Log at the configured level instead of warnings only")

	cmd.AddCommand(c.loginCmd(), c.logoutCmd(), c.statusCmd(), c.refreshCmd(), c.registerCmd(), c.accountsCmd())
	return cmd
}

// open builds the App. An expired session is reported on stderr.
func (c *cli) open(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	level := slog.LevelWarn
	if c.verbose {
		level, _ = config.ParseLevel(cfg.Log.Level)
	}
	logger := slog.New(slog.NewTextHandler(c.stderr, &slog.HandlerOptions{Level: level}))
	return app.New(ctx, cfg, app.WithLogger(logger), app.WithNavigator(app.PrintNavigator{W: c.stderr}))
}

func (c *cli) loginCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if username == "" {
				if username, err = c.prompt.line("Username or email: "); err != nil {
					return fmt.Errorf("failed to read username: %w", err)
				}
			}
			if password == "" {
				if password, err = c.prompt.secret("Password: "); err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
			}
			if strings.TrimSpace(username) == "" || password == "" {
				return fmt.Errorf("username and password are required")
			}

			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.Session.Login(cmd.Context(), strings.TrimSpace(username), password)
			if err != nil {
				if errors.Is(err, session.ErrInvalidCredentials) {
					return fmt.Errorf("invalid username or password")
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", s.User.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "user", "u", "", "Username or email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (optional, will prompt if omitted)")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if _, ok := a.Session.Current(); !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
				return nil
			}
			a.Session.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			s, ok := a.Session.Current()
			if !ok {
				fmt.Fprintln(out, "Not signed in")
				return nil
			}
			who := s.User.Username
			if s.User.Email != "" && s.User.Email != who {
				who += " <" + s.User.Email + ">"
			}
			fmt.Fprintf(out, "Signed in as %s\n", who)
			fmt.Fprintln(out, describeExpiry(s.AccessToken, time.Now()))
			return nil
		},
	}
}

// describeExpiry reports when the access token stops being accepted.
func describeExpiry(token string, now time.Time) string {
	exp, ok := session.AccessExpiry(token)
	if !ok {
		return "Access token expiry unknown"
	}
	exp = exp.UTC()
	if !exp.After(now) {
		return fmt.Sprintf("Access token expired at %s", exp.Format(time.RFC3339))
	}
	return fmt.Sprintf("Access token expires at %s (in %s)", exp.Format(time.RFC3339), exp.Sub(now).Round(time.Second))
}

func (c *cli) refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if _, ok := a.Session.Current(); !ok {
				return fmt.Errorf("not signed in")
			}
			if err := a.Session.Refresh(cmd.Context()); err != nil {
				return err
			}
			s, _ := a.Session.Current()
			fmt.Fprintln(cmd.OutOrStdout(), "Access token refreshed")
			fmt.Fprintln(cmd.OutOrStdout(), describeExpiry(s.AccessToken, time.Now()))
			return nil
		},
	}
}

func (c *cli) registerCmd() *cobra.Command {
	var in models.RegisterRequest
	var password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a WalletFit account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(in.Username) == "" || strings.TrimSpace(in.Email) == "" {
				return fmt.Errorf("missing required flags: user, email")
			}
			if password == "" {
				var err error
				if password, err = c.prompt.secret("Password: "); err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
				confirm, err := c.prompt.secret("Confirm password: ")
				if err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
				if confirm != password {
					return fmt.Errorf("passwords do not match")
				}
			}
			if password == "" {
				return fmt.Errorf("password cannot be empty")
			}
			in.Password = password

			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.Register(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %s created and signed in\n", s.User.Username)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&in.Username, "user", "u", "", "Username")
	f.StringVar(&in.Email, "email", "", "Email address")
	f.StringVarP(&password, "password", "p", "", "Password (optional, will prompt if omitted)")
	f.StringVar(&in.FirstName, "first-name", "", "First name")
	f.StringVar(&in.LastName, "last-name", "", "Last name")
	f.StringVar(&in.HouseholdName, "household", "", "Household name (defaults to \"<first name>'s Household\")")
	f.StringVar(&in.Profile.PhoneNumber, "phone", "", "Phone number")
	f.StringVar(&in.Profile.Currency, "currency", "AED", "Currency: AED, INR or USD")
	f.StringVar(&in.Profile.Theme, "theme", "light", "Theme: light or dark")
	return cmd
}

func (c *cli) accountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List accounts and balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if _, ok := a.Session.Current(); !ok {
				app.PrintNavigator{W: c.stderr}.Navigate(cmd.Context(), app.LoginPath)
				return fmt.Errorf("not signed in")
			}
			accounts, err := a.Client.ListAccounts(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tTYPE\tBALANCE")
			var total float64
			for _, acc := range accounts {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s %s\n", acc.ID, acc.Name, acc.Type, acc.Balance, acc.Currency)
				total += acc.Balance.Float()
			}
			fmt.Fprintf(tw, "\tTotal\t\t%.2f\n", total)
			return tw.Flush()
		},
	}
}

// prompter reads answers from stdin, hiding input on a terminal.
type prompter struct {
	in  io.Reader
	out io.Writer
	r   *bufio.Reader
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: in, out: out, r: bufio.NewReader(in)}
}

func (p *prompter) line(label string) (string, error) {
	fmt.Fprint(p.out, label)
	s, err := p.r.ReadString('\n')
	if err != nil && (s == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimRight(s, "\r\n"), nil
}

func (p *prompter) secret(label string) (string, error) {
	// Check if stdin is a terminal
	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(p.out, label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.out) // Print newline after password input
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	// Fallback for non-terminal (e.g. tests, pipes)
	return p.line(label)
}
