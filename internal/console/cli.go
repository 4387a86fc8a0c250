// Package console is the command-line surface. It owns flag parsing,
// user-facing error formatting and the exit code.
package console

import (
	"chat-oracle/internal/bootstrap"
	"chat-oracle/internal/config"
	"chat-oracle/internal/usecase"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// Runner starts the application and runs job against it.
type Runner func(ctx context.Context, cfg *config.Config, job bootstrap.Job) error

var errMissingPrompt = errors.New("a prompt is required")

type CLI struct {
	loadConfig func() (*config.Config, error)
	run        Runner
	stdout     io.Writer
	stderr     io.Writer

	profile   string
	visible   bool
	verbose   bool
	model     string
	timeoutMS int
	retries   int
}

func New() *CLI {
	return &CLI{
		loadConfig: config.GetConfig,
		run:        bootstrap.Run,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
	}
}

// Execute runs the command line in args and returns the process exit code.
func (c *CLI) Execute(ctx context.Context, args []string) int {
	root := c.Command()
	root.SetArgs(args)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(c.stderr, FormatError(err, c.profile))

		return 1
	}

	return 0
}

func (c *CLI) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   "oracle <prompt...>",
		Short: "Ask a chat web UI a question through a real browser session",
		Long: `oracle submits a prompt to the chat web application through a browser
session restored from a named profile and prints the finished answer to
standard output.

Run "oracle login" once per profile to sign in.`,
		Example: `  oracle login --profile work --visible
  oracle --profile work --model thinking "Summarize RFC 9110 in five bullets"
  oracle --timeout 600000 --retries 1 -- "-v is a flag in this prompt"`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          c.runAsk,
	}

	// Usage and help never mix with the answer on stdout.
	root.SetOut(c.stderr)
	root.SetErr(c.stderr)
	root.CompletionOptions.DisableDefaultCmd = true
	// Prompts may start with "help"; keep that word for them.
	root.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})

	root.PersistentFlags().StringVar(&c.profile, "profile", "default", "session profile name")
	root.PersistentFlags().BoolVar(&c.visible, "visible", false, "show the browser window")
	root.PersistentFlags().BoolVar(&c.verbose, "verbose", false, "log progress to standard error")

	root.Flags().StringVar(&c.model, "model", "", "model to select before asking (default from ORACLE_MODEL)")
	root.Flags().IntVar(&c.timeoutMS, "timeout", 0, "response timeout in milliseconds (default from ORACLE_TIMEOUT)")
	root.Flags().IntVar(&c.retries, "retries", 0, "extra attempts after a failed query")

	root.AddCommand(c.loginCommand())

	return root
}

func (c *CLI) loginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in and save the session for a profile",
		Long: `login opens the chat application, signs in with credentials from
ORACLE_IDENTITY/ORACLE_SECRET or the OS keychain (service "chat-oracle",
accounts "identity" and "secret"), asks for an emailed verification code
when one is requested and saves the session under the profile.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          c.runLogin,
	}
}

func (c *CLI) runLogin(cmd *cobra.Command, _ []string) error {
	cfg, err := c.config(cmd)
	if err != nil {
		return err
	}

	return c.run(cmd.Context(), cfg, func(ctx context.Context, svc *usecase.Service) error {
		result, err := svc.Auth.Login(ctx, cfg.OracleConfig.Profile)
		if err != nil {
			return err
		}

		if result.AlreadyLoggedIn {
			fmt.Fprintf(c.stderr, "Already logged in (profile %q).\n", result.Profile)
		} else {
			fmt.Fprintf(c.stderr, "Logged in (profile %q).\n", result.Profile)
		}

		return nil
	})
}

func (c *CLI) runAsk(cmd *cobra.Command, args []string) error {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		_ = cmd.Usage()

		return errMissingPrompt
	}

	cfg, err := c.config(cmd)
	if err != nil {
		return err
	}

	return c.run(cmd.Context(), cfg, func(ctx context.Context, svc *usecase.Service) error {
		if err := svc.Auth.CheckSession(ctx, cfg.OracleConfig.Profile); err != nil {
			return err
		}

		answer, err := svc.Query.Ask(ctx, prompt)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(c.stdout, answer)

		return err
	})
}

// config loads the environment configuration and applies the flags the user
// actually set.
func (c *CLI) config(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()

	var o config.Overrides
	if flags.Changed("profile") {
		o.Profile = &c.profile
	}

	if flags.Changed("visible") {
		o.Visible = &c.visible
	}

	if flags.Changed("verbose") {
		o.Verbose = &c.verbose
	}

	if flags.Changed("model") {
		o.Model = &c.model
	}

	if flags.Changed("timeout") {
		timeout := time.Duration(c.timeoutMS) * time.Millisecond
		o.Timeout = &timeout
	}

	if flags.Changed("retries") {
		o.Retries = &c.retries
	}

	if err := o.Apply(cfg); err != nil {
		return nil, err
	}

	c.profile = cfg.OracleConfig.Profile

	return cfg, nil
}
