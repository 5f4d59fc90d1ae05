package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	imapclient "github.com/robfisher/mailshare/internal/imap"
	"github.com/robfisher/mailshare/internal/importer"
	"github.com/robfisher/mailshare/internal/query"
	"github.com/robfisher/mailshare/internal/tagcloud"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var imapCmd = &cobra.Command{
	Use:   "imap",
	Short: "Manage polling of the shared IMAP mailbox",
	Long: `Manage polling of the shared mailbox configured in [imap].

  [imap]
  host = "mail.example.com"
  username = "shared@example.com"
  mailbox = "INBOX"
  expunge = true`,
}

var imapSetPasswordCmd = &cobra.Command{
	Use:   "set-password",
	Short: "Verify and store the IMAP password",
	Long: `Read the IMAP password, verify it by opening the mailbox, and store it
in the data directory so it can be left out of config.toml.

On a terminal the password is prompted for without echo; otherwise the
first line of stdin is read.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.IMAP.Enabled() {
			return fmt.Errorf("no IMAP server configured; set [imap] host and username")
		}
		imapCfg := imapclient.FromConfig(cfg.IMAP)

		password, err := readPassword(os.Stdin, fmt.Sprintf("Password for %s@%s: ", imapCfg.Username, imapCfg.Host))
		if err != nil {
			return err
		}

		client := imapclient.NewClient(imapCfg, password, imapclient.WithLogger(logger))
		defer client.Close()
		fmt.Println("Testing connection...")
		if err := client.Verify(cmd.Context()); err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}

		if err := imapclient.SavePassword(cfg.CredentialsDir(), imapCfg.Identifier(), password); err != nil {
			return err
		}
		fmt.Printf("Password stored for %s\n", imapCfg.Identifier())
		return nil
	},
}

var imapPollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Import one batch of messages from the mailbox now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.IMAP.Enabled() {
			return fmt.Errorf("no IMAP server configured; set [imap] host and username")
		}
		password, err := imapclient.ResolvePassword(cfg)
		if err != nil {
			return err
		}

		st, err := openLocalStore()
		if err != nil {
			return err
		}
		defer st.Close()

		client := imapclient.NewClient(imapclient.FromConfig(cfg.IMAP), password, imapclient.WithLogger(logger))
		defer client.Close()
		poller := imapclient.NewPoller(client, importer.New(st, logger), imapclient.PollOptions{
			MaxMessages: cfg.IMAP.MaxMessages,
			Expunge:     cfg.IMAP.Expunge,
		}, logger)

		res, err := poller.Poll(cmd.Context())
		if res != nil {
			fmt.Printf("Imported %d mails (%d duplicates, %d failed)\n", res.Imported, res.Duplicates, res.Failed)
		}
		if err != nil {
			return fmt.Errorf("poll: %w", err)
		}

		engine := query.NewSQLiteEngine(st.DB())
		hooks := importHooks{
			roster: tagcloud.NewRoster(cfg.Teams, st),
			clouds: newCloudCache(engine, engine),
			logger: logger,
		}
		return hooks.apply(cmd.Context(), res)
	},
}

// readPassword prompts without echo when in is a terminal and otherwise
// reads its first line.
func readPassword(in *os.File, prompt string) (string, error) {
	var password string
	if isatty.IsTerminal(in.Fd()) {
		fmt.Print(prompt)
		raw, err := term.ReadPassword(int(in.Fd()))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		password = string(raw)
	} else {
		line, err := firstLine(in)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		password = line
	}
	if password == "" {
		return "", fmt.Errorf("password is required")
	}
	return password, nil
}

func firstLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func init() {
	rootCmd.AddCommand(imapCmd)
	imapCmd.AddCommand(imapSetPasswordCmd)
	imapCmd.AddCommand(imapPollCmd)
}
