package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"spotifetch/pkg/auth"
	"spotifetch/pkg/logger"
	"spotifetch/pkg/spotify"
	"spotifetch/pkg/ui"
)

var verifyLogin bool

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Spotify client credentials",
	Long: `Manage stored Spotify client credentials.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (read only)

Never share your client secret or config files!`,
}

var loginCmd = &cobra.Command{
	Use:   "login [profile]",
	Short: "Store a client id and secret",
	Long: `Store a Spotify client id and secret under a profile name.

The secret is read without echo when stdin is a terminal. Use --verify to
request a token with the new credentials before saving them.`,
	Example: `  # Store the default profile
  spotifetch auth login

  # Store and check a second application
  spotifetch auth login work --verify`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout [profile]",
	Short: "Remove stored credentials",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogout,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored profiles",
	Long:  `List stored profiles with the client secret masked.`,
	RunE:  runList,
}

var guideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Explain how to create Spotify client credentials",
	Run: func(cmd *cobra.Command, args []string) {
		auth.WriteCredentialsGuide(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
	authCmd.AddCommand(guideCmd)

	loginCmd.Flags().BoolVar(&verifyLogin, "verify", false, "request a token before saving")
}

func profileArg(args []string) string {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0])
	}
	return auth.DefaultProfile
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	name := profileArg(args)
	reader := bufio.NewReader(os.Stdin)

	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Printf("Profile '%s' already exists. Replace it? (y/N): ", name)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Print("Client ID: ")
	id, err := reader.ReadString('\n')
	if err != nil && id == "" {
		return fmt.Errorf("failed to read client id: %w", err)
	}

	fmt.Print("Client secret: ")
	secret, err := readPassword(reader)
	if err != nil {
		return fmt.Errorf("failed to read client secret: %w", err)
	}

	creds := &auth.Credentials{
		Profile:      name,
		ClientID:     strings.TrimSpace(id),
		ClientSecret: secret,
		LastModified: time.Now(),
	}
	if err := creds.Validate(); err != nil {
		return err
	}

	if verifyLogin {
		if err := verifyCredentials(cmd.Context(), creds); err != nil {
			ui.PrintError("Spotify rejected the credentials", err)
			return reported(err)
		}
		ui.PrintSuccess("Credentials verified")
	}

	if err := manager.Store(creds); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	ui.PrintSuccess(fmt.Sprintf("Profile saved: %s", name))
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	name := profileArg(args)
	if err := manager.Delete(name); err != nil {
		if errors.Is(err, auth.ErrCredentialsNotFound) {
			ui.PrintWarning("No stored credentials for profile", name)
			return nil
		}
		return err
	}

	ui.PrintSuccess(fmt.Sprintf("Profile removed: %s", name))
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	profiles, err := manager.List()
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No stored profiles. Run 'spotifetch auth login' to add one.")
		return nil
	}

	out := cmd.OutOrStdout()
	for _, creds := range profiles {
		safe := auth.Sanitize(creds)
		fmt.Fprintf(out, "%-12s  client id: %s  secret: %s", safe.Profile, safe.ClientID, safe.ClientSecret)
		if !safe.LastModified.IsZero() {
			fmt.Fprintf(out, "  updated: %s", safe.LastModified.Format(time.DateTime))
		}
		fmt.Fprintln(out)
	}
	return nil
}

// verifyCredentials requests a single token with creds
func verifyCredentials(ctx context.Context, creds *auth.Credentials) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := spotify.NewClient(30*time.Second, logger.GetLogger())
	_, err := client.Authenticate(ctx, creds.ClientID, creds.ClientSecret)
	return err
}

// readPassword reads a secret from stdin without echoing
func readPassword(reader *bufio.Reader) (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
