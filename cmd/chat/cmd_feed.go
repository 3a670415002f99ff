package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eldtechnologies/abxy/internal/client"
	"github.com/eldtechnologies/abxy/internal/models"
)

var (
	readLimit int
	email     string
	password  string
)

// readCmd prints the latest messages
var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Print the most recent messages",
	Args:  cobra.NoArgs,
	RunE:  runRead,
}

// postCmd sends one message
var postCmd = &cobra.Command{
	Use:   "post <message>",
	Short: "Post a message to the shared feed",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPost,
}

// healthCmd checks the server
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show the server health report",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

// signedIn signs in with flag or environment credentials.
func signedIn(ctx context.Context) (client.Authenticator, *client.Feed, *models.Identity, error) {
	e := email
	if e == "" {
		e = os.Getenv("ABXY_EMAIL")
	}
	pw := password
	if pw == "" {
		pw = os.Getenv("ABXY_PASSWORD")
	}
	if e == "" || pw == "" {
		return nil, nil, nil, fmt.Errorf("credentials required: use --email/--password or ABXY_EMAIL/ABXY_PASSWORD")
	}

	auth, feed := newClients()
	user, err := auth.SignIn(ctx, e, pw)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("sign in failed: %w", err)
	}
	logger.Debug().Str("user", user.Email).Msg("signed in")
	return auth, feed, user, nil
}

// signOut ends the one-shot session. A failure only leaves the token to expire.
func signOut(auth client.Authenticator) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := auth.SignOut(ctx); err != nil {
		logger.Debug().Err(err).Msg("sign out failed")
	}
}

func runRead(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	auth, feed, _, err := signedIn(ctx)
	if err != nil {
		return err
	}
	defer signOut(auth)

	msgs, err := feed.ListMessages(ctx, cfg.MessageLimit)
	if err != nil {
		return fmt.Errorf("failed to fetch messages: %w", err)
	}
	if len(msgs) == 0 {
		fmt.Println("No messages yet.")
		return nil
	}
	if readLimit > 0 && len(msgs) > readLimit {
		msgs = msgs[len(msgs)-readLimit:]
	}

	for _, m := range msgs {
		author := m.AuthorEmail()
		if author == "" {
			author = "Unknown"
		}
		fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Display("2006-01-02 15:04:05"), author, m.Content)
	}
	return nil
}

func runPost(cmd *cobra.Command, args []string) error {
	content := strings.TrimSpace(strings.Join(args, " "))
	if content == "" {
		return fmt.Errorf("message is empty")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	auth, feed, user, err := signedIn(ctx)
	if err != nil {
		return err
	}
	defer signOut(auth)

	msg, err := feed.InsertMessage(ctx, user.ID, content)
	if err != nil {
		return fmt.Errorf("failed to post message: %w", err)
	}
	fmt.Printf("Posted: %s\n", msg.ID)
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	report, err := client.Health(ctx, nil, cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	data, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(data))
	return nil
}
