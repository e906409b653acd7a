// Command regchat is a terminal client for the fishing regulations
// assistant. Anonymous users stream answers through the gateway relay;
// signed-in users ask the backend directly and follow the live feed.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reelrules/regbot-gateway/internal/config"
)

var (
	cfg *config.Config

	relayURL       string
	apiURL         string
	conversationID string
	accessToken    string
	feedBackend    string
	hasuraURL      string
	plain          bool
	logLevel       string

	rootCmd = &cobra.Command{
		Use:   "regchat",
		Short: "Chat with the fishing regulations assistant",
		Long: `regchat opens a conversation with the regulations assistant.
Without a token answers stream through the gateway; with a valid access
token questions go to the backend and answers arrive on the live feed.`,
		SilenceUsage: true,
		RunE:         runChat,
	}
)

func init() {
	cfg = config.Load()

	flags := rootCmd.Flags()
	flags.StringVar(&relayURL, "relay", cfg.RelayURL, "gateway base URL for anonymous chat")
	flags.StringVar(&apiURL, "api", cfg.UpstreamURL, "backend API base URL for signed-in chat")
	flags.StringVarP(&conversationID, "conversation", "c", "", "conversation id (required)")
	flags.StringVar(&accessToken, "token", os.Getenv("REGCHAT_TOKEN"), "access token; selects signed-in mode when valid")
	flags.StringVar(&feedBackend, "feed", cfg.LiveFeedBackend, "live feed backend: hasura or nats")
	flags.StringVar(&hasuraURL, "hasura", cfg.HasuraWSURL, "Hasura GraphQL websocket URL")
	flags.BoolVar(&plain, "plain", false, "disable colours")
	flags.StringVar(&logLevel, "log-level", "warn", "log level written to stderr")
	rootCmd.MarkFlagRequired("conversation")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
