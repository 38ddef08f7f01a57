// Command clearwebhook removes the bot's webhook and drops pending updates,
// so long polling can take over.
package main

import (
	"fmt"
	"os"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/uvolbolmasin/boxbot/internal/config"
)

func main() {
	token, err := config.LoadToken()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to telegram: %v\n", err)
		os.Exit(1)
	}

	resp, err := api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to delete webhook: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Webhook deleted for @%s: %s\n", api.Self.UserName, resp.Description)
}
