package main

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

const redacted = "********"

// configCommands prints the computed configuration with secrets masked.
func configCommands(app *custodyInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "config outputs your instance's computed configuration",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := *app.cnf
			if cfg.Server.SecretKey != "" {
				cfg.Server.SecretKey = redacted
			}
			if cfg.Custody.DerivationSecret != "" {
				cfg.Custody.DerivationSecret = redacted
			}
			if cfg.Notification.Webhook.Secret != "" {
				cfg.Notification.Webhook.Secret = redacted
			}

			data, err := json.MarshalIndent(cfg, "", "    ")
			if err != nil {
				log.Fatalf("Error printing config: %v\n", err)
			}

			fmt.Println(string(data))
		},
	}
	return cmd
}
