package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"order_notifier/internal/signature"
)

func sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send [fixture]",
		Short: "Sign a fixture event and post it to the webhook",
		Long:  "Fixtures: " + strings.Join(fixtureNames(), ", "),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _ := cmd.Flags().GetString("url")
			email, _ := cmd.Flags().GetString("email")
			secret, _ := cmd.Flags().GetString("secret")
			tamper, _ := cmd.Flags().GetBool("tamper")
			if secret == "" {
				secret = os.Getenv("STRIPE_WEBHOOK_SECRET")
			}

			body, err := buildFixture(args[0], email)
			if err != nil {
				return err
			}
			header := signature.Sign(body, secret, time.Now())
			if tamper {
				body = append(body, ' ')
			}

			resp, err := resty.New().SetTimeout(30*time.Second).R().
				SetHeader("Content-Type", "application/json").
				SetHeader(signature.Header, header).
				SetBody(body).
				Post(url)
			if err != nil {
				return err
			}
			fmt.Printf("%d %s\n", resp.StatusCode(), strings.TrimSpace(resp.String()))
			return nil
		},
	}
	cmd.Flags().String("url", "http://localhost:8090/api/webhook", "webhook URL")
	cmd.Flags().String("email", "customer@example.com", "customer email placed in the fixture")
	cmd.Flags().String("secret", "", "signing secret (default $STRIPE_WEBHOOK_SECRET)")
	cmd.Flags().Bool("tamper", false, "alter the body after signing")
	return cmd
}

func fixtureNames() []string {
	names := make([]string, 0, len(fixtures))
	for k := range fixtures {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
