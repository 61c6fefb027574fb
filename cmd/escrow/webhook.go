package main

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/urfave/cli/v2"
)

var webhook = cli.Command{
	Name:  "webhook",
	Usage: "manage the webhooks notified of trade events",
	Subcommands: []*cli.Command{
		{
			Name:  "add",
			Usage: "add a webhook registered for some event",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "endpoint",
					Usage:    "the endpoint where to notify the webhook",
					Required: true,
				},
				&cli.StringFlag{
					Name:  "secret",
					Usage: "the eventual secret to authenticate requests",
				},
				&cli.StringFlag{
					Name: "event",
					Usage: "the event for which the webhook gets notified, one of " +
						"TRADE_UPDATED, TRADE_STALLED, TRADE_COMPLETED, TRADE_FAILED, " +
						"DISPUTE_UPDATED or * for any",
					Value: "*",
				},
			},
			Action: addWebhookAction,
		},
		{
			Name:  "list",
			Usage: "list all webhooks, or those registered for some event",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "event",
					Usage: "the event to filter hooks by",
				},
			},
			Action: listWebhooksAction,
		},
		{
			Name:      "remove",
			Usage:     "remove a webhook",
			ArgsUsage: "<hook_id>",
			Action:    removeWebhookAction,
		},
	},
}

func addWebhookAction(ctx *cli.Context) error {
	client, err := getOperatorClient()
	if err != nil {
		return err
	}

	reply := map[string]string{}
	if err := client.do(http.MethodPost, "/v1/webhooks", map[string]string{
		"event":    ctx.String("event"),
		"endpoint": ctx.String("endpoint"),
		"secret":   ctx.String("secret"),
	}, &reply); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("hook id:", reply["id"])
	return nil
}

func listWebhooksAction(ctx *cli.Context) error {
	client, err := getOperatorClient()
	if err != nil {
		return err
	}

	path := "/v1/webhooks"
	if event := ctx.String("event"); event != "" {
		path += "?event=" + url.QueryEscape(event)
	}
	reply := map[string]interface{}{}
	if err := client.do(http.MethodGet, path, nil, &reply); err != nil {
		return err
	}

	printRespJSON(reply)
	return nil
}

func removeWebhookAction(ctx *cli.Context) error {
	hookID := ctx.Args().First()
	if hookID == "" {
		return &invalidUsageError{ctx, ctx.Command.Name}
	}
	client, err := getOperatorClient()
	if err != nil {
		return err
	}

	if err := client.do(
		http.MethodDelete, "/v1/webhooks/"+url.PathEscape(hookID), nil, nil,
	); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("hook removed:", hookID)
	return nil
}
