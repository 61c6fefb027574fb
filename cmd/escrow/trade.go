package main

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/urfave/cli/v2"
)

var trades = cli.Command{
	Name:  "trades",
	Usage: "list the trades of the daemon",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "pending",
			Usage: "list only the trades not yet completed or failed",
		},
		&cli.StringFlag{
			Name:  "offer_id",
			Usage: "the offer to filter trades by",
		},
	},
	Action: tradesAction,
}

var trade = cli.Command{
	Name:      "trade",
	Usage:     "show a trade and the advice for the stalled ones",
	ArgsUsage: "<trade_id>",
	Action:    tradeAction,
}

var paymentstarted = cli.Command{
	Name:      "paymentstarted",
	Usage:     "notify the seller that the counter currency payment has been sent",
	ArgsUsage: "<trade_id>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "proof",
			Usage: "the eventual reference of the payment",
		},
	},
	Action: paymentStartedAction,
}

var paymentreceived = cli.Command{
	Name:      "paymentreceived",
	Usage:     "confirm that the counter currency payment has been received",
	ArgsUsage: "<trade_id>",
	Action:    paymentReceivedAction,
}

var dispute = cli.Command{
	Name:      "dispute",
	Usage:     "request the arbitrator to settle the trade",
	ArgsUsage: "<trade_id>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "reason",
			Usage: "the reason of the dispute",
		},
	},
	Action: disputeAction,
}

var closedispute = cli.Command{
	Name:      "closedispute",
	Usage:     "close a dispute as arbitrator",
	ArgsUsage: "<trade_id>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "resolution",
			Usage:    "one of PAYOUT_BUYER, PAYOUT_SELLER or ABANDON",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "txid",
			Usage: "the id of the payout transaction",
		},
		&cli.StringFlag{
			Name:  "summary",
			Usage: "the summary of the decision",
		},
	},
	Action: closeDisputeAction,
}

var cancel = cli.Command{
	Name:      "cancel",
	Usage:     "cancel a trade whose deposit is not yet published",
	ArgsUsage: "<trade_id>",
	Action:    cancelAction,
}

func tradesAction(ctx *cli.Context) error {
	client, err := getOperatorClient()
	if err != nil {
		return err
	}

	q := url.Values{}
	if ctx.Bool("pending") {
		q.Set("pending", "true")
	}
	if offerID := ctx.String("offer_id"); offerID != "" {
		q.Set("offer_id", offerID)
	}
	path := "/v1/trades"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	reply := map[string]interface{}{}
	if err := client.do(http.MethodGet, path, nil, &reply); err != nil {
		return err
	}

	printRespJSON(reply)
	return nil
}

func tradeAction(ctx *cli.Context) error {
	tradeID, err := tradeIDArg(ctx)
	if err != nil {
		return err
	}
	client, err := getOperatorClient()
	if err != nil {
		return err
	}

	reply := map[string]interface{}{}
	if err := client.do(http.MethodGet, tradePath(tradeID, ""), nil, &reply); err != nil {
		return err
	}

	printRespJSON(reply)
	return nil
}

func paymentStartedAction(ctx *cli.Context) error {
	return doTradeAction(ctx, "payment-started", map[string]string{
		"proof": ctx.String("proof"),
	})
}

func paymentReceivedAction(ctx *cli.Context) error {
	return doTradeAction(ctx, "payment-received", nil)
}

func disputeAction(ctx *cli.Context) error {
	return doTradeAction(ctx, "dispute", map[string]string{
		"reason": ctx.String("reason"),
	})
}

func closeDisputeAction(ctx *cli.Context) error {
	return doTradeAction(ctx, "dispute/close", map[string]string{
		"resolution":  ctx.String("resolution"),
		"payout_txid": ctx.String("txid"),
		"summary":     ctx.String("summary"),
	})
}

func cancelAction(ctx *cli.Context) error {
	return doTradeAction(ctx, "cancel", nil)
}

// doTradeAction triggers the given action on the trade passed as argument and
// prints the resulting stage of the trade.
func doTradeAction(ctx *cli.Context, action string, body interface{}) error {
	tradeID, err := tradeIDArg(ctx)
	if err != nil {
		return err
	}
	client, err := getOperatorClient()
	if err != nil {
		return err
	}

	reply := map[string]interface{}{}
	if err := client.do(
		http.MethodPost, tradePath(tradeID, action), body, &reply,
	); err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("trade %s is in stage %v\n", tradeID, reply["stage"])
	return nil
}

func tradeIDArg(ctx *cli.Context) (string, error) {
	tradeID := ctx.Args().First()
	if tradeID == "" {
		return "", &invalidUsageError{ctx, ctx.Command.Name}
	}
	return tradeID, nil
}

func tradePath(tradeID, action string) string {
	path := fmt.Sprintf("/v1/trades/%s", url.PathEscape(tradeID))
	if action != "" {
		path += "/" + action
	}
	return path
}
