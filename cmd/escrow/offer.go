package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/urfave/cli/v2"
)

var offers = cli.Command{
	Name:  "offers",
	Usage: "list the offers of the offer book",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "page",
			Usage: "the page number, all offers are returned if not set",
		},
		&cli.IntFlag{
			Name:  "size",
			Usage: "the page size",
			Value: 10,
		},
	},
	Action: offersAction,
}

var createoffer = cli.Command{
	Name:  "createoffer",
	Usage: "publish a new offer to the offer book",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "direction",
			Usage:    "whether to BUY or SELL XMR",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "currency",
			Usage:    "the counter currency code, ie. EUR",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "payment_method",
			Usage:    "the payment method of the counter currency",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "price",
			Usage:    "the price of 1 XMR in counter currency",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "amount",
			Usage:    "the max amount of XMR to trade",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "min_amount",
			Usage: "the min amount of XMR to trade, defaults to amount",
		},
		&cli.StringFlag{
			Name:  "buyer_deposit",
			Usage: "the security deposit of the buyer, in XMR",
		},
		&cli.StringFlag{
			Name:  "seller_deposit",
			Usage: "the security deposit of the seller, in XMR",
		},
	},
	Action: createOfferAction,
}

var takeoffer = cli.Command{
	Name:      "takeoffer",
	Usage:     "take an offer for the given amount of XMR",
	ArgsUsage: "<offer_id>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "amount",
			Usage:    "the amount of XMR to trade",
			Required: true,
		},
	},
	Action: takeOfferAction,
}

func offersAction(ctx *cli.Context) error {
	client, err := getOperatorClient()
	if err != nil {
		return err
	}

	path := "/v1/offers"
	if page := ctx.Int("page"); page > 0 {
		q := url.Values{}
		q.Set("page", fmt.Sprint(page))
		q.Set("size", fmt.Sprint(ctx.Int("size")))
		path += "?" + q.Encode()
	}

	reply := map[string]interface{}{}
	if err := client.do(http.MethodGet, path, nil, &reply); err != nil {
		return err
	}

	printRespJSON(reply)
	return nil
}

func createOfferAction(ctx *cli.Context) error {
	client, err := getOperatorClient()
	if err != nil {
		return err
	}

	req := map[string]string{
		"direction":               strings.ToUpper(ctx.String("direction")),
		"counter_currency":        ctx.String("currency"),
		"payment_method":          ctx.String("payment_method"),
		"price":                   ctx.String("price"),
		"amount":                  ctx.String("amount"),
		"min_amount":              ctx.String("min_amount"),
		"buyer_security_deposit":  ctx.String("buyer_deposit"),
		"seller_security_deposit": ctx.String("seller_deposit"),
	}
	reply := map[string]interface{}{}
	if err := client.do(http.MethodPost, "/v1/offers", req, &reply); err != nil {
		return err
	}

	printRespJSON(reply)
	return nil
}

func takeOfferAction(ctx *cli.Context) error {
	offerID := ctx.Args().First()
	if offerID == "" {
		return &invalidUsageError{ctx, ctx.Command.Name}
	}

	client, err := getOperatorClient()
	if err != nil {
		return err
	}

	reply := map[string]interface{}{}
	if err := client.do(
		http.MethodPost, fmt.Sprintf("/v1/offers/%s/take", url.PathEscape(offerID)),
		map[string]string{"amount": ctx.String("amount")}, &reply,
	); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("trade id:", reply["id"])
	return nil
}
