package pubsub

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	userAgent = "escrowd-webhooks"
	// maxReplySize bounds the part of a refused delivery reply reported in
	// the error.
	maxReplySize = 512
)

// webhookClient delivers the trade updates to the subscribed endpoints.
type webhookClient struct {
	http *http.Client
}

func newWebhookClient(requestTimeout time.Duration) *webhookClient {
	return &webhookClient{&http.Client{Timeout: requestTimeout}}
}

// deliver posts the json message to the endpoint of the subscription,
// signed with its secret if any. Any 2xx reply acknowledges the delivery.
func (c *webhookClient) deliver(sub Subscription, message string) error {
	req, err := http.NewRequest(
		http.MethodPost, sub.Endpoint, strings.NewReader(message),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if sub.IsSecured() {
		token, err := signDelivery(sub)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	reply, _ := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf(
			"webhook %s replied %d: %s",
			sub.ID, resp.StatusCode, strings.TrimSpace(string(reply)),
		)
	}
	return nil
}

func signDelivery(sub Subscription) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
		IssuedAt: time.Now().Unix(),
		Subject:  sub.Event,
	})
	return token.SignedString([]byte(sub.Secret))
}
