package wsmessenger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-escrow/internal/core/ports"
)

const maxMessageSize = 1 << 20

type handler struct {
	msgHandler ports.MessageHandler
	upgrader   websocket.Upgrader
}

// NewHandler returns the http handler accepting the websocket connections
// of peers. Every message read is pushed into msgHandler.
func NewHandler(msgHandler ports.MessageHandler) (http.Handler, error) {
	if msgHandler == nil {
		return nil, fmt.Errorf("missing message handler")
	}
	return &handler{
		msgHandler: msgHandler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
		},
	}, nil
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debugf("failed to upgrade connection from %s", r.RemoteAddr)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	ctx := context.Background()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err, websocket.CloseGoingAway, websocket.CloseNormalClosure,
			) {
				log.WithError(err).Debugf("connection from %s dropped", r.RemoteAddr)
			}
			return
		}

		var e envelope
		if err := json.Unmarshal(data, &e); err != nil {
			log.WithError(err).Debugf(
				"discarded malformed message from %s", r.RemoteAddr,
			)
			continue
		}
		if e.Version != envelopeVersion {
			log.Debugf(
				"discarded message with unsupported version %d from %s",
				e.Version, r.RemoteAddr,
			)
			continue
		}

		if err := h.msgHandler.HandleMessage(ctx, e.Message); err != nil {
			log.WithError(err).Debugf(
				"discarded %s from %s", e.Message.Type, e.Message.Sender,
			)
		}
	}
}
