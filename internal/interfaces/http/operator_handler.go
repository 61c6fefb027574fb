package httpinterface

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/tdex-network/tdex-escrow/internal/core/application/offer"
	"github.com/tdex-network/tdex-escrow/internal/core/application/pubsub"
	"github.com/tdex-network/tdex-escrow/internal/core/application/trade"
	"github.com/tdex-network/tdex-escrow/internal/core/domain"
)

// TradeService is the part of the trade application service exposed to the
// operator.
type TradeService interface {
	TakeOffer(ctx context.Context, offerID string, amount uint64) (*domain.Trade, error)
	GetTrade(ctx context.Context, tradeID string) (*domain.Trade, error)
	ListTrades(ctx context.Context, filter trade.Filter, page *domain.Page) ([]*domain.Trade, error)
	StartPayment(ctx context.Context, tradeID, proof string) error
	ConfirmPaymentReceived(ctx context.Context, tradeID string) error
	Cancel(ctx context.Context, tradeID string) error
	RequestDispute(ctx context.Context, tradeID, reason string) error
	CloseDispute(ctx context.Context, tradeID string, outcome domain.DisputeOutcome) error
}

// OfferService is the part of the offer application service exposed to the
// operator.
type OfferService interface {
	CreateOffer(ctx context.Context, req offer.CreateOfferRequest) (*domain.Offer, error)
	GetOffer(ctx context.Context, offerID string) (*domain.Offer, error)
	ListOffers(ctx context.Context, page *domain.Page) ([]domain.Offer, error)
}

// WebhookService manages the webhooks notified of trade events.
type WebhookService interface {
	AddWebhook(ctx context.Context, webhook pubsub.Webhook) (string, error)
	RemoveWebhook(ctx context.Context, id string) error
	ListWebhooks(ctx context.Context, event string) ([]pubsub.WebhookInfo, error)
}

type operatorHandler struct {
	tradeSvc   TradeService
	offerSvc   OfferService
	webhookSvc WebhookService
}

func (h *operatorHandler) listOffers(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	offers, err := h.offerSvc.ListOffers(r.Context(), page)
	if err != nil {
		writeError(w, err)
		return
	}
	infos := make([]offerInfo, 0, len(offers))
	for _, o := range offers {
		infos = append(infos, newOfferInfo(o))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"offers": infos})
}

func (h *operatorHandler) createOffer(w http.ResponseWriter, r *http.Request) {
	var req createOfferRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}
	createReq, err := req.toCreateOfferRequest()
	if err != nil {
		writeError(w, err)
		return
	}
	o, err := h.offerSvc.CreateOffer(r.Context(), createReq)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOfferInfo(*o))
}

func (h *operatorHandler) getOffer(w http.ResponseWriter, r *http.Request) {
	o, err := h.offerSvc.GetOffer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOfferInfo(*o))
}

func (h *operatorHandler) takeOffer(w http.ResponseWriter, r *http.Request) {
	var req takeOfferRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseXMR(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	t, err := h.tradeSvc.TakeOffer(r.Context(), chi.URLParam(r, "id"), amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTradeInfo(t))
}

func (h *operatorHandler) listTrades(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	filter := trade.Filter{OfferID: r.URL.Query().Get("offer_id")}
	if pending := r.URL.Query().Get("pending"); pending != "" {
		filter.PendingOnly, err = strconv.ParseBool(pending)
		if err != nil {
			writeError(w, errInvalidQuery("pending"))
			return
		}
	}

	trades, err := h.tradeSvc.ListTrades(r.Context(), filter, page)
	if err != nil {
		writeError(w, err)
		return
	}
	infos := make([]tradeInfo, 0, len(trades))
	for _, t := range trades {
		infos = append(infos, newTradeInfo(t))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trades": infos})
}

func (h *operatorHandler) getTrade(w http.ResponseWriter, r *http.Request) {
	t, err := h.tradeSvc.GetTrade(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTradeInfo(t))
}

func (h *operatorHandler) paymentStarted(w http.ResponseWriter, r *http.Request) {
	var req paymentStartedRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.respondWithTrade(w, r, h.tradeSvc.StartPayment(
		r.Context(), chi.URLParam(r, "id"), req.Proof,
	))
}

func (h *operatorHandler) paymentReceived(w http.ResponseWriter, r *http.Request) {
	h.respondWithTrade(w, r, h.tradeSvc.ConfirmPaymentReceived(
		r.Context(), chi.URLParam(r, "id"),
	))
}

func (h *operatorHandler) cancel(w http.ResponseWriter, r *http.Request) {
	h.respondWithTrade(w, r, h.tradeSvc.Cancel(r.Context(), chi.URLParam(r, "id")))
}

func (h *operatorHandler) requestDispute(w http.ResponseWriter, r *http.Request) {
	var req disputeRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.respondWithTrade(w, r, h.tradeSvc.RequestDispute(
		r.Context(), chi.URLParam(r, "id"), req.Reason,
	))
}

func (h *operatorHandler) closeDispute(w http.ResponseWriter, r *http.Request) {
	var req closeDisputeRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}
	outcome := domain.DisputeOutcome{
		Resolution: domain.DisputeResolutionFromString(req.Resolution),
		PayoutTxID: req.PayoutTxID,
		Summary:    req.Summary,
	}
	h.respondWithTrade(w, r, h.tradeSvc.CloseDispute(
		r.Context(), chi.URLParam(r, "id"), outcome,
	))
}

// respondWithTrade replies with the updated trade once the action has been
// applied.
func (h *operatorHandler) respondWithTrade(
	w http.ResponseWriter, r *http.Request, actionErr error,
) {
	if actionErr != nil {
		writeError(w, actionErr)
		return
	}
	h.getTrade(w, r)
}

func (h *operatorHandler) addWebhook(w http.ResponseWriter, r *http.Request) {
	var req addWebhookRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id, err := h.webhookSvc.AddWebhook(r.Context(), pubsub.Webhook{
		Event:    req.Event,
		Endpoint: req.Endpoint,
		Secret:   req.Secret,
	})
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *operatorHandler) listWebhooks(w http.ResponseWriter, r *http.Request) {
	hooks, err := h.webhookSvc.ListWebhooks(r.Context(), r.URL.Query().Get("event"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	infos := make([]webhookInfo, 0, len(hooks))
	for _, hook := range hooks {
		infos = append(infos, newWebhookInfo(hook))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"webhooks": infos})
}

func (h *operatorHandler) removeWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.webhookSvc.RemoveWebhook(
		r.Context(), chi.URLParam(r, "id"),
	); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func pageFromQuery(r *http.Request) (*domain.Page, error) {
	q := r.URL.Query()
	if q.Get("page") == "" && q.Get("size") == "" {
		return nil, nil
	}
	number, err := queryInt(q.Get("page"))
	if err != nil {
		return nil, errInvalidQuery("page")
	}
	size, err := queryInt(q.Get("size"))
	if err != nil {
		return nil, errInvalidQuery("size")
	}
	page := domain.NewPage(number, size)
	return &page, nil
}

func queryInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
