package httpinterface

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-escrow/internal/core/application/offer"
	"github.com/tdex-network/tdex-escrow/internal/core/application/protocol"
	"github.com/tdex-network/tdex-escrow/internal/core/application/trade"
	"github.com/tdex-network/tdex-escrow/internal/core/domain"
	"github.com/tdex-network/tdex-escrow/internal/core/ports"
)

var errBadRequest = errors.New("bad request")

func errInvalidQuery(param string) error {
	return fmt.Errorf("%w: invalid query parameter %s", errBadRequest, param)
}

var (
	notFoundErrors = []error{
		domain.ErrTradeNotFound,
		domain.ErrOfferNotFound,
		ports.ErrSubscriptionNotFound,
	}
	badRequestErrors = []error{
		errBadRequest,
		trade.ErrInvalidAmount,
		offer.ErrInvalidOffer,
	}
	conflictErrors = []error{
		domain.ErrTradeAlreadyExists,
		domain.ErrOfferAlreadyExists,
		domain.ErrRoleNotPermitted,
		domain.ErrTradeInDispute,
		domain.ErrTradeClosed,
		domain.ErrCancelNotAllowed,
		protocol.ErrActionNotAllowed,
		protocol.ErrUnknownArbitrator,
		trade.ErrOwnOffer,
		trade.ErrNodeAddressUpdateRequired,
		trade.ErrOfferMissingCapability,
	}
	unavailableErrors = []error{
		protocol.ErrServiceStopped,
		trade.ErrServiceUnavailable,
	}
)

func statusFromError(err error) int {
	switch {
	case isOneOf(err, notFoundErrors):
		return http.StatusNotFound
	case isOneOf(err, badRequestErrors):
		return http.StatusBadRequest
	case isOneOf(err, conflictErrors),
		domain.IsProtocolViolation(err), domain.IsPrecondition(err):
		return http.StatusConflict
	case isOneOf(err, unavailableErrors):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func isOneOf(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFromError(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).Warn("operator request failed")
	} else {
		log.WithError(err).Debug("operator request rejected")
	}
	writeJSON(w, status, errorResponse{err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Debug("failed to write response")
	}
}

func decodeRequest(r *http.Request, req interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return validateRequest(req)
}
