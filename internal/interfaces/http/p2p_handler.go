package httpinterface

import (
	"net/http"

	"github.com/tdex-network/tdex-escrow/internal/core/domain"
	"github.com/tdex-network/tdex-escrow/internal/infrastructure/offerbook"
)

type p2pHandler struct {
	offerRepo domain.OfferRepository
}

// listOffers serves the offers known to this node to the peers that use it as
// offer book seed.
func (h *p2pHandler) listOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.offerRepo.GetAllOffers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if offers == nil {
		offers = []domain.Offer{}
	}
	writeJSON(w, http.StatusOK, offerbook.OffersResponse{Offers: offers})
}
