package offerbook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/tdex-network/tdex-escrow/internal/core/domain"
	"github.com/tdex-network/tdex-escrow/internal/core/ports"
	"github.com/tdex-network/tdex-escrow/pkg/circuitbreaker"
	"golang.org/x/sync/errgroup"
)

const (
	// OffersPath is the http path where a node serves its offers.
	OffersPath = "/p2p/offers"

	requestTimeout = 15 * time.Second
)

// OffersResponse is the body served at OffersPath.
type OffersResponse struct {
	Offers []domain.Offer `json:"offers"`
}

type service struct {
	repo      domain.OfferRepository
	seedNodes []domain.NodeAddress
	scheme    string
	client    *http.Client
	cb        *gobreaker.CircuitBreaker
}

// NewService returns an OfferBook made of the offers stored in repo, the
// local ones, plus those served by the given seed nodes.
func NewService(
	repo domain.OfferRepository, seedNodes []domain.NodeAddress, tlsEnabled bool,
) (ports.OfferBook, error) {
	if repo == nil {
		return nil, fmt.Errorf("missing offer repository")
	}
	scheme := "http"
	if tlsEnabled {
		scheme = "https"
	}
	return &service{
		repo:      repo,
		seedNodes: seedNodes,
		scheme:    scheme,
		client:    &http.Client{Timeout: requestTimeout},
		cb:        circuitbreaker.NewCircuitBreaker("offerbook"),
	}, nil
}

func (s *service) AddOffer(ctx context.Context, offer domain.Offer) error {
	if err := offer.Validate(); err != nil {
		return err
	}
	return s.repo.AddOffer(ctx, offer)
}

// GetOffer looks for the offer in the local repository first, then in the
// ones of the seed nodes.
func (s *service) GetOffer(
	ctx context.Context, offerID string,
) (*domain.Offer, error) {
	offer, err := s.repo.GetOffer(ctx, offerID)
	if err == nil || !errors.Is(err, domain.ErrOfferNotFound) {
		return offer, err
	}

	for _, o := range s.fetchRemoteOffers(ctx) {
		if o.ID == offerID {
			offer := o
			return &offer, nil
		}
	}
	return nil, domain.ErrOfferNotFound
}

// ListOffers returns the local and remote offers sorted by creation time.
// Unreachable seed nodes are skipped.
func (s *service) ListOffers(ctx context.Context) ([]domain.Offer, error) {
	local, err := s.repo.GetAllOffers(ctx)
	if err != nil {
		return nil, err
	}

	offers := make([]domain.Offer, 0, len(local))
	seen := make(map[string]struct{})
	for _, o := range append(local, s.fetchRemoteOffers(ctx)...) {
		if _, ok := seen[o.ID]; ok {
			continue
		}
		seen[o.ID] = struct{}{}
		offers = append(offers, o)
	}

	sort.SliceStable(offers, func(i, j int) bool {
		if offers[i].CreatedAt == offers[j].CreatedAt {
			return offers[i].ID < offers[j].ID
		}
		return offers[i].CreatedAt < offers[j].CreatedAt
	})
	return offers, nil
}

func (s *service) fetchRemoteOffers(ctx context.Context) []domain.Offer {
	lock := &sync.Mutex{}
	offers := make([]domain.Offer, 0)

	eg := &errgroup.Group{}
	for i := range s.seedNodes {
		seed := s.seedNodes[i]
		eg.Go(func() error {
			seedOffers, err := s.fetchOffers(ctx, seed)
			if err != nil {
				log.WithError(err).Warnf("failed to fetch offers from %s", seed)
				return nil
			}

			lock.Lock()
			defer lock.Unlock()
			for _, o := range seedOffers {
				if err := o.Validate(); err != nil {
					log.WithError(err).Debugf("discarded offer %s from %s", o.ID, seed)
					continue
				}
				offers = append(offers, o)
			}
			return nil
		})
	}
	//nolint
	eg.Wait()
	return offers
}

func (s *service) fetchOffers(
	ctx context.Context, seed domain.NodeAddress,
) ([]domain.Offer, error) {
	u := url.URL{Scheme: s.scheme, Host: seed.String(), Path: OffersPath}

	res, err := s.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		rs, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer rs.Body.Close()

		if rs.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("seed node replied %d", rs.StatusCode)
		}
		resp := &OffersResponse{}
		if err := json.NewDecoder(io.LimitReader(rs.Body, 1<<22)).Decode(resp); err != nil {
			return nil, fmt.Errorf("invalid response: %w", err)
		}
		return resp.Offers, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]domain.Offer), nil
}
