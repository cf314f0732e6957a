package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/profitharness/internal/domain"
	"github.com/alanyoungcy/profitharness/internal/harness"
)

// RegistryHandler serves venue, intermediate and quote endpoints. Mutations
// run as the configured admin; the auth middleware gates who reaches them.
type RegistryHandler struct {
	h      *harness.Harness
	logger *slog.Logger
}

// NewRegistryHandler creates a RegistryHandler.
func NewRegistryHandler(h *harness.Harness, logger *slog.Logger) *RegistryHandler {
	return &RegistryHandler{h: h, logger: logger}
}

type venueView struct {
	Index int `json:"index"`
	domain.Venue
}

type addVenueRequest struct {
	Name    string `json:"name"`
	Router  string `json:"router"`
	Factory string `json:"factory"`
	FeeBps  uint32 `json:"fee_bps"`
	Active  *bool  `json:"active"`
}

// ListVenues returns every registered venue with its index.
// GET /api/venues
func (rh *RegistryHandler) ListVenues(w http.ResponseWriter, r *http.Request) {
	venues := rh.h.Registry().Venues()
	out := make([]venueView, len(venues))
	for i, v := range venues {
		out[i] = venueView{Index: i, Venue: v}
	}
	writeJSON(w, http.StatusOK, map[string]any{"venues": out})
}

// AddVenue registers a venue.
// POST /api/venues
func (rh *RegistryHandler) AddVenue(w http.ResponseWriter, r *http.Request) {
	var req addVenueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	router, err := parseAsset(req.Router)
	if err != nil || req.Router == "" {
		writeError(w, http.StatusBadRequest, "router must be an address")
		return
	}
	factory, err := parseAsset(req.Factory)
	if err != nil {
		writeError(w, http.StatusBadRequest, "factory must be an address")
		return
	}
	v := domain.Venue{Name: req.Name, QuoteEndpoint: router, RouteEndpoint: factory, FeeBps: req.FeeBps, Active: true}
	if req.Active != nil {
		v.Active = *req.Active
	}

	idx, err := rh.h.AddVenue(r.Context(), rh.h.Admin(), v)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, venueView{Index: idx, Venue: v})
}

// SetVenueActive toggles a venue.
// POST /api/venues/{index}/active
func (rh *RegistryHandler) SetVenueActive(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}
	var req struct {
		Active bool `json:"active"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := rh.h.SetVenueActive(r.Context(), rh.h.Admin(), idx, req.Active); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"index": idx, "active": req.Active})
}

// Reserves reads a pair's reserves on one venue.
// GET /api/venues/{index}/reserves?a=0x..&b=0x..
func (rh *RegistryHandler) Reserves(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}
	a, errA := parseAsset(r.URL.Query().Get("a"))
	b, errB := parseAsset(r.URL.Query().Get("b"))
	if err := errors.Join(errA, errB); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	_, backend, err := rh.h.Registry().Backend(idx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	reader, ok := backend.(domain.ReservesReader)
	if !ok {
		writeError(w, http.StatusNotImplemented, "venue does not expose reserves")
		return
	}
	res, err := reader.Reserves(r.Context(), a, b)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListIntermediates returns the two-hop routing set.
// GET /api/intermediates
func (rh *RegistryHandler) ListIntermediates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"assets": rh.h.Registry().Intermediates()})
}

// AddIntermediate appends one asset.
// POST /api/intermediates
func (rh *RegistryHandler) AddIntermediate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Asset string `json:"asset"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, err := parseAsset(req.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := rh.h.AddIntermediateAsset(r.Context(), rh.h.Admin(), a); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": rh.h.Registry().Intermediates()})
}

// ReplaceIntermediates overwrites the set.
// PUT /api/intermediates
func (rh *RegistryHandler) ReplaceIntermediates(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Assets []string `json:"assets"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	assets, err := parseAssets(req.Assets)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := rh.h.ReplaceIntermediateAssets(r.Context(), rh.h.Admin(), assets); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": rh.h.Registry().Intermediates()})
}

// Quote prices a trade across every active venue.
// GET /api/quote?in=0x..&out=0x..&amount=1000[&side=exact_out]
func (rh *RegistryHandler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in, errIn := parseAsset(q.Get("in"))
	out, errOut := parseAsset(q.Get("out"))
	amount, errAmt := parseAmount(q.Get("amount"))
	if err := errors.Join(errIn, errOut, errAmt); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var quote domain.Quote
	switch side := q.Get("side"); side {
	case "", "exact_in":
		quote = rh.h.Registry().BestQuote(r.Context(), in, out, amount)
	case "exact_out":
		quote = rh.h.Registry().BestQuoteForExactOutput(r.Context(), in, out, amount)
	default:
		writeError(w, http.StatusBadRequest, "side must be exact_in or exact_out")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"found": quote.Found(), "quote": quote})
}
