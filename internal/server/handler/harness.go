package handler

import (
	"log/slog"
	"math/big"
	"net/http"

	"github.com/alanyoungcy/profitharness/internal/domain"
	"github.com/alanyoungcy/profitharness/internal/harness"
	"github.com/alanyoungcy/profitharness/internal/ledger"
)

// HarnessHandler serves balance tracking and account endpoints.
type HarnessHandler struct {
	h      *harness.Harness
	logger *slog.Logger
}

// NewHarnessHandler creates a HarnessHandler.
func NewHarnessHandler(h *harness.Harness, logger *slog.Logger) *HarnessHandler {
	return &HarnessHandler{h: h, logger: logger}
}

// Status summarises the harness.
// GET /api/status
func (hh *HarnessHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"account":       hh.h.Account(),
		"admin":         hh.h.Admin(),
		"base_asset":    hh.h.Tracker().Base(),
		"executing":     hh.h.Executing(),
		"venues":        len(hh.h.Registry().Venues()),
		"intermediates": len(hh.h.Registry().Intermediates()),
		"tracked":       hh.h.Tracker().Assets(),
	})
}

// Balances returns the account's current holding of every tracked asset.
// GET /api/balances
func (hh *HarnessHandler) Balances(w http.ResponseWriter, r *http.Request) {
	assets := hh.h.Tracker().Assets()
	out := make(map[string]*big.Int, len(assets))
	for _, a := range assets {
		v, err := ledger.Holding(r.Context(), hh.h.Ledger(), a, hh.h.Account())
		if err != nil {
			hh.logger.ErrorContext(r.Context(), "handler: read balance failed",
				slog.String("asset", a.Hex()),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusBadGateway, "failed to read balances")
			return
		}
		out[a.Hex()] = v
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": hh.h.Account(), "balances": out})
}

// ListTracked returns the tracked set, base asset first.
// GET /api/tracked
func (hh *HarnessHandler) ListTracked(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"assets": hh.h.Tracker().Assets()})
}

// AddTracked appends assets to the tracked set.
// POST /api/tracked
func (hh *HarnessHandler) AddTracked(w http.ResponseWriter, r *http.Request) {
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
	if err := hh.h.AddTrackedAssets(r.Context(), hh.h.Admin(), assets...); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": hh.h.Tracker().Assets()})
}

// SetBase changes the profit denomination.
// PUT /api/base
func (hh *HarnessHandler) SetBase(w http.ResponseWriter, r *http.Request) {
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
	if err := hh.h.SetBaseAsset(r.Context(), hh.h.Admin(), a); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"base_asset": a})
}

// Withdraw moves funds out of the harness account. Omitting amount
// withdraws the full holding.
// POST /api/withdraw
func (hh *HarnessHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Asset  string `json:"asset"`
		To     string `json:"to"`
		Amount string `json:"amount"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	asset, err := parseAsset(req.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseAsset(req.To)
	if err != nil || to == domain.NativeAsset {
		writeError(w, http.StatusBadRequest, "to must be a non-zero address")
		return
	}
	var amount *big.Int
	if req.Amount != "" {
		if amount, err = parseAmount(req.Amount); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	sent, err := hh.h.Withdraw(r.Context(), hh.h.Admin(), asset, to, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"asset": asset, "to": to, "amount": sent})
}
