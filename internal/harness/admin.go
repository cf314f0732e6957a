package harness

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/profitharness/internal/domain"
	"github.com/alanyoungcy/profitharness/internal/ledger"
)

func (h *Harness) authorize(caller common.Address, op string) error {
	if caller != h.cfg.Admin {
		h.logger.Warn("unauthorized admin call",
			slog.String("op", op),
			slog.String("caller", caller.Hex()),
		)
		return fmt.Errorf("harness: %s: %w", op, domain.ErrUnauthorized)
	}
	return nil
}

func (h *Harness) auditLog(ctx context.Context, event string, detail map[string]any) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Log(ctx, event, detail); err != nil {
		h.logger.Warn("audit log failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

// AddVenue registers v and persists it when a registry store is configured.
func (h *Harness) AddVenue(ctx context.Context, caller common.Address, v domain.Venue) (int, error) {
	if err := h.authorize(caller, "add venue"); err != nil {
		return -1, err
	}
	idx, err := h.registry.AddVenue(v)
	if err != nil {
		return -1, err
	}
	if h.regStore != nil {
		if err := h.regStore.InsertVenue(ctx, idx, v); err != nil {
			h.logger.Warn("persist venue failed", slog.Int("index", idx), slog.String("error", err.Error()))
		}
	}
	h.auditLog(ctx, "venue_added", map[string]any{
		"index":   idx,
		"name":    v.Name,
		"router":  v.QuoteEndpoint.Hex(),
		"factory": v.RouteEndpoint.Hex(),
		"fee_bps": v.FeeBps,
	})
	return idx, nil
}

// SetVenueActive toggles the venue at index.
func (h *Harness) SetVenueActive(ctx context.Context, caller common.Address, index int, active bool) error {
	if err := h.authorize(caller, "set venue active"); err != nil {
		return err
	}
	if err := h.registry.SetVenueActive(index, active); err != nil {
		return err
	}
	if h.regStore != nil {
		if err := h.regStore.SetVenueActive(ctx, index, active); err != nil {
			h.logger.Warn("persist venue state failed", slog.Int("index", index), slog.String("error", err.Error()))
		}
	}
	h.auditLog(ctx, "venue_active_set", map[string]any{"index": index, "active": active})
	return nil
}

// AddIntermediateAsset adds a to the two-hop routing set.
func (h *Harness) AddIntermediateAsset(ctx context.Context, caller common.Address, a domain.Asset) error {
	if err := h.authorize(caller, "add intermediate"); err != nil {
		return err
	}
	if h.registry.AddIntermediateAsset(a) {
		h.persistIntermediates(ctx)
	}
	h.auditLog(ctx, "intermediate_added", map[string]any{"asset": a.Hex()})
	return nil
}

// ReplaceIntermediateAssets overwrites the two-hop routing set.
func (h *Harness) ReplaceIntermediateAssets(ctx context.Context, caller common.Address, assets []domain.Asset) error {
	if err := h.authorize(caller, "replace intermediates"); err != nil {
		return err
	}
	h.registry.ReplaceIntermediateAssets(assets)
	h.persistIntermediates(ctx)
	h.auditLog(ctx, "intermediates_replaced", map[string]any{"assets": hexList(assets)})
	return nil
}

func (h *Harness) persistIntermediates(ctx context.Context) {
	if h.regStore == nil {
		return
	}
	if err := h.regStore.ReplaceIntermediates(ctx, h.registry.Intermediates()); err != nil {
		h.logger.Warn("persist intermediates failed", slog.String("error", err.Error()))
	}
}

// AddTrackedAssets appends assets to the tracked set.
func (h *Harness) AddTrackedAssets(ctx context.Context, caller common.Address, assets ...domain.Asset) error {
	if err := h.authorize(caller, "add tracked assets"); err != nil {
		return err
	}
	for _, a := range assets {
		h.tracker.Add(a)
	}
	h.auditLog(ctx, "tracked_assets_added", map[string]any{"assets": hexList(assets)})
	return nil
}

// SetBaseAsset changes the profit denomination. It is refused while an
// execution is in flight.
func (h *Harness) SetBaseAsset(ctx context.Context, caller common.Address, a domain.Asset) error {
	if err := h.authorize(caller, "set base asset"); err != nil {
		return err
	}
	if h.executing.Load() {
		return fmt.Errorf("harness: set base asset: %w", domain.ErrReentrancyDenied)
	}
	h.tracker.SetBase(a)
	h.auditLog(ctx, "base_asset_set", map[string]any{"asset": a.Hex()})
	return nil
}

// Withdraw moves amount of asset from the harness account to to. A nil
// amount withdraws the full holding.
func (h *Harness) Withdraw(ctx context.Context, caller common.Address, asset domain.Asset, to common.Address, amount *big.Int) (*big.Int, error) {
	if err := h.authorize(caller, "withdraw"); err != nil {
		return nil, err
	}
	if amount == nil {
		held, err := ledger.Holding(ctx, h.ledger, asset, h.cfg.Account)
		if err != nil {
			return nil, fmt.Errorf("harness: withdraw: %w", err)
		}
		amount = held
	}
	if amount.Sign() == 0 {
		return amount, nil
	}
	if err := h.ledger.Transfer(ctx, asset, h.cfg.Account, to, amount); err != nil {
		return nil, fmt.Errorf("harness: withdraw: %w", err)
	}
	h.auditLog(ctx, "withdraw", map[string]any{
		"asset":  asset.Hex(),
		"to":     to.Hex(),
		"amount": amount.String(),
	})
	return amount, nil
}

func hexList(assets []domain.Asset) []string {
	out := make([]string, len(assets))
	for i, a := range assets {
		out[i] = a.Hex()
	}
	return out
}
