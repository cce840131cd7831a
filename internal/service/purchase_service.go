package service

import (
	"context"
	"fmt"
	"time"

	"clicker_ledger/internal/catalog"
	"clicker_ledger/internal/domain"
	"clicker_ledger/internal/logger"
	"clicker_ledger/internal/repository"
)

// PurchaseService sells catalog upgrades for coins.
type PurchaseService struct {
	core
	catalog          *catalog.Catalog
	passiveMaxWindow time.Duration
}

func NewPurchaseService(c core, cat *catalog.Catalog, passiveMaxWindow time.Duration) *PurchaseService {
	if passiveMaxWindow <= 0 {
		passiveMaxWindow = DefaultPassiveMaxWindow
	}
	return &PurchaseService{core: c, catalog: cat, passiveMaxWindow: passiveMaxWindow}
}

// Buy raises the user's level of itemID by one. The price is taken at the
// level read inside the same unit that debits it.
func (s *PurchaseService) Buy(ctx context.Context, userID int64, itemID string) (res *domain.PurchaseResult, err error) {
	const op = "service.Purchase.Buy"

	start := time.Now()
	defer func() { observe(op, start, err) }()

	if userID <= 0 {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrInvalidUser)
	}

	def, ok := s.catalog.Lookup(itemID)
	if !ok {
		return nil, fmt.Errorf("%s: %w: %q", op, domain.ErrItemNotFound, itemID)
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	now := s.now()
	err = s.store.Atomic(ctx, func(tx repository.Tx) error {
		b, err := tx.LockBalance(ctx, userID)
		if err != nil {
			return err
		}

		own, err := tx.GetOwnership(ctx, userID, def.ID)
		if err != nil {
			return err
		}
		if own.Level >= def.MaxLevel {
			return domain.ErrItemUnavailable
		}

		// accrued income is paid at the old rate before the rate changes
		if def.EffectType == domain.EffectPassiveIncome {
			if _, _, err := settlePassive(ctx, tx, b, now, s.passiveMaxWindow); err != nil {
				return err
			}
		}

		price := catalog.Price(def, own.Level)
		if b.Coins < price {
			return domain.ErrInsufficientFunds
		}

		switch def.EffectType {
		case domain.EffectClickPower:
			b.ClickPower += def.EffectValue
		case domain.EffectPassiveIncome:
			b.PassiveIncome += def.EffectValue
		}

		meta := domain.Meta{Description: "upgrade " + def.Name, ItemID: def.ID}
		if err := post(ctx, tx, b, -price, domain.KindUpgradePurchase, meta, now); err != nil {
			return err
		}

		own.Level++
		own.PurchasedAt = now
		if err := tx.SaveOwnership(ctx, own); err != nil {
			return err
		}

		res = &domain.PurchaseResult{
			Item:      catalog.View(def, own.Level),
			PricePaid: price,
			NewLevel:  own.Level,
			Balance:   *b,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	countCoins(domain.KindUpgradePurchase, -res.PricePaid)
	logger.WithContext(ctx).Info("upgrade purchased",
		"component", "purchase", "user_id", userID, "item_id", def.ID, "level", res.NewLevel, "price", res.PricePaid)
	return res, nil
}
