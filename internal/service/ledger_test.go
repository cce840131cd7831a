package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"clicker_ledger/internal/catalog"
	"clicker_ledger/internal/domain"
	"clicker_ledger/internal/repository/memory"

	"github.com/stretchr/testify/suite"
)

type LedgerSuite struct {
	suite.Suite

	ctx    context.Context
	store  *memory.Store
	ledger *Ledger
	now    time.Time
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.now = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s.ledger = NewLedger(s.store, catalog.Default(), Options{
		BotUsername: "clicker_bot",
		Clock:       func() time.Time { return s.now },
	})
}

func (s *LedgerSuite) register(id int64) {
	_, _, err := s.ledger.Users.CreateOrUpdate(s.ctx, id, domain.ProfileFields{Username: "u", FirstName: "F"})
	s.Require().NoError(err)
}

// assertConsistent checks both ledger invariants for userID.
func (s *LedgerSuite) assertConsistent(userID int64) {
	b, err := s.store.GetBalance(s.ctx, userID)
	s.Require().NoError(err)
	s.True(b.Consistent(), "coins=%d earned=%d spent=%d", b.Coins, b.TotalEarned, b.TotalSpent)

	txs, err := s.store.ListTransactions(s.ctx, userID, 1<<30)
	s.Require().NoError(err)
	var sum int64
	for _, t := range txs {
		sum += t.Amount
	}
	s.Equal(b.Coins, sum)
}

func (s *LedgerSuite) TestCreateOrUpdate_NewUserStartsEmpty() {
	u, created, err := s.ledger.Users.CreateOrUpdate(s.ctx, 10, domain.ProfileFields{Username: "neo"})
	s.Require().NoError(err)
	s.True(created)
	s.Equal(s.now, u.RegisteredAt)

	b, err := s.ledger.Balances.GetBalance(s.ctx, 10)
	s.Require().NoError(err)
	s.Zero(b.Coins)
	s.Equal(int64(1), b.ClickPower)
	s.Zero(b.PassiveIncome)

	_, created, err = s.ledger.Users.CreateOrUpdate(s.ctx, 10, domain.ProfileFields{Username: "trinity"})
	s.Require().NoError(err)
	s.False(created)

	_, _, err = s.ledger.Users.CreateOrUpdate(s.ctx, 0, domain.ProfileFields{})
	s.ErrorIs(err, domain.ErrInvalidUser)
}

func (s *LedgerSuite) TestCreditDebit_KeepInvariant() {
	s.register(1)

	ops := []struct {
		credit bool
		amount int64
	}{
		{true, 100}, {false, 30}, {true, 5}, {false, 75}, {true, 1000}, {false, 1},
	}
	for _, op := range ops {
		var err error
		if op.credit {
			_, err = s.ledger.Balances.Credit(s.ctx, 1, op.amount, domain.KindManual, domain.Meta{})
		} else {
			_, err = s.ledger.Balances.Debit(s.ctx, 1, op.amount, domain.KindManual, domain.Meta{})
		}
		s.Require().NoError(err)
		s.assertConsistent(1)
	}

	b, _ := s.ledger.Balances.GetBalance(s.ctx, 1)
	s.Equal(int64(999), b.Coins)
	s.Equal(int64(1105), b.TotalEarned)
	s.Equal(int64(106), b.TotalSpent)
}

func (s *LedgerSuite) TestDebit_InsufficientFundsLeavesNoTrace() {
	s.register(1)
	_, err := s.ledger.Balances.Credit(s.ctx, 1, 40, domain.KindManual, domain.Meta{})
	s.Require().NoError(err)

	_, err = s.ledger.Balances.Debit(s.ctx, 1, 41, domain.KindManual, domain.Meta{})
	s.ErrorIs(err, domain.ErrInsufficientFunds)

	b, _ := s.ledger.Balances.GetBalance(s.ctx, 1)
	s.Equal(int64(40), b.Coins)
	n, _ := s.store.CountTransactions(s.ctx, 1)
	s.Equal(1, n)
}

func (s *LedgerSuite) TestCredit_Validation() {
	s.register(1)

	_, err := s.ledger.Balances.Credit(s.ctx, 1, 0, domain.KindManual, domain.Meta{})
	s.ErrorIs(err, domain.ErrInvalidAmount)

	_, err = s.ledger.Balances.Debit(s.ctx, 1, -5, domain.KindManual, domain.Meta{})
	s.ErrorIs(err, domain.ErrInvalidAmount)

	_, err = s.ledger.Balances.Credit(s.ctx, 1, 5, "gift", domain.Meta{})
	s.ErrorIs(err, domain.ErrInvalidKind)

	_, err = s.ledger.Balances.Credit(s.ctx, 99, 5, domain.KindManual, domain.Meta{})
	s.True(domain.IsNotFound(err))
}

func (s *LedgerSuite) TestCreditPayment_ReplayCreditsOnce() {
	s.register(1)

	for i := 0; i < 3; i++ {
		_, err := s.ledger.Balances.CreditPayment(s.ctx, 1, 250, "tg-charge-1", "coin package")
		if i == 0 {
			s.Require().NoError(err)
		} else {
			s.ErrorIs(err, domain.ErrDuplicateTransaction)
		}
	}

	b, _ := s.ledger.Balances.GetBalance(s.ctx, 1)
	s.Equal(int64(250), b.Coins)
	s.assertConsistent(1)

	_, err := s.ledger.Balances.CreditPayment(s.ctx, 1, 250, "", "x")
	s.ErrorIs(err, domain.ErrNoExternalID)
}

func (s *LedgerSuite) TestCredit_OverflowRejected() {
	s.register(1)

	_, err := s.ledger.Balances.Credit(s.ctx, 1, math.MaxInt64, domain.KindManual, domain.Meta{})
	s.Require().NoError(err)

	_, err = s.ledger.Balances.Credit(s.ctx, 1, 1, domain.KindManual, domain.Meta{})
	s.ErrorIs(err, domain.ErrInvalidAmount)
	s.True(domain.IsBusinessRule(err))

	b, err := s.ledger.Balances.GetBalance(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(int64(math.MaxInt64), b.Coins)
	s.Equal(int64(math.MaxInt64), b.TotalEarned)

	txs, err := s.ledger.Balances.History(s.ctx, 1, 10)
	s.Require().NoError(err)
	s.Len(txs, 1)
	s.assertConsistent(1)
}

func (s *LedgerSuite) TestBuy_Scenario() {
	s.register(1)

	b, err := s.ledger.Balances.Credit(s.ctx, 1, 200, domain.KindPurchase, domain.Meta{})
	s.Require().NoError(err)
	s.Equal(int64(200), b.Coins)

	res, err := s.ledger.Purchases.Buy(s.ctx, 1, "click_power_1")
	s.Require().NoError(err)
	s.Equal(int64(50), res.PricePaid)
	s.Equal(1, res.NewLevel)
	s.Equal(int64(150), res.Balance.Coins)
	s.Equal(int64(2), res.Balance.ClickPower)
	s.Equal(int64(55), res.Item.Price)

	res, err = s.ledger.Purchases.Buy(s.ctx, 1, "click_power_1")
	s.Require().NoError(err)
	s.Equal(int64(55), res.PricePaid)
	s.Equal(2, res.NewLevel)
	s.Equal(int64(95), res.Balance.Coins)
	s.Equal(int64(3), res.Balance.ClickPower)

	s.assertConsistent(1)

	txs, _ := s.ledger.Balances.History(s.ctx, 1, 10)
	s.Require().Len(txs, 3)
	s.Equal(domain.KindUpgradePurchase, txs[0].Kind)
	s.Equal("click_power_1", txs[0].ItemID)
	s.Equal(int64(-55), txs[0].Amount)
}

func (s *LedgerSuite) TestBuy_MaxLevelIsUnavailable() {
	cat, err := catalog.New([]domain.UpgradeDefinition{{
		ID: "once", Name: "Once", BasePrice: 10, EffectType: domain.EffectClickPower, EffectValue: 1, MaxLevel: 1,
	}})
	s.Require().NoError(err)
	s.ledger = NewLedger(s.store, cat, Options{Clock: func() time.Time { return s.now }})

	s.register(1)
	_, err = s.ledger.Balances.Credit(s.ctx, 1, 100, domain.KindManual, domain.Meta{})
	s.Require().NoError(err)

	_, err = s.ledger.Purchases.Buy(s.ctx, 1, "once")
	s.Require().NoError(err)

	_, err = s.ledger.Purchases.Buy(s.ctx, 1, "once")
	s.ErrorIs(err, domain.ErrItemUnavailable)

	b, _ := s.ledger.Balances.GetBalance(s.ctx, 1)
	s.Equal(int64(90), b.Coins)
	s.Equal(int64(2), b.ClickPower)

	items, err := s.ledger.Queries.ShopItems(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(1, items[0].CurrentLevel)
	s.False(items[0].Available)
}

func (s *LedgerSuite) TestBuy_Failures() {
	s.register(1)

	_, err := s.ledger.Purchases.Buy(s.ctx, 1, "nope")
	s.ErrorIs(err, domain.ErrItemNotFound)
	s.True(domain.IsNotFound(err))

	_, err = s.ledger.Purchases.Buy(s.ctx, 1, "click_power_1")
	s.ErrorIs(err, domain.ErrInsufficientFunds)

	_, err = s.ledger.Purchases.Buy(s.ctx, 2, "click_power_1")
	s.ErrorIs(err, domain.ErrUserNotFound)

	owned, _ := s.ledger.Queries.Upgrades(s.ctx, 1)
	s.Empty(owned)
	s.assertConsistent(1)
}

func (s *LedgerSuite) TestBuy_PassiveSettlesAccruedIncome() {
	s.register(1)
	_, err := s.ledger.Balances.Credit(s.ctx, 1, 300, domain.KindManual, domain.Meta{})
	s.Require().NoError(err)

	_, err = s.ledger.Purchases.Buy(s.ctx, 1, "passive_income_1")
	s.Require().NoError(err)

	s.now = s.now.Add(90 * time.Second)
	res, err := s.ledger.Purchases.Buy(s.ctx, 1, "passive_income_1")
	s.Require().NoError(err)
	// 90s at 1/s, then price 110
	s.Equal(int64(300-100+90-110), res.Balance.Coins)
	s.Equal(int64(2), res.Balance.PassiveIncome)
	s.Equal(s.now, res.Balance.LastCollectionAt)
	s.assertConsistent(1)
}

func (s *LedgerSuite) TestClick() {
	s.register(1)

	res, err := s.ledger.Balances.Click(s.ctx, 1, 7)
	s.Require().NoError(err)
	s.Equal(int64(7), res.Earned)
	s.Equal(int64(7), res.Balance.TotalClicks)

	_, err = s.ledger.Balances.Credit(s.ctx, 1, 200, domain.KindManual, domain.Meta{})
	s.Require().NoError(err)
	_, err = s.ledger.Purchases.Buy(s.ctx, 1, "click_power_5")
	s.Require().NoError(err)

	res, err = s.ledger.Balances.Click(s.ctx, 1, 2)
	s.Require().NoError(err)
	s.Equal(int64(12), res.Earned)
	s.Equal(int64(9), res.Balance.TotalClicks)
	s.assertConsistent(1)

	_, err = s.ledger.Balances.Click(s.ctx, 1, 0)
	s.ErrorIs(err, domain.ErrInvalidAmount)
	_, err = s.ledger.Balances.Click(s.ctx, 1, DefaultMaxClicksPerCall+1)
	s.ErrorIs(err, domain.ErrInvalidAmount)
}

func (s *LedgerSuite) TestCollectPassive() {
	s.register(1)

	// nothing accrues without passive income, but the clock still advances
	s.now = s.now.Add(time.Minute)
	res, err := s.ledger.Balances.CollectPassive(s.ctx, 1)
	s.Require().NoError(err)
	s.Zero(res.Earned)
	s.Equal(s.now, res.Balance.LastCollectionAt)

	_, err = s.ledger.Balances.Credit(s.ctx, 1, 1000, domain.KindManual, domain.Meta{})
	s.Require().NoError(err)
	_, err = s.ledger.Purchases.Buy(s.ctx, 1, "passive_income_10")
	s.Require().NoError(err)

	s.now = s.now.Add(10*time.Second + 400*time.Millisecond)
	res, err = s.ledger.Balances.CollectPassive(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(int64(10), res.Seconds)
	s.Equal(int64(100), res.Earned)
	// the partial second carries over
	s.Equal(s.now.Add(-400*time.Millisecond), res.Balance.LastCollectionAt)

	s.now = s.now.Add(5 * time.Hour)
	res, err = s.ledger.Balances.CollectPassive(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(int64(10*3*60*60), res.Earned)
	s.assertConsistent(1)
}

func (s *LedgerSuite) TestReferral_PaysOnce() {
	s.register(1)
	s.register(2)
	s.register(3)

	res, err := s.ledger.Referrals.Register(s.ctx, 1, 2, 100)
	s.Require().NoError(err)
	s.True(res.Applied)

	res, err = s.ledger.Referrals.Register(s.ctx, 1, 2, 100)
	s.Require().NoError(err)
	s.False(res.Applied)

	// a referred user cannot be claimed by someone else either
	res, err = s.ledger.Referrals.Register(s.ctx, 3, 2, 100)
	s.Require().NoError(err)
	s.False(res.Applied)

	b, _ := s.ledger.Balances.GetBalance(s.ctx, 1)
	s.Equal(int64(100), b.Coins)
	s.assertConsistent(1)

	u, _ := s.store.GetUser(s.ctx, 2)
	s.Require().NotNil(u.ReferrerID)
	s.Equal(int64(1), *u.ReferrerID)

	stats, err := s.ledger.Referrals.Stats(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(1, stats.TotalReferrals)
	s.Equal(int64(100), stats.TotalEarnings)
	s.Equal(int64(2), stats.Referrals[0].UserID)

	p, err := s.ledger.Queries.Profile(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(1, p.ReferralsCount)
	s.Equal(int64(100), p.ReferralEarnings)
}

func (s *LedgerSuite) TestReferral_Rejections() {
	s.register(1)

	_, err := s.ledger.Referrals.Register(s.ctx, 1, 1, 100)
	s.ErrorIs(err, domain.ErrSelfReferral)

	_, err = s.ledger.Referrals.Register(s.ctx, 1, 5, 100)
	s.ErrorIs(err, domain.ErrUserNotFound)

	_, err = s.ledger.Referrals.Register(s.ctx, 5, 1, 100)
	s.ErrorIs(err, domain.ErrUserNotFound)

	_, err = s.ledger.Referrals.Register(s.ctx, 1, 2, 0)
	s.ErrorIs(err, domain.ErrInvalidAmount)
}

func (s *LedgerSuite) TestReferralLink() {
	link := s.ledger.Referrals.Link(42)
	s.Equal("https://t.me/clicker_bot?start=ref_42", link)

	id, ok := ParseStartPayload("ref_42")
	s.True(ok)
	s.Equal(int64(42), id)

	_, ok = ParseStartPayload("ref_abc")
	s.False(ok)
	_, ok = ParseStartPayload("promo")
	s.False(ok)
}

func (s *LedgerSuite) TestLeaderboard_OrderAndClamp() {
	earned := map[int64]int64{1: 300, 2: 100, 3: 300}
	for id, amount := range earned {
		s.register(id)
		_, err := s.ledger.Balances.Credit(s.ctx, id, amount, domain.KindManual, domain.Meta{})
		s.Require().NoError(err)
	}

	rows, err := s.ledger.Queries.Leaderboard(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(rows, 3)
	s.Equal([]int64{1, 3, 2}, []int64{rows[0].UserID, rows[1].UserID, rows[2].UserID})
	s.Equal([]int{1, 2, 3}, []int{rows[0].Position, rows[1].Position, rows[2].Position})

	rows, err = s.ledger.Queries.Leaderboard(s.ctx, 0)
	s.Require().NoError(err)
	s.Len(rows, 1)
}

func (s *LedgerSuite) TestProfile_CountsPurchases() {
	s.register(1)
	_, err := s.ledger.Balances.CreditPayment(s.ctx, 1, 650, "charge-9", "250 stars")
	s.Require().NoError(err)
	_, err = s.ledger.Purchases.Buy(s.ctx, 1, "click_power_1")
	s.Require().NoError(err)
	_, err = s.ledger.Balances.Click(s.ctx, 1, 3)
	s.Require().NoError(err)

	p, err := s.ledger.Queries.Profile(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(2, p.TotalPurchases)
	s.Equal(int64(650-50+6), p.Coins)

	st, err := s.ledger.Queries.Stats(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(p.Coins, st.Coins)
	s.Equal(int64(3), st.TotalClicks)

	_, err = s.ledger.Queries.Profile(s.ctx, 404)
	s.ErrorIs(err, domain.ErrUserNotFound)
}

func (s *LedgerSuite) TestConcurrentBuysNeverOverdraw() {
	s.register(1)
	_, err := s.ledger.Balances.Credit(s.ctx, 1, 120, domain.KindManual, domain.Meta{})
	s.Require().NoError(err)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ledger.Purchases.Buy(s.ctx, 1, "click_power_1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		s.ErrorIs(err, domain.ErrInsufficientFunds)
	}
	// 50 + 55 fit in 120, a third buy at 61 does not
	s.Equal(2, ok)

	b, _ := s.ledger.Balances.GetBalance(s.ctx, 1)
	s.Equal(int64(15), b.Coins)
	s.assertConsistent(1)
}

func (s *LedgerSuite) TestConcurrentCreditsOnDistinctUsers() {
	const users = 20
	for id := int64(1); id <= users; id++ {
		s.register(id)
	}

	var wg sync.WaitGroup
	for id := int64(1); id <= users; id++ {
		for j := 0; j < 5; j++ {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				_, err := s.ledger.Balances.Credit(s.ctx, id, 10, domain.KindManual, domain.Meta{})
				s.NoError(err)
			}(id)
		}
	}
	wg.Wait()

	for id := int64(1); id <= users; id++ {
		b, _ := s.ledger.Balances.GetBalance(s.ctx, id)
		s.Equal(int64(50), b.Coins)
	}
	s.Zero(s.ledger.Balances.locks.size())
}

func (s *LedgerSuite) TestCreditPayment_ConcurrentReplay() {
	s.register(1)

	const workers = 16
	var ok, dup atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ledger.Balances.CreditPayment(s.ctx, 1, 500, "tg-charge-race", "coin package")
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrDuplicateTransaction):
				dup.Add(1)
			default:
				s.Failf("unexpected error", "%v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), ok.Load())
	s.Equal(int32(workers-1), dup.Load())

	b, _ := s.ledger.Balances.GetBalance(s.ctx, 1)
	s.Equal(int64(500), b.Coins)
	txs, err := s.ledger.Balances.History(s.ctx, 1, 50)
	s.Require().NoError(err)
	s.Len(txs, 1)
	s.assertConsistent(1)
}

func (s *LedgerSuite) TestReferral_ConcurrentRegister() {
	s.register(1)
	s.register(2)

	const workers = 16
	var applied atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.ledger.Referrals.Register(s.ctx, 1, 2, 100)
			s.NoError(err)
			if res.Applied {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), applied.Load())

	b, _ := s.ledger.Balances.GetBalance(s.ctx, 1)
	s.Equal(int64(100), b.Coins)
	s.assertConsistent(1)

	stats, err := s.ledger.Referrals.Stats(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(1, stats.TotalReferrals)
	s.Zero(s.ledger.Balances.locks.size())
}
