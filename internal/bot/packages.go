package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Currency of coin package invoices. Prices are whole rubles.
const Currency = "RUB"

// CoinPackage is a coin bundle sold through Telegram payments.
type CoinPackage struct {
	Title string
	Price int // rubles
	Coins int64
}

// Amount is the invoice amount in the smallest currency unit.
func (p CoinPackage) Amount() int {
	return p.Price * 100
}

var Packages = []CoinPackage{
	{Title: "Стартовый пакет", Price: 50, Coins: 100},
	{Title: "Базовый пакет", Price: 100, Coins: 250},
	{Title: "Популярный пакет", Price: 250, Coins: 650},
	{Title: "Выгодный пакет", Price: 500, Coins: 1400},
	{Title: "Премиум пакет", Price: 1000, Coins: 3000},
	{Title: "VIP пакет", Price: 2000, Coins: 6500},
}

var errBadPayload = errors.New("bad invoice payload")

// packageFromCallback resolves "buy_<index>".
func packageFromCallback(data string) (CoinPackage, bool) {
	raw, ok := strings.CutPrefix(data, "buy_")
	if !ok {
		return CoinPackage{}, false
	}
	i, err := strconv.Atoi(raw)
	if err != nil || i < 0 || i >= len(Packages) {
		return CoinPackage{}, false
	}
	return Packages[i], true
}

func packageByCoins(coins int64) (CoinPackage, bool) {
	for _, p := range Packages {
		if p.Coins == coins {
			return p, true
		}
	}
	return CoinPackage{}, false
}

// invoicePayload is "coins_<coins>_<user_id>".
func invoicePayload(p CoinPackage, userID int64) string {
	return fmt.Sprintf("coins_%d_%d", p.Coins, userID)
}

// parsePayload validates an invoice payload against the package list.
func parsePayload(payload string) (CoinPackage, int64, error) {
	parts := strings.Split(payload, "_")
	if len(parts) != 3 || parts[0] != "coins" {
		return CoinPackage{}, 0, errBadPayload
	}
	coins, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return CoinPackage{}, 0, errBadPayload
	}
	userID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || userID <= 0 {
		return CoinPackage{}, 0, errBadPayload
	}
	p, ok := packageByCoins(coins)
	if !ok {
		return CoinPackage{}, 0, errBadPayload
	}
	return p, userID, nil
}

// paymentDescription records what was charged for a package so revenue can
// be audited from the ledger alone.
func paymentDescription(p CoinPackage, pay *tgbotapi.SuccessfulPayment) string {
	desc := fmt.Sprintf("payment %s %d₽", p.Title, pay.TotalAmount/100)
	if pay.ProviderPaymentChargeID != "" {
		desc += " provider:" + pay.ProviderPaymentChargeID
	}
	return desc
}
