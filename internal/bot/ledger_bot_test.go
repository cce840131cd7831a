package bot

import (
	"context"
	"strings"
	"sync"
	"testing"

	"clicker_ledger/internal/catalog"
	"clicker_ledger/internal/domain"
	"clicker_ledger/internal/repository/memory"
	"clicker_ledger/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) lastText(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	msg, ok := f.sent[len(f.sent)-1].(tgbotapi.MessageConfig)
	require.True(t, ok, "last sent is %T", f.sent[len(f.sent)-1])
	return msg.Text
}

func newTestBot(t *testing.T, settings Settings) (*Bot, *fakeSender, *service.Ledger) {
	t.Helper()
	ledger := service.NewLedger(memory.New(), catalog.Default(), service.Options{})
	out := &fakeSender{}
	return newBot(out, ledger, settings), out, ledger
}

func command(userID int64, text string) tgbotapi.Update {
	cmdLen := len(text)
	if i := strings.IndexByte(text, ' '); i >= 0 {
		cmdLen = i
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID, UserName: "user", FirstName: "U"},
		Chat:      &tgbotapi.Chat{ID: userID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}}
}

func TestParsePayload(t *testing.T) {
	p, userID, err := parsePayload(invoicePayload(Packages[2], 77))
	require.NoError(t, err)
	assert.Equal(t, Packages[2], p)
	assert.Equal(t, int64(77), userID)

	for _, bad := range []string{"", "coins_100", "coins_x_1", "coins_101_1", "gems_100_1", "coins_100_-1"} {
		_, _, err := parsePayload(bad)
		assert.ErrorIs(t, err, errBadPayload, bad)
	}
}

func TestPackageFromCallback(t *testing.T) {
	p, ok := packageFromCallback("buy_0")
	require.True(t, ok)
	assert.Equal(t, int64(100), p.Coins)
	assert.Equal(t, 5000, p.Amount())

	for _, bad := range []string{"buy_coins", "buy_6", "buy_-1", "sell_1"} {
		_, ok := packageFromCallback(bad)
		assert.False(t, ok, bad)
	}
}

func TestStart_RegistersReferralForNewUser(t *testing.T) {
	b, out, ledger := newTestBot(t, Settings{})
	ctx := context.Background()

	b.handleUpdate(command(1, "/start"))
	b.handleUpdate(command(2, "/start ref_1"))

	bal, err := ledger.Balances.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, ledger.Referrals.Bonus(), bal.Coins)

	// restart with the link again pays nothing
	b.handleUpdate(command(2, "/start ref_1"))
	bal, err = ledger.Balances.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, ledger.Referrals.Bonus(), bal.Coins)

	assert.Contains(t, out.lastText(t), "Добро пожаловать")
}

func TestBalanceCommand(t *testing.T) {
	b, out, ledger := newTestBot(t, Settings{})

	b.handleUpdate(command(5, "/start"))
	_, err := ledger.Balances.Credit(context.Background(), 5, 42, domain.KindManual, domain.Meta{})
	require.NoError(t, err)

	b.handleUpdate(command(5, "/balance"))
	assert.Contains(t, out.lastText(t), "<b>42</b>")
}

func TestAddCoins_AdminOnly(t *testing.T) {
	b, out, ledger := newTestBot(t, Settings{AdminIDs: []int64{9}})
	ctx := context.Background()
	b.handleUpdate(command(5, "/start"))

	b.handleUpdate(command(5, "/addcoins 5 1000"))
	bal, err := ledger.Balances.GetBalance(ctx, 5)
	require.NoError(t, err)
	assert.Zero(t, bal.Coins)

	b.handleUpdate(command(9, "/addcoins 5 1000"))
	bal, err = ledger.Balances.GetBalance(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal.Coins)
	assert.Contains(t, out.lastText(t), "Новый баланс: 1000")
}

func TestBuyCallback(t *testing.T) {
	cb := func(data string) tgbotapi.Update {
		return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cb",
			From:    &tgbotapi.User{ID: 3},
			Message: &tgbotapi.Message{MessageID: 10, Chat: &tgbotapi.Chat{ID: 3}},
			Data:    data,
		}}
	}

	b, out, _ := newTestBot(t, Settings{})
	b.handleUpdate(cb("buy_1"))
	require.Len(t, out.requests, 1)
	alert := out.requests[0].(tgbotapi.CallbackConfig)
	assert.True(t, alert.ShowAlert)
	assert.Empty(t, out.sent)

	b, out, _ = newTestBot(t, Settings{ProviderToken: "provider"})
	b.handleUpdate(cb("buy_1"))
	require.Len(t, out.sent, 1)
	inv := out.sent[0].(tgbotapi.InvoiceConfig)
	assert.Equal(t, "coins_250_3", inv.Payload)
	assert.Equal(t, Currency, inv.Currency)
	assert.Equal(t, 10000, inv.Prices[0].Amount)

	b.handleUpdate(cb("buy_coins"))
	edit := out.sent[len(out.sent)-1].(tgbotapi.EditMessageTextConfig)
	assert.Equal(t, packagesText, edit.Text)
	assert.Len(t, edit.ReplyMarkup.InlineKeyboard, 4)
}

func TestPreCheckout(t *testing.T) {
	b, out, _ := newTestBot(t, Settings{})
	p := Packages[0]

	cases := []struct {
		name    string
		from    int64
		payload string
		amount  int
		ok      bool
	}{
		{"valid", 7, invoicePayload(p, 7), p.Amount(), true},
		{"other user", 8, invoicePayload(p, 7), p.Amount(), false},
		{"wrong amount", 7, invoicePayload(p, 7), 1, false},
		{"garbage", 7, "coins", p.Amount(), false},
	}

	for i, tc := range cases {
		b.handleUpdate(tgbotapi.Update{PreCheckoutQuery: &tgbotapi.PreCheckoutQuery{
			ID:             tc.name,
			From:           &tgbotapi.User{ID: tc.from},
			Currency:       Currency,
			TotalAmount:    tc.amount,
			InvoicePayload: tc.payload,
		}})
		require.Len(t, out.requests, i+1)
		answer := out.requests[i].(tgbotapi.PreCheckoutConfig)
		assert.Equal(t, tc.ok, answer.OK, tc.name)
	}
}

func TestSuccessfulPayment_Idempotent(t *testing.T) {
	b, out, ledger := newTestBot(t, Settings{})
	ctx := context.Background()
	p := Packages[1]

	payment := tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 4, UserName: "payer"},
		Chat: &tgbotapi.Chat{ID: 4},
		SuccessfulPayment: &tgbotapi.SuccessfulPayment{
			Currency:                Currency,
			TotalAmount:             p.Amount(),
			InvoicePayload:          invoicePayload(p, 4),
			TelegramPaymentChargeID: "charge-1",
		},
	}}

	b.handleUpdate(payment)
	b.handleUpdate(payment)

	bal, err := ledger.Balances.GetBalance(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, p.Coins, bal.Coins)

	history, err := ledger.Balances.History(ctx, 4, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.KindPurchase, history[0].Kind)
	assert.Equal(t, "payment Базовый пакет 100₽ provider:yk-77", history[0].Description)
	assert.Equal(t, "charge-1", history[0].ExternalID)

	// the replay still confirms to the user
	assert.Contains(t, out.lastText(t), "Платеж успешно обработан")
}
