package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"clicker_ledger/internal/domain"
	"clicker_ledger/internal/logger"
	"clicker_ledger/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// sender is the part of the Bot API the handlers talk to.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Settings struct {
	WebAppURL     string
	ProviderToken string
	AdminIDs      []int64
}

// Bot is the player-facing Telegram bot: start links, balance, coin
// packages and payments.
type Bot struct {
	api      *tgbotapi.BotAPI
	out      sender
	ledger   *service.Ledger
	settings Settings
	stopCh   chan struct{}
	wg       sync.WaitGroup
	log      *slog.Logger
}

func New(token string, ledger *service.Ledger, settings Settings) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	b := newBot(api, ledger, settings)
	b.api = api
	b.log.Info("bot authorized", "username", api.Self.UserName)
	if settings.WebAppURL == "" {
		b.log.Warn("WEBAPP_URL is not set, game button disabled")
	}
	return b, nil
}

func newBot(out sender, ledger *service.Ledger, settings Settings) *Bot {
	return &Bot{
		out:      out,
		ledger:   ledger,
		settings: settings,
		stopCh:   make(chan struct{}),
		log:      logger.With("component", "bot"),
	}
}

// Start runs the update loop until Stop.
func (b *Bot) Start() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("starting bot update loop")

	for {
		select {
		case <-b.stopCh:
			b.log.Info("stopping bot update loop")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.wg.Add(1)
			go func(upd tgbotapi.Update) {
				defer b.wg.Done()
				b.handleUpdate(upd)
			}(update)
		}
	}
}

// Stop waits up to 10s for in-flight handlers.
func (b *Bot) Stop() {
	b.log.Info("stopping bot...")
	close(b.stopCh)
	b.api.StopReceivingUpdates()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.log.Info("bot stopped gracefully")
	case <-time.After(10 * time.Second):
		b.log.Warn("bot shutdown timeout, some handlers may not have completed")
	}
}

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch {
	case update.PreCheckoutQuery != nil:
		b.handlePreCheckout(update.PreCheckoutQuery)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.SuccessfulPayment != nil:
		b.handlePayment(ctx, update.Message)
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}

	switch msg.Command() {
	case "start":
		b.handleStart(ctx, msg)
	case "balance":
		b.handleBalance(ctx, msg)
	case "top":
		b.reply(msg.Chat.ID, b.topMessage(ctx), nil)
	case "addcoins":
		if !b.isAdmin(msg.From.ID) {
			return
		}
		b.reply(msg.Chat.ID, b.handleAddCoins(ctx, msg.CommandArguments()), nil)
	case "help":
		b.reply(msg.Chat.ID, helpMessage, nil)
	default:
		b.reply(msg.Chat.ID, "❌ Неизвестная команда. Используйте /help для списка команд.", nil)
	}
}

const helpMessage = `<b>Команды</b>

/start - Открыть игру
/balance - Ваш баланс
/top - Топ игроков`

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	user, created, err := b.ledger.Users.CreateOrUpdate(ctx, msg.From.ID, domain.ProfileFields{
		Username:  msg.From.UserName,
		FirstName: msg.From.FirstName,
	})
	if err != nil {
		b.log.Error("start: upsert user", "tg_id", msg.From.ID, "error", err)
		b.reply(msg.Chat.ID, "❌ Сервис временно недоступен, попробуйте позже.", nil)
		return
	}

	// only brand new users can be referred
	if referrerID, ok := service.ParseStartPayload(msg.CommandArguments()); ok && created {
		bonus := b.ledger.Referrals.Bonus()
		res, err := b.ledger.Referrals.Register(ctx, referrerID, user.ID, bonus)
		switch {
		case err != nil:
			b.log.Warn("start: referral not registered", "referrer_id", referrerID, "user_id", user.ID, "error", err)
		case res.Applied:
			b.notify(referrerID, fmt.Sprintf("🎉 По вашей ссылке пришёл новый игрок! +%d монет", bonus))
		}
	}

	b.reply(msg.Chat.ID, b.welcomeText(), b.startKeyboard())
}

func (b *Bot) handleBalance(ctx context.Context, msg *tgbotapi.Message) {
	if _, _, err := b.ledger.Users.CreateOrUpdate(ctx, msg.From.ID, domain.ProfileFields{
		Username:  msg.From.UserName,
		FirstName: msg.From.FirstName,
	}); err != nil {
		b.log.Error("balance: upsert user", "tg_id", msg.From.ID, "error", err)
		b.reply(msg.Chat.ID, "❌ Сервис временно недоступен, попробуйте позже.", nil)
		return
	}

	p, err := b.ledger.Queries.Profile(ctx, msg.From.ID)
	if err != nil {
		b.log.Error("balance: profile", "tg_id", msg.From.ID, "error", err)
		b.reply(msg.Chat.ID, "❌ Не удалось получить баланс.", nil)
		return
	}

	text := fmt.Sprintf(`💰 <b>Ваш баланс</b>

💎 Монеты: <b>%d</b>
🛒 Всего покупок: <b>%d</b>

💡 Монеты можно потратить на улучшения в игре!`, p.Balance.Coins, p.TotalPurchases)
	b.reply(msg.Chat.ID, text, b.startKeyboard())
}

func (b *Bot) topMessage(ctx context.Context) string {
	top, err := b.ledger.Queries.Leaderboard(ctx, service.DefaultLeaderboardLimit)
	if err != nil {
		return fmt.Sprintf("❌ Ошибка: %v", err)
	}
	if len(top) == 0 {
		return "❌ Пользователи не найдены"
	}

	var sb strings.Builder
	sb.WriteString("<b>🏆 Топ игроков</b>\n\n")
	for _, e := range top {
		name := e.Username
		if name == "" {
			name = e.FirstName
		}
		if name == "" {
			name = fmt.Sprintf("id:%d", e.UserID)
		}
		sb.WriteString(fmt.Sprintf("%d. %s — %d 💎\n", e.Position, name, e.TotalEarned))
	}
	return sb.String()
}

func (b *Bot) handleAddCoins(ctx context.Context, args string) string {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		return "❌ Использование: /addcoins <tg_id> <сумма>"
	}

	tgID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return "❌ Неверный Telegram ID"
	}
	amount, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "❌ Неверная сумма"
	}

	bal, err := b.ledger.Balances.Credit(ctx, tgID, amount, domain.KindManual, domain.Meta{Description: "admin grant"})
	if err != nil {
		return fmt.Sprintf("❌ Ошибка: %v", err)
	}
	return fmt.Sprintf("✅ Добавлено %d монет пользователю %d. Новый баланс: %d", amount, tgID, bal.Coins)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.From == nil {
		return
	}
	chatID, msgID := cb.Message.Chat.ID, cb.Message.MessageID

	switch {
	case cb.Data == "buy_coins":
		b.edit(chatID, msgID, packagesText, packagesKeyboard())
		b.answer(tgbotapi.NewCallback(cb.ID, ""))

	case cb.Data == "back_to_start":
		b.edit(chatID, msgID, b.welcomeText(), b.startKeyboard())
		b.answer(tgbotapi.NewCallback(cb.ID, ""))

	case strings.HasPrefix(cb.Data, "buy_"):
		p, ok := packageFromCallback(cb.Data)
		if !ok {
			b.answer(tgbotapi.NewCallbackWithAlert(cb.ID, "❌ Пакет не найден"))
			return
		}
		if b.settings.ProviderToken == "" {
			b.answer(tgbotapi.NewCallbackWithAlert(cb.ID, "❌ Платежи временно недоступны. Обратитесь к администратору."))
			return
		}
		if _, err := b.out.Send(b.invoice(chatID, cb.From.ID, p)); err != nil {
			b.log.Error("send invoice", "tg_id", cb.From.ID, "error", err)
		}
		b.answer(tgbotapi.NewCallback(cb.ID, ""))
	}
}

func (b *Bot) invoice(chatID, userID int64, p CoinPackage) tgbotapi.InvoiceConfig {
	inv := tgbotapi.NewInvoice(
		chatID,
		"💎 "+p.Title,
		fmt.Sprintf("Покупка %d игровых монет за %d₽", p.Coins, p.Price),
		invoicePayload(p, userID),
		b.settings.ProviderToken,
		"game_coins_purchase",
		Currency,
		[]tgbotapi.LabeledPrice{{Label: p.Title, Amount: p.Amount()}},
	)
	inv.SuggestedTipAmounts = []int{}
	return inv
}

func (b *Bot) handlePreCheckout(q *tgbotapi.PreCheckoutQuery) {
	answer := tgbotapi.PreCheckoutConfig{PreCheckoutQueryID: q.ID, OK: true}

	p, userID, err := parsePayload(q.InvoicePayload)
	switch {
	case err != nil:
		answer.OK = false
		answer.ErrorMessage = "Ошибка в данных платежа. Попробуйте еще раз."
	case q.From == nil || q.From.ID != userID:
		answer.OK = false
		answer.ErrorMessage = "Ошибка авторизации. Попробуйте еще раз."
	case q.Currency != Currency || q.TotalAmount != p.Amount():
		answer.OK = false
		answer.ErrorMessage = "Сумма платежа не совпадает с пакетом."
	}

	if !answer.OK {
		b.log.Warn("pre-checkout rejected", "payload", q.InvoicePayload, "reason", answer.ErrorMessage)
	}
	b.answer(answer)
}

// handlePayment credits a paid package. The charge id makes redelivered
// updates a no-op.
func (b *Bot) handlePayment(ctx context.Context, msg *tgbotapi.Message) {
	pay := msg.SuccessfulPayment
	p, userID, err := parsePayload(pay.InvoicePayload)
	if err != nil {
		b.log.Error("payment with bad payload", "payload", pay.InvoicePayload, "charge_id", pay.TelegramPaymentChargeID)
		return
	}

	log := b.log.With("user_id", userID, "charge_id", pay.TelegramPaymentChargeID, "coins", p.Coins)

	if msg.From != nil && msg.From.ID == userID {
		if _, _, err := b.ledger.Users.CreateOrUpdate(ctx, userID, domain.ProfileFields{
			Username:  msg.From.UserName,
			FirstName: msg.From.FirstName,
		}); err != nil {
			log.Error("payment: upsert user", "error", err)
			return
		}
	}

	desc := paymentDescription(p, pay)
	bal, err := b.ledger.Balances.CreditPayment(ctx, userID, p.Coins, pay.TelegramPaymentChargeID, desc)
	switch {
	case errors.Is(err, domain.ErrDuplicateTransaction):
		log.Info("payment already credited")
		if bal, err = b.ledger.Balances.GetBalance(ctx, userID); err != nil {
			log.Error("payment: read balance", "error", err)
			return
		}
	case err != nil:
		log.Error("payment not credited", "error", err)
		b.reply(msg.Chat.ID, "❌ Не удалось зачислить монеты. Мы уже разбираемся, обратитесь в поддержку с ID платежа: <code>"+pay.TelegramPaymentChargeID+"</code>", nil)
		return
	default:
		log.Info("payment credited", "balance", bal.Coins)
	}

	text := fmt.Sprintf(`✅ <b>Платеж успешно обработан!</b>

💎 Вам начислено: <b>%d монет</b>
💰 Текущий баланс: <b>%d монет</b>
💳 Сумма платежа: <b>%d₽</b>
🆔 ID транзакции: <code>%s</code>

🎮 Монеты уже доступны в игре!`, p.Coins, bal.Coins, pay.TotalAmount/100, pay.TelegramPaymentChargeID)
	b.reply(msg.Chat.ID, text, b.startKeyboard())
}

const packagesText = `💰 <b>Выберите пакет монет:</b>

💎 Монеты можно потратить на улучшения в игре
🎁 Чем больше пакет - тем выгоднее цена!`

// packagesKeyboard lays packages out two per row.
func packagesKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i := 0; i < len(Packages); i += 2 {
		var row []tgbotapi.InlineKeyboardButton
		for j := i; j < i+2 && j < len(Packages); j++ {
			p := Packages[j]
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("💎 %d монет - %d₽", p.Coins, p.Price),
				"buy_"+strconv.Itoa(j),
			))
		}
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "back_to_start"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) welcomeText() string {
	url := b.settings.WebAppURL
	if url == "" {
		url = "&lt;не задан WEBAPP_URL&gt;"
	}
	return "🍖 <b>Добро пожаловать!</b>\n\n" +
		"🎮 Нажми кнопку ниже, чтобы открыть игру\n" +
		"💰 Или купи монеты для игры\n\n" +
		"Если кнопка не работает, открой: " + url
}

func (b *Bot) startKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if b.settings.WebAppURL != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("🎮 Начать игру", b.settings.WebAppURL),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("💰 Купить монеты", "buy_coins"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) isAdmin(userID int64) bool {
	return slices.Contains(b.settings.AdminIDs, userID)
}

func (b *Bot) reply(chatID int64, text string, markup any) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := b.out.Send(msg); err != nil {
		b.log.Error("error sending message", "chat_id", chatID, "error", err)
	}
}

// notify is best effort; the user may have blocked the bot.
func (b *Bot) notify(chatID int64, text string) {
	if _, err := b.out.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.log.Debug("notification not delivered", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) edit(chatID int64, msgID int, text string, markup tgbotapi.InlineKeyboardMarkup) {
	e := tgbotapi.NewEditMessageTextAndMarkup(chatID, msgID, text, markup)
	e.ParseMode = tgbotapi.ModeHTML
	if _, err := b.out.Send(e); err != nil {
		b.log.Error("error editing message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) answer(c tgbotapi.Chattable) {
	if _, err := b.out.Request(c); err != nil {
		b.log.Error("error answering query", "error", err)
	}
}
