package notify

import (
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier pushes best-effort Telegram messages to users whose account id is
// a Telegram chat id. All methods are safe on a nil or disabled notifier,
// and failures are logged, never surfaced.
type Notifier struct {
	bot *tgbotapi.BotAPI
	log *slog.Logger
}

// New builds a notifier. An empty token yields a disabled notifier.
func New(botToken string, log *slog.Logger) *Notifier {
	if botToken == "" {
		return &Notifier{log: log}
	}
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		log.Error("telegram notifier disabled", "err", err)
		return &Notifier{log: log}
	}
	return &Notifier{bot: bot, log: log}
}

// PaymentCompleted tells the user their purchase landed.
func (n *Notifier) PaymentCompleted(userID string, credits int) {
	n.send(userID, fmt.Sprintf("Payment received! %d credits have been added to your balance.", credits))
}

// KeyRedeemed tells the user their key redemption landed.
func (n *Notifier) KeyRedeemed(userID string, credits int) {
	n.send(userID, fmt.Sprintf("Key redeemed! %d credits have been added to your balance.", credits))
}

func (n *Notifier) send(userID, text string) {
	if n == nil || n.bot == nil {
		return
	}
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		// Password accounts have UUID ids; there is no chat to notify.
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.log.Error("send telegram notification", "user", userID, "err", err)
	}
}
