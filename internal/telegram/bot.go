package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"streakguard/internal/database"
	"streakguard/internal/logger"
	"streakguard/internal/services"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrChatNotLinked is returned when a user never sent /start to the bot.
var ErrChatNotLinked = errors.New("telegram chat not linked")

// botAPI is the subset of tgbotapi.BotAPI the bot uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Bot struct {
	bot        botAPI
	username   string
	repository *database.Repository
	services   *services.ServiceManager
	handlers   map[string]func(*tgbotapi.Message)
}

func NewBot(token string, serviceManager *services.ServiceManager) (*Bot, error) {
	botAPI, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	bot := newBot(botAPI, botAPI.Self.UserName, serviceManager)
	logger.Info("telegram bot initialised", "username", bot.username)
	return bot, nil
}

func newBot(api botAPI, username string, serviceManager *services.ServiceManager) *Bot {
	bot := &Bot{
		bot:        api,
		username:   username,
		repository: serviceManager.Repository(),
		services:   serviceManager,
		handlers:   make(map[string]func(*tgbotapi.Message)),
	}
	bot.registerHandlers()
	return bot
}

func (b *Bot) registerHandlers() {
	b.handlers["start"] = b.handleStart
	b.handlers["inventory"] = b.handleInventory
	b.handlers["habits"] = b.handleHabits
	b.handlers["help"] = b.handleHelp
}

func (b *Bot) GetUsername() string {
	return b.username
}

func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.bot.Send(msg)
	return err
}

// SendToUser delivers a notification to the chat linked to userID.
func (b *Bot) SendToUser(ctx context.Context, userID string, n services.Notification) error {
	chatID, err := b.repository.GetTelegramChatID(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("user %s: %w", userID, ErrChatNotLinked)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve chat: %w", err)
	}

	msg := tgbotapi.NewMessage(chatID, formatNotification(n))
	msg.ParseMode = tgbotapi.ModeHTML
	if n.Type == services.NotificationStreakRisk && n.Inventory.StreakShields > 0 {
		msg.ReplyMarkup = b.createShieldKeyboard(n.HabitID)
	}
	if _, err := b.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send to chat %d: %w", chatID, err)
	}
	return nil
}

func (b *Bot) createShieldKeyboard(habitID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🛡 Use a shield", shieldCallbackPrefix+habitID),
		),
	)
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.bot.GetUpdatesChan(u)
	defer b.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("telegram update panicked", "update_id", update.UpdateID, "panic", r)
		}
	}()

	if update.CallbackQuery != nil {
		b.handleCallbackQuery(ctx, update.CallbackQuery)
		return
	}
	if update.Message == nil || !update.Message.IsCommand() {
		return
	}
	b.handleMessage(update.Message)
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	if handler, exists := b.handlers[msg.Command()]; exists {
		handler(msg)
		return
	}
	b.sendMessageOrLogError(msg.Chat.ID, "❌ Unknown command. Use /help")
}

const shieldCallbackPrefix = "shield_"

func (b *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	defer func() {
		if _, err := b.bot.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
			logger.Warn("telegram callback ack failed", "error", err)
		}
	}()
	if callback.Message == nil {
		return
	}

	chatID := callback.Message.Chat.ID
	logger.Debug("telegram callback", "chat_id", chatID, "data", callback.Data)

	switch {
	case strings.HasPrefix(callback.Data, shieldCallbackPrefix):
		b.handleShieldCallback(ctx, chatID, strings.TrimPrefix(callback.Data, shieldCallbackPrefix))
	}
}

// handleShieldCallback spends a shield on today for the habit named in a
// risk warning button.
func (b *Bot) handleShieldCallback(ctx context.Context, chatID int64, habitID string) {
	user, ok := b.linkedUser(ctx, chatID)
	if !ok {
		return
	}

	res, err := b.services.Recovery.UseShield(ctx, user.ID, habitID, nil)
	if err != nil {
		b.sendActionError(chatID, err)
		return
	}
	b.sendMessageOrLogError(chatID, formatShieldUsed(res))
}

// linkedUser resolves the chat to a user and tells the chat when it is not linked.
func (b *Bot) linkedUser(ctx context.Context, chatID int64) (database.User, bool) {
	user, err := b.repository.GetUserByChatID(ctx, chatID)
	if errors.Is(err, database.ErrNotFound) {
		b.sendMessageOrLogError(chatID, "🔗 This chat is not linked yet. Send /start &lt;your user id&gt;")
		return database.User{}, false
	}
	if err != nil {
		logger.Error("failed to resolve telegram chat", "chat_id", chatID, "error", err)
		b.sendMessageOrLogError(chatID, "❌ Something went wrong, try again later")
		return database.User{}, false
	}
	return user, true
}

func (b *Bot) sendActionError(chatID int64, err error) {
	if ae, ok := services.AsActionError(err); ok {
		b.sendMessageOrLogError(chatID, "⚠️ "+escape(ae.Message))
		return
	}
	logger.Error("telegram action failed", "chat_id", chatID, "error", err)
	b.sendMessageOrLogError(chatID, "❌ Something went wrong, try again later")
}
