package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"streakguard/internal/database"
	"streakguard/internal/logger"
	"streakguard/internal/utils"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// /start <userId> links this chat to a user so risk warnings reach it.
func (b *Bot) handleStart(msg *tgbotapi.Message) {
	ctx := context.Background()
	chatID := msg.Chat.ID

	userID := strings.TrimSpace(msg.CommandArguments())
	if userID == "" {
		if user, err := b.repository.GetUserByChatID(ctx, chatID); err == nil {
			b.sendMessageOrLogError(chatID, fmt.Sprintf("👋 Hi %s! This chat is linked.\n\n%s", escape(user.Name), helpText))
			return
		}
		b.sendMessageOrLogError(chatID, "🔗 Send /start &lt;your user id&gt; to link this chat.")
		return
	}

	err := b.repository.SetTelegramChatID(ctx, userID, chatID)
	if errors.Is(err, database.ErrNotFound) {
		b.sendMessageOrLogError(chatID, "❌ Unknown user id")
		return
	}
	if err != nil {
		logger.Error("failed to link telegram chat", "user_id", userID, "chat_id", chatID, "error", err)
		b.sendMessageOrLogError(chatID, "❌ Could not link this chat")
		return
	}

	logger.Info("telegram chat linked", "user_id", userID, "chat_id", chatID)
	b.sendMessageOrLogError(chatID, "✅ Chat linked! You will get streak warnings here.\n\n"+helpText)
}

func (b *Bot) handleInventory(msg *tgbotapi.Message) {
	ctx := context.Background()
	chatID := msg.Chat.ID
	user, ok := b.linkedUser(ctx, chatID)
	if !ok {
		return
	}

	history, err := b.services.Inventory.History(ctx, user.ID, 5)
	if err != nil {
		logger.Error("failed to load usage history", "user_id", user.ID, "error", err)
		b.sendMessageOrLogError(chatID, "❌ Could not load inventory")
		return
	}
	b.sendMessageOrLogError(chatID, formatInventory(user.Inventory, history))
}

func (b *Bot) handleHabits(msg *tgbotapi.Message) {
	ctx := context.Background()
	chatID := msg.Chat.ID
	user, ok := b.linkedUser(ctx, chatID)
	if !ok {
		return
	}

	habits, err := b.repository.ListActiveHabits(ctx, user.ID)
	if err != nil {
		logger.Error("failed to list habits", "user_id", user.ID, "error", err)
		b.sendMessageOrLogError(chatID, "❌ Could not load habits")
		return
	}
	if len(habits) == 0 {
		b.sendMessageOrLogError(chatID, "📭 No active habits")
		return
	}

	var message strings.Builder
	message.WriteString("📋 <b>Your habits</b>\n\n")
	for _, h := range habits {
		message.WriteString(fmt.Sprintf("%s <b>%s</b> %d days (best %d)%s\n",
			utils.StreakEmoji(h.CurrentStreak), escape(h.Name), h.CurrentStreak, h.LongestStreak,
			protectionBadge(h.Protection)))
	}
	b.sendMessageOrLogError(chatID, message.String())
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) {
	b.sendMessageOrLogError(msg.Chat.ID, helpText)
}
