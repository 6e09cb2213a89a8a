package telegram

import (
	"fmt"
	"html"
	"strings"

	"streakguard/internal/database"
	"streakguard/internal/logger"
	"streakguard/internal/services"
	"streakguard/internal/utils"
)

const helpText = `🛡 <b>StreakGuard</b>

/start &lt;user id&gt; - link this chat
/inventory - shields, freeze and revive tokens
/habits - current streaks
/help - this message

Risk warnings come with a button to spend a shield on today.`

func (b *Bot) sendMessageOrLogError(chatID int64, message string) {
	if err := b.SendMessage(chatID, message); err != nil {
		logger.Error("failed to send telegram message", "chat_id", chatID, "error", err)
	}
}

func escape(s string) string {
	return html.EscapeString(s)
}

func formatNotification(n services.Notification) string {
	if n.Type != services.NotificationStreakRisk {
		return fmt.Sprintf("🔔 <b>%s</b>\n\n%s", escape(n.Title), escape(n.Body))
	}
	return fmt.Sprintf(
		"⚠️ <b>%s</b>\n\n"+
			"%s <b>%s</b> is not done today.\n"+
			"⏰ %d hours left\n\n"+
			"%s: %d  %s: %d",
		escape(n.Title),
		utils.StreakEmoji(n.CurrentStreak), escape(n.HabitName),
		n.HoursRemaining,
		utils.GetItemName(string(database.ItemStreakShield)), n.Inventory.StreakShields,
		utils.GetItemName(string(database.ItemFreezeToken)), n.Inventory.FreezeTokens,
	)
}

func formatShieldUsed(res services.ShieldResult) string {
	return fmt.Sprintf(
		"🛡 <b>Shield used</b> for %s\n\n"+
			"%s Streak: %d days (best %d)\n"+
			"Shields left: %d",
		utils.FormatDate(res.Tracking.Date),
		utils.StreakEmoji(res.Streak.CurrentStreak), res.Streak.CurrentStreak, res.Streak.LongestStreak,
		res.Inventory.StreakShields,
	)
}

func formatInventory(inv database.Inventory, history []database.ItemUsage) string {
	var message strings.Builder
	message.WriteString("🎒 <b>Inventory</b>\n\n")
	for _, item := range []database.ItemType{database.ItemStreakShield, database.ItemFreezeToken, database.ItemReviveToken} {
		message.WriteString(fmt.Sprintf("%s: %d\n", utils.GetItemName(string(item)), inv.Count(item)))
	}

	if len(history) == 0 {
		return message.String()
	}
	message.WriteString("\n<b>Recently used</b>\n")
	for _, u := range history {
		line := fmt.Sprintf("%s %s", u.UsedAt.Format("2006-01-02 15:04"), utils.GetItemName(string(u.ItemType)))
		switch {
		case u.ProtectedDate != nil:
			line += " for " + utils.FormatDate(*u.ProtectedDate)
		case u.FreezeDays > 0:
			line += fmt.Sprintf(" x%d, %d days", u.Quantity, u.FreezeDays)
		}
		message.WriteString(line + "\n")
	}
	return message.String()
}

func protectionBadge(p database.Protection) string {
	switch p.Kind() {
	case database.ProtectionProtected:
		return " 🛡"
	case database.ProtectionFrozen:
		return " ❄️"
	}
	return ""
}
