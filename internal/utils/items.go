package utils

// Display helpers for inventory items and streak badges
func GetItemName(itemType string) string {
	switch itemType {
	case "streak_shield":
		return "🛡 Shield"
	case "freeze_token":
		return "❄️ Freeze token"
	case "revive_token":
		return "❤️‍🩹 Revive token"
	default:
		return itemType
	}
}

func StreakEmoji(streak int) string {
	switch {
	case streak >= 100:
		return "💎"
	case streak >= 30:
		return "🏆"
	case streak >= 7:
		return "🔥"
	default:
		return "✨"
	}
}
