package telegram

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streakguard/internal/database"
	"streakguard/internal/services"
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.MessageConfig
	requests int
	updates  chan tgbotapi.Update
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {}

func (f *fakeAPI) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

func setupBot(t *testing.T) (*Bot, *fakeAPI, *database.Repository) {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := services.NewFakeClock(time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC))
	sm := services.NewServiceManager(db, services.Options{Clock: clock})
	repo := sm.Repository()
	ctx := context.Background()

	require.NoError(t, repo.CreateUser(ctx, database.User{ID: "user-1", Name: "Ada",
		Inventory: database.Inventory{StreakShields: 2, FreezeTokens: 1}}))
	habit, err := database.NewHabit("habit-1", "user-1", "Read", "learning", "daily", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, repo.CreateHabit(ctx, habit))

	api := &fakeAPI{updates: make(chan tgbotapi.Update, 4)}
	return newBot(api, "streakguard_bot", sm), api, repo
}

func command(chatID int64, text, cmd string) *tgbotapi.Message {
	return &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}
}

func TestStartLinksChat(t *testing.T) {
	bot, api, repo := setupBot(t)

	bot.handleMessage(command(42, "/start user-1", "/start"))
	assert.Contains(t, api.last(t).Text, "Chat linked")

	chatID, err := repo.GetTelegramChatID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), chatID)

	bot.handleMessage(command(43, "/start ghost", "/start"))
	assert.Contains(t, api.last(t).Text, "Unknown user id")
}

func TestStartRelinksChatToAnotherUser(t *testing.T) {
	bot, api, repo := setupBot(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateUser(ctx, database.User{ID: "user-2", Name: "Grace",
		Inventory: database.Inventory{StreakShields: 5}}))
	habit, err := database.NewHabit("habit-2", "user-2", "Swim", "fitness", "daily", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, repo.CreateHabit(ctx, habit))

	bot.handleMessage(command(42, "/start user-1", "/start"))
	bot.handleMessage(command(42, "/start user-2", "/start"))
	assert.Contains(t, api.last(t).Text, "Chat linked")

	_, err = repo.GetTelegramChatID(ctx, "user-1")
	assert.ErrorIs(t, err, database.ErrNotFound)

	bot.handleMessage(command(42, "/inventory", "/inventory"))
	assert.Contains(t, api.last(t).Text, "Shield: 5")

	callback := &tgbotapi.CallbackQuery{
		ID:      "cb-2",
		Data:    "shield_habit-2",
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 42}},
	}
	bot.handleUpdate(ctx, tgbotapi.Update{CallbackQuery: callback})
	assert.Contains(t, api.last(t).Text, "Shield used")

	inv, err := repo.GetInventory(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, 4, inv.StreakShields)
}

func TestCommandsRequireLinkedChat(t *testing.T) {
	bot, api, _ := setupBot(t)

	bot.handleMessage(command(7, "/inventory", "/inventory"))
	assert.Contains(t, api.last(t).Text, "not linked")

	bot.handleMessage(command(7, "/dance", "/dance"))
	assert.Contains(t, api.last(t).Text, "Unknown command")
}

func TestInventoryAndHabitsCommands(t *testing.T) {
	bot, api, repo := setupBot(t)
	require.NoError(t, repo.SetTelegramChatID(context.Background(), "user-1", 42))

	bot.handleMessage(command(42, "/inventory", "/inventory"))
	msg := api.last(t)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Contains(t, msg.Text, "Shield: 2")
	assert.Contains(t, msg.Text, "Freeze token: 1")

	bot.handleMessage(command(42, "/habits", "/habits"))
	assert.Contains(t, api.last(t).Text, "<b>Read</b> 0 days")
}

func TestSendToUserAttachesShieldButton(t *testing.T) {
	bot, api, repo := setupBot(t)
	ctx := context.Background()

	n := services.Notification{
		Type:           services.NotificationStreakRisk,
		Title:          "Your 3-day streak is at risk",
		HabitID:        "habit-1",
		HabitName:      "Read",
		CurrentStreak:  3,
		HoursRemaining: 4,
		Inventory:      database.Inventory{StreakShields: 2},
	}
	err := bot.SendToUser(ctx, "user-1", n)
	assert.ErrorIs(t, err, ErrChatNotLinked)

	require.NoError(t, repo.SetTelegramChatID(ctx, "user-1", 42))
	require.NoError(t, bot.SendToUser(ctx, "user-1", n))

	msg := api.last(t)
	assert.Contains(t, msg.Text, "4 hours left")
	keyboard, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.NotNil(t, keyboard.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "shield_habit-1", *keyboard.InlineKeyboard[0][0].CallbackData)
}

func TestShieldCallbackUsesShield(t *testing.T) {
	bot, api, repo := setupBot(t)
	ctx := context.Background()
	require.NoError(t, repo.SetTelegramChatID(ctx, "user-1", 42))

	callback := &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		Data:    "shield_habit-1",
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 42}},
	}
	bot.handleUpdate(ctx, tgbotapi.Update{CallbackQuery: callback})
	assert.Contains(t, api.last(t).Text, "Shield used")
	assert.Equal(t, 1, api.requests)

	inv, err := repo.GetInventory(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, inv.StreakShields)

	bot.handleUpdate(ctx, tgbotapi.Update{CallbackQuery: callback})
	assert.Contains(t, api.last(t).Text, "already protected")
}

func TestStartStopsOnContextCancel(t *testing.T) {
	bot, api, _ := setupBot(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		bot.Start(ctx)
		close(done)
	}()
	api.updates <- tgbotapi.Update{Message: command(9, "/help", "/help")}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not stop")
	}
}
