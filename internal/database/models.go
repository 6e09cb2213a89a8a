package database

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"streakguard/internal/utils"
)

type TrackingStatus string

const (
	StatusCompleted TrackingStatus = "completed"
	StatusFailed    TrackingStatus = "failed"
	StatusSkipped   TrackingStatus = "skipped"
	StatusFrozen    TrackingStatus = "frozen"
)

func ParseTrackingStatus(s string) (TrackingStatus, error) {
	switch st := TrackingStatus(s); st {
	case StatusCompleted, StatusFailed, StatusSkipped, StatusFrozen:
		return st, nil
	}
	return "", fmt.Errorf("unknown tracking status %q", s)
}

type Category string

const (
	CategoryHealth       Category = "health"
	CategoryFitness      Category = "fitness"
	CategoryMindfulness  Category = "mindfulness"
	CategoryLearning     Category = "learning"
	CategoryProductivity Category = "productivity"
	CategorySocial       Category = "social"
	CategoryOther        Category = "other"
)

func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryHealth, CategoryFitness, CategoryMindfulness, CategoryLearning,
		CategoryProductivity, CategorySocial, CategoryOther:
		return c, nil
	}
	return "", fmt.Errorf("unknown habit category %q", s)
}

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(s); f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return f, nil
	}
	return "", fmt.Errorf("unknown habit frequency %q", s)
}

type ItemType string

const (
	ItemStreakShield ItemType = "streak_shield"
	ItemFreezeToken  ItemType = "freeze_token"
	ItemReviveToken  ItemType = "revive_token"
)

func ParseItemType(s string) (ItemType, error) {
	switch it := ItemType(s); it {
	case ItemStreakShield, ItemFreezeToken, ItemReviveToken:
		return it, nil
	}
	return "", fmt.Errorf("unknown item type %q", s)
}

// column maps an item to its users column. Only these three names ever reach SQL.
func (it ItemType) column() (string, error) {
	switch it {
	case ItemStreakShield:
		return "streak_shields", nil
	case ItemFreezeToken:
		return "freeze_tokens", nil
	case ItemReviveToken:
		return "revive_tokens", nil
	}
	return "", fmt.Errorf("unknown item type %q", string(it))
}

type Habit struct {
	ID                string     `json:"id"`
	UserID            string     `json:"userId"`
	Name              string     `json:"name"`
	Category          Category   `json:"category"`
	Frequency         Frequency  `json:"frequency"`
	Active            bool       `json:"active"`
	CurrentStreak     int        `json:"currentStreak"`
	LongestStreak     int        `json:"longestStreak"`
	TotalCompletions  int        `json:"totalCompletions"`
	LastCompletedDate *time.Time `json:"lastCompletedDate,omitempty"`
	Protection        Protection `json:"protection"`
	Warning           Warning    `json:"warning"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// NewHabit validates category and frequency up front so invalid values never
// reach the database.
func NewHabit(id, userID, name, category, frequency string, createdAt time.Time) (Habit, error) {
	if id == "" || userID == "" {
		return Habit{}, fmt.Errorf("habit id and user id are required")
	}
	c, err := ParseCategory(category)
	if err != nil {
		return Habit{}, err
	}
	f, err := ParseFrequency(frequency)
	if err != nil {
		return Habit{}, err
	}
	return Habit{
		ID:         id,
		UserID:     userID,
		Name:       name,
		Category:   c,
		Frequency:  f,
		Active:     true,
		Protection: NormalProtection(),
		CreatedAt:  createdAt.UTC(),
	}, nil
}

// Warning tracks the at-most-one risk warning per habit per day.
type Warning struct {
	Date *time.Time `json:"date,omitempty"`
	Sent bool       `json:"sent"`
}

func (w Warning) SentOn(day time.Time) bool {
	return w.Sent && w.Date != nil && w.Date.Equal(utils.StartOfDay(day))
}

type DailyTrackingRecord struct {
	ID          int64          `json:"id"`
	UserID      string         `json:"userId"`
	HabitID     string         `json:"habitId"`
	Date        time.Time      `json:"date"`
	Status      TrackingStatus `json:"status"`
	IsProtected bool           `json:"isProtected"`
	Notes       string         `json:"notes,omitempty"`
	Mood        string         `json:"mood,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func NewTrackingRecord(userID, habitID string, date time.Time, status string) (DailyTrackingRecord, error) {
	if userID == "" || habitID == "" {
		return DailyTrackingRecord{}, fmt.Errorf("user id and habit id are required")
	}
	st, err := ParseTrackingStatus(status)
	if err != nil {
		return DailyTrackingRecord{}, err
	}
	return DailyTrackingRecord{
		UserID:  userID,
		HabitID: habitID,
		Date:    utils.StartOfDay(date),
		Status:  st,
	}, nil
}

// Passes reports whether the day keeps a streak alive.
func (r DailyTrackingRecord) Passes() bool {
	return r.Status == StatusCompleted || r.Status == StatusFrozen || r.IsProtected
}

type Inventory struct {
	StreakShields int `json:"streakShields"`
	FreezeTokens  int `json:"freezeTokens"`
	ReviveTokens  int `json:"reviveTokens"`
}

func (inv Inventory) Count(item ItemType) int {
	switch item {
	case ItemStreakShield:
		return inv.StreakShields
	case ItemFreezeToken:
		return inv.FreezeTokens
	case ItemReviveToken:
		return inv.ReviveTokens
	}
	return 0
}

type ItemUsage struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	ItemType      ItemType   `json:"itemType"`
	HabitID       string     `json:"habitId"`
	Quantity      int        `json:"quantity"`
	UsedAt        time.Time  `json:"usedAt"`
	ProtectedDate *time.Time `json:"protectedDate,omitempty"`
	FreezeDays    int        `json:"freezeDays,omitempty"`
	StreakSaved   int        `json:"streakSaved,omitempty"`
}

type ProtectionSettings struct {
	Enabled                bool   `json:"enabled"`
	AutoUseShield          bool   `json:"autoUseShield"`
	MinStreakToAutoProtect int    `json:"minStreakToAutoProtect" validate:"min=0,max=365"`
	NotificationTime       string `json:"notificationTime" validate:"required,hhmm"`
}

func DefaultProtectionSettings() ProtectionSettings {
	return ProtectionSettings{
		Enabled:                true,
		MinStreakToAutoProtect: 3,
		NotificationTime:       "20:00",
	}
}

var settingsValidate *validator.Validate

func init() {
	settingsValidate = validator.New()
	_ = settingsValidate.RegisterValidation("hhmm", validateHHMM)
}

func validateHHMM(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) != 5 {
		return false
	}
	_, _, err := utils.ParseClock(s)
	return err == nil
}

func (s ProtectionSettings) Validate() error {
	return settingsValidate.Struct(s)
}

type User struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	TelegramChatID *int64             `json:"telegramChatId,omitempty"`
	Inventory      Inventory          `json:"inventory"`
	Settings       ProtectionSettings `json:"protectionSettings"`
	CreatedAt      time.Time          `json:"createdAt"`
}

type Achievement struct {
	UserID     string    `json:"userId"`
	HabitID    string    `json:"habitId"`
	Milestone  int       `json:"milestone"`
	UnlockedAt time.Time `json:"unlockedAt"`
}

type StatusCounts struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Frozen    int `json:"frozen"`
	Protected int `json:"protected"`
}
