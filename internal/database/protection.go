package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"streakguard/internal/utils"
)

type ProtectionKind string

const (
	ProtectionNormal    ProtectionKind = "normal"
	ProtectionProtected ProtectionKind = "protected"
	ProtectionFrozen    ProtectionKind = "frozen"
)

type ProtectedBy string

const (
	ProtectedByManual ProtectedBy = "manual"
	ProtectedByAuto   ProtectedBy = "auto"
)

var ErrAlreadyFrozen = errors.New("habit is already frozen")

// Protection is the habit-level protection state: Normal, Protected{until}
// or Frozen{start,end,daysRemaining}. Fields are only reachable through the
// constructors and transitions below, so a Protection value is always one of
// the three shapes.
type Protection struct {
	kind          ProtectionKind
	until         time.Time
	start         time.Time
	end           time.Time
	daysRemaining int
	by            ProtectedBy
}

func NormalProtection() Protection {
	return Protection{kind: ProtectionNormal}
}

func ProtectedUntil(until time.Time, by ProtectedBy) Protection {
	return Protection{kind: ProtectionProtected, until: until.UTC(), by: by}
}

// FrozenBetween covers the calendar days start..end inclusive.
func FrozenBetween(start, end time.Time, daysRemaining int) Protection {
	return Protection{
		kind:          ProtectionFrozen,
		start:         utils.StartOfDay(start),
		end:           utils.EndOfDay(end),
		daysRemaining: daysRemaining,
	}
}

func (p Protection) Kind() ProtectionKind {
	if p.kind == "" {
		return ProtectionNormal
	}
	return p.kind
}

func (p Protection) Until() (time.Time, bool) {
	return p.until, p.kind == ProtectionProtected
}

func (p Protection) ProtectedBy() ProtectedBy {
	return p.by
}

// Window returns the frozen range; ok is false unless the state is Frozen.
func (p Protection) Window() (start, end time.Time, daysRemaining int, ok bool) {
	if p.kind != ProtectionFrozen {
		return time.Time{}, time.Time{}, 0, false
	}
	return p.start, p.end, p.daysRemaining, true
}

// Covers reports whether the state shields the habit at instant now.
func (p Protection) Covers(now time.Time) bool {
	switch p.kind {
	case ProtectionProtected:
		return !now.After(p.until)
	case ProtectionFrozen:
		return !now.Before(p.start) && !now.After(p.end)
	}
	return false
}

// FreezesDay reports whether a calendar day lies inside the frozen window.
func (p Protection) FreezesDay(day time.Time) bool {
	if p.kind != ProtectionFrozen {
		return false
	}
	d := utils.StartOfDay(day)
	return !d.Before(p.start) && !d.After(p.end)
}

// Shield moves Normal or Protected to Protected until the end of the day after
// date. A Frozen habit stays Frozen: the day-level flag already carries the shield.
func (p Protection) Shield(date time.Time, by ProtectedBy) Protection {
	if p.kind == ProtectionFrozen {
		return p
	}
	return ProtectedUntil(utils.EndOfDay(utils.AddDays(date, 1)), by)
}

// Freeze enters Frozen unless a freeze is still running at now.
func (p Protection) Freeze(now, start, end time.Time, days int) (Protection, error) {
	if p.kind == ProtectionFrozen && !now.After(p.end) {
		return p, ErrAlreadyFrozen
	}
	return FrozenBetween(start, end, days), nil
}

// Expire returns Normal once the Frozen window or Protected deadline has
// passed; changed is false when the state is still live.
func (p Protection) Expire(now time.Time) (next Protection, changed bool) {
	switch p.kind {
	case ProtectionFrozen:
		if now.After(p.end) {
			return NormalProtection(), true
		}
	case ProtectionProtected:
		if now.After(p.until) {
			return NormalProtection(), true
		}
	}
	return p, false
}

// WithDaysRemaining recounts the days left in a Frozen window as of today.
func (p Protection) WithDaysRemaining(today time.Time) Protection {
	if p.kind != ProtectionFrozen {
		return p
	}
	left := utils.DaysBetween(today, p.end) + 1
	if left < 0 {
		left = 0
	}
	if total := utils.DaysBetween(p.start, p.end) + 1; left > total {
		left = total
	}
	p.daysRemaining = left
	return p
}

// protectionRow is the column layout used by the habits table.
type protectionRow struct {
	State         string
	Until         *string
	FrozenStart   *string
	FrozenEnd     *string
	DaysRemaining int
	ProtectedBy   *string
}

func (p Protection) toRow() protectionRow {
	row := protectionRow{State: string(p.Kind())}
	switch p.kind {
	case ProtectionProtected:
		u := p.until.Format(time.RFC3339)
		row.Until = &u
		if p.by != "" {
			by := string(p.by)
			row.ProtectedBy = &by
		}
	case ProtectionFrozen:
		s := p.start.Format(time.RFC3339)
		e := p.end.Format(time.RFC3339)
		row.FrozenStart, row.FrozenEnd = &s, &e
		row.DaysRemaining = p.daysRemaining
	}
	return row
}

func protectionFromRow(row protectionRow) (Protection, error) {
	switch ProtectionKind(row.State) {
	case ProtectionNormal, "":
		return NormalProtection(), nil
	case ProtectionProtected:
		if row.Until == nil {
			return Protection{}, fmt.Errorf("protected state without deadline")
		}
		until, err := time.Parse(time.RFC3339, *row.Until)
		if err != nil {
			return Protection{}, fmt.Errorf("failed to parse protected_until: %w", err)
		}
		by := ProtectedByManual
		if row.ProtectedBy != nil {
			by = ProtectedBy(*row.ProtectedBy)
		}
		return ProtectedUntil(until, by), nil
	case ProtectionFrozen:
		if row.FrozenStart == nil || row.FrozenEnd == nil {
			return Protection{}, fmt.Errorf("frozen state without window")
		}
		start, err := time.Parse(time.RFC3339, *row.FrozenStart)
		if err != nil {
			return Protection{}, fmt.Errorf("failed to parse frozen_start: %w", err)
		}
		end, err := time.Parse(time.RFC3339, *row.FrozenEnd)
		if err != nil {
			return Protection{}, fmt.Errorf("failed to parse frozen_end: %w", err)
		}
		return Protection{
			kind:          ProtectionFrozen,
			start:         start.UTC(),
			end:           end.UTC(),
			daysRemaining: row.DaysRemaining,
		}, nil
	}
	return Protection{}, fmt.Errorf("unknown protection state %q", row.State)
}

type protectionJSON struct {
	State         ProtectionKind `json:"state"`
	Until         *time.Time     `json:"until,omitempty"`
	ProtectedBy   ProtectedBy    `json:"protectedBy,omitempty"`
	FrozenStart   *time.Time     `json:"frozenStart,omitempty"`
	FrozenEnd     *time.Time     `json:"frozenEnd,omitempty"`
	DaysRemaining int            `json:"daysRemaining,omitempty"`
}

func (p Protection) MarshalJSON() ([]byte, error) {
	out := protectionJSON{State: p.Kind()}
	switch p.kind {
	case ProtectionProtected:
		out.Until = &p.until
		out.ProtectedBy = p.by
	case ProtectionFrozen:
		out.FrozenStart, out.FrozenEnd = &p.start, &p.end
		out.DaysRemaining = p.daysRemaining
	}
	return json.Marshal(out)
}
