package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tracker owns the live DailyLog for each date one user touches during a
// request. It reads through to the Store on first access; mutations run inside
// the Store against the latest persisted state, never against the cached copy.
// A Tracker is not safe for concurrent use; handlers build one per request.
type Tracker struct {
	store  Store
	userID int
	logs   map[string]*DailyLog
	now    func() time.Time
}

func newTracker(store Store, userID int) *Tracker {
	return &Tracker{
		store:  store,
		userID: userID,
		logs:   make(map[string]*DailyLog),
		now:    time.Now,
	}
}

// getLog returns the log for date, loading it from the store the first time.
// A date with nothing stored yields a zeroed log that is not persisted until
// the first mutation.
func (t *Tracker) getLog(ctx context.Context, date string) (*DailyLog, error) {
	if l, ok := t.logs[date]; ok {
		return l, nil
	}
	l, err := t.store.GetDailyLog(ctx, t.userID, date)
	if errors.Is(err, errNotFound) {
		l = newDailyLog(date)
	} else if err != nil {
		return nil, fmt.Errorf("load log %s: %w", date, err)
	}
	t.logs[date] = l
	return l, nil
}

// mutate hands fn to the store, which applies it to the latest persisted log
// for date under a lock. The cached log is replaced only after the write
// commits, so a failed write leaves it unchanged.
func (t *Tracker) mutate(ctx context.Context, date string, fn logUpdate) (*DailyLog, error) {
	l, err := t.store.UpdateDailyLog(ctx, t.userID, date, fn)
	if err != nil {
		return nil, fmt.Errorf("save log %s: %w", date, err)
	}
	t.logs[date] = l
	return l, nil
}

// addFood logs one food entry into slot. The entry gets a fresh id and
// creation time; its position is assigned by the log.
func (t *Tracker) addFood(ctx context.Context, date string, slot MealSlot, e FoodEntry) (*DailyLog, error) {
	if !slot.valid() {
		return nil, errInvalidSlot
	}
	e.ID = uuid.NewString()
	created := t.now().UTC()
	e.CreatedAt = &created
	return t.mutate(ctx, date, func(l *DailyLog) (*addedFood, error) {
		if err := l.addFood(slot, e); err != nil {
			return nil, err
		}
		entries := l.Meals[slot]
		return &addedFood{Slot: slot, Entry: entries[len(entries)-1]}, nil
	})
}

func (t *Tracker) recordExercise(ctx context.Context, date string, calories int) (*DailyLog, error) {
	return t.mutate(ctx, date, func(l *DailyLog) (*addedFood, error) {
		l.recordExercise(calories)
		return nil, nil
	})
}

func (t *Tracker) logSleepSession(ctx context.Context, date string, minutes float64) (*DailyLog, error) {
	return t.mutate(ctx, date, func(l *DailyLog) (*addedFood, error) {
		l.logSleepSession(minutes)
		return nil, nil
	})
}

func (t *Tracker) setSleepHours(ctx context.Context, date string, hours float64) (*DailyLog, error) {
	return t.mutate(ctx, date, func(l *DailyLog) (*addedFood, error) {
		l.setSleepHours(hours)
		return nil, nil
	})
}
