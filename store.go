package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// errNotFound is returned by Store lookups that match no row.
var errNotFound = errors.New("not found")

// Store is the persistence collaborator: users, one profile per user, and one
// daily log per (user, date). pgStore is the production implementation.
type Store interface {
	UserByToken(ctx context.Context, token string) (int, error)
	UserByUsername(ctx context.Context, username string) (user, error)
	GetProfile(ctx context.Context, userID int) (Profile, error)
	SaveProfile(ctx context.Context, p Profile) (Profile, error)
	GetDailyLog(ctx context.Context, userID int, date string) (*DailyLog, error)
	// UpdateDailyLog loads the (user, date) log under a lock, applies fn to it
	// and persists the result atomically. Updates to the same day serialise, so
	// fn always sees every earlier write. When fn returns an addedFood, that
	// entry is inserted. The updated log is returned.
	UpdateDailyLog(ctx context.Context, userID int, date string, fn logUpdate) (*DailyLog, error)
	ListDailyLogs(ctx context.Context, userID int, start, end string) ([]dailyLogRow, error)
	// EarliestLogDate returns the first date with a saved log, or nil.
	EarliestLogDate(ctx context.Context, userID int) (*string, error)
}

// addedFood identifies the entry appended by the mutation being persisted.
type addedFood struct {
	Slot  MealSlot
	Entry FoodEntry
}

// logUpdate mutates a freshly loaded log. It reports the food entry it
// appended, if any, so the store can insert just that row.
type logUpdate func(l *DailyLog) (*addedFood, error)

/* ─── Persistence shape ──────────────────────────────────────────────── */

// dailyLogRow maps to daily_logs. The per-slot calories and nutrient sums are
// the cached aggregate; food_entries rows are the source of truth.
type dailyLogRow struct {
	UserID    int      `db:"user_id"`
	Date      DateOnly `db:"date"`
	Breakfast int      `db:"breakfast"`
	Lunch     int      `db:"lunch"`
	Dinner    int      `db:"dinner"`
	Snack     int      `db:"snack"`
	Exercise  int      `db:"exercise"`
	Sleep     float64  `db:"sleep"`
	Nutrients
}

// foodEntryRow maps to food_entries.
type foodEntryRow struct {
	ID        string     `db:"id"`
	UserID    int        `db:"user_id"`
	Date      DateOnly   `db:"date"`
	Slot      string     `db:"slot"`
	Position  int        `db:"position"`
	Name      string     `db:"name"`
	Calories  int        `db:"calories"`
	Thumbnail *string    `db:"thumbnail"`
	IsAI      bool       `db:"is_ai"`
	CreatedAt *time.Time `db:"created_at"`
	Nutrients
}

// logToRows converts a DailyLog into its persistence shape.
func logToRows(userID int, l *DailyLog) (dailyLogRow, []foodEntryRow, error) {
	d, err := time.Parse(dateLayout, l.Date)
	if err != nil {
		return dailyLogRow{}, nil, fmt.Errorf("parse log date: %w", err)
	}
	row := dailyLogRow{
		UserID:    userID,
		Date:      DateOnly{d},
		Breakfast: l.SlotCalories[SlotBreakfast],
		Lunch:     l.SlotCalories[SlotLunch],
		Dinner:    l.SlotCalories[SlotDinner],
		Snack:     l.SlotCalories[SlotSnack],
		Exercise:  l.ExerciseCalories,
		Sleep:     l.SleepHours,
		Nutrients: l.Totals,
	}
	var entries []foodEntryRow
	for _, s := range mealSlots {
		for _, e := range l.Meals[s] {
			entries = append(entries, entryToRow(userID, row.Date, s, e))
		}
	}
	return row, entries, nil
}

func entryToRow(userID int, date DateOnly, slot MealSlot, e FoodEntry) foodEntryRow {
	return foodEntryRow{
		ID:        e.ID,
		UserID:    userID,
		Date:      date,
		Slot:      string(slot),
		Position:  e.Position,
		Name:      e.Name,
		Calories:  e.Calories,
		Thumbnail: e.Thumbnail,
		IsAI:      e.IsAI,
		CreatedAt: e.CreatedAt,
		Nutrients: e.Nutrients,
	}
}

// logFromRows rebuilds a DailyLog. Entries are appended in the order given,
// so callers pass them sorted by (slot, position). Totals are recomputed from
// the entries rather than trusted from the row.
func logFromRows(date string, row *dailyLogRow, entries []foodEntryRow) (*DailyLog, error) {
	l := newDailyLog(date)
	for _, r := range entries {
		slot := MealSlot(r.Slot)
		if !slot.valid() {
			return nil, fmt.Errorf("food entry %s: %w", r.ID, errInvalidSlot)
		}
		l.Meals[slot] = append(l.Meals[slot], FoodEntry{
			ID:        r.ID,
			Name:      r.Name,
			Calories:  r.Calories,
			Nutrients: r.Nutrients,
			Thumbnail: r.Thumbnail,
			IsAI:      r.IsAI,
			Position:  r.Position,
			CreatedAt: r.CreatedAt,
		})
	}
	l.recompute()
	if row != nil {
		l.ExerciseCalories = row.Exercise
		l.SleepHours = row.Sleep
	}
	return l, nil
}

/* ─── Postgres implementation ────────────────────────────────────────── */

// pgStore implements Store on a pgx connection pool.
type pgStore struct {
	db *pgxpool.Pool
}

func newPGStore(db *pgxpool.Pool) *pgStore {
	return &pgStore{db: db}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// queryOne runs a query and scans the first row into T using RowToStructByName.
// pgx.ErrNoRows is translated to errNotFound.
func queryOne[T any](ctx context.Context, q querier, sql string, args pgx.NamedArgs) (T, error) {
	var zero T
	rows, err := q.Query(ctx, sql, args)
	if err != nil {
		return zero, fmt.Errorf("query: %w", err)
	}
	result, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, errNotFound
	}
	if err != nil {
		return zero, fmt.Errorf("scan: %w", err)
	}
	return result, nil
}

// queryMany runs a query and scans all rows into []T using RowToStructByName.
func queryMany[T any](ctx context.Context, q querier, sql string, args pgx.NamedArgs) ([]T, error) {
	rows, err := q.Query(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	results, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return results, nil
}

func (s *pgStore) UserByToken(ctx context.Context, token string) (int, error) {
	var userID int
	err := s.db.QueryRow(ctx, "SELECT id FROM users WHERE auth_token = $1", token).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, errNotFound
	}
	return userID, err
}

func (s *pgStore) UserByUsername(ctx context.Context, username string) (user, error) {
	return queryOne[user](ctx, s.db,
		"SELECT id, username, email, auth_token, password, created_at FROM users WHERE username = @username",
		pgx.NamedArgs{"username": username})
}

const profileColumns = `user_id, name, height_cm, weight_kg, target_weight_kg, date_of_birth,
	gender, activity_level, goal, health_purpose, medical_conditions, is_onboarded, member_since`

func (s *pgStore) GetProfile(ctx context.Context, userID int) (Profile, error) {
	return queryOne[Profile](ctx, s.db,
		"SELECT "+profileColumns+" FROM profiles WHERE user_id = @userID",
		pgx.NamedArgs{"userID": userID})
}

// SaveProfile upserts the whole profile row; last writer wins.
func (s *pgStore) SaveProfile(ctx context.Context, p Profile) (Profile, error) {
	var dob *string
	if p.DateOfBirth != nil {
		v := p.DateOfBirth.Format(dateLayout)
		dob = &v
	}
	conditions := p.MedicalConditions
	if conditions == nil {
		conditions = []string{}
	}
	return queryOne[Profile](ctx, s.db,
		`INSERT INTO profiles (user_id, name, height_cm, weight_kg, target_weight_kg, date_of_birth,
			gender, activity_level, goal, health_purpose, medical_conditions, is_onboarded)
		 VALUES (@userID, @name, @heightCM, @weightKG, @targetWeightKG, @dateOfBirth,
			@gender, @activityLevel, @goal, @healthPurpose, @medicalConditions, @isOnboarded)
		 ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name,
			height_cm = EXCLUDED.height_cm,
			weight_kg = EXCLUDED.weight_kg,
			target_weight_kg = EXCLUDED.target_weight_kg,
			date_of_birth = EXCLUDED.date_of_birth,
			gender = EXCLUDED.gender,
			activity_level = EXCLUDED.activity_level,
			goal = EXCLUDED.goal,
			health_purpose = EXCLUDED.health_purpose,
			medical_conditions = EXCLUDED.medical_conditions,
			is_onboarded = EXCLUDED.is_onboarded,
			updated_at = now()
		 RETURNING `+profileColumns,
		pgx.NamedArgs{
			"userID": p.UserID, "name": p.Name, "heightCM": p.HeightCM, "weightKG": p.WeightKG,
			"targetWeightKG": p.TargetWeightKG, "dateOfBirth": dob, "gender": p.Gender,
			"activityLevel": p.ActivityLevel, "goal": p.Goal, "healthPurpose": p.HealthPurpose,
			"medicalConditions": conditions, "isOnboarded": p.IsOnboarded,
		})
}

const foodEntryColumns = `id::text AS id, user_id, date, slot, position, name, calories, thumbnail, is_ai, created_at,
	protein_g, carbs_g, fat_g, fiber_g, sugar_g, saturated_fat_g, polyunsaturated_fat_g,
	monounsaturated_fat_g, cholesterol_mg, sodium_mg, potassium_mg`

const dailyLogColumns = `user_id, date, breakfast, lunch, dinner, snack, exercise, sleep,
	protein_g, carbs_g, fat_g, fiber_g, sugar_g, saturated_fat_g, polyunsaturated_fat_g,
	monounsaturated_fat_g, cholesterol_mg, sodium_mg, potassium_mg`

// GetDailyLog returns errNotFound when neither an aggregate row nor any food
// entry exists for the date.
func (s *pgStore) GetDailyLog(ctx context.Context, userID int, date string) (*DailyLog, error) {
	args := pgx.NamedArgs{"userID": userID, "date": date}
	row, err := queryOne[dailyLogRow](ctx, s.db,
		"SELECT "+dailyLogColumns+" FROM daily_logs WHERE user_id = @userID AND date = @date", args)
	if err != nil && !errors.Is(err, errNotFound) {
		return nil, fmt.Errorf("get daily log: %w", err)
	}
	rowPtr := &row
	if errors.Is(err, errNotFound) {
		rowPtr = nil
	}

	entries, err := foodEntries(ctx, s.db, args)
	if err != nil {
		return nil, err
	}
	if rowPtr == nil && len(entries) == 0 {
		return nil, errNotFound
	}
	return logFromRows(date, rowPtr, entries)
}

func foodEntries(ctx context.Context, q querier, args pgx.NamedArgs) ([]foodEntryRow, error) {
	entries, err := queryMany[foodEntryRow](ctx, q,
		"SELECT "+foodEntryColumns+` FROM food_entries
		 WHERE user_id = @userID AND date = @date
		 ORDER BY slot, position`, args)
	if err != nil {
		return nil, fmt.Errorf("get food entries: %w", err)
	}
	return entries, nil
}

// UpdateDailyLog runs the whole read-modify-write in one transaction. The
// aggregate row is created if missing and then locked with FOR UPDATE, so a
// second writer for the same day blocks until the first commits and then
// reads its entries and totals.
func (s *pgStore) UpdateDailyLog(ctx context.Context, userID int, date string, fn logUpdate) (*DailyLog, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("parse log date: %w", err)
	}
	args := pgx.NamedArgs{"userID": userID, "date": date}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	if _, err := tx.Exec(ctx,
		`INSERT INTO daily_logs (user_id, date) VALUES (@userID, @date)
		 ON CONFLICT (user_id, date) DO NOTHING`, args); err != nil {
		return nil, fmt.Errorf("create daily log: %w", err)
	}
	row, err := queryOne[dailyLogRow](ctx, tx,
		"SELECT "+dailyLogColumns+" FROM daily_logs WHERE user_id = @userID AND date = @date FOR UPDATE", args)
	if err != nil {
		return nil, fmt.Errorf("lock daily log: %w", err)
	}
	entries, err := foodEntries(ctx, tx, args)
	if err != nil {
		return nil, err
	}
	l, err := logFromRows(date, &row, entries)
	if err != nil {
		return nil, err
	}

	added, err := fn(l)
	if err != nil {
		return nil, err
	}
	row, _, err = logToRows(userID, l)
	if err != nil {
		return nil, err
	}

	if added != nil {
		e := entryToRow(userID, row.Date, added.Slot, added.Entry)
		if _, err := tx.Exec(ctx,
			`INSERT INTO food_entries (id, user_id, date, slot, position, name, calories, thumbnail, is_ai, created_at,
				protein_g, carbs_g, fat_g, fiber_g, sugar_g, saturated_fat_g, polyunsaturated_fat_g,
				monounsaturated_fat_g, cholesterol_mg, sodium_mg, potassium_mg)
			 VALUES (@id, @userID, @date, @slot, @position, @name, @calories, @thumbnail, @isAI,
				COALESCE(@createdAt::timestamptz, now()),
				@protein, @carbs, @fat, @fiber, @sugar, @saturatedFat, @polyFat,
				@monoFat, @cholesterol, @sodium, @potassium)`,
			pgx.NamedArgs{
				"id": e.ID, "userID": userID, "date": date, "slot": e.Slot, "position": e.Position,
				"name": e.Name, "calories": e.Calories, "thumbnail": e.Thumbnail, "isAI": e.IsAI,
				"createdAt": e.CreatedAt,
				"protein": e.ProteinG, "carbs": e.CarbsG, "fat": e.FatG, "fiber": e.FiberG,
				"sugar": e.SugarG, "saturatedFat": e.SaturatedFatG, "polyFat": e.PolyunsaturatedFatG,
				"monoFat": e.MonounsaturatedFatG, "cholesterol": e.CholesterolMg,
				"sodium": e.SodiumMg, "potassium": e.PotassiumMg,
			}); err != nil {
			return nil, fmt.Errorf("insert food entry: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE daily_logs SET
			breakfast = @breakfast, lunch = @lunch, dinner = @dinner, snack = @snack,
			exercise = @exercise, sleep = @sleep,
			protein_g = @protein, carbs_g = @carbs, fat_g = @fat, fiber_g = @fiber, sugar_g = @sugar,
			saturated_fat_g = @saturatedFat, polyunsaturated_fat_g = @polyFat,
			monounsaturated_fat_g = @monoFat, cholesterol_mg = @cholesterol,
			sodium_mg = @sodium, potassium_mg = @potassium,
			updated_at = now()
		 WHERE user_id = @userID AND date = @date`,
		pgx.NamedArgs{
			"userID": userID, "date": date,
			"breakfast": row.Breakfast, "lunch": row.Lunch, "dinner": row.Dinner, "snack": row.Snack,
			"exercise": row.Exercise, "sleep": row.Sleep,
			"protein": row.ProteinG, "carbs": row.CarbsG, "fat": row.FatG, "fiber": row.FiberG,
			"sugar": row.SugarG, "saturatedFat": row.SaturatedFatG, "polyFat": row.PolyunsaturatedFatG,
			"monoFat": row.MonounsaturatedFatG, "cholesterol": row.CholesterolMg,
			"sodium": row.SodiumMg, "potassium": row.PotassiumMg,
		}); err != nil {
		return nil, fmt.Errorf("update daily log: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return l, nil
}

// ListDailyLogs returns aggregate rows in [start, end], oldest first. Days
// with no row are omitted; gap-filling is the client's job.
func (s *pgStore) ListDailyLogs(ctx context.Context, userID int, start, end string) ([]dailyLogRow, error) {
	rows, err := queryMany[dailyLogRow](ctx, s.db,
		"SELECT "+dailyLogColumns+` FROM daily_logs
		 WHERE user_id = @userID AND date >= @start AND date <= @end
		 ORDER BY date ASC`,
		pgx.NamedArgs{"userID": userID, "start": start, "end": end})
	if err != nil {
		return nil, fmt.Errorf("list daily logs: %w", err)
	}
	return rows, nil
}

func (s *pgStore) EarliestLogDate(ctx context.Context, userID int) (*string, error) {
	// SELECT MIN returns a nullable date; *string handles the NULL case.
	var date *string
	err := s.db.QueryRow(ctx,
		`SELECT TO_CHAR(MIN(date), 'YYYY-MM-DD') FROM daily_logs WHERE user_id = $1`,
		userID).Scan(&date)
	if err != nil {
		return nil, fmt.Errorf("earliest log date: %w", err)
	}
	return date, nil
}
