package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertItinerarySQL = `INSERT INTO itineraries (
        query_id,
        provider,
        dedupe_key,
        origin,
        destination,
        flight_date,
        url,
        deep_link,
        price,
        currency,
        price_minor,
        confidence,
        source_domain
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,1,$12
    )
    ON CONFLICT (dedupe_key) DO UPDATE
    SET
        price        = EXCLUDED.price,
        currency     = EXCLUDED.currency,
        price_minor  = EXCLUDED.price_minor,
        url          = EXCLUDED.url,
        deep_link    = EXCLUDED.deep_link,
        confidence   = LEAST(itineraries.confidence + 1, $13),
        updated_at   = now()
    RETURNING id, query_id, provider, dedupe_key, origin, destination, flight_date,
              url, deep_link, price, currency, price_minor, confidence,
              source_domain, created_at, updated_at;`

	listItinerariesByRouteSQL = `SELECT
        id, query_id, provider, dedupe_key, origin, destination, flight_date,
        url, deep_link, price, currency, price_minor, confidence,
        source_domain, created_at, updated_at
    FROM itineraries
    WHERE origin = $1
      AND destination = $2
    ORDER BY updated_at DESC
    LIMIT $3;`

	listRecentItinerariesSQL = `SELECT
        id, query_id, provider, dedupe_key, origin, destination, flight_date,
        url, deep_link, price, currency, price_minor, confidence,
        source_domain, created_at, updated_at
    FROM itineraries
    ORDER BY updated_at DESC
    LIMIT $1;`

	listItineraryHistorySQL = `SELECT
        id, query_id, provider, dedupe_key, origin, destination, flight_date,
        url, deep_link, price, currency, price_minor, confidence,
        source_domain, created_at, updated_at
    FROM itineraries
    WHERE origin = $1
      AND destination = $2
      AND updated_at >= $3
      AND updated_at < $4
    ORDER BY updated_at;`

	countItinerariesSQL = `SELECT COUNT(*) FROM itineraries;`

	insertAlertSQL = `INSERT INTO alerts (
        origin, destination, max_price, currency, active
    ) VALUES (
        $1,$2,$3,$4,true
    )
    RETURNING id, origin, destination, max_price, currency, active, last_checked_at, created_at;`

	listActiveAlertsSQL = `SELECT
        id, origin, destination, max_price, currency, active, last_checked_at, created_at
    FROM alerts
    WHERE active
    ORDER BY id;`

	listAlertsSQL = `SELECT
        id, origin, destination, max_price, currency, active, last_checked_at, created_at
    FROM alerts
    ORDER BY id;`

	deactivateAlertSQL = `UPDATE alerts SET active = false WHERE id = $1;`

	markAlertCheckedSQL = `UPDATE alerts SET last_checked_at = $2 WHERE id = $1;`

	insertTriggerSQL = `INSERT INTO alert_triggers (
        alert_id, itinerary_id, price, currency, deep_link
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (alert_id, itinerary_id) DO NOTHING;`

	listRecentTriggersSQL = `SELECT
        id, alert_id, itinerary_id, price, currency, deep_link, created_at
    FROM alert_triggers
    ORDER BY created_at DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ItineraryStore defines operations for itinerary persistence.
type ItineraryStore interface {
	UpsertItinerary(ctx context.Context, it Itinerary, confidenceCap int) (Itinerary, error)
	ListItinerariesByRoute(ctx context.Context, origin, destination string, limit int) ([]Itinerary, error)
	ListRecentItineraries(ctx context.Context, limit int) ([]Itinerary, error)
	ListItineraryHistory(ctx context.Context, origin, destination string, from, to time.Time) ([]Itinerary, error)
	CountItineraries(ctx context.Context) (int64, error)
}

// AlertStore defines operations for route price watches.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert Alert) (Alert, error)
	ListActiveAlerts(ctx context.Context) ([]Alert, error)
	ListAlerts(ctx context.Context) ([]Alert, error)
	DeactivateAlert(ctx context.Context, id int64) error
	MarkAlertChecked(ctx context.Context, id int64, at time.Time) error
}

// TriggerStore defines operations for alert firings.
type TriggerStore interface {
	InsertTrigger(ctx context.Context, trigger AlertTrigger) (bool, error)
	ListRecentTriggers(ctx context.Context, limit int) ([]AlertTrigger, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to itineraries, alerts and triggers.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertItinerary inserts an itinerary or, when the dedupe key already
// exists, refreshes the priced row and bumps confidence up to the cap. The
// persisted row is returned either way.
func (s *Store) UpsertItinerary(ctx context.Context, it Itinerary, confidenceCap int) (Itinerary, error) {
	pool, err := s.getPool()
	if err != nil {
		return Itinerary{}, err
	}

	if confidenceCap <= 0 {
		confidenceCap = 10
	}

	var queryID interface{}
	if it.QueryID != nil {
		queryID = *it.QueryID
	}
	var flightDate interface{}
	if it.FlightDate != nil {
		flightDate = *it.FlightDate
	}

	row := pool.QueryRow(ctx, upsertItinerarySQL,
		queryID,
		it.Provider,
		it.DedupeKey,
		it.Origin,
		it.Destination,
		flightDate,
		it.URL,
		it.DeepLink,
		it.Price.String(),
		it.Currency,
		it.PriceMinor,
		it.SourceDomain,
		confidenceCap,
	)

	stored, scanErr := scanItineraryRow(row)
	if scanErr != nil {
		return Itinerary{}, fmt.Errorf("upsert itinerary: %w", scanErr)
	}
	return stored, nil
}

// ListItinerariesByRoute lists the freshest itineraries for a route.
func (s *Store) ListItinerariesByRoute(ctx context.Context, origin, destination string, limit int) ([]Itinerary, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listItinerariesByRouteSQL, origin, destination, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list itineraries by route: %w", queryErr)
	}
	defer rows.Close()

	return collectItineraries(rows, limit)
}

// ListRecentItineraries lists the most recently updated itineraries.
func (s *Store) ListRecentItineraries(ctx context.Context, limit int) ([]Itinerary, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentItinerariesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent itineraries: %w", queryErr)
	}
	defer rows.Close()

	return collectItineraries(rows, limit)
}

// ListItineraryHistory lists a route's itineraries within an update window,
// oldest first, for charting and export.
func (s *Store) ListItineraryHistory(ctx context.Context, origin, destination string, from, to time.Time) ([]Itinerary, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listItineraryHistorySQL, origin, destination, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list itinerary history: %w", queryErr)
	}
	defer rows.Close()

	return collectItineraries(rows, 0)
}

// CountItineraries counts stored itineraries.
func (s *Store) CountItineraries(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countItinerariesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count itineraries: %w", scanErr)
	}
	return count, nil
}

// InsertAlert persists a new active watch.
func (s *Store) InsertAlert(ctx context.Context, alert Alert) (Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return Alert{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.Origin,
		alert.Destination,
		alert.MaxPrice.String(),
		alert.Currency,
	)

	stored, scanErr := scanAlertRow(row)
	if scanErr != nil {
		return Alert{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return stored, nil
}

// ListActiveAlerts lists watches that still evaluate.
func (s *Store) ListActiveAlerts(ctx context.Context) ([]Alert, error) {
	return s.listAlerts(ctx, listActiveAlertsSQL)
}

// ListAlerts lists every watch, active or not.
func (s *Store) ListAlerts(ctx context.Context) ([]Alert, error) {
	return s.listAlerts(ctx, listAlertsSQL)
}

func (s *Store) listAlerts(ctx context.Context, query string) ([]Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, query)
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]Alert, 0)
	for rows.Next() {
		alert, scanErr := scanAlertRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, alert)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeactivateAlert stops a watch from evaluating.
func (s *Store) DeactivateAlert(ctx context.Context, id int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, deactivateAlertSQL, id)
	if execErr != nil {
		return fmt.Errorf("deactivate alert: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// MarkAlertChecked records when a watch was last evaluated.
func (s *Store) MarkAlertChecked(ctx context.Context, id int64, at time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, markAlertCheckedSQL, id, at); execErr != nil {
		return fmt.Errorf("mark alert checked: %w", execErr)
	}
	return nil
}

// InsertTrigger records an alert firing against an itinerary. It returns
// false when the pair already fired, which is how re-evaluation stays quiet.
func (s *Store) InsertTrigger(ctx context.Context, trigger AlertTrigger) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	cmdTag, execErr := pool.Exec(ctx, insertTriggerSQL,
		trigger.AlertID,
		trigger.ItineraryID,
		trigger.Price.String(),
		trigger.Currency,
		trigger.DeepLink,
	)
	if execErr != nil {
		return false, fmt.Errorf("insert trigger: %w", execErr)
	}
	return cmdTag.RowsAffected() > 0, nil
}

// ListRecentTriggers lists the latest alert firings.
func (s *Store) ListRecentTriggers(ctx context.Context, limit int) ([]AlertTrigger, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentTriggersSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent triggers: %w", queryErr)
	}
	defer rows.Close()

	triggers := make([]AlertTrigger, 0, limit)
	for rows.Next() {
		var (
			rec      AlertTrigger
			priceStr string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.AlertID,
			&rec.ItineraryID,
			&priceStr,
			&rec.Currency,
			&rec.DeepLink,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		price, convErr := decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse trigger price: %w", convErr)
		}
		rec.Price = price
		triggers = append(triggers, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return triggers, nil
}

func collectItineraries(rows pgx.Rows, hint int) ([]Itinerary, error) {
	if hint < 0 {
		hint = 0
	}
	items := make([]Itinerary, 0, hint)
	for rows.Next() {
		it, scanErr := scanItineraryRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		items = append(items, it)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

func scanItineraryRow(row pgx.Row) (Itinerary, error) {
	var (
		it         Itinerary
		queryID    sql.NullString
		flightDate sql.NullTime
		priceStr   string
	)

	if err := row.Scan(
		&it.ID,
		&queryID,
		&it.Provider,
		&it.DedupeKey,
		&it.Origin,
		&it.Destination,
		&flightDate,
		&it.URL,
		&it.DeepLink,
		&priceStr,
		&it.Currency,
		&it.PriceMinor,
		&it.Confidence,
		&it.SourceDomain,
		&it.CreatedAt,
		&it.UpdatedAt,
	); err != nil {
		return Itinerary{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return Itinerary{}, fmt.Errorf("parse itinerary price: %w", err)
	}
	it.Price = price

	if queryID.Valid {
		value := queryID.String
		it.QueryID = &value
	}
	if flightDate.Valid {
		value := flightDate.Time
		it.FlightDate = &value
	}

	return it, nil
}

func scanAlertRow(row pgx.Row) (Alert, error) {
	var (
		alert       Alert
		maxPriceStr string
		lastChecked sql.NullTime
	)

	if err := row.Scan(
		&alert.ID,
		&alert.Origin,
		&alert.Destination,
		&maxPriceStr,
		&alert.Currency,
		&alert.Active,
		&lastChecked,
		&alert.CreatedAt,
	); err != nil {
		return Alert{}, err
	}

	maxPrice, err := decimal.NewFromString(maxPriceStr)
	if err != nil {
		return Alert{}, fmt.Errorf("parse alert max price: %w", err)
	}
	alert.MaxPrice = maxPrice

	if lastChecked.Valid {
		value := lastChecked.Time
		alert.LastCheckedAt = &value
	}

	return alert, nil
}
