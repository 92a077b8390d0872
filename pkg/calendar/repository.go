package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

var ErrEventNotFound = errors.New("event not found")
var ErrCalendarNotFound = errors.New("calendar not found")

type Repository interface {
	WithTransaction(ctx context.Context, fn func(repo Repository) error) error
	CreateCalendar(ctx context.Context, cal Calendar) (Calendar, error)
	GetCalendar(ctx context.Context, calendarId int) (Calendar, error)
	ListCalendars(ctx context.Context, userId int) ([]Calendar, error)
	DeleteCalendar(ctx context.Context, calendarId int) error
	// StoreEvent assigns an id when missing and stamps CreatedAt/UpdatedAt.
	StoreEvent(ctx context.Context, event Event) (Event, error)
	GetEvent(ctx context.Context, eventId uuid.UUID) (Event, error)
	// FindEvents returns events of the calendar whose dates overlap [from, to].
	FindEvents(ctx context.Context, calendarId int, from, to time.Time) ([]Event, error)
	// UpdateEvent stamps UpdatedAt and returns the stored event.
	UpdateEvent(ctx context.Context, event Event) (Event, error)
	DeleteEvent(ctx context.Context, eventId uuid.UUID) error
}

type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type RepositoryImpl struct {
	db *pgxpool.Pool
	tx pgx.Tx
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

// getQueryer returns the transaction when one is open, otherwise the pool.
func (r *RepositoryImpl) getQueryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *RepositoryImpl) WithTransaction(ctx context.Context, fn func(repo Repository) error) error {
	if r.tx != nil {
		return fn(r)
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Errorf("rollback error: %v", rbErr)
		}
	}()

	if err := fn(&RepositoryImpl{db: r.db, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *RepositoryImpl) CreateCalendar(ctx context.Context, cal Calendar) (Calendar, error) {
	query := `INSERT INTO calendar (user_id, name, color) VALUES ($1, $2, $3) RETURNING id`
	err := r.getQueryer().QueryRow(ctx, query, cal.UserId, cal.Name, cal.Color).Scan(&cal.Id)
	if err != nil {
		err := fmt.Errorf("could not create calendar: %w", err)
		log.Error(err)
		return Calendar{}, err
	}
	return cal, nil
}

func (r *RepositoryImpl) GetCalendar(ctx context.Context, calendarId int) (Calendar, error) {
	var cal Calendar
	err := r.getQueryer().QueryRow(ctx, `SELECT id, user_id, name, color FROM calendar WHERE id = $1`, calendarId).
		Scan(&cal.Id, &cal.UserId, &cal.Name, &cal.Color)
	if errors.Is(err, pgx.ErrNoRows) {
		return Calendar{}, ErrCalendarNotFound
	} else if err != nil {
		err := fmt.Errorf("could not get calendar: %w", err)
		log.Error(err)
		return Calendar{}, err
	}
	return cal, nil
}

func (r *RepositoryImpl) ListCalendars(ctx context.Context, userId int) ([]Calendar, error) {
	rows, err := r.getQueryer().Query(ctx, `SELECT id, user_id, name, color FROM calendar WHERE user_id = $1 ORDER BY id`, userId)
	if err != nil {
		err := fmt.Errorf("could not query calendars: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	calendars := make([]Calendar, 0, 4)
	for rows.Next() {
		var cal Calendar
		if err := rows.Scan(&cal.Id, &cal.UserId, &cal.Name, &cal.Color); err != nil {
			err := fmt.Errorf("could not scan row: %w", err)
			log.Error(err)
			return nil, err
		}
		calendars = append(calendars, cal)
	}
	return calendars, rows.Err()
}

func (r *RepositoryImpl) DeleteCalendar(ctx context.Context, calendarId int) error {
	tag, err := r.getQueryer().Exec(ctx, `DELETE FROM calendar WHERE id = $1`, calendarId)
	if err != nil {
		err := fmt.Errorf("could not delete calendar: %w", err)
		log.Error(err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCalendarNotFound
	}
	return nil
}

const eventColumns = `uid, calendar_id, user_id, title, description, location, all_day,
	to_char(start_date, 'YYYY-MM-DD'), start_time, to_char(end_date, 'YYYY-MM-DD'), end_time,
	timezone, recurrence, series_id, original_start, created_at, updated_at`

func scanEvent(row pgx.Row) (Event, error) {
	var e Event
	err := row.Scan(
		&e.Id,
		&e.CalendarId,
		&e.UserId,
		&e.Title,
		&e.Description,
		&e.Location,
		&e.AllDay,
		&e.StartDate,
		&e.StartTime,
		&e.EndDate,
		&e.EndTime,
		&e.Timezone,
		&e.Recurrence,
		&e.SeriesId,
		&e.OriginalStart,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	return e, err
}

func (r *RepositoryImpl) StoreEvent(ctx context.Context, event Event) (Event, error) {
	if event.Id == uuid.Nil {
		event.Id = uuid.New()
	}
	query := `INSERT INTO calendar_event (uid, calendar_id, user_id, title, description, location, all_day,
				start_date, start_time, end_date, end_time, timezone, recurrence, series_id, original_start)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			RETURNING ` + eventColumns

	stored, err := scanEvent(r.getQueryer().QueryRow(ctx, query,
		event.Id,
		event.CalendarId,
		event.UserId,
		event.Title,
		event.Description,
		event.Location,
		event.AllDay,
		event.StartDate,
		event.StartTime,
		event.EndDate,
		event.EndTime,
		event.Timezone,
		event.Recurrence,
		event.SeriesId,
		event.OriginalStart,
	))
	if err != nil {
		err := fmt.Errorf("could not store event: %w", err)
		log.Error(err)
		return Event{}, err
	}
	return stored, nil
}

func (r *RepositoryImpl) GetEvent(ctx context.Context, eventId uuid.UUID) (Event, error) {
	event, err := scanEvent(r.getQueryer().QueryRow(ctx, `SELECT `+eventColumns+` FROM calendar_event WHERE uid = $1`, eventId))
	if errors.Is(err, pgx.ErrNoRows) {
		return Event{}, ErrEventNotFound
	} else if err != nil {
		err := fmt.Errorf("could not get event: %w", err)
		log.Error(err)
		return Event{}, err
	}
	return event, nil
}

func (r *RepositoryImpl) FindEvents(ctx context.Context, calendarId int, from, to time.Time) ([]Event, error) {
	query := `SELECT ` + eventColumns + `
			FROM calendar_event
			WHERE calendar_id = $1
			  AND start_date <= $2::date
			  AND end_date >= $3::date
			ORDER BY start_date, start_time NULLS FIRST`

	rows, err := r.getQueryer().Query(ctx, query, calendarId, to.Format(DateLayout), from.Format(DateLayout))
	if err != nil {
		err := fmt.Errorf("could not query calendar events: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	events := make([]Event, 0, 16)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			err := fmt.Errorf("could not scan row: %w", err)
			log.Error(err)
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (r *RepositoryImpl) UpdateEvent(ctx context.Context, event Event) (Event, error) {
	query := `UPDATE calendar_event SET title = $2, description = $3, location = $4, all_day = $5,
				start_date = $6, start_time = $7, end_date = $8, end_time = $9, timezone = $10,
				recurrence = $11, series_id = $12, original_start = $13, updated_at = now()
			WHERE uid = $1
			RETURNING ` + eventColumns

	updated, err := scanEvent(r.getQueryer().QueryRow(ctx, query,
		event.Id,
		event.Title,
		event.Description,
		event.Location,
		event.AllDay,
		event.StartDate,
		event.StartTime,
		event.EndDate,
		event.EndTime,
		event.Timezone,
		event.Recurrence,
		event.SeriesId,
		event.OriginalStart,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Event{}, ErrEventNotFound
	} else if err != nil {
		err := fmt.Errorf("could not update event: %w", err)
		log.Error(err)
		return Event{}, err
	}
	return updated, nil
}

func (r *RepositoryImpl) DeleteEvent(ctx context.Context, eventId uuid.UUID) error {
	tag, err := r.getQueryer().Exec(ctx, `DELETE FROM calendar_event WHERE uid = $1`, eventId)
	if err != nil {
		err := fmt.Errorf("could not delete event: %w", err)
		log.Error(err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}
