package calendar_sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

var ErrPairingNotFound = errors.New("pairing not found")
var ErrPairingExists = errors.New("external calendar is already paired")

type PairingRepository interface {
	Get(ctx context.Context, id int) (Pairing, error)
	ListByConnection(ctx context.Context, connectionId int) ([]Pairing, error)
	ListByLocalCalendar(ctx context.Context, calendarId int) ([]Pairing, error)
	Create(ctx context.Context, p Pairing) (Pairing, error)
	UpdateCursor(ctx context.Context, id int, cursor string) error
	UpdateLastSync(ctx context.Context, id int, at time.Time) error
	Delete(ctx context.Context, id int) error
}

type PairingRepositoryImpl struct {
	db *pgxpool.Pool
}

func NewPairingRepository(db *pgxpool.Pool) *PairingRepositoryImpl {
	return &PairingRepositoryImpl{db: db}
}

const pairingColumns = `id, connection_id, local_calendar_id, external_calendar_id, external_calendar_name,
	bidirectional, COALESCE(delta_cursor, ''), last_synced_at`

func scanPairing(row pgx.Row) (Pairing, error) {
	var p Pairing
	err := row.Scan(&p.Id, &p.ConnectionId, &p.LocalCalendarId, &p.ExternalCalendarId, &p.ExternalName,
		&p.Bidirectional, &p.Cursor, &p.LastSyncedAt)
	return p, err
}

func (r *PairingRepositoryImpl) Get(ctx context.Context, id int) (Pairing, error) {
	p, err := scanPairing(r.db.QueryRow(ctx, `SELECT `+pairingColumns+` FROM synced_calendar WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Pairing{}, ErrPairingNotFound
	} else if err != nil {
		err := fmt.Errorf("could not get pairing: %w", err)
		log.Error(err)
		return Pairing{}, err
	}
	return p, nil
}

func (r *PairingRepositoryImpl) ListByConnection(ctx context.Context, connectionId int) ([]Pairing, error) {
	return r.list(ctx, `SELECT `+pairingColumns+` FROM synced_calendar WHERE connection_id = $1 ORDER BY id`, connectionId)
}

func (r *PairingRepositoryImpl) ListByLocalCalendar(ctx context.Context, calendarId int) ([]Pairing, error) {
	return r.list(ctx, `SELECT `+pairingColumns+` FROM synced_calendar WHERE local_calendar_id = $1 ORDER BY id`, calendarId)
}

func (r *PairingRepositoryImpl) list(ctx context.Context, query string, args ...any) ([]Pairing, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		err := fmt.Errorf("could not query pairings: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	pairings := make([]Pairing, 0)
	for rows.Next() {
		p, err := scanPairing(rows)
		if err != nil {
			err := fmt.Errorf("could not scan pairing: %w", err)
			log.Error(err)
			return nil, err
		}
		pairings = append(pairings, p)
	}
	return pairings, rows.Err()
}

func (r *PairingRepositoryImpl) Create(ctx context.Context, p Pairing) (Pairing, error) {
	query := `INSERT INTO synced_calendar (connection_id, local_calendar_id, external_calendar_id, external_calendar_name, bidirectional)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`
	err := r.db.QueryRow(ctx, query, p.ConnectionId, p.LocalCalendarId, p.ExternalCalendarId, p.ExternalName, p.Bidirectional).
		Scan(&p.Id)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return Pairing{}, ErrPairingExists
	}
	if err != nil {
		err := fmt.Errorf("could not create pairing: %w", err)
		log.Error(err)
		return Pairing{}, err
	}
	return p, nil
}

func (r *PairingRepositoryImpl) UpdateCursor(ctx context.Context, id int, cursor string) error {
	return r.exec(ctx, `UPDATE synced_calendar SET delta_cursor = NULLIF($1, '') WHERE id = $2`, cursor, id)
}

func (r *PairingRepositoryImpl) UpdateLastSync(ctx context.Context, id int, at time.Time) error {
	return r.exec(ctx, `UPDATE synced_calendar SET last_synced_at = $1 WHERE id = $2`, at, id)
}

func (r *PairingRepositoryImpl) Delete(ctx context.Context, id int) error {
	return r.exec(ctx, `DELETE FROM synced_calendar WHERE id = $1`, id)
}

func (r *PairingRepositoryImpl) exec(ctx context.Context, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		err := fmt.Errorf("could not modify pairing: %w", err)
		log.Error(err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPairingNotFound
	}
	return nil
}
