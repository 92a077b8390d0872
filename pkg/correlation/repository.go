package correlation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

var ErrCorrelationNotFound = errors.New("correlation not found")
var ErrDuplicateCorrelation = errors.New("event is already correlated in this pairing")

type Repository interface {
	ListByPairing(ctx context.Context, pairingId int) ([]Correlation, error)
	FindByExternalId(ctx context.Context, pairingId int, externalEventId string) (Correlation, error)
	FindByLocalId(ctx context.Context, pairingId int, localEventId uuid.UUID) (Correlation, error)
	Create(ctx context.Context, c Correlation) (Correlation, error)
	// Update stores the external id and both watermarks.
	Update(ctx context.Context, c Correlation) error
	Delete(ctx context.Context, id int) error
	DeleteByPairing(ctx context.Context, pairingId int) error
}

type RepositoryImpl struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

const columns = `id, pairing_id, local_event_id, external_event_id, last_modified_local, last_modified_external`

func scan(row pgx.Row) (Correlation, error) {
	var c Correlation
	err := row.Scan(&c.Id, &c.PairingId, &c.LocalEventId, &c.ExternalEventId, &c.LastModifiedLocal, &c.LastModifiedExternal)
	c.LastModifiedLocal = c.LastModifiedLocal.UTC()
	c.LastModifiedExternal = c.LastModifiedExternal.UTC()
	return c, err
}

func (r *RepositoryImpl) ListByPairing(ctx context.Context, pairingId int) ([]Correlation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+columns+` FROM event_correlation WHERE pairing_id = $1 ORDER BY id`, pairingId)
	if err != nil {
		err := fmt.Errorf("could not query correlations: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	result := make([]Correlation, 0)
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			err := fmt.Errorf("could not scan correlation: %w", err)
			log.Error(err)
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *RepositoryImpl) FindByExternalId(ctx context.Context, pairingId int, externalEventId string) (Correlation, error) {
	return r.findOne(ctx, `SELECT `+columns+` FROM event_correlation WHERE pairing_id = $1 AND external_event_id = $2`,
		pairingId, externalEventId)
}

func (r *RepositoryImpl) FindByLocalId(ctx context.Context, pairingId int, localEventId uuid.UUID) (Correlation, error) {
	return r.findOne(ctx, `SELECT `+columns+` FROM event_correlation WHERE pairing_id = $1 AND local_event_id = $2`,
		pairingId, localEventId)
}

func (r *RepositoryImpl) findOne(ctx context.Context, query string, args ...any) (Correlation, error) {
	c, err := scan(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Correlation{}, ErrCorrelationNotFound
	} else if err != nil {
		err := fmt.Errorf("could not get correlation: %w", err)
		log.Error(err)
		return Correlation{}, err
	}
	return c, nil
}

func (r *RepositoryImpl) Create(ctx context.Context, c Correlation) (Correlation, error) {
	query := `INSERT INTO event_correlation (pairing_id, local_event_id, external_event_id, last_modified_local, last_modified_external)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`
	err := r.db.QueryRow(ctx, query, c.PairingId, c.LocalEventId, c.ExternalEventId, c.LastModifiedLocal, c.LastModifiedExternal).
		Scan(&c.Id)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return Correlation{}, ErrDuplicateCorrelation
	}
	if err != nil {
		err := fmt.Errorf("could not create correlation: %w", err)
		log.Error(err)
		return Correlation{}, err
	}
	return c, nil
}

func (r *RepositoryImpl) Update(ctx context.Context, c Correlation) error {
	query := `UPDATE event_correlation
			SET external_event_id = $1, last_modified_local = $2, last_modified_external = $3
			WHERE id = $4`
	tag, err := r.db.Exec(ctx, query, c.ExternalEventId, c.LastModifiedLocal, c.LastModifiedExternal, c.Id)
	if err != nil {
		err := fmt.Errorf("could not update correlation: %w", err)
		log.Error(err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCorrelationNotFound
	}
	return nil
}

func (r *RepositoryImpl) Delete(ctx context.Context, id int) error {
	_, err := r.db.Exec(ctx, `DELETE FROM event_correlation WHERE id = $1`, id)
	if err != nil {
		err := fmt.Errorf("could not delete correlation: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) DeleteByPairing(ctx context.Context, pairingId int) error {
	_, err := r.db.Exec(ctx, `DELETE FROM event_correlation WHERE pairing_id = $1`, pairingId)
	if err != nil {
		err := fmt.Errorf("could not delete correlations of pairing %d: %w", pairingId, err)
		log.Error(err)
		return err
	}
	return nil
}
