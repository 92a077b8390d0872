package connection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	GetById(ctx context.Context, id int) (Connection, error)
	FindByUserAndProvider(ctx context.Context, userId int, provider Provider) (Connection, error)
	ListActive(ctx context.Context) ([]Connection, error)
	// Upsert stores freshly authorized tokens and (re)activates the user's connection to the provider.
	Upsert(ctx context.Context, conn Connection) (Connection, error)
	UpdateTokens(ctx context.Context, id int, accessToken, refreshToken string, expiry time.Time) error
	MarkReauthRequired(ctx context.Context, id int) error
	// Deactivate marks the connection INACTIVE and clears its tokens.
	Deactivate(ctx context.Context, id int) error
	UpdateLastSync(ctx context.Context, id int, at time.Time) error
	StoreState(ctx context.Context, state AuthState) error
	// ConsumeState returns and removes a pending authorization state.
	ConsumeState(ctx context.Context, state string) (AuthState, error)
}

type RepositoryImpl struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

const connectionColumns = `id, user_id, provider, provider_user_id, access_token, refresh_token, token_expiry,
	status, reauth_required, last_synced_at`

func scanConnection(row pgx.Row) (Connection, error) {
	var c Connection
	var refreshToken *string
	var expiry *time.Time
	err := row.Scan(
		&c.Id,
		&c.UserId,
		&c.Provider,
		&c.ProviderUserId,
		&c.AccessToken,
		&refreshToken,
		&expiry,
		&c.Status,
		&c.ReauthRequired,
		&c.LastSyncedAt,
	)
	if refreshToken != nil {
		c.RefreshToken = *refreshToken
	}
	if expiry != nil {
		c.TokenExpiry = *expiry
	}
	return c, err
}

func (r *RepositoryImpl) GetById(ctx context.Context, id int) (Connection, error) {
	conn, err := scanConnection(r.db.QueryRow(ctx, `SELECT `+connectionColumns+` FROM calendar_connection WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Connection{}, ErrConnectionNotFound
	} else if err != nil {
		err := fmt.Errorf("could not get connection %d: %w", id, err)
		log.Error(err)
		return Connection{}, err
	}
	return conn, nil
}

func (r *RepositoryImpl) FindByUserAndProvider(ctx context.Context, userId int, provider Provider) (Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM calendar_connection WHERE user_id = $1 AND provider = $2`
	conn, err := scanConnection(r.db.QueryRow(ctx, query, userId, provider))
	if errors.Is(err, pgx.ErrNoRows) {
		return Connection{}, ErrConnectionNotFound
	} else if err != nil {
		err := fmt.Errorf("could not find %s connection of user %d: %w", provider, userId, err)
		log.Error(err)
		return Connection{}, err
	}
	return conn, nil
}

func (r *RepositoryImpl) ListActive(ctx context.Context) ([]Connection, error) {
	rows, err := r.db.Query(ctx, `SELECT `+connectionColumns+` FROM calendar_connection WHERE status = $1 ORDER BY id`, StatusActive)
	if err != nil {
		err := fmt.Errorf("could not query active connections: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	connections := make([]Connection, 0)
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			err := fmt.Errorf("could not scan row: %w", err)
			log.Error(err)
			return nil, err
		}
		connections = append(connections, conn)
	}
	return connections, rows.Err()
}

func (r *RepositoryImpl) Upsert(ctx context.Context, conn Connection) (Connection, error) {
	query := `INSERT INTO calendar_connection (user_id, provider, provider_user_id, access_token, refresh_token, token_expiry,
				status, reauth_required)
			VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
			ON CONFLICT (user_id, provider)
			DO UPDATE SET
				provider_user_id = EXCLUDED.provider_user_id,
				access_token = EXCLUDED.access_token,
				refresh_token = COALESCE(EXCLUDED.refresh_token, calendar_connection.refresh_token),
				token_expiry = EXCLUDED.token_expiry,
				status = EXCLUDED.status,
				reauth_required = FALSE,
				updated_at = now()
			RETURNING ` + connectionColumns

	stored, err := scanConnection(r.db.QueryRow(ctx, query,
		conn.UserId,
		conn.Provider,
		conn.ProviderUserId,
		conn.AccessToken,
		nullable(conn.RefreshToken),
		conn.TokenExpiry,
		StatusActive,
	))
	if err != nil {
		err := fmt.Errorf("could not upsert connection: %w", err)
		log.Error(err)
		return Connection{}, err
	}
	return stored, nil
}

func (r *RepositoryImpl) UpdateTokens(ctx context.Context, id int, accessToken, refreshToken string, expiry time.Time) error {
	query := `UPDATE calendar_connection
			SET access_token = $2, refresh_token = COALESCE($3, refresh_token), token_expiry = $4, updated_at = now()
			WHERE id = $1`
	return r.exec(ctx, query, id, accessToken, nullable(refreshToken), expiry)
}

func (r *RepositoryImpl) MarkReauthRequired(ctx context.Context, id int) error {
	return r.exec(ctx, `UPDATE calendar_connection SET reauth_required = TRUE, updated_at = now() WHERE id = $1`, id)
}

func (r *RepositoryImpl) Deactivate(ctx context.Context, id int) error {
	query := `UPDATE calendar_connection
			SET status = $2, access_token = '', refresh_token = NULL, token_expiry = NULL, updated_at = now()
			WHERE id = $1`
	return r.exec(ctx, query, id, StatusInactive)
}

func (r *RepositoryImpl) UpdateLastSync(ctx context.Context, id int, at time.Time) error {
	return r.exec(ctx, `UPDATE calendar_connection SET last_synced_at = $2 WHERE id = $1`, id, at)
}

func (r *RepositoryImpl) StoreState(ctx context.Context, state AuthState) error {
	query := `INSERT INTO oauth_state (state, user_id, provider, final_url) VALUES ($1, $2, $3, $4)`
	_, err := r.db.Exec(ctx, query, state.State, state.UserId, state.Provider, state.FinalUrl)
	if err != nil {
		err := fmt.Errorf("could not store authorization state: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) ConsumeState(ctx context.Context, state string) (AuthState, error) {
	var s AuthState
	err := r.db.QueryRow(ctx, `DELETE FROM oauth_state WHERE state = $1 RETURNING state, user_id, provider, final_url`, state).
		Scan(&s.State, &s.UserId, &s.Provider, &s.FinalUrl)
	if errors.Is(err, pgx.ErrNoRows) {
		return AuthState{}, ErrStateNotFound
	} else if err != nil {
		err := fmt.Errorf("could not consume authorization state: %w", err)
		log.Error(err)
		return AuthState{}, err
	}
	return s, nil
}

func (r *RepositoryImpl) exec(ctx context.Context, query string, id int, args ...any) error {
	tag, err := r.db.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		err := fmt.Errorf("could not update connection %d: %w", id, err)
		log.Error(err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConnectionNotFound
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
