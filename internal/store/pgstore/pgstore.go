package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/points/pkg/points"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUndefinedTableCode = "42P01"
	errorOperationStore  = "store"
	errorSubjectVariable = "variable"
	errorSubjectChatUser = "chat_user"
	errorCodeGet         = "get"
	errorCodeSet         = "set"
	errorCodeClear       = "clear"
	errorCodeList        = "list"
	errorCodeRemember    = "remember"
	errorCodeMissing     = "missing"

	sqlSelectVariable = `
		select value from user_variables
		where ledger_name = $1 and platform = $2 and user_id = $3
	`

	sqlUpsertVariable = `
		insert into user_variables(ledger_name, platform, user_id, value, variable_id, updated_at)
		values ($1, $2, $3, $4, $5, $6)
		on conflict (ledger_name, platform, user_id) do update set value = excluded.value, updated_at = excluded.updated_at
	`

	sqlDeleteVariables = `
		delete from user_variables where ledger_name = $1 and platform = $2
	`

	sqlListVariables = `
		select v.user_id, v.value, coalesce(c.user_login, '')
		from user_variables v
		left join chat_users c on c.platform = v.platform and c.user_id = v.user_id
		where v.ledger_name = $1 and v.platform = $2
		order by v.user_id
	`

	sqlUpsertChatUser = `
		insert into chat_users(platform, user_id, user_login, last_seen_at)
		values ($1, $2, $3, $4)
		on conflict (platform, user_id) do update set user_login = excluded.user_login, last_seen_at = excluded.last_seen_at
	`
)

// Querier is the subset of pgxpool.Pool and pgx.Tx the store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
}

// Store implements points.VariableStore and points.ChatUserRecorder over pgx. The tables are the
// ones gormstore migrates; the store writes every column the migrated schema requires.
type Store struct {
	db    Querier
	now   func() time.Time
	newID func() string
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return NewWithQuerier(pool)
}

// NewWithQuerier returns a Store over any pgx querier, such as an open transaction.
func NewWithQuerier(db Querier) *Store {
	return &Store{
		db:    db,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

func (store *Store) GetUserVariable(ctx context.Context, key points.VariableKey) (int64, bool, error) {
	var value int64
	err := store.db.QueryRow(ctx, sqlSelectVariable, key.Ledger.String(), key.Platform.String(), key.UserID.String()).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, wrapStoreError(errorSubjectVariable, classify(err, errorCodeGet), err)
	}
	return value, true, nil
}

func (store *Store) SetUserVariable(ctx context.Context, key points.VariableKey, value int64) error {
	_, err := store.db.Exec(ctx, sqlUpsertVariable, key.Ledger.String(), key.Platform.String(), key.UserID.String(), value, store.newID(), store.now())
	if err != nil {
		return wrapStoreError(errorSubjectVariable, classify(err, errorCodeSet), err)
	}
	return nil
}

func (store *Store) ClearUserVariables(ctx context.Context, ledgerName points.LedgerName, platform points.Platform) (int64, error) {
	tag, err := store.db.Exec(ctx, sqlDeleteVariables, ledgerName.String(), platform.String())
	if err != nil {
		return 0, wrapStoreError(errorSubjectVariable, classify(err, errorCodeClear), err)
	}
	return tag.RowsAffected(), nil
}

func (store *Store) ListUserVariables(ctx context.Context, ledgerName points.LedgerName, platform points.Platform) ([]points.UserVariable, error) {
	rows, err := store.db.Query(ctx, sqlListVariables, ledgerName.String(), platform.String())
	if err != nil {
		return nil, wrapStoreError(errorSubjectVariable, classify(err, errorCodeList), err)
	}
	defer rows.Close()

	variables := []points.UserVariable{}
	for rows.Next() {
		var (
			userIDValue string
			value       int64
			login       string
		)
		if err := rows.Scan(&userIDValue, &value, &login); err != nil {
			return nil, wrapStoreError(errorSubjectVariable, errorCodeList, err)
		}
		userID, err := points.NewUserID(userIDValue)
		if err != nil {
			return nil, wrapStoreError(errorSubjectVariable, errorCodeList, err)
		}
		variables = append(variables, points.UserVariable{
			Key:       points.VariableKey{Ledger: ledgerName, Platform: platform, UserID: userID},
			UserLogin: login,
			Value:     value,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectVariable, errorCodeList, err)
	}
	return variables, nil
}

func (store *Store) RememberChatUser(ctx context.Context, ref points.UserRef, login string) error {
	if _, err := store.db.Exec(ctx, sqlUpsertChatUser, ref.Platform.String(), ref.UserID.String(), login, store.now()); err != nil {
		return wrapStoreError(errorSubjectChatUser, classify(err, errorCodeRemember), err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return points.WrapError(errorOperationStore, subject, code, err)
}

// classify reports a missing schema distinctly so operators know to run the migration.
func classify(err error, fallback string) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTableCode {
		return errorCodeMissing
	}
	return fallback
}
