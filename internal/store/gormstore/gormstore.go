package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/points/pkg/points"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19
	errorOperationStore   = "store"
	errorSubjectVariable  = "variable"
	errorSubjectChatUser  = "chat_user"
	errorSubjectSchema    = "schema"
	errorCodeGet          = "get"
	errorCodeSet          = "set"
	errorCodeClear        = "clear"
	errorCodeList         = "list"
	errorCodeRemember     = "remember"
	errorCodeMigrate      = "migrate"
)

// Store implements points.VariableStore and points.ChatUserRecorder using GORM.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// AutoMigrate creates or updates the tables the store uses.
func (store *Store) AutoMigrate(ctx context.Context) error {
	if err := store.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return wrapStoreError(errorSubjectSchema, errorCodeMigrate, err)
	}
	return nil
}

func (store *Store) GetUserVariable(ctx context.Context, key points.VariableKey) (int64, bool, error) {
	var variable UserVariable
	err := store.db.WithContext(ctx).
		Where("ledger_name = ? AND platform = ? AND user_id = ?", key.Ledger.String(), key.Platform.String(), key.UserID.String()).
		Take(&variable).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, wrapStoreError(errorSubjectVariable, errorCodeGet, err)
	}
	return variable.Value, true, nil
}

// SetUserVariable updates the stored value, inserting the row on first write. A concurrent
// first write from another process surfaces as a unique conflict and is retried as an update.
func (store *Store) SetUserVariable(ctx context.Context, key points.VariableKey, value int64) error {
	updated, err := store.updateVariable(ctx, key, value)
	if err != nil {
		return wrapStoreError(errorSubjectVariable, errorCodeSet, err)
	}
	if updated {
		return nil
	}
	variable := UserVariable{
		LedgerName: key.Ledger.String(),
		Platform:   key.Platform.String(),
		UserID:     key.UserID.String(),
		Value:      value,
		UpdatedAt:  store.now(),
	}
	err = store.db.WithContext(ctx).Create(&variable).Error
	if isUniqueConflict(err) {
		if _, err := store.updateVariable(ctx, key, value); err != nil {
			return wrapStoreError(errorSubjectVariable, errorCodeSet, err)
		}
		return nil
	}
	if err != nil {
		return wrapStoreError(errorSubjectVariable, errorCodeSet, err)
	}
	return nil
}

func (store *Store) updateVariable(ctx context.Context, key points.VariableKey, value int64) (bool, error) {
	result := store.db.WithContext(ctx).
		Model(&UserVariable{}).
		Where("ledger_name = ? AND platform = ? AND user_id = ?", key.Ledger.String(), key.Platform.String(), key.UserID.String()).
		Updates(map[string]any{"value": value, "updated_at": store.now()})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (store *Store) ClearUserVariables(ctx context.Context, ledgerName points.LedgerName, platform points.Platform) (int64, error) {
	result := store.db.WithContext(ctx).
		Where("ledger_name = ? AND platform = ?", ledgerName.String(), platform.String()).
		Delete(&UserVariable{})
	if result.Error != nil {
		return 0, wrapStoreError(errorSubjectVariable, errorCodeClear, result.Error)
	}
	return result.RowsAffected, nil
}

type variableRow struct {
	UserID    string
	Value     int64
	UserLogin *string
}

func (store *Store) ListUserVariables(ctx context.Context, ledgerName points.LedgerName, platform points.Platform) ([]points.UserVariable, error) {
	var rows []variableRow
	err := store.db.WithContext(ctx).
		Model(&UserVariable{}).
		Select("user_variables.user_id, user_variables.value, chat_users.user_login").
		Joins("LEFT JOIN chat_users ON chat_users.platform = user_variables.platform AND chat_users.user_id = user_variables.user_id").
		Where("user_variables.ledger_name = ? AND user_variables.platform = ?", ledgerName.String(), platform.String()).
		Order("user_variables.user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectVariable, errorCodeList, err)
	}
	variables := make([]points.UserVariable, 0, len(rows))
	for _, row := range rows {
		userID, err := points.NewUserID(row.UserID)
		if err != nil {
			return nil, wrapStoreError(errorSubjectVariable, errorCodeList, err)
		}
		login := ""
		if row.UserLogin != nil {
			login = *row.UserLogin
		}
		variables = append(variables, points.UserVariable{
			Key:       points.VariableKey{Ledger: ledgerName, Platform: platform, UserID: userID},
			UserLogin: login,
			Value:     row.Value,
		})
	}
	return variables, nil
}

func (store *Store) RememberChatUser(ctx context.Context, ref points.UserRef, login string) error {
	user := ChatUser{
		Platform:   ref.Platform.String(),
		UserID:     ref.UserID.String(),
		UserLogin:  login,
		LastSeenAt: store.now(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "platform"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_login", "last_seen_at"}),
		}).
		Create(&user).Error
	if err != nil {
		return wrapStoreError(errorSubjectChatUser, errorCodeRemember, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return points.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
