package gormstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/MarkoPoloResearchLab/points/pkg/points"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultMetadataJSON = "{}"
	defaultHistoryLimit = 50
)

// AuditLogger persists every points operation to the points_audit table.
type AuditLogger struct {
	db      *gorm.DB
	now     func() time.Time
	onError func(error)
}

// NewAuditLogger returns an AuditLogger; onError receives write failures and may be nil.
func NewAuditLogger(db *gorm.DB, onError func(error)) *AuditLogger {
	return &AuditLogger{db: db, now: func() time.Time { return time.Now().UTC() }, onError: onError}
}

func (logger *AuditLogger) LogOperation(ctx context.Context, entry points.OperationLog) {
	model := AuditEntry{
		Operation:  entry.Operation,
		LedgerName: entry.Ledger.String(),
		Platform:   entry.Platform.String(),
		UserID:     entry.UserID.String(),
		Actor:      entry.Actor,
		Amount:     entry.Amount,
		OldBalance: balancePointer(entry.OldBalance),
		NewBalance: balancePointer(entry.NewBalance),
		Status:     entry.Status,
		Metadata:   auditMetadata(entry),
		CreatedAt:  logger.now(),
	}
	if err := logger.db.WithContext(context.WithoutCancel(ctx)).Create(&model).Error; err != nil && logger.onError != nil {
		logger.onError(points.WrapError(errorOperationStore, "audit", "insert", err))
	}
}

func balancePointer(balance points.Balance) *int64 {
	if !balance.Known() {
		return nil
	}
	value := balance.Int64()
	return &value
}

func auditMetadata(entry points.OperationLog) datatypes.JSON {
	metadata := map[string]string{}
	if entry.Action != "" {
		metadata["action"] = entry.Action
	}
	if entry.Error != nil {
		metadata["error"] = entry.Error.Error()
	}
	if len(metadata) == 0 {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON(encoded)
}

// History returns the most recent audit rows for one user, newest first.
func (logger *AuditLogger) History(ctx context.Context, ledgerName points.LedgerName, ref points.UserRef, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	var rows []AuditEntry
	err := logger.db.WithContext(ctx).
		Where("ledger_name = ? AND platform = ? AND user_id = ?", ledgerName.String(), ref.Platform.String(), ref.UserID.String()).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError("audit", errorCodeList, err)
	}
	return rows, nil
}
