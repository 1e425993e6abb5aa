// Package logging adapts points operation records to zap.
package logging

import (
	"context"

	"github.com/MarkoPoloResearchLab/points/pkg/points"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const statusError = "error"

// OperationLogger writes every points operation as one structured zap entry.
type OperationLogger struct {
	logger *zap.Logger
}

// NewOperationLogger wraps logger; a nil logger discards entries.
func NewOperationLogger(logger *zap.Logger) *OperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OperationLogger{logger: logger.Named("points")}
}

func (operationLogger *OperationLogger) LogOperation(_ context.Context, entry points.OperationLog) {
	level := zapcore.InfoLevel
	if entry.Status == statusError || entry.Error != nil {
		level = zapcore.WarnLevel
	}
	checked := operationLogger.logger.Check(level, "points operation")
	if checked == nil {
		return
	}
	checked.Write(Fields(entry)...)
}

// Fields renders an operation record as zap fields, omitting empty values.
func Fields(entry points.OperationLog) []zap.Field {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if name := entry.Ledger.String(); name != "" {
		fields = append(fields, zap.String("ledger", name))
	}
	if entry.Platform != "" {
		fields = append(fields, zap.String("platform", entry.Platform.String()))
	}
	if !entry.UserID.IsZero() {
		fields = append(fields, zap.String("user_id", entry.UserID.String()))
	}
	if entry.Actor != "" {
		fields = append(fields, zap.String("actor", entry.Actor))
	}
	if entry.Amount != 0 {
		fields = append(fields, zap.Int64("amount", entry.Amount))
	}
	if entry.OldBalance.Known() {
		fields = append(fields, zap.Int64("old_balance", entry.OldBalance.Int64()))
	}
	if entry.NewBalance.Known() {
		fields = append(fields, zap.Int64("new_balance", entry.NewBalance.Int64()))
	}
	if entry.Action != "" {
		fields = append(fields, zap.String("action", entry.Action))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
	}
	return fields
}
