package points

import "context"

// OperationLogger records domain-level events emitted by ledger, redemption and award operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing operation.
type OperationLog struct {
	Operation  string
	Ledger     LedgerName
	Platform   Platform
	UserID     UserID
	Actor      string
	Amount     int64
	OldBalance Balance
	NewBalance Balance
	Action     string
	Status     string
	Error      error
}

// OperationLoggerFunc adapts a function to OperationLogger.
type OperationLoggerFunc func(ctx context.Context, entry OperationLog)

// LogOperation calls the wrapped function.
func (log OperationLoggerFunc) LogOperation(ctx context.Context, entry OperationLog) {
	log(ctx, entry)
}

// CombineOperationLoggers fans every entry out to each non-nil logger.
func CombineOperationLoggers(loggers ...OperationLogger) OperationLogger {
	active := make([]OperationLogger, 0, len(loggers))
	for _, logger := range loggers {
		if logger != nil {
			active = append(active, logger)
		}
	}
	return OperationLoggerFunc(func(ctx context.Context, entry OperationLog) {
		for _, logger := range active {
			logger.LogOperation(ctx, entry)
		}
	})
}

func emitOperation(ctx context.Context, logger OperationLogger, entry OperationLog) {
	if logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	logger.LogOperation(ctx, entry)
}
