package points

import (
	"context"
	"errors"
	"testing"
)

func TestOperationErrorFormatting(test *testing.T) {
	test.Parallel()
	wrapped := WrapError(errorOperationLedger, errorSubjectBalance, errorCodeSet, errStoreDown)
	expected := "ledger.balance.set: store down"
	if wrapped.Error() != expected {
		test.Fatalf("expected %q, got %q", expected, wrapped.Error())
	}
	var operationError OperationError
	if !errors.As(wrapped, &operationError) || operationError.Subject() != errorSubjectBalance {
		test.Fatalf("expected OperationError, got %T", wrapped)
	}
	if !errors.Is(wrapped, errStoreDown) {
		test.Fatalf("expected wrapped cause")
	}
}

func TestWrapErrorNil(test *testing.T) {
	test.Parallel()
	if WrapError(errorOperationLedger, errorSubjectBalance, errorCodeSet, nil) != nil {
		test.Fatalf("expected nil wrapped error")
	}
}

func TestCombineOperationLoggersSkipsNil(test *testing.T) {
	test.Parallel()
	first := &recorderLogger{}
	second := &recorderLogger{}
	combined := CombineOperationLoggers(first, nil, second)
	emitOperation(context.Background(), combined, OperationLog{Operation: operationSet})
	if len(first.snapshot()) != 1 || len(second.snapshot()) != 1 {
		test.Fatalf("expected both loggers to receive the entry")
	}
	if first.snapshot()[0].Status != operationStatusOK {
		test.Fatalf("expected ok status, got %q", first.snapshot()[0].Status)
	}
}
