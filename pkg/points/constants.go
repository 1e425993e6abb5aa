package points

import "time"

const (
	operationSet    = "set"
	operationAdd    = "add"
	operationSpend  = "spend"
	operationClear  = "clear"
	operationAward  = "award"
	operationRedeem = "redeem"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	errorOperationLedger    = "ledger"
	errorOperationGateway   = "gateway"
	errorOperationRedeem    = "redeem"
	errorSubjectBalance     = "balance"
	errorSubjectIdentity    = "identity"
	errorSubjectMessage     = "message"
	errorSubjectAction      = "action"
	errorCodeGet            = "get"
	errorCodeSet            = "set"
	errorCodeClear          = "clear"
	errorCodeResolve        = "resolve"
	errorCodeSend           = "send"
	errorCodeList           = "list"
	errorCodeRun            = "run"
	errorCodeUnresolvedUser = "unresolved_user"

	// DefaultMaxMessageLength is the longest chat message sent in one piece.
	DefaultMaxMessageLength = 200
	// DefaultMinMessagePause and DefaultMaxMessagePause bound the pause between chunks.
	DefaultMinMessagePause = 1500 * time.Millisecond
	DefaultMaxMessagePause = 2500 * time.Millisecond

	splitSearchBackoff = 20
	randomRedeemKey    = "random"
	keyListSeparator   = ", "
)
