package handlers

import (
	"errors"

	"github.com/MarkoPoloResearchLab/points/internal/catalog"
	"github.com/MarkoPoloResearchLab/points/pkg/points"
)

// Handler-level error values.
var (
	ErrUnknownHandler    = errors.New("unknown handler")
	ErrMissingArgument   = errors.New("missing argument")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidDependency = errors.New("invalid handler dependency")
)

// Stable error codes reported to the host.
const (
	CodeUnknownHandler      = "unknown_handler"
	CodeMissingArgument     = "missing_argument"
	CodeInvalidArgument     = "invalid_argument"
	CodePlatformNotFound    = "platform_not_found"
	CodeUnknownPlatform     = "unknown_platform"
	CodeUnsupportedPlatform = "unsupported_platform"
	CodeUnknownLedger       = "unknown_ledger"
	CodeUnknownCatalog      = "unknown_catalog"
	CodeUserNotFound        = "user_not_found"
	CodeUnknownBalance      = "unknown_balance"
	CodeInsufficientFunds   = "insufficient_funds"
	CodeEmptyMessage        = "empty_message"
	CodeNoEnabledActions    = "no_enabled_actions"
	CodeUnknownRedeemKey    = "unknown_redeem_key"
	CodeRedeemKeyRequired   = "redeem_key_required"
	CodeActionDisabled      = "action_disabled"
	CodeActionFailed        = "action_failed"
	CodeInternal            = "internal"
)

var errorCodes = []struct {
	target error
	code   string
}{
	{target: ErrUnknownHandler, code: CodeUnknownHandler},
	{target: ErrMissingArgument, code: CodeMissingArgument},
	{target: ErrInvalidArgument, code: CodeInvalidArgument},
	{target: catalog.ErrUnknownCatalog, code: CodeUnknownCatalog},
	{target: points.ErrPlatformNotFound, code: CodePlatformNotFound},
	{target: points.ErrUnknownPlatform, code: CodeUnknownPlatform},
	{target: points.ErrUnsupportedPlatform, code: CodeUnsupportedPlatform},
	{target: points.ErrInvalidLedgerName, code: CodeUnknownLedger},
	{target: points.ErrUserNotFound, code: CodeUserNotFound},
	{target: points.ErrInvalidUsername, code: CodeInvalidArgument},
	{target: points.ErrInvalidUserID, code: CodeInvalidArgument},
	{target: points.ErrUnknownBalance, code: CodeUnknownBalance},
	{target: points.ErrInsufficientFunds, code: CodeInsufficientFunds},
	{target: points.ErrEmptyMessage, code: CodeEmptyMessage},
	{target: points.ErrNoEnabledActions, code: CodeNoEnabledActions},
	{target: points.ErrUnknownRedeemKey, code: CodeUnknownRedeemKey},
	{target: points.ErrRedeemKeyRequired, code: CodeRedeemKeyRequired},
	{target: points.ErrActionDisabled, code: CodeActionDisabled},
	{target: points.ErrActionFailed, code: CodeActionFailed},
}

// ErrorCode maps a handler failure to its stable code; unmapped failures are "internal".
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, mapping := range errorCodes {
		if errors.Is(err, mapping.target) {
			return mapping.code
		}
	}
	return CodeInternal
}
