package domain

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies every failure the core reports.
type Kind string

const (
	KindConnectionNotFound  Kind = "ConnectionNotFound"
	KindConnectionBusy      Kind = "ConnectionBusy"
	KindEngineUnsupported   Kind = "EngineUnsupported"
	KindBackupFileNotFound  Kind = "BackupFileNotFound"
	KindDumpFailed          Kind = "DumpFailed"
	KindRestoreFailed       Kind = "RestoreFailed"
	KindCancelled           Kind = "Cancelled"
	KindTimeout             Kind = "Timeout"
	KindDuplicateName       Kind = "DuplicateName"
	KindInvalidProfile      Kind = "InvalidProfile"
	KindRestoreNotConfirmed Kind = "RestoreNotConfirmed"
)

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrConnectionNotFound  = &Error{Kind: KindConnectionNotFound}
	ErrConnectionBusy      = &Error{Kind: KindConnectionBusy}
	ErrEngineUnsupported   = &Error{Kind: KindEngineUnsupported}
	ErrBackupFileNotFound  = &Error{Kind: KindBackupFileNotFound}
	ErrDumpFailed          = &Error{Kind: KindDumpFailed}
	ErrRestoreFailed       = &Error{Kind: KindRestoreFailed}
	ErrCancelled           = &Error{Kind: KindCancelled}
	ErrTimeout             = &Error{Kind: KindTimeout}
	ErrDuplicateName       = &Error{Kind: KindDuplicateName}
	ErrInvalidProfile      = &Error{Kind: KindInvalidProfile}
	ErrRestoreNotConfirmed = &Error{Kind: KindRestoreNotConfirmed}
)

// Error is the typed failure returned across the orchestrator boundary.
// Reason carries tool output verbatim for diagnostics.
type Error struct {
	Kind       Kind
	Connection string
	Reason     string
	Err        error
}

func NewError(kind Kind, connection, reason string, cause error) *Error {
	return &Error{Kind: kind, Connection: connection, Reason: reason, Err: cause}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Connection != "" {
		msg += fmt.Sprintf(" [%s]", e.Connection)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil && e.Reason == "" {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the kind of err. Context errors map to Cancelled and
// Timeout; anything else unclassified yields "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	return ""
}
