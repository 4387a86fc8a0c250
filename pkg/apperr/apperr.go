package apperr

import (
	"errors"
	"fmt"
)

const (
	MetaReason     = "reason"
	MetaStage      = "stage"
	MetaField      = "field"
	MetaProfile    = "profile"
	MetaModel      = "model"
	MetaSelector   = "selector"
	MetaURL        = "url"
	MetaScreenshot = "screenshot"
	MetaElapsed    = "elapsed"
	MetaDeadline   = "deadline"

	StageBrowser      = "browser"
	StageSession      = "session"
	StageAuth         = "auth"
	StageVerification = "verification"
	StageModel        = "model"
	StageQuery        = "query"
	StageExtraction   = "extraction"
	StageNavigation   = "navigation"
	StageInteraction  = "interaction"

	CodeInternal               = "internal"
	CodeInvalidArgument        = "invalid_argument"
	CodeNotFound               = "not_found"
	CodeTimeout                = "timeout"
	CodeBrowserNotReady        = "browser_not_ready"
	CodeLaunchFailed           = "launch_failed"
	CodeActionFailed           = "action_failed"
	CodeCredentialsUnavailable = "credentials_unavailable"
	CodeLoginNotConfirmed      = "login_not_confirmed"
	CodeSessionInvalid         = "session_invalid"
	CodeEmptyResponse          = "empty_response"
)

type Error struct {
	Op       string
	Code     string
	Err      error
	Metadata map[string]any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}

	return e.Op
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Wrap(op, code string, err error, metadata map[string]any) error {
	if metadata == nil {
		metadata = make(map[string]any)
	}

	return &Error{
		Op:       op,
		Code:     code,
		Err:      err,
		Metadata: metadata,
	}
}

func WrapWithReason(op, code string, err error, reason string) error {
	return Wrap(op, code, err, map[string]any{
		MetaReason: reason,
	})
}

func WrapErrorWithReason(op, code, reason string) error {
	return Wrap(op, code, errors.New(reason), map[string]any{
		MetaReason: reason,
	})
}

func InvalidReqError(op, field string, err error) error {
	return Wrap(op, CodeInvalidArgument, err, map[string]any{
		MetaField:  field,
		MetaReason: "invalid_request",
	})
}

// CodeOf returns the code of the outermost *Error in the chain, or "".
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}

	return ""
}

// HasCode reports whether any *Error in the chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		var appErr *Error
		if !errors.As(err, &appErr) {
			return false
		}

		if appErr.Code == code {
			return true
		}

		err = appErr.Err
	}

	return false
}

// Meta looks up a metadata value on the first *Error in the chain that has it.
func Meta(err error, key string) (any, bool) {
	for err != nil {
		var appErr *Error
		if !errors.As(err, &appErr) {
			return nil, false
		}

		if v, ok := appErr.Metadata[key]; ok {
			return v, true
		}

		err = appErr.Err
	}

	return nil, false
}
