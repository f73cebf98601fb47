package lends

import (
	"errors"
	"fmt"
	"net/http"
)

// ---- Error model ----
type Code string

const (
	CodeInvalidInput    Code = "InvalidInput"
	CodeNoAvailableUnit Code = "NoAvailableUnit"
	CodeNoHeldUnit      Code = "NoHeldUnit"
	CodeInternal        Code = "Internal"
)

type APIError struct {
	Code    Code
	Message string
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func ErrInvalid(msg string) *APIError     { return &APIError{Code: CodeInvalidInput, Message: msg} }
func ErrNoAvailable(msg string) *APIError { return &APIError{Code: CodeNoAvailableUnit, Message: msg} }
func ErrNoHeld(msg string) *APIError      { return &APIError{Code: CodeNoHeldUnit, Message: msg} }
func ErrInternal(msg string) *APIError    { return &APIError{Code: CodeInternal, Message: msg} }

// CodeOf はエラーの種別を返す。APIError 以外は Internal。
func CodeOf(err error) Code {
	var api *APIError
	if errors.As(err, &api) {
		return api.Code
	}
	return CodeInternal
}

func ToHTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNoAvailableUnit, CodeNoHeldUnit:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// FailureOutcome はエラーを境界表現に変換する。内部エラーの詳細は出さない。
func FailureOutcome(err error) Outcome {
	var api *APIError
	if errors.As(err, &api) {
		return Outcome{Success: false, ErrorKind: api.Code, Message: api.Message}
	}
	return Outcome{Success: false, ErrorKind: CodeInternal, Message: "internal error"}
}
