package imports

import (
	"errors"
	"fmt"
	"net/http"

	"KURA-backend/internal/asset_mgmt/units"
)

// ---- Error model ----
type Code string

const (
	CodeInvalidInput     Code = "InvalidInput"
	CodeMalformedArchive Code = "MalformedArchive"
	CodeNotFound         Code = "NotFound"
	CodeInternal         Code = "Internal"

	// 以下は Warning 用
	CodeRowSubmissionFailed Code = "RowSubmissionFailed"
	CodeImageFetchFailed    Code = "ImageFetchFailed"
	CodeImageStoreFailed    Code = "ImageStoreFailed"
	CodeImportRecordFailed  Code = "ImportRecordFailed"
	CodeCancelled           Code = "Cancelled"
)

type APIError struct {
	Code    Code
	Message string
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func ErrInvalid(msg string) *APIError   { return &APIError{Code: CodeInvalidInput, Message: msg} }
func ErrMalformed(msg string) *APIError { return &APIError{Code: CodeMalformedArchive, Message: msg} }
func ErrNotFound(msg string) *APIError  { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrInternal(msg string) *APIError  { return &APIError{Code: CodeInternal, Message: msg} }

func ToHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidInput, CodeMalformedArchive:
			return http.StatusBadRequest
		case CodeNotFound:
			return http.StatusNotFound
		}
	}
	return http.StatusInternalServerError
}

type errorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorBody(code Code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func errorFromErr(err error) errorDTO {
	var api *APIError
	if errors.As(err, &api) {
		return errorBody(api.Code, api.Message)
	}
	return errorBody(CodeInternal, "internal error")
}

// messageOf は警告に載せる文言。内部エラーの詳細は出さない。
func messageOf(err error) string {
	var ue *units.APIError
	if errors.As(err, &ue) {
		return ue.Message
	}
	var api *APIError
	if errors.As(err, &api) {
		return api.Message
	}
	return "internal error"
}
