// Package errors provides error handling and HTTP status code mapping.
package errors

import (
	"errors"
	"net/http"

	"github.com/remiblancher/sigcore/internal/api/dto"
	"github.com/remiblancher/sigcore/internal/api/service"
	"github.com/remiblancher/sigcore/pkg/cose"
	pkicrypto "github.com/remiblancher/sigcore/pkg/crypto"
)

// Error codes for API responses.
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeValidation         = "VALIDATION_ERROR"
	CodeLengthMismatch     = "LENGTH_MISMATCH"
	CodeDataTooLong        = "DATA_TOO_LONG"
	CodeKeyTooSmall        = "KEY_TOO_SMALL"
	CodeInvalidParameters  = "INVALID_PARAMETER_COMBINATION"
	CodeOddLength          = "ODD_LENGTH"
	CodeMalformedEncoding  = "MALFORMED_ENCODING"
	CodeSignatureTooLarge  = "SIGNATURE_TOO_LARGE"
	CodeSizeOutOfRange     = "SIZE_OUT_OF_RANGE"
	CodeMissingAuxiliary   = "MISSING_AUXILIARY_KEY"
	CodeInvalidKey         = "INVALID_KEY"
	CodeUnsupported        = "UNSUPPORTED_ALGORITHM"
	CodeHashNotFound       = "HASH_NOT_FOUND"
	CodeVerificationFailed = "VERIFICATION_FAILED"
	CodeNoVerificationKey  = "NO_VERIFICATION_KEY"
	CodeInternal           = "INTERNAL_ERROR"
)

// sentinelCodes is checked in order; the first match wins.
var sentinelCodes = []struct {
	err    error
	status int
	code   string
}{
	{pkicrypto.ErrLengthMismatch, http.StatusBadRequest, CodeLengthMismatch},
	{pkicrypto.ErrDataTooLong, http.StatusUnprocessableEntity, CodeDataTooLong},
	{pkicrypto.ErrKeyTooSmall, http.StatusUnprocessableEntity, CodeKeyTooSmall},
	{pkicrypto.ErrInvalidParameterCombination, http.StatusBadRequest, CodeInvalidParameters},
	{pkicrypto.ErrOddLength, http.StatusBadRequest, CodeOddLength},
	{pkicrypto.ErrMalformedEncoding, http.StatusBadRequest, CodeMalformedEncoding},
	{pkicrypto.ErrSignatureTooLarge, http.StatusUnprocessableEntity, CodeSignatureTooLarge},
	{pkicrypto.ErrSizeOutOfRange, http.StatusBadRequest, CodeSizeOutOfRange},
	{pkicrypto.ErrMissingAuxiliaryKey, http.StatusPreconditionFailed, CodeMissingAuxiliary},
	{pkicrypto.ErrInvalidKey, http.StatusBadRequest, CodeInvalidKey},
	{pkicrypto.ErrUnsupportedAlgorithm, http.StatusBadRequest, CodeUnsupported},
	{pkicrypto.ErrHashNotFound, http.StatusBadRequest, CodeHashNotFound},
	{pkicrypto.ErrVerification, http.StatusUnprocessableEntity, CodeVerificationFailed},
	{cose.ErrNoVerificationKey, http.StatusBadRequest, CodeNoVerificationKey},
	{service.ErrInvalidInput, http.StatusBadRequest, CodeInvalidRequest},
}

// MapError maps an internal error to an HTTP status code and APIError.
func MapError(err error) (int, *dto.APIError) {
	if err == nil {
		return http.StatusOK, nil
	}

	// A missing DigestInfo prefix is a registry defect, not a caller error.
	if errors.Is(err, pkicrypto.ErrMissingPrefix) {
		return http.StatusInternalServerError, &dto.APIError{
			Code:    CodeInternal,
			Message: "An internal error occurred",
		}
	}

	for _, sc := range sentinelCodes {
		if errors.Is(err, sc.err) {
			apiErr := &dto.APIError{
				Code:    sc.code,
				Message: err.Error(),
			}
			var sigErr *pkicrypto.SignatureError
			if errors.As(err, &sigErr) {
				apiErr.Details = map[string]string{"operation": sigErr.Op}
				if sigErr.Detail != "" {
					apiErr.Details["detail"] = sigErr.Detail
				}
			}
			return sc.status, apiErr
		}
	}

	// Default internal error
	return http.StatusInternalServerError, &dto.APIError{
		Code:    CodeInternal,
		Message: "An internal error occurred",
	}
}

// NewBadRequest creates a bad request error.
func NewBadRequest(message string) *dto.APIError {
	return &dto.APIError{
		Code:    CodeInvalidRequest,
		Message: message,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(message string, details map[string]string) *dto.APIError {
	return &dto.APIError{
		Code:    CodeValidation,
		Message: message,
		Details: details,
	}
}
