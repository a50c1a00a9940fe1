package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/remiblancher/sigcore/internal/api/service"
	"github.com/remiblancher/sigcore/pkg/cose"
	pkicrypto "github.com/remiblancher/sigcore/pkg/crypto"
)

// =============================================================================
// [Unit] MapError Tests
// =============================================================================

func TestU_MapError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"nil", nil, http.StatusOK, ""},
		{"data too long", &pkicrypto.SignatureError{Op: "pkcs1", Err: pkicrypto.ErrDataTooLong}, http.StatusUnprocessableEntity, CodeDataTooLong},
		{"key too small", &pkicrypto.SignatureError{Op: "pss", Err: pkicrypto.ErrKeyTooSmall}, http.StatusUnprocessableEntity, CodeKeyTooSmall},
		{"length mismatch", &pkicrypto.SignatureError{Op: "pkcs1", Err: pkicrypto.ErrLengthMismatch}, http.StatusBadRequest, CodeLengthMismatch},
		{"size out of range", &pkicrypto.SignatureError{Op: "der-to-plain", Err: pkicrypto.ErrSizeOutOfRange}, http.StatusBadRequest, CodeSizeOutOfRange},
		{"shake parameters", &pkicrypto.SignatureError{Op: "pss", Err: pkicrypto.ErrInvalidParameterCombination}, http.StatusBadRequest, CodeInvalidParameters},
		{"odd length", &pkicrypto.SignatureError{Op: "plain-to-der", Err: pkicrypto.ErrOddLength}, http.StatusBadRequest, CodeOddLength},
		{"malformed", &pkicrypto.SignatureError{Op: "der-to-plain", Err: pkicrypto.ErrMalformedEncoding}, http.StatusBadRequest, CodeMalformedEncoding},
		{"too large", &pkicrypto.SignatureError{Op: "der-to-plain", Err: pkicrypto.ErrSignatureTooLarge}, http.StatusUnprocessableEntity, CodeSignatureTooLarge},
		{"missing aux", &pkicrypto.SignatureError{Op: "resolve", Err: pkicrypto.ErrMissingAuxiliaryKey}, http.StatusPreconditionFailed, CodeMissingAuxiliary},
		{"invalid key", &pkicrypto.SignatureError{Op: "resolve", Err: pkicrypto.ErrInvalidKey}, http.StatusBadRequest, CodeInvalidKey},
		{"unsupported", &pkicrypto.SignatureError{Op: "resolve", Err: pkicrypto.ErrUnsupportedAlgorithm}, http.StatusBadRequest, CodeUnsupported},
		{"hash not found", fmt.Errorf("lookup: %w", pkicrypto.ErrHashNotFound), http.StatusBadRequest, CodeHashNotFound},
		{"verification", &pkicrypto.SignatureError{Op: "verify", Err: pkicrypto.ErrVerification}, http.StatusUnprocessableEntity, CodeVerificationFailed},
		{"missing prefix", &pkicrypto.SignatureError{Op: "pkcs1", Err: pkicrypto.ErrMissingPrefix}, http.StatusInternalServerError, CodeInternal},
		{"cose no key", &cose.COSEError{Op: "verify", Err: cose.ErrNoVerificationKey}, http.StatusBadRequest, CodeNoVerificationKey},
		{"invalid input", fmt.Errorf("%w: digest: bad base64", service.ErrInvalidInput), http.StatusBadRequest, CodeInvalidRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, apiErr := MapError(tt.err)
			if status != tt.wantStatus {
				t.Errorf("MapError() status = %d, want %d", status, tt.wantStatus)
			}
			if tt.err == nil {
				if apiErr != nil {
					t.Errorf("MapError(nil) = %+v, want nil", apiErr)
				}
				return
			}
			if apiErr.Code != tt.wantCode {
				t.Errorf("MapError() code = %s, want %s", apiErr.Code, tt.wantCode)
			}
		})
	}
}

func TestU_MapError_Details(t *testing.T) {
	err := &pkicrypto.SignatureError{Op: "pkcs1", Detail: "need 62 bytes, have 61", Err: pkicrypto.ErrDataTooLong}

	_, apiErr := MapError(err)
	if apiErr.Details["operation"] != "pkcs1" {
		t.Errorf("Expected operation detail pkcs1, got %q", apiErr.Details["operation"])
	}
	if apiErr.Details["detail"] != "need 62 bytes, have 61" {
		t.Errorf("Expected size detail, got %q", apiErr.Details["detail"])
	}
}

func TestU_MapError_InternalHidesMessage(t *testing.T) {
	_, apiErr := MapError(errors.New("open /etc/secret: permission denied"))
	if apiErr.Message != "An internal error occurred" {
		t.Errorf("Expected generic message, got %q", apiErr.Message)
	}
}
