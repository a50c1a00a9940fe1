package handler

import (
	"net/http"

	"github.com/remiblancher/sigcore/internal/api/dto"
	"github.com/remiblancher/sigcore/internal/api/service"
)

// SignatureHandler handles encoding, conversion and verification requests.
type SignatureHandler struct {
	service *service.SignatureService
}

// NewSignatureHandler creates a new SignatureHandler.
func NewSignatureHandler(svc *service.SignatureService) *SignatureHandler {
	return &SignatureHandler{service: svc}
}

// Hashes handles GET /api/v1/hashes
func (h *SignatureHandler) Hashes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.service.Hashes(r.Context()))
}

// EncodePKCS1 handles POST /api/v1/encode/pkcs1
func (h *SignatureHandler) EncodePKCS1(w http.ResponseWriter, r *http.Request) {
	var req dto.EncodePKCS1Request
	if !decodeRequest(w, r, &req) {
		return
	}

	resp, err := h.service.EncodePKCS1(r.Context(), &req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// EncodePSS handles POST /api/v1/encode/pss
func (h *SignatureHandler) EncodePSS(w http.ResponseWriter, r *http.Request) {
	var req dto.EncodePSSRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	resp, err := h.service.EncodePSS(r.Context(), &req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// ConvertToDER handles POST /api/v1/convert/der
func (h *SignatureHandler) ConvertToDER(w http.ResponseWriter, r *http.Request) {
	var req dto.ConvertRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	resp, err := h.service.ConvertToDER(r.Context(), &req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// ConvertToPlain handles POST /api/v1/convert/plain
func (h *SignatureHandler) ConvertToPlain(w http.ResponseWriter, r *http.Request) {
	var req dto.ConvertRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	resp, err := h.service.ConvertToPlain(r.Context(), &req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// Verify handles POST /api/v1/verify
func (h *SignatureHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	resp, err := h.service.Verify(r.Context(), &req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// VerifyCOSE handles POST /api/v1/cose/verify
func (h *SignatureHandler) VerifyCOSE(w http.ResponseWriter, r *http.Request) {
	var req dto.COSEVerifyRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	resp, err := h.service.VerifyCOSE(r.Context(), &req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}
