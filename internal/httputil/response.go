package httputil

import (
	"encoding/json"
	"log"
	"net/http"

	"fedfollow/internal/model"
)

// ErrorResponse represents the standard error response format
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and message
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("[httputil] Failed to encode response: %v", err)
		}
	}
}

// WriteError writes an error response in the form
// {"error": {"code": "ERROR_CODE", "message": "Human readable message"}}
func WriteError(w http.ResponseWriter, status int, code string, message string) {
	WriteJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// StatusForCode returns the HTTP status for a machine-readable error code.
func StatusForCode(code string) int {
	switch code {
	case model.CodeNotFound, model.CodeNotFollowing:
		return http.StatusNotFound
	case model.CodeConflict, model.CodeAlreadyFollowing, model.CodeAlreadyAccepted:
		return http.StatusConflict
	case model.CodeSelfFollow, model.CodeBadRequest:
		return http.StatusBadRequest
	case model.CodeUnauthorized, model.CodeTokenExpired, model.CodeTokenInvalid:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// WriteServiceError renders an engine error with its stable code. Internal errors are
// logged and replaced by fallback so infrastructure details never reach clients.
func WriteServiceError(w http.ResponseWriter, err error, fallback string) {
	code := model.ErrorCode(err)
	if code == model.CodeInternal {
		log.Printf("[ERROR] %s: %v", fallback, err)
		WriteError(w, http.StatusInternalServerError, code, fallback)
		return
	}
	WriteError(w, StatusForCode(code), code, err.Error())
}

// Common error response helpers

// WriteBadRequest writes a 400 Bad Request error
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, model.CodeBadRequest, message)
}

// WriteUnauthorized writes a 401 Unauthorized error
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, model.CodeUnauthorized, message)
}

// WriteUnauthorizedWithCode writes a 401 Unauthorized error with a custom code
func WriteUnauthorizedWithCode(w http.ResponseWriter, code string, message string) {
	WriteError(w, http.StatusUnauthorized, code, message)
}
