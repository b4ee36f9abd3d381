package ops

import (
	"encoding/json"
	"errors"
	"net/http"

	"cinelog/internal/types"
)

// APIResponse is the envelope for successful responses.
type APIResponse struct {
	Data interface{} `json:"data,omitempty"`
}

// APIErrorResponse is the envelope for error responses.
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the structured error information returned to clients.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSON writes a JSON response with the given status code and payload.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(APIErrorResponse{
			Error: ErrorDetail{
				Code:    string(types.ErrCodeInternalUnexpected),
				Message: "failed to marshal response",
			},
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error writes an error response. An *types.AppError in the chain supplies
// the status code and client-safe message; anything else becomes a generic
// 500 so wrapped internals never leak.
func Error(w http.ResponseWriter, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		JSON(w, appErr.HTTPStatus(), APIErrorResponse{
			Error: ErrorDetail{
				Code:    string(appErr.Code),
				Message: appErr.Message,
			},
		})
		return
	}

	JSON(w, http.StatusInternalServerError, APIErrorResponse{
		Error: ErrorDetail{
			Code:    string(types.ErrCodeInternalUnexpected),
			Message: "an unexpected error occurred",
		},
	})
}
