package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/pm8sim/internal/bridges/modbus"
)

// ErrorResponse is the body of every 4xx and 5xx reply. The panel shows
// Message as is.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes carried in ErrorResponse.Code.
const (
	CodeInvalidBody     = "invalid_body"
	CodeInvalidSetpoint = "invalid_setpoint"
	CodeInternal        = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// writeSetpointError maps a rejected setpoint command: values the register
// cannot hold are 422, anything else is an unreadable body.
func writeSetpointError(w http.ResponseWriter, err error) {
	if errors.Is(err, modbus.ErrInvalidSetpoint) {
		writeError(w, http.StatusUnprocessableEntity, CodeInvalidSetpoint, err.Error())
		return
	}
	writeError(w, http.StatusBadRequest, CodeInvalidBody, "invalid JSON body")
}
