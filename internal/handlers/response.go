package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"cache-service/internal/common/errors"
)

// Envelope codes.
const (
	CodeSuccess  = "S"
	CodeBusiness = "E1"
	CodeSystem   = "E2"
)

// Envelope wraps every API response.
type Envelope struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Data       interface{}            `json:"data,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

func (h *Handlers) writeEnvelope(w http.ResponseWriter, env Envelope) {
	h.writeStatus(w, http.StatusOK, env)
}

func (h *Handlers) writeStatus(w http.ResponseWriter, status int, env Envelope) {
	env.Timestamp = h.now().UTC()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		h.logger.Error("Failed to encode response", err)
	}
}

func (h *Handlers) success(w http.ResponseWriter, message string, data interface{}) {
	h.writeEnvelope(w, Envelope{Code: CodeSuccess, Message: message, Data: data})
}

func (h *Handlers) notFound(w http.ResponseWriter, key string) {
	h.writeEnvelope(w, Envelope{
		Code:    CodeBusiness,
		Message: fmt.Sprintf("Key not found: %s", key),
		Extensions: map[string]interface{}{
			"errorType": errors.ErrTypeNotFound,
		},
	})
}

// fail maps err onto a business or system envelope. Validation and not-found
// errors are the caller's problem; anything else is reported as a system
// failure and logged.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	env := Envelope{
		Code:    CodeSystem,
		Message: err.Error(),
		Extensions: map[string]interface{}{
			"errorType": errors.GetType(err),
		},
	}

	if appErr, ok := errors.As(err); ok {
		env.Message = appErr.Message
		if fields, ok := appErr.Context["fields"]; ok {
			env.Extensions["fields"] = fields
		}
	}

	if errors.IsBusiness(err) {
		env.Code = CodeBusiness
	} else {
		h.logger.WithContext(r.Context()).Error("Request failed", err)
	}
	h.writeEnvelope(w, env)
}

// decode reads a JSON body into dst and validates its struct tags.
func (h *Handlers) decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.ValidationError(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return h.validator.ValidateStruct(dst)
}
