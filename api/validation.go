package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// APIError is the standard error envelope for every non-2xx response.
type APIError struct {
	Error   string      `json:"error"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

func validateStruct(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	details := make(map[string]string)
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			switch fe.Tag() {
			case "required":
				details[fe.Field()] = "this field is required"
			case "gt":
				details[fe.Field()] = "value must be greater than " + fe.Param()
			case "gte":
				details[fe.Field()] = "value must be greater than or equal to " + fe.Param()
			case "lte":
				details[fe.Field()] = "value must be less than or equal to " + fe.Param()
			case "oneof":
				details[fe.Field()] = "value must be one of: " + fe.Param()
			default:
				details[fe.Field()] = "validation failed on tag: " + fe.Tag()
			}
		}
	}
	return details
}

func writeValidationError(w http.ResponseWriter, details map[string]string) {
	writeJSON(w, http.StatusBadRequest, APIError{
		Error:   "validation failed",
		Code:    "VALIDATION_ERROR",
		Details: details,
	})
}

func writeError(w http.ResponseWriter, status int, message string, code ...string) {
	errCode := "UNKNOWN_ERROR"
	if len(code) > 0 {
		errCode = code[0]
	} else {
		switch status {
		case http.StatusBadRequest:
			errCode = "BAD_REQUEST"
		case http.StatusUnauthorized:
			errCode = "UNAUTHORIZED"
		case http.StatusForbidden:
			errCode = "FORBIDDEN"
		case http.StatusNotFound:
			errCode = "NOT_FOUND"
		case http.StatusConflict:
			errCode = "CONFLICT"
		case http.StatusServiceUnavailable:
			errCode = "SERVICE_UNAVAILABLE"
		case http.StatusInternalServerError:
			errCode = "INTERNAL_ERROR"
		}
	}
	writeJSON(w, status, APIError{Error: message, Code: errCode})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
