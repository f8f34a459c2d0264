package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nkiryanov/kaizen/internal/models"
)

// Envelope statuses
const (
	StatusSuccess      = "success"
	StatusError        = "error"
	StatusUnauthorized = "unauthorized"
	StatusNotFound     = "not_found"
	StatusRateLimited  = "rate_limited"
	StatusServerError  = "server_error"
)

var validate = newValidator()

type Struct any

type SuccessResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type ErrorResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Code    int               `json:"code"`
	Fields  map[string]string `json:"fields,omitempty"`

	// Error text, only outside production
	Detail string `json:"detail,omitempty"`
}

// Render success envelope with status 200
func JSON(w http.ResponseWriter, message string, data any) {
	Success(w, http.StatusOK, message, data)
}

// Render success envelope with the given status code
func Success(w http.ResponseWriter, code int, message string, data any) {
	jsonWithStatus(w, SuccessResponse{Status: StatusSuccess, Message: message, Data: data}, code)
}

// Render error envelope, its status derived from code
func Fail(w http.ResponseWriter, message string, code int) {
	jsonWithStatus(w, ErrorResponse{Status: statusFor(code), Message: message, Code: code}, code)
}

// Render json DecodeError
func DecodeError(w http.ResponseWriter, err error) {
	response := ErrorResponse{
		Status: StatusError,
		Code:   http.StatusBadRequest,
	}

	// Try to provide more specific error message based on error type
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &typeErr):
		response.Message = fmt.Sprintf("Invalid data type for field '%s'", typeErr.Field)
	default:
		response.Message = fmt.Sprintf("Failed to parse JSON: %s", err.Error())
	}

	jsonWithStatus(w, response, http.StatusBadRequest)
}

// Render ValidationErrors
func ValidationErrors(w http.ResponseWriter, errs validator.ValidationErrors) {
	response := ErrorResponse{
		Status:  StatusError,
		Message: "Request validation failed",
		Code:    http.StatusBadRequest,
		Fields:  make(map[string]string, len(errs)),
	}

	// Create user-friendly error messages based on validation tag
	for _, fieldError := range errs {
		var message string
		switch fieldError.Tag() {
		case "required":
			message = "This field is required"
		case "min":
			message = fmt.Sprintf("Value is too short (minimum %s)", fieldError.Param())
		case "max":
			message = fmt.Sprintf("Value is too long (maximum %s)", fieldError.Param())
		case "email":
			message = "Must be a valid email address"
		case "oneof":
			message = fmt.Sprintf("Must be one of: %s", fieldError.Param())
		case tagTaskCategory:
			message = fmt.Sprintf("Must be one of: %s", strings.Join(models.TaskCategories, " "))
		case "uuid":
			message = "Must be a valid UUID"
		default:
			message = "Invalid value"
		}

		response.Fields[fieldName(fieldError)] = message
	}

	jsonWithStatus(w, response, http.StatusBadRequest)
}

// BindAndValidate decodes JSON request body into type T and validates it using struct tags.
// Returns the decoded value and writes appropriate error responses for decoding or validation failures.
func BindAndValidate[T Struct](w http.ResponseWriter, r *http.Request) (T, error) {
	var value T

	err := json.NewDecoder(r.Body).Decode(&value)
	if err != nil {
		DecodeError(w, err)
		return value, err
	}

	err = validate.Struct(value)
	if err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			ValidationErrors(w, errs)
		} else {
			Fail(w, "Request validation failed", http.StatusBadRequest)
		}
		return value, err
	}

	return value, nil
}

// Path to the field without root struct name: "tasks[0].name"
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func statusFor(code int) string {
	switch {
	case code == http.StatusUnauthorized:
		return StatusUnauthorized
	case code == http.StatusNotFound:
		return StatusNotFound
	case code == http.StatusTooManyRequests:
		return StatusRateLimited
	case code >= http.StatusInternalServerError:
		return StatusServerError
	default:
		return StatusError
	}
}

// jsonWithStatus sends data as json and enforces status code
func jsonWithStatus(w http.ResponseWriter, data any, code int) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)

	if err := enc.Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}
