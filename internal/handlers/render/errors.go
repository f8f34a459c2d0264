package render

import (
	"net/http"

	"github.com/nkiryanov/kaizen/internal/apperrors"
	"github.com/nkiryanov/kaizen/internal/logger"
)

// Single place errors are turned into responses
// Client safe errors rendered as is, anything else becomes logged 500
type ErrorWriter struct {
	logger  logger.Logger
	verbose bool
}

// verbose adds error text to 500 responses, never enable it in production
func NewErrorWriter(l logger.Logger, verbose bool) *ErrorWriter {
	return &ErrorWriter{logger: l, verbose: verbose}
}

func (ew *ErrorWriter) Error(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperrors.As(err)
	if ok && appErr.Code < http.StatusInternalServerError {
		Fail(w, appErr.Message, appErr.Code)
		return
	}

	message := "Internal server error"
	if ok {
		message = appErr.Message
	}

	ew.logger.Error("Request failed", "method", r.Method, "uri", r.RequestURI, "error", err)

	response := ErrorResponse{
		Status:  StatusServerError,
		Message: message,
		Code:    http.StatusInternalServerError,
	}
	if ew.verbose {
		response.Detail = err.Error()
	}

	jsonWithStatus(w, response, http.StatusInternalServerError)
}
