package server

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/infrastructure/catalog"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code"`
	Fields map[string]string `json:"fields,omitempty"`
}

// statusFor maps a service error onto an HTTP status and a stable code.
func statusFor(err error) (int, string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "VALIDATION_FAILED"
	case errors.Is(err, domain.ErrEmptyCart):
		return http.StatusUnprocessableEntity, "EMPTY_CART"
	case errors.Is(err, domain.ErrCheckoutInProgress):
		return http.StatusConflict, "CHECKOUT_IN_PROGRESS"
	case errors.Is(err, domain.ErrNotCancelable):
		return http.StatusConflict, "NOT_CANCELABLE"
	case errors.Is(err, domain.ErrOrderNotRecorded):
		return http.StatusConflict, "PAID_UNCONFIRMED"
	case errors.Is(err, domain.ErrPaymentSubmission):
		return http.StatusBadGateway, "PAYMENT_SUBMISSION_FAILED"
	case errors.Is(err, domain.ErrCaptureFailed):
		return http.StatusPaymentRequired, "CAPTURE_FAILED"
	case errors.Is(err, domain.ErrCaptureTimeout):
		return http.StatusGatewayTimeout, "CAPTURE_TIMEOUT"
	case errors.Is(err, domain.ErrCheckoutCanceled):
		return http.StatusConflict, "CHECKOUT_CANCELED"
	case errors.Is(err, domain.ErrAttemptNotFound), errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound, "SESSION_NOT_FOUND"
	case errors.Is(err, catalog.ErrProductNotFound):
		return http.StatusNotFound, "PRODUCT_NOT_FOUND"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func errorBody(err error) (int, errorResponse) {
	status, code := statusFor(err)
	body := errorResponse{Error: err.Error(), Code: code}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}
	if status == http.StatusInternalServerError {
		body.Error = "internal server error"
	}
	return status, body
}

func (s *Server) abortWithError(c *gin.Context, err error) {
	status, body := errorBody(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, body)
}

// bindJSON decodes the body and reports binding failures as a
// ValidationError keyed by JSON field name.
func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return toValidationError(err)
	}
	return nil
}

func toValidationError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		out := &domain.ValidationError{}
		for _, fe := range ve {
			out.Add(fe.Field(), validationMessage(fe))
		}
		return out
	}
	return domain.NewValidationError("body", "malformed JSON body")
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "uuid":
		return "must be a valid uuid"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

var tagNamesOnce sync.Once

// registerJSONTagNames makes validator report the json name of a field.
func registerJSONTagNames() {
	tagNamesOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
	})
}
