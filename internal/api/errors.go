package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"connectrpc.com/connect"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func init() {
	// Report binding failures under the JSON field name.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

// httpStatus maps a service error code to the REST status it is reported with.
func httpStatus(code connect.Code) int {
	switch code {
	case connect.CodeInvalidArgument, connect.CodeOutOfRange:
		return http.StatusBadRequest
	case connect.CodeUnauthenticated:
		return http.StatusUnauthorized
	case connect.CodePermissionDenied:
		return http.StatusForbidden
	case connect.CodeNotFound:
		return http.StatusNotFound
	case connect.CodeAlreadyExists, connect.CodeFailedPrecondition, connect.CodeAborted:
		return http.StatusConflict
	case connect.CodeResourceExhausted:
		return http.StatusTooManyRequests
	case connect.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": code, "message": text}. Errors that
// did not come from a service are reported as internal without their text.
func respondError(c *gin.Context, err error) {
	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		slog.Error("Unclassified handler error", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": connect.CodeInternal.String(), "message": "internal error"})
		return
	}

	message := connectErr.Message()
	if connectErr.Code() == connect.CodeInternal {
		message = "internal error"
	}
	c.JSON(httpStatus(connectErr.Code()), gin.H{"error": connectErr.Code().String(), "message": message})
}

// bindError reports a failed ShouldBindJSON, naming the first invalid field.
func bindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		badRequest(c, "invalid payload")
		return
	}
	badRequest(c, fieldMessage(verrs[0]))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min":
		return fmt.Sprintf("%s must be at least %s %s", field, fe.Param(), lengthUnit(fe.Kind()))
	case "max":
		return fmt.Sprintf("%s must be at most %s %s", field, fe.Param(), lengthUnit(fe.Kind()))
	default:
		return field + " is invalid"
	}
}

func lengthUnit(k reflect.Kind) string {
	if k == reflect.Slice || k == reflect.Array {
		return "items"
	}
	return "characters"
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": connect.CodeInvalidArgument.String(), "message": message})
}
