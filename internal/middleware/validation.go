package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/pathology-report-api/internal/handler"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var validationMessages = map[string]string{
	"required":   "field is required",
	"min":        "value is too short",
	"max":        "value is too long",
	"startswith": "value has an unexpected format",
}

// Validation turns binding errors attached by handlers into a 400 listing
// each offending field by its JSON name.
func Validation() gin.HandlerFunc {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	}

	return func(c *gin.Context) {
		c.Next()

		var fields []ValidationError
		for _, e := range c.Errors.ByType(gin.ErrorTypeBind) {
			var errs validator.ValidationErrors
			if !errors.As(e.Err, &errs) {
				fields = append(fields, ValidationError{Field: "body", Message: "malformed request body"})
				continue
			}
			for _, fe := range errs {
				msg := validationMessages[fe.Tag()]
				if msg == "" {
					msg = fe.Error()
				}
				fields = append(fields, ValidationError{Field: fe.Field(), Message: msg})
			}
		}
		if len(fields) == 0 || c.Writer.Written() {
			return
		}

		c.AbortWithStatusJSON(http.StatusBadRequest, &handler.Response{
			Status:  "error",
			Message: "validation failed",
			Data:    fields,
		})
	}
}
