package handler

import (
	"github.com/gin-gonic/gin"
)

// Response is the envelope of every JSON body the API returns.
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// Fail hands err to the error middleware, which picks the status from it.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// FailBinding reports a request body or parameter that did not bind.
func FailBinding(c *gin.Context, err error) {
	_ = c.Error(err).SetType(gin.ErrorTypeBind)
	c.Abort()
}
