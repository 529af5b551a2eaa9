package transport

import (
	"net/http"

	"github.com/ds124wfegd/travel-booking/internal/entity"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SuccessResponse представляет успешный ответ
type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

var kindStatus = map[entity.ErrorKind]int{
	entity.KindValidation:   http.StatusBadRequest,
	entity.KindNotFound:     http.StatusNotFound,
	entity.KindForbidden:    http.StatusForbidden,
	entity.KindInvalidState: http.StatusConflict,
	entity.KindConflict:     http.StatusConflict,
}

// HTTPStatus maps an error kind to its response status. Errors without a
// kind are internal.
func HTTPStatus(err error) int {
	if status, ok := kindStatus[entity.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func respondOK(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, SuccessResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func respondError(c *gin.Context, err error) {
	status := HTTPStatus(err)
	kind := entity.KindOf(err)

	if kind == "" {
		_ = c.Error(err)
		logrus.WithError(err).WithField("path", c.Request.URL.Path).Error("internal error")
		c.JSON(status, ErrorResponse{
			Success: false,
			Error:   "internal server error",
			Code:    "INTERNAL",
		})
		return
	}

	c.JSON(status, ErrorResponse{
		Success: false,
		Error:   err.Error(),
		Code:    string(kind),
	})
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Success: false,
		Error:   message,
		Code:    string(entity.KindValidation),
	})
}
