package api

import (
	"errors"
	"net/http"
	"strconv"

	"PoolSettle/internal/apperr"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// writeError 按错误类别映射 HTTP 状态码：validation 400 / not_found 404 / conflict 409 / 其他 500
func writeError(c *gin.Context, logger *logrus.Logger, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperr.IsValidation(err):
		status = http.StatusBadRequest
	case apperr.IsNotFound(err):
		status = http.StatusNotFound
	case apperr.IsConflict(err):
		status = http.StatusConflict
	}

	var ae *apperr.AppError
	if status == http.StatusInternalServerError || !errors.As(err, &ae) {
		logger.WithError(err).WithField("path", c.FullPath()).Error(op + " failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "INTERNAL"})
		return
	}
	c.JSON(status, gin.H{"error": ae.Message, "code": ae.Code})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": apperr.CodeInvalidRequest})
}

// marketIDParam 解析路径参数 :id，失败时已写入 400
func marketIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "invalid market id")
		return 0, false
	}
	return id, true
}
