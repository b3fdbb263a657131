package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/campaign-links/internal/service"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrSoldOut), errors.Is(err, service.ErrCodeTaken):
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

// writeError renders a service error as {ok:false, reason, error}.  The
// cause of a 5xx is logged and replaced by a generic message.
func writeError(c echo.Context, log *zap.Logger, err error, extra echo.Map) error {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		msg = "temporarily unavailable, please try again"
	}
	body := echo.Map{"ok": false, "reason": service.Reason(err), "error": msg}
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		body["field"] = ve.Field
	}
	for k, v := range extra {
		body[k] = v
	}
	return c.JSON(status, body)
}

func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func nopIfNil(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
