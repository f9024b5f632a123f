package presenter

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/isey69/sale-forces-crm-sub000"
	"github.com/isey69/sale-forces-crm-sub000/internal/domain"
)

const (
	KindNotFound    = "not_found"
	KindValidation  = "validation"
	KindConsistency = "consistency"
	KindConflict    = "conflict"
	KindInternal    = "internal"
)

// OK wraps a successful response.
func OK(c echo.Context, payload any) error {
	return c.JSON(http.StatusOK, payload)
}

func Created(c echo.Context, payload any) error {
	return c.JSON(http.StatusCreated, payload)
}

func NoContent(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

func BadRequest(c echo.Context, err error) error {
	zap.L().Debug("bad request", zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(http.StatusBadRequest, crm.ErrorResponse{Error: err.Error(), Kind: KindValidation})
}

func BadRequestMessage(c echo.Context, msg string) error {
	zap.L().Debug("bad request", zap.String("path", c.Path()), zap.String("message", msg))
	return c.JSON(http.StatusBadRequest, crm.ErrorResponse{Error: msg, Kind: KindValidation})
}

func NotFound(c echo.Context, msg string) error {
	return c.JSON(http.StatusNotFound, crm.ErrorResponse{Error: msg, Kind: KindNotFound})
}

func Conflict(c echo.Context, msg string) error {
	return c.JSON(http.StatusConflict, crm.ErrorResponse{Error: msg, Kind: KindConflict})
}

func InternalError(c echo.Context, err error) error {
	zap.L().Error("internal error", zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, crm.ErrorResponse{Error: "internal server error", Kind: KindInternal})
}

// Error maps the domain error kinds onto status codes. A consistency error
// tells the caller to repeat the whole operation.
func Error(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return NotFound(c, err.Error())
	case errors.Is(err, domain.ErrValidation):
		return BadRequest(c, err)
	case errors.Is(err, domain.ErrConsistency):
		zap.L().Warn("consistency error", zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(http.StatusConflict, crm.ErrorResponse{
			Error: err.Error() + "; retry the operation",
			Kind:  KindConsistency,
		})
	default:
		return InternalError(c, err)
	}
}
