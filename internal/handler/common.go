package handler // handler defines the HTTP surface of the booking API

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/wavelane/studio-booking/internal/model"
	"github.com/wavelane/studio-booking/internal/repository"
	"github.com/wavelane/studio-booking/internal/service"
)

// getUserID extracts the authenticated user's id from the echo context.
// JWTAuth stores the raw "sub" claim, whose concrete type depends on how
// the token was minted, so a few representations are accepted.
func getUserID(c echo.Context) (uint64, error) {
	switch t := c.Get("user_id").(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// getRole returns the role claim stored by JWTAuth, or "" when absent.
func getRole(c echo.Context) string {
	role, _ := c.Get("role").(string)
	return role
}

// pathID parses a numeric path parameter.
func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid " + name)
	}
	return id, nil
}

// providerFromPath builds a ProviderRef from :kind/:id path segments.
func providerFromPath(c echo.Context) (model.ProviderRef, error) {
	kind := model.ProviderKind(c.Param("kind"))
	if kind != model.ProviderStudio && kind != model.ProviderArtist {
		return model.ProviderRef{}, errors.New("invalid provider kind")
	}
	id, err := pathID(c, "id")
	if err != nil {
		return model.ProviderRef{}, err
	}
	return model.ProviderRef{Kind: kind, ID: id}, nil
}

// writeError maps domain errors onto HTTP responses.  Unrecognized errors
// become opaque 500s so that internal details never leak to clients.
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrBookingNotFound),
		errors.Is(err, repository.ErrTransactionNotFound),
		errors.Is(err, sql.ErrNoRows):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, repository.ErrSlotUnavailable):
		return c.JSON(http.StatusConflict, echo.Map{"error": "slot unavailable"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, repository.ErrInsufficientBalance),
		errors.Is(err, repository.ErrBelowMinimum),
		errors.Is(err, repository.ErrNotProcessable),
		errors.Is(err, service.ErrCancelWindowClosed),
		errors.Is(err, service.ErrNotStarted),
		errors.Is(err, service.ErrPayoutExceedsPayable),
		errors.Is(err, model.ErrInvalidTransition):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
	}
	c.Logger().Error(err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
