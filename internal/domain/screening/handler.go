package screening

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clearscreen/clearscreen/internal/platform/auth"
	"github.com/clearscreen/clearscreen/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("", auth.RequireRole("staff"))
	staff.POST("/tests", h.Collect)
	staff.POST("/tests/:id/screening", h.RecordScreening)
	staff.POST("/tests/:id/complete", h.Complete)
	staff.POST("/tests/:id/confirmation-decision", h.Decide)
	staff.POST("/tests/:id/confirmation-results", h.RecordConfirmation)
	staff.POST("/tests/:id/notifications/:stage/retry", h.RetryDispatch)
	staff.GET("/tests/overdue-decisions", h.ListOverdueDecisions)

	reads := api.Group("", auth.RequireRole("staff", "client"))
	reads.GET("/tests", h.List)
	reads.GET("/tests/:id", h.Get)
	reads.GET("/tests/:id/ledger", h.Ledger)
}

// httpError maps lifecycle errors to HTTP statuses. Precondition failures
// are the caller's payload problem; illegal and conflicting transitions are
// state conflicts worth retrying after a fresh read.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "test not found")
	case errors.Is(err, ErrPreconditionNotMet):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrIllegalTransition), errors.Is(err, ErrConflictingTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrDataIntegrityViolation):
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func readBody(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}
	return body, nil
}

func testID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// respond returns the record even when the stage notification failed: the
// transition has committed and the failed attempt is visible in the ledger.
func respond(c echo.Context, status int, t *TestRecord, err error) error {
	if err != nil {
		if errors.Is(err, ErrNotificationDispatch) && t != nil {
			return c.JSON(status, t)
		}
		return httpError(err)
	}
	return c.JSON(status, t)
}

func (h *Handler) Collect(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return err
	}
	t, err := h.svc.Collect(c.Request().Context(), body)
	return respond(c, http.StatusCreated, t, err)
}

func (h *Handler) RecordScreening(c echo.Context) error {
	id, err := testID(c)
	if err != nil {
		return err
	}
	body, err := readBody(c)
	if err != nil {
		return err
	}
	t, err := h.svc.RecordScreening(c.Request().Context(), id, body)
	return respond(c, http.StatusOK, t, err)
}

func (h *Handler) Complete(c echo.Context) error {
	id, err := testID(c)
	if err != nil {
		return err
	}
	t, err := h.svc.Complete(c.Request().Context(), id)
	return respond(c, http.StatusOK, t, err)
}

func (h *Handler) Decide(c echo.Context) error {
	id, err := testID(c)
	if err != nil {
		return err
	}
	body, err := readBody(c)
	if err != nil {
		return err
	}
	t, err := h.svc.Decide(c.Request().Context(), id, body)
	return respond(c, http.StatusOK, t, err)
}

func (h *Handler) RecordConfirmation(c echo.Context) error {
	id, err := testID(c)
	if err != nil {
		return err
	}
	body, err := readBody(c)
	if err != nil {
		return err
	}
	t, err := h.svc.RecordConfirmation(c.Request().Context(), id, body)
	return respond(c, http.StatusOK, t, err)
}

func (h *Handler) RetryDispatch(c echo.Context) error {
	id, err := testID(c)
	if err != nil {
		return err
	}
	stage := Stage(c.Param("stage"))
	switch stage {
	case StageCollected, StageScreened, StageComplete:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "stage carries no notification")
	}
	entry, err := h.svc.RetryDispatch(c.Request().Context(), id, stage)
	if err != nil {
		if errors.Is(err, ErrNotificationDispatch) {
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
		return httpError(err)
	}
	if entry == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := testID(c)
	if err != nil {
		return err
	}
	t, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f Filter
	if raw := c.QueryParam("client_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid client_id")
		}
		f.ClientID = id
	}
	if raw := c.QueryParam("stage"); raw != "" {
		f.Stage = Stage(raw)
	}
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Ledger(c echo.Context) error {
	id, err := testID(c)
	if err != nil {
		return err
	}
	entries, err := h.svc.Ledger(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) ListOverdueDecisions(c echo.Context) error {
	items, err := h.svc.ListOverdueDecisions(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}
