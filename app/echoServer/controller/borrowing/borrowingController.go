package borrowing

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/MaksymBus/library-service-api/app/echoServer/policy"
	bs "github.com/MaksymBus/library-service-api/service/borrowing"
)

type Controller struct {
	Svc   bs.Service
	Allow policy.Func
	V     *validator.Validate
	Log   *slog.Logger
}

func requester(c echo.Context) bs.Requester {
	id := policy.IdentityFrom(c)
	return bs.Requester{UserID: id.UserID, Email: id.Email, Staff: id.Staff}
}

// POST /v1/borrowings
// @Summary      Borrow a book
// @Tags         borrowings
// @Accept       json
// @Produce      json
// @Param        payload  body  CreateBorrowingReq  true  "Borrowing payload"
// @Success      201  {object}  model.Borrowing
// @Failure      400  {object}  map[string]any "expected return date not in the future"
// @Failure      404  {object}  map[string]any "book not found"
// @Failure      409  {object}  map[string]any "inventory exhausted"
// @Router       /v1/borrowings [post]
func (h *Controller) Create(c echo.Context) error {
	if !h.Allow(policy.OpWrite, policy.IdentityFrom(c)) {
		return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
	}
	var req CreateBorrowingReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid JSON"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "validation error", "errors": err.Error()})
	}

	out, err := h.Svc.Create(c.Request().Context(), requester(c), req.BookID, req.ExpectedReturnDate)
	if err != nil {
		switch bs.Code(err) {
		case bs.ErrInvalidReturnDate:
			return c.JSON(http.StatusBadRequest, echo.Map{
				"errors": echo.Map{"expected_return_date": "must be after the borrow date"},
			})
		case bs.ErrBookNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "book not found"})
		case bs.ErrNoInventory:
			return c.JSON(http.StatusConflict, echo.Map{
				"errors": echo.Map{"book": "inventory exhausted"},
			})
		default:
			h.Log.Error("borrowing create", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}
	return c.JSON(http.StatusCreated, out)
}

// POST /v1/borrowings/:id/return
func (h *Controller) Return(c echo.Context) error {
	if !h.Allow(policy.OpWrite, policy.IdentityFrom(c)) {
		return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}

	out, err := h.Svc.Return(c.Request().Context(), requester(c), id)
	if err != nil {
		switch bs.Code(err) {
		case bs.ErrNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "borrowing not found"})
		case bs.ErrNotOwner:
			return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
		case bs.ErrAlreadyReturned:
			return c.JSON(http.StatusConflict, echo.Map{
				"errors": echo.Map{"actual_return_date": "this borrowing has already been returned"},
			})
		default:
			h.Log.Error("borrowing return", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}
	return c.JSON(http.StatusOK, out)
}

// GET /v1/borrowings?user_id=&is_active=
func (h *Controller) List(c echo.Context) error {
	if !h.Allow(policy.OpRead, policy.IdentityFrom(c)) {
		return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
	}

	var f bs.ListFilter
	if v := c.QueryParam("user_id"); v != "" {
		uid, err := strconv.ParseInt(v, 10, 64)
		if err != nil || uid <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid user_id"})
		}
		f.UserID = &uid
	}
	if v := c.QueryParam("is_active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid is_active"})
		}
		f.IsActive = &active
	}

	rows, err := h.Svc.List(c.Request().Context(), requester(c), f)
	if err != nil {
		h.Log.Error("borrowing list", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"data": rows})
}

// GET /v1/borrowings/:id
func (h *Controller) Detail(c echo.Context) error {
	if !h.Allow(policy.OpRead, policy.IdentityFrom(c)) {
		return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}

	out, err := h.Svc.Get(c.Request().Context(), requester(c), id)
	if err != nil {
		if bs.Code(err) == bs.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"message": "borrowing not found"})
		}
		h.Log.Error("borrowing detail", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, out)
}
