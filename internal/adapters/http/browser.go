package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/samirrijal/ecoleta/internal/core/domain"
	"github.com/samirrijal/ecoleta/internal/core/usecases"
)

type openBrowserRequest struct {
	UF   string `json:"uf"`
	City string `json:"city"`
}

type positionRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Denied    bool    `json:"denied"`
}

func (r positionRequest) report() usecases.PositionReport {
	return usecases.PositionReport{
		Coordinate: domain.Coordinate{Latitude: r.Latitude, Longitude: r.Longitude},
		Denied:     r.Denied,
	}
}

type toggleRequest struct {
	IDs []int `json:"ids"`
}

// sendSnapshot answers with the session snapshot. A failed point or
// catalog fetch is already carried by the snapshot's error view, so it
// does not turn the response into an error.
func sendSnapshot(c *fiber.Ctx, status int, snap any, err error) error {
	if err != nil && !fetchFailure(err) {
		return writeError(c, err)
	}
	return c.Status(status).JSON(snap)
}

func fetchFailure(err error) bool {
	var remote *domain.RemoteError
	return errors.As(err, &remote) || errors.Is(err, context.DeadlineExceeded)
}

// OpenBrowserHandler starts a point-browser session for a region.
func OpenBrowserHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req openBrowserRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		sess, snap, err := deps.Browser.Open(c.UserContext(), domain.Region{UF: req.UF, City: req.City})
		if sess != nil {
			c.Location("/v1/browser/" + sess.ID())
		}
		return sendSnapshot(c, fiber.StatusCreated, snap, err)
	}
}

// GetBrowserHandler returns the current snapshot of a session.
func GetBrowserHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := deps.Browser.Get(c.Params("id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(sess.Snapshot())
	}
}

// CloseBrowserHandler ends a session.
func CloseBrowserHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Browser.Close(c.Params("id")); err != nil {
			return writeError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// BrowserPositionHandler records the device position or its denial.
func BrowserPositionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req positionRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		sess, err := deps.Browser.Get(c.Params("id"))
		if err != nil {
			return writeError(c, err)
		}
		snap, err := sess.ReportPosition(c.UserContext(), req.report())
		return sendSnapshot(c, fiber.StatusOK, snap, err)
	}
}

// BrowserToggleHandler toggles one item and refreshes the point list.
func BrowserToggleHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("item")
		if err != nil {
			return errBadRequest(c, "item must be an integer id")
		}
		sess, err := deps.Browser.Get(c.Params("id"))
		if err != nil {
			return writeError(c, err)
		}
		snap, err := sess.Toggle(c.UserContext(), id)
		return sendSnapshot(c, fiber.StatusOK, snap, err)
	}
}

// BrowserBatchToggleHandler toggles several items as one change.
func BrowserBatchToggleHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req toggleRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.IDs) == 0 {
			return errBadRequest(c, "ids must not be empty")
		}
		sess, err := deps.Browser.Get(c.Params("id"))
		if err != nil {
			return writeError(c, err)
		}
		snap, err := sess.Toggle(c.UserContext(), req.IDs...)
		return sendSnapshot(c, fiber.StatusOK, snap, err)
	}
}

// BrowserRefreshHandler retries the point fetch for the current selection.
func BrowserRefreshHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := deps.Browser.Get(c.Params("id"))
		if err != nil {
			return writeError(c, err)
		}
		snap, err := sess.Refresh(c.UserContext())
		return sendSnapshot(c, fiber.StatusOK, snap, err)
	}
}
