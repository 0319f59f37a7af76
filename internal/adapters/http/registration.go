package http

import (
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/samirrijal/ecoleta/internal/core/domain"
	"github.com/samirrijal/ecoleta/internal/core/usecases"
)

type selectStateRequest struct {
	UF string `json:"uf"`
}

type selectCityRequest struct {
	City string `json:"city"`
}

type locationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// submitFailure is returned when the registry rejected a submission; the
// audit record travels with the error so the client can show the attempt.
type submitFailure struct {
	APIError
	Submission domain.Submission `json:"submission"`
}

// OpenRegistrationHandler starts a registration form session.
func OpenRegistrationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, snap, err := deps.Registrations.Open(c.UserContext())
		if sess != nil {
			c.Location("/v1/registrations/" + sess.ID())
		}
		return sendSnapshot(c, fiber.StatusCreated, snap, err)
	}
}

// GetRegistrationHandler returns the form snapshot.
func GetRegistrationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := deps.Registrations.Get(c.Params("id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(sess.Snapshot())
	}
}

// CloseRegistrationHandler discards a form.
func CloseRegistrationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Registrations.Close(c.Params("id")); err != nil {
			return writeError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ReloadRegistrationHandler retries the catalog and locality loads.
func ReloadRegistrationHandler(deps *Dependencies) fiber.Handler {
	return withRegistration(deps, func(c *fiber.Ctx, sess *usecases.RegistrationSession) error {
		err := sess.Reload(c.UserContext())
		return sendSnapshot(c, fiber.StatusOK, sess.Snapshot(), err)
	})
}

// RegistrationPositionHandler records the device position as the initial location.
func RegistrationPositionHandler(deps *Dependencies) fiber.Handler {
	return withRegistration(deps, func(c *fiber.Ctx, sess *usecases.RegistrationSession) error {
		var req positionRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		snap, err := sess.ReportPosition(c.UserContext(), req.report())
		return sendSnapshot(c, fiber.StatusOK, snap, err)
	})
}

// RegistrationFieldsHandler updates name, email and whatsapp.
func RegistrationFieldsHandler(deps *Dependencies) fiber.Handler {
	return withRegistration(deps, func(c *fiber.Ctx, sess *usecases.RegistrationSession) error {
		var req usecases.FieldsUpdate
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		snap, err := sess.SetFields(req)
		return sendSnapshot(c, fiber.StatusOK, snap, err)
	})
}

// RegistrationStateHandler selects a state and loads its cities.
func RegistrationStateHandler(deps *Dependencies) fiber.Handler {
	return withRegistration(deps, func(c *fiber.Ctx, sess *usecases.RegistrationSession) error {
		var req selectStateRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		snap, err := sess.SelectState(c.UserContext(), req.UF)
		return sendSnapshot(c, fiber.StatusOK, snap, err)
	})
}

// RegistrationCityHandler selects a city of the current state.
func RegistrationCityHandler(deps *Dependencies) fiber.Handler {
	return withRegistration(deps, func(c *fiber.Ctx, sess *usecases.RegistrationSession) error {
		var req selectCityRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		snap, err := sess.SelectCity(req.City)
		return sendSnapshot(c, fiber.StatusOK, snap, err)
	})
}

// RegistrationLocationHandler records a map click.
func RegistrationLocationHandler(deps *Dependencies) fiber.Handler {
	return withRegistration(deps, func(c *fiber.Ctx, sess *usecases.RegistrationSession) error {
		var req locationRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		snap, err := sess.ClickMap(domain.Coordinate{Latitude: req.Latitude, Longitude: req.Longitude})
		return sendSnapshot(c, fiber.StatusOK, snap, err)
	})
}

// RegistrationToggleHandler toggles one item of the form.
func RegistrationToggleHandler(deps *Dependencies) fiber.Handler {
	return withRegistration(deps, func(c *fiber.Ctx, sess *usecases.RegistrationSession) error {
		id, err := c.ParamsInt("item")
		if err != nil {
			return errBadRequest(c, "item must be an integer id")
		}
		snap, err := sess.ToggleItems(id)
		return sendSnapshot(c, fiber.StatusOK, snap, err)
	})
}

// RegistrationImageHandler attaches the multipart "image" file to the form.
func RegistrationImageHandler(deps *Dependencies) fiber.Handler {
	return withRegistration(deps, func(c *fiber.Ctx, sess *usecases.RegistrationSession) error {
		fh, err := c.FormFile("image")
		if err != nil {
			return errBadRequest(c, "multipart field \"image\" is required")
		}
		f, err := fh.Open()
		if err != nil {
			return errBadRequest(c, "cannot read uploaded image")
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return errBadRequest(c, "cannot read uploaded image")
		}
		snap, err := sess.AttachImage(fh.Filename, data)
		return sendSnapshot(c, fiber.StatusOK, snap, err)
	})
}

// RegistrationPreviewHandler serves the JPEG preview of the attached image.
func RegistrationPreviewHandler(deps *Dependencies) fiber.Handler {
	return withRegistration(deps, func(c *fiber.Ctx, sess *usecases.RegistrationSession) error {
		jpeg, err := sess.Preview()
		if err != nil {
			return writeError(c, err)
		}
		c.Set(fiber.HeaderContentType, "image/jpeg")
		c.Set(fiber.HeaderCacheControl, "private, no-store")
		return c.Send(jpeg)
	})
}

// SubmitRegistrationHandler sends the form to the registry, or to the
// background workflow with ?defer=true.
func SubmitRegistrationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		deferred := c.QueryBool("defer", false)
		res, err := deps.Registrations.Submit(c.UserContext(), c.Params("id"), deferred)
		if err != nil {
			if res == nil {
				return writeError(c, err)
			}
			e := classify(err)
			e.RequestID = requestID(c)
			return c.Status(e.Status).JSON(submitFailure{APIError: e, Submission: res.Submission})
		}

		status := fiber.StatusCreated
		if res.Submission.Status == domain.SubmissionDeferred {
			status = fiber.StatusAccepted
		}
		return c.Status(status).JSON(res)
	}
}

// RegistrationAttemptsHandler lists the audit records of a session.
func RegistrationAttemptsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		subs, err := deps.Registrations.Attempts(c.UserContext(), c.Params("id"))
		if err != nil {
			return writeError(c, err)
		}
		if subs == nil {
			subs = []domain.Submission{}
		}
		return c.JSON(subs)
	}
}

func withRegistration(deps *Dependencies, fn func(c *fiber.Ctx, sess *usecases.RegistrationSession) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := deps.Registrations.Get(c.Params("id"))
		if err != nil {
			return writeError(c, err)
		}
		return fn(c, sess)
	}
}
