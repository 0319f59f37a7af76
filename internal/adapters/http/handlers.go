package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/samirrijal/ecoleta/internal/core/domain"
)

// ListItemsHandler returns the recyclable-item catalog.
func ListItemsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		items, err := deps.Catalog.ListItems(c.UserContext())
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(items)
	}
}

// ListPointsHandler queries the registry for one region and item filter.
// Unlike a browser session it keeps no state between calls.
func ListPointsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uf := strings.ToUpper(strings.TrimSpace(c.Query("uf")))
		city := strings.TrimSpace(c.Query("city"))
		if uf == "" || city == "" {
			return errBadRequest(c, "uf and city query parameters are required")
		}
		sel, err := domain.ParseSelection(c.Query("items"))
		if err != nil {
			return writeError(c, err)
		}

		points, err := deps.Catalog.ListPoints(c.UserContext(), domain.PointQuery{
			Region: domain.Region{UF: uf, City: city},
			Items:  sel,
		})
		if err != nil {
			return writeError(c, err)
		}

		return c.JSON(paginate(c, points))
	}
}

// ListStatesHandler returns the federative units sorted by sigla.
func ListStatesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		states, err := deps.Catalog.ListStates(c.UserContext())
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(states)
	}
}

// ListCitiesHandler returns the municipalities of a state.
func ListCitiesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uf := strings.ToUpper(strings.TrimSpace(c.Params("uf")))
		if len(uf) != 2 {
			return errBadRequest(c, "uf must be a two-letter state code")
		}
		cities, err := deps.Catalog.ListCities(c.UserContext(), uf)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(cities)
	}
}
