package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/ecoleta/internal/core/domain"
)

// buildSchema creates the GraphQL schema over the catalog service.
// Field names follow the JSON tags of the domain types, which the default
// graphql-go resolver reads.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	itemType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Item",
		Fields: graphql.Fields{
			"id":        &graphql.Field{Type: graphql.Int},
			"title":     &graphql.Field{Type: graphql.String},
			"image_url": &graphql.Field{Type: graphql.String},
		},
	})

	pointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Point",
		Fields: graphql.Fields{
			"id":        &graphql.Field{Type: graphql.Int},
			"name":      &graphql.Field{Type: graphql.String},
			"image_url": &graphql.Field{Type: graphql.String},
			"latitude":  &graphql.Field{Type: graphql.Float},
			"longitude": &graphql.Field{Type: graphql.Float},
		},
	})

	stateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "State",
		Fields: graphql.Fields{
			"id":    &graphql.Field{Type: graphql.Int},
			"sigla": &graphql.Field{Type: graphql.String},
			"nome":  &graphql.Field{Type: graphql.String},
		},
	})

	cityType := graphql.NewObject(graphql.ObjectConfig{
		Name: "City",
		Fields: graphql.Fields{
			"id":   &graphql.Field{Type: graphql.Int},
			"nome": &graphql.Field{Type: graphql.String},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"items": &graphql.Field{
				Type:        graphql.NewList(itemType),
				Description: "List the recyclable-item catalog",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Catalog.ListItems(p.Context)
				},
			},
			"states": &graphql.Field{
				Type:        graphql.NewList(stateType),
				Description: "List Brazilian states",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Catalog.ListStates(p.Context)
				},
			},
			"cities": &graphql.Field{
				Type:        graphql.NewList(cityType),
				Description: "List the cities of a state",
				Args: graphql.FieldConfigArgument{
					"uf": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					uf := strings.ToUpper(p.Args["uf"].(string))
					return deps.Catalog.ListCities(p.Context, uf)
				},
			},
			"points": &graphql.Field{
				Type:        graphql.NewList(pointType),
				Description: "Collection points of a city accepting any of the given items",
				Args: graphql.FieldConfigArgument{
					"uf":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"city":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"items": &graphql.ArgumentConfig{Type: graphql.NewList(graphql.Int)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					var ids []int
					if raw, ok := p.Args["items"].([]interface{}); ok {
						for _, v := range raw {
							if id, ok := v.(int); ok {
								ids = append(ids, id)
							}
						}
					}
					return deps.Catalog.ListPoints(p.Context, domain.PointQuery{
						Region: domain.Region{
							UF:   strings.ToUpper(p.Args["uf"].(string)),
							City: p.Args["city"].(string),
						},
						Items: domain.NewSelection(ids...),
					})
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
