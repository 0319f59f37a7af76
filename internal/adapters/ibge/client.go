package ibge

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/samirrijal/ecoleta/internal/core/domain"
	"github.com/samirrijal/ecoleta/internal/pkg/httpclient"
)

// DefaultBaseURL is the IBGE localities API.
const DefaultBaseURL = "https://servicodados.ibge.gov.br/api/v1/localidades"

// Client implements ports.LocalityDirectory against the IBGE localities API.
type Client struct {
	http *httpclient.Client
}

// New creates an IBGE client. An empty baseURL uses DefaultBaseURL.
func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{http: httpclient.New("ibge", baseURL, timeout)}
}

// ListStates returns every state sorted by sigla.
func (c *Client) ListStates(ctx context.Context) ([]domain.State, error) {
	var states []domain.State
	if err := c.http.GetJSON(ctx, "list states", "estados", nil, &states); err != nil {
		return nil, err
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Sigla < states[j].Sigla })
	return states, nil
}

// ListCities returns the municipalities of uf sorted by name.
func (c *Client) ListCities(ctx context.Context, uf string) ([]domain.City, error) {
	uf = strings.ToUpper(strings.TrimSpace(uf))
	if uf == "" {
		return nil, domain.NewValidationError("uf", "is required")
	}

	var cities []domain.City
	path := "estados/" + url.PathEscape(uf) + "/municipios"
	if err := c.http.GetJSON(ctx, "list cities", path, nil, &cities); err != nil {
		return nil, err
	}

	col := collate.New(language.BrazilianPortuguese)
	sort.SliceStable(cities, func(i, j int) bool { return col.CompareString(cities[i].Nome, cities[j].Nome) < 0 })
	return cities, nil
}
