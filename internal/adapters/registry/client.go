package registry

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/samirrijal/ecoleta/internal/core/domain"
	"github.com/samirrijal/ecoleta/internal/pkg/httpclient"
)

// Client implements ports.Registry against the collection-point API.
type Client struct {
	http *httpclient.Client
}

// New creates a registry client rooted at baseURL (e.g. http://localhost:3333).
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{http: httpclient.New("registry", baseURL, timeout)}
}

// ListItems returns the recyclable-item catalog.
func (c *Client) ListItems(ctx context.Context) ([]domain.Item, error) {
	var items []domain.Item
	if err := c.http.GetJSON(ctx, "list items", "items", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ListPoints returns the points of the query's region offering any of the
// selected items. Items are sent as repeated items[] parameters.
func (c *Client) ListPoints(ctx context.Context, q domain.PointQuery) ([]domain.Point, error) {
	var points []domain.Point
	if err := c.http.GetJSON(ctx, "list points", "points", PointsArgs(q), &points); err != nil {
		return nil, err
	}
	return points, nil
}

// PointsArgs encodes a point query the way the registry expects it.
func PointsArgs(q domain.PointQuery) *fasthttp.Args {
	args := &fasthttp.Args{}
	args.Set("city", q.Region.City)
	args.Set("uf", q.Region.UF)
	for _, id := range q.Items.IDs() {
		args.Add("items[]", strconv.Itoa(id))
	}
	return args
}

// CreatePoint submits a registration as one multipart form.
func (c *Client) CreatePoint(ctx context.Context, reg *domain.PointRegistration) error {
	body, contentType, err := EncodeRegistration(reg)
	if err != nil {
		return fmt.Errorf("encode registration: %w", err)
	}
	_, err = c.http.Do(ctx, "create point", httpclient.Request{
		Method:      fasthttp.MethodPost,
		Path:        "points",
		ContentType: contentType,
		Body:        body,
	})
	return err
}

// EncodeRegistration renders the multipart body of a point registration.
func EncodeRegistration(reg *domain.PointRegistration) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"name", reg.Name},
		{"email", reg.Email},
		{"whatsapp", reg.Whatsapp},
		{"uf", reg.UF},
		{"city", reg.City},
		{"latitude", strconv.FormatFloat(reg.Location.Latitude, 'f', -1, 64)},
		{"longitude", strconv.FormatFloat(reg.Location.Longitude, 'f', -1, 64)},
		{"items", domain.NewSelection(reg.Items...).Join(",")},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}

	if img := reg.Image; img != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, img.Filename))
		h.Set("Content-Type", img.ContentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
