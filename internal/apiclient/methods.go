package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"

	"github.com/sakif/pickleit/internal/model"
	"github.com/sakif/pickleit/internal/repository"
)

var _ repository.MethodRepository = (*Client)(nil)

// MethodView is a method as the API presents it, with image variant URLs.
type MethodView struct {
	model.Method
	ThumbnailURL string `json:"thumbnailUrl"`
	LQIPURL      string `json:"lqipUrl"`
	FullImageURL string `json:"fullImageUrl"`
}

func methodPath(id int64) string {
	return "/api/methods/" + strconv.FormatInt(id, 10)
}

// CreateMethod needs an admin session. m is updated with the stored record.
func (c *Client) CreateMethod(ctx context.Context, m *model.Method) error {
	return c.do(ctx, http.MethodPost, "/api/methods", m, m)
}

func (c *Client) GetMethod(ctx context.Context, id int64) (*model.Method, error) {
	v, err := c.MethodView(ctx, id)
	if err != nil {
		return nil, err
	}
	return &v.Method, nil
}

// MethodView fetches one method with its image variants.
func (c *Client) MethodView(ctx context.Context, id int64) (*MethodView, error) {
	var v MethodView
	if err := c.do(ctx, http.MethodGet, methodPath(id), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) ListMethods(ctx context.Context, opts repository.ListOptions) ([]model.Method, error) {
	views, err := c.ListMethodViews(ctx, opts)
	if err != nil {
		return nil, err
	}
	out := make([]model.Method, len(views))
	for i := range views {
		out[i] = views[i].Method
	}
	return out, nil
}

// ListMethodViews lists methods with their image variants.
func (c *Client) ListMethodViews(ctx context.Context, opts repository.ListOptions) ([]MethodView, error) {
	q := url.Values{}
	if opts.Category != "" {
		q.Set("category", opts.Category)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	path := "/api/methods"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var views []MethodView
	if err := c.do(ctx, http.MethodGet, path, nil, &views); err != nil {
		return nil, err
	}
	return views, nil
}

// UpdateMethod needs an admin session.
func (c *Client) UpdateMethod(ctx context.Context, m *model.Method) error {
	return c.do(ctx, http.MethodPut, methodPath(m.ID), m, m)
}

func (c *Client) CountMethods(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/methods/count", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// ReplaceImage uploads a new image for a method (admin only) and returns the
// updated method.
func (c *Client) ReplaceImage(ctx context.Context, id int64, filename, contentType string, r io.Reader) (*MethodView, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, fmt.Errorf("apiclient: building upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("apiclient: reading image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("apiclient: building upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.base+methodPath(id)+"/image", &buf)
	if err != nil {
		return nil, fmt.Errorf("apiclient: building upload: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var v MethodView
	if err := c.send(req, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
