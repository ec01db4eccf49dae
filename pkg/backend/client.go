package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	errs "buildsite/pkg/errors"
	"buildsite/pkg/fetch"
	"buildsite/pkg/logger"
)

var (
	// ErrUnauthorized is returned when the backend rejects the token or credentials
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned when the requested resource does not exist
	ErrNotFound = errors.New("not found")
)

const (
	loginEndpoint          = "/auth/login"
	changePasswordEndpoint = "/auth/change-password"
	contactInfoEndpoint    = "/contact-info"
	otherPagesEndpoint     = "/other-pages"
	productsEndpoint       = "/products"
	postsEndpoint          = "/posts"
	infrastructureEndpoint = "/infrastructure"
)

// Client is a typed client for the content backend API
type Client struct {
	fetch  *fetch.Client
	logger logger.Logger
}

// NewClient creates a backend client on top of a fetch client whose base URL
// points at the backend API
func NewClient(fc *fetch.Client, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Client{
		fetch:  fc,
		logger: log.WithField("component", "backend"),
	}
}

// Login exchanges admin credentials for a session token
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	payload := map[string]string{"username": username, "password": password}

	session, err := call[Session](ctx, c, c.write(http.MethodPost, loginEndpoint, ""), payload)
	if err != nil {
		c.logger.WarnWithFields("admin login failed", map[string]interface{}{
			"username": username,
			"error":    err.Error(),
		})
		return nil, err
	}

	c.logger.InfoWithFields("admin logged in", map[string]interface{}{"username": username})
	return &session, nil
}

// ChangePassword changes the admin password for the session behind token
func (c *Client) ChangePassword(ctx context.Context, token, current, next string) error {
	payload := map[string]string{"current_password": current, "new_password": next}

	_, err := call[struct{}](ctx, c, c.write(http.MethodPost, changePasswordEndpoint, token), payload)
	return err
}

// GetContactInfo returns the public contact block
func (c *Client) GetContactInfo(ctx context.Context) (*ContactInfo, error) {
	info, err := call[ContactInfo](ctx, c, c.read(contactInfoEndpoint), nil)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// UpdateContactInfo replaces the contact block
func (c *Client) UpdateContactInfo(ctx context.Context, token string, info *ContactInfo) (*ContactInfo, error) {
	updated, err := call[ContactInfo](ctx, c, c.write(http.MethodPut, contactInfoEndpoint, token), info)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ListOtherPages returns every free-form page
func (c *Client) ListOtherPages(ctx context.Context) ([]OtherPage, error) {
	return call[[]OtherPage](ctx, c, c.read(otherPagesEndpoint), nil)
}

// GetOtherPage returns the page with the given slug
func (c *Client) GetOtherPage(ctx context.Context, slug string) (*OtherPage, error) {
	page, err := call[OtherPage](ctx, c, c.read(otherPagesEndpoint+"/"+url.PathEscape(slug)), nil)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// UpdateOtherPage replaces the page with the given slug
func (c *Client) UpdateOtherPage(ctx context.Context, token, slug string, page *OtherPage) (*OtherPage, error) {
	spec := c.write(http.MethodPut, otherPagesEndpoint+"/"+url.PathEscape(slug), token)
	updated, err := call[OtherPage](ctx, c, spec, page)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ListProducts returns the product catalogue
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	return call[[]Product](ctx, c, c.read(productsEndpoint), nil)
}

// ListPosts returns published blog posts, newest first
func (c *Client) ListPosts(ctx context.Context) ([]Post, error) {
	return call[[]Post](ctx, c, c.read(postsEndpoint), nil)
}

// GetPost returns a single blog post
func (c *Client) GetPost(ctx context.Context, slug string) (*Post, error) {
	post, err := call[Post](ctx, c, c.read(postsEndpoint+"/"+url.PathEscape(slug)), nil)
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// GetInfrastructure returns the infrastructure page content
func (c *Client) GetInfrastructure(ctx context.Context) (*Infrastructure, error) {
	infra, err := call[Infrastructure](ctx, c, c.read(infrastructureEndpoint), nil)
	if err != nil {
		return nil, err
	}
	return &infra, nil
}

// read builds a GET with the client's retry defaults
func (c *Client) read(path string) fetch.RequestSpec {
	return c.fetch.NewRequest(http.MethodGet, path)
}

// write builds a non-idempotent request that is attempted exactly once
func (c *Client) write(method, path, token string) fetch.RequestSpec {
	spec := c.fetch.NewRequest(method, path)
	spec.MaxRetries = fetch.NoRetries
	if token != "" {
		spec.Header = http.Header{"Authorization": []string{"Bearer " + token}}
	}
	return spec
}

// call sends payload (if any) and unwraps the response envelope
func call[T any](ctx context.Context, c *Client, spec fetch.RequestSpec, payload any) (T, error) {
	var zero T

	if payload != nil {
		body, err := fetch.JSONBody(payload)
		if err != nil {
			return zero, err
		}
		spec.Body = body
	}

	resp, err := fetch.FetchJSON[envelope[T]](ctx, c.fetch, spec)
	if err != nil {
		return zero, mapError(err)
	}
	if resp.Error != "" {
		return zero, errs.NewHTTPStatus(http.StatusBadGateway, resp.Error)
	}
	return resp.Data, nil
}

// mapError adds ErrUnauthorized or ErrNotFound to the chain of a classified
// status error while keeping the classified error reachable
func mapError(err error) error {
	switch errs.StatusOf(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	default:
		return err
	}
}
