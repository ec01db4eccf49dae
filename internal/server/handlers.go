package server

import (
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"buildsite/pkg/backend"
	"buildsite/pkg/mail"
)

// homePostLimit is the number of posts shown on the home page
const homePostLimit = 3

// dataBody wraps successful responses
type dataBody struct {
	Data any `json:"data"`
}

type homeData struct {
	ContactInfo *backend.ContactInfo `json:"contact_info"`
	Products    []backend.Product    `json:"products"`
	LatestPosts []backend.Post       `json:"latest_posts"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// home gathers everything the landing page needs in one round trip
func (s *Server) home(c echo.Context) error {
	var data homeData

	g, ctx := errgroup.WithContext(c.Request().Context())

	g.Go(func() error {
		info, err := s.backend.GetContactInfo(ctx)
		data.ContactInfo = info
		return err
	})
	g.Go(func() error {
		products, err := s.backend.ListProducts(ctx)
		data.Products = products
		return err
	})
	g.Go(func() error {
		posts, err := s.backend.ListPosts(ctx)
		if err != nil {
			return err
		}
		data.LatestPosts = latestPosts(posts, homePostLimit)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dataBody{Data: data})
}

func latestPosts(posts []backend.Post, limit int) []backend.Post {
	sorted := append([]backend.Post(nil), posts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PublishedAt.After(sorted[j].PublishedAt)
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

func (s *Server) products(c echo.Context) error {
	products, err := s.backend.ListProducts(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dataBody{Data: products})
}

func (s *Server) posts(c echo.Context) error {
	posts, err := s.backend.ListPosts(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dataBody{Data: posts})
}

func (s *Server) post(c echo.Context) error {
	slug := c.Param("slug")
	if err := s.validator.Var(slug, "required,slug"); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "post not found")
	}

	post, err := s.backend.GetPost(c.Request().Context(), slug)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dataBody{Data: post})
}

func (s *Server) infrastructure(c echo.Context) error {
	infra, err := s.backend.GetInfrastructure(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dataBody{Data: infra})
}

func (s *Server) contactInfo(c echo.Context) error {
	info, err := s.backend.GetContactInfo(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dataBody{Data: info})
}

func (s *Server) pages(c echo.Context) error {
	pages, err := s.backend.ListOtherPages(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dataBody{Data: pages})
}

func (s *Server) page(c echo.Context) error {
	slug := c.Param("slug")
	if err := s.validator.Var(slug, "required,slug"); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "page not found")
	}

	page, err := s.backend.GetOtherPage(c.Request().Context(), slug)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dataBody{Data: page})
}

// contact validates a contact form submission and mails it
func (s *Server) contact(c echo.Context) error {
	var msg mail.ContactMessage
	if err := c.Bind(&msg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := msg.Validate(s.validator); err != nil {
		return err
	}

	msg.ReceivedAt = time.Now()
	msg.RequestID = requestIDFrom(c)

	if err := s.mailer.Send(c.Request().Context(), &msg); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "failed to send message, please try again later").SetInternal(err)
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": "Thank you for your message. We will get back to you shortly.",
	})
}
