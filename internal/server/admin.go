package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"buildsite/pkg/backend"
)

type loginRequest struct {
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required,max=200"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128,nefield=CurrentPassword"`
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	session, err := s.backend.Login(c.Request().Context(), req.Username, req.Password)
	if errors.Is(err, backend.ErrUnauthorized) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
	}
	if err != nil {
		return err
	}

	expires := s.setSessionCookie(c, session)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"user":       session.User,
		"expires_at": expires,
	})
}

func (s *Server) logout(c echo.Context) error {
	s.clearSessionCookie(c)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) updateContactInfo(c echo.Context) error {
	var info backend.ContactInfo
	if err := c.Bind(&info); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&info); err != nil {
		return err
	}

	updated, err := s.backend.UpdateContactInfo(c.Request().Context(), sessionToken(c), &info)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dataBody{Data: updated})
}

func (s *Server) updateOtherPage(c echo.Context) error {
	slug := c.Param("slug")
	if err := s.validator.Var(slug, "required,slug"); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid page slug")
	}

	var page backend.OtherPage
	if err := c.Bind(&page); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	page.Slug = slug
	if err := c.Validate(&page); err != nil {
		return err
	}

	updated, err := s.backend.UpdateOtherPage(c.Request().Context(), sessionToken(c), slug, &page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dataBody{Data: updated})
}

func (s *Server) changePassword(c echo.Context) error {
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := s.backend.ChangePassword(c.Request().Context(), sessionToken(c), req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// setSessionCookie stores the backend token in the session cookie and returns
// when it expires. The backend's own expiry wins when it is sooner.
func (s *Server) setSessionCookie(c echo.Context, session *backend.Session) time.Time {
	maxAge := s.cfg.Session.MaxAge
	expires := time.Now().Add(maxAge)
	if !session.ExpiresAt.IsZero() && session.ExpiresAt.Before(expires) {
		expires = session.ExpiresAt
		maxAge = time.Until(expires)
	}

	c.SetCookie(&http.Cookie{
		Name:     s.cfg.Session.CookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.Session.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return expires
}

func (s *Server) clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     s.cfg.Session.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.Session.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
