package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eventplanner/planner/internal/api/middleware"
	"github.com/eventplanner/planner/internal/core/domain"
	"github.com/eventplanner/planner/internal/core/session"
)

// SessionRegistry hands out and tracks per-client session contexts.
type SessionRegistry interface {
	Open(ctx context.Context, clientID string) (*session.Context, string, error)
	Bind(c *session.Context) (string, bool)
	Rebind(oldToken string, c *session.Context) (string, bool)
	Release(token string)
}

// EmailConfirmer confirms an account from an emailed token.
type EmailConfirmer interface {
	ConfirmEmail(ctx context.Context, token string) error
}

type AuthHandler struct {
	sessions      SessionRegistry
	confirmer     EmailConfirmer
	secureCookies bool
}

func NewAuthHandler(sessions SessionRegistry, confirmer EmailConfirmer, secureCookies bool) *AuthHandler {
	return &AuthHandler{sessions: sessions, confirmer: confirmer, secureCookies: secureCookies}
}

// SignIn authenticates with email and password and resolves the role.
//
// @Summary      Sign in
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      signInRequest  true  "Credentials"
// @Success      200   {object}  authResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Failure      429   {object}  errorResponse
// @Router       /auth/signin [post]
func (h *AuthHandler) SignIn(c echo.Context) error {
	var req signInRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	sc, err := h.openClient(c)
	if err != nil {
		return err
	}
	res := sc.SignIn(c.Request().Context(), req.Email, req.Password)
	if !res.Success {
		return authError(res)
	}

	token := h.bind(c, sc)
	return c.JSON(http.StatusOK, authResponse{
		Success:  true,
		Role:     res.Role,
		Token:    token,
		Redirect: redirectTarget(req.Redirect, res.Role),
	})
}

// SignUp registers an organizer or vendor account.
//
// @Summary      Sign up
// @Description  Creates the account, its profile and (for vendors) the vendor record. Responds 202 when the email must be confirmed first.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      signUpRequest  true  "Registration form"
// @Success      201   {object}  authResponse
// @Success      202   {object}  authResponse
// @Failure      400   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Failure      429   {object}  errorResponse
// @Router       /auth/signup [post]
func (h *AuthHandler) SignUp(c echo.Context) error {
	var req signUpRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	sc, err := h.openClient(c)
	if err != nil {
		return err
	}
	role, _ := domain.ParseRole(req.Role)
	res := sc.SignUp(c.Request().Context(), session.SignUpInput{
		Email:       req.Email,
		Password:    req.Password,
		Role:        role,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		CompanyName: req.CompanyName,
		VendorType:  req.VendorType,
	})
	if !res.Success {
		return authError(res)
	}

	token := h.bind(c, sc)
	if token == "" {
		return c.JSON(http.StatusAccepted, authResponse{Success: true, Role: res.Role, Message: res.Message})
	}
	return c.JSON(http.StatusCreated, authResponse{
		Success:  true,
		Role:     res.Role,
		Token:    token,
		Redirect: res.Role.LandingPath(),
	})
}

// SignOut ends the current session.
//
// @Summary      Sign out
// @Tags         auth
// @Security     BearerAuth
// @Success      204
// @Failure      401   {object}  errorResponse
// @Router       /auth/signout [post]
func (h *AuthHandler) SignOut(c echo.Context) error {
	sc, token := middleware.SessionFrom(c)
	err := sc.SignOut(c.Request().Context())
	h.sessions.Release(token)
	middleware.ClearCookie(c, middleware.SessionCookie)
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Session reports who is signed in and with which role.
//
// @Summary      Current session
// @Tags         auth
// @Produce      json
// @Success      200   {object}  sessionResponse
// @Router       /auth/session [get]
func (h *AuthHandler) Session(c echo.Context) error {
	sc, _ := middleware.SessionFrom(c)
	if sc == nil {
		return c.JSON(http.StatusOK, sessionResponse{})
	}
	st, err := sc.CurrentSession(c.Request().Context())
	if err != nil {
		return err
	}
	if !st.Authenticated() {
		return c.JSON(http.StatusOK, sessionResponse{})
	}
	return c.JSON(http.StatusOK, sessionResponse{
		Authenticated: true,
		User:          st.Identity,
		Role:          st.Role,
		Landing:       st.Role.LandingPath(),
	})
}

// Refresh rotates the access token of the current session.
//
// @Summary      Refresh access token
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200   {object}  tokenResponse
// @Failure      401   {object}  errorResponse
// @Router       /auth/refresh [post]
func (h *AuthHandler) Refresh(c echo.Context) error {
	sc, old := middleware.SessionFrom(c)
	if _, err := sc.RefreshToken(c.Request().Context()); err != nil {
		return err
	}
	token, ok := h.sessions.Rebind(old, sc)
	if !ok {
		return domain.ErrNoSession
	}
	middleware.SetCookie(c, middleware.SessionCookie, token, h.secureCookies)
	return c.JSON(http.StatusOK, tokenResponse{Token: token})
}

// ResetPassword emails a password reset token. The response does not
// reveal whether the address has an account.
//
// @Summary      Request password reset
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      resetPasswordRequest  true  "Account email"
// @Success      202   {object}  messageResponse
// @Failure      422   {object}  errorResponse
// @Failure      429   {object}  errorResponse
// @Router       /auth/password/reset [post]
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	sc, err := h.openClient(c)
	if err != nil {
		return err
	}
	if err := sc.ResetPassword(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, messageResponse{
		Message: "If an account exists for this email, a reset link is on its way.",
	})
}

// Recover signs in with a password reset token so the password can be changed.
//
// @Summary      Recover session from reset token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      recoverRequest  true  "Reset token"
// @Success      200   {object}  authResponse
// @Failure      400   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /auth/password/recover [post]
func (h *AuthHandler) Recover(c echo.Context) error {
	var req recoverRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	sc, err := h.openClient(c)
	if err != nil {
		return err
	}
	res := sc.Recover(c.Request().Context(), req.Token)
	if !res.Success {
		return authError(res)
	}
	token := h.bind(c, sc)
	return c.JSON(http.StatusOK, authResponse{Success: true, Role: res.Role, Token: token})
}

// UpdatePassword changes the password of the signed-in user.
//
// @Summary      Update password
// @Tags         auth
// @Accept       json
// @Security     BearerAuth
// @Param        body  body      updatePasswordRequest  true  "New password"
// @Success      204
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Router       /auth/password [put]
func (h *AuthHandler) UpdatePassword(c echo.Context) error {
	var req updatePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	sc, _ := middleware.SessionFrom(c)
	if err := sc.UpdatePassword(c.Request().Context(), req.Password); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Confirm marks an account's email as confirmed.
//
// @Summary      Confirm email
// @Tags         auth
// @Produce      json
// @Param        token  query     string  true  "Confirmation token"
// @Success      200    {object}  messageResponse
// @Failure      400    {object}  errorResponse
// @Router       /auth/confirm [get]
func (h *AuthHandler) Confirm(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}
	if err := h.confirmer.ConfirmEmail(c.Request().Context(), token); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Email confirmed. You can sign in now."})
}

// openClient returns the signed-out context of the calling client and
// refreshes the client cookie.
func (h *AuthHandler) openClient(c echo.Context) (*session.Context, error) {
	var clientID string
	if ck, err := c.Cookie(middleware.ClientCookie); err == nil {
		clientID = ck.Value
	}
	sc, id, err := h.sessions.Open(c.Request().Context(), clientID)
	if err != nil {
		return nil, err
	}
	if id != clientID {
		middleware.SetCookie(c, middleware.ClientCookie, id, h.secureCookies)
	}
	return sc, nil
}

// bind registers a signed-in context and sets the session cookie. It
// returns "" when sc holds no session yet.
func (h *AuthHandler) bind(c echo.Context, sc *session.Context) string {
	token, ok := h.sessions.Bind(sc)
	if !ok {
		return ""
	}
	middleware.SetCookie(c, middleware.SessionCookie, token, h.secureCookies)
	return token
}

func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return nil
}

// authError turns a failed AuthResult into an HTTP error carrying its
// user-facing message.
func authError(res session.AuthResult) error {
	return &echo.HTTPError{Code: authStatus(res.Err), Message: res.Message, Internal: res.Err}
}

func authStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrUserNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrEmailNotConfirmed):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrRateLimited), errors.Is(err, domain.ErrSignUpThrottled):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrWeakPassword), errors.Is(err, domain.ErrInvalidRole),
		errors.Is(err, domain.ErrInvalidEmail), errors.Is(err, domain.ErrInvalidToken):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUserExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// redirectTarget returns the path remembered by the guard when it is a
// local path, else the landing view of role.
func redirectTarget(requested string, role domain.Role) string {
	if strings.HasPrefix(requested, "/") && !strings.HasPrefix(requested, "//") && !strings.Contains(requested, "\\") {
		return requested
	}
	return role.LandingPath()
}
