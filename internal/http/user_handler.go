package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/harshit-ig/startup-genie/internal/domain"
	"github.com/harshit-ig/startup-genie/internal/service"
)

// UserHandlerOptions ajusta la cookie de sesion y los links de reseteo.
type UserHandlerOptions struct {
	CookieSecure bool
	// ResetURLBase es el origen usado en el link del mail. Vacio usa el host del request.
	ResetURLBase string
}

// UserHandler mantiene dependencias para endpoints de usuarios.
type UserHandler struct {
	logger   *zap.Logger
	userServ *service.UserService
	jwtServ  *service.JWTService
	opts     UserHandlerOptions
}

// NewUserHandler crea una instancia de UserHandler con dependencias necesarias.
func NewUserHandler(logger *zap.Logger, userServ *service.UserService, jwtServ *service.JWTService, opts UserHandlerOptions) *UserHandler {
	return &UserHandler{
		logger:   logger,
		userServ: userServ,
		jwtServ:  jwtServ,
		opts:     opts,
	}
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "message": msg})
}

// Register maneja POST /api/auth/register.
func (h *UserHandler) Register(c *gin.Context) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid register request", zap.Error(err))
		fail(c, http.StatusBadRequest, "Invalid request")
		return
	}

	user, err := h.userServ.Register(c.Request.Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserExists):
			fail(c, http.StatusBadRequest, "User already exists")
		case errors.Is(err, service.ErrNameRequired):
			fail(c, http.StatusBadRequest, "Please add a name")
		case errors.Is(err, service.ErrInvalidEmail):
			fail(c, http.StatusBadRequest, "Please add a valid email")
		case errors.Is(err, service.ErrWeakPassword):
			fail(c, http.StatusBadRequest, "Password must be at least 6 characters")
		default:
			h.logger.Error("register failed", zap.Error(err))
			fail(c, http.StatusInternalServerError, "Server error")
		}
		return
	}

	h.sendTokenResponse(c, http.StatusCreated, user)
}

// Login maneja POST /api/auth/login.
func (h *UserHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = c.ShouldBindJSON(&req)
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		fail(c, http.StatusBadRequest, "Please provide an email and password")
		return
	}

	user, err := h.userServ.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			fail(c, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Server error")
		return
	}

	h.sendTokenResponse(c, http.StatusOK, user)
}

// Me maneja GET /api/auth/me.
func (h *UserHandler) Me(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		fail(c, http.StatusUnauthorized, msgNotAuthorized)
		return
	}
	user, err := h.userServ.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		h.userLookupFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": profileView(user)})
}

// UpdateProfile maneja PUT /api/auth/updateprofile.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		fail(c, http.StatusUnauthorized, msgNotAuthorized)
		return
	}
	var req struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request")
		return
	}

	user, err := h.userServ.UpdateProfile(c.Request.Context(), claims.UserID, req.FirstName, req.LastName)
	if err != nil {
		h.userLookupFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": profileView(user)})
}

// ForgotPassword maneja POST /api/auth/forgot-password.
func (h *UserHandler) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	_ = c.ShouldBindJSON(&req)

	err := h.userServ.ForgotPassword(c.Request.Context(), req.Email, h.resetURLBase(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound), errors.Is(err, service.ErrInvalidEmail):
			fail(c, http.StatusNotFound, "There is no user with that email")
		case errors.Is(err, service.ErrRateLimited):
			fail(c, http.StatusTooManyRequests, "Too many requests")
		case errors.Is(err, service.ErrEmailSendFailure):
			fail(c, http.StatusInternalServerError, "Email could not be sent")
		default:
			h.logger.Error("forgot password failed", zap.Error(err))
			fail(c, http.StatusInternalServerError, "Server error")
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": "Email sent"})
}

// ResetPassword maneja PUT /api/auth/reset-password/:resettoken.
func (h *UserHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Password string `json:"password"`
	}
	_ = c.ShouldBindJSON(&req)

	user, err := h.userServ.ResetPassword(c.Request.Context(), c.Param("resettoken"), req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrResetTokenInvalid):
			fail(c, http.StatusBadRequest, "Invalid token")
		case errors.Is(err, service.ErrWeakPassword):
			fail(c, http.StatusBadRequest, "Password must be at least 6 characters")
		default:
			h.logger.Error("reset password failed", zap.Error(err))
			fail(c, http.StatusInternalServerError, "Server error")
		}
		return
	}
	h.sendTokenResponse(c, http.StatusOK, user)
}

// RefreshToken maneja POST /api/auth/refresh.
func (h *UserHandler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid refresh request", zap.Error(err))
		fail(c, http.StatusBadRequest, "Invalid request")
		return
	}
	if h.jwtServ == nil {
		fail(c, http.StatusInternalServerError, "jwt not configured")
		return
	}
	session, err := h.jwtServ.Rotate(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.logger.Debug("refresh rejected", zap.Error(err))
		fail(c, http.StatusUnauthorized, "Invalid token")
		return
	}
	h.setTokenCookie(c, session)
	c.JSON(http.StatusOK, gin.H{"success": true, "token": session.AccessToken, "tokens": session})
}

// Logout maneja POST /api/auth/logout.
func (h *UserHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = c.ShouldBindJSON(&req)
	if h.jwtServ != nil && req.RefreshToken != "" {
		if err := h.jwtServ.Revoke(c.Request.Context(), req.RefreshToken); err != nil {
			h.logger.Debug("refresh revoke skipped", zap.Error(err))
		}
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(credentialName, "", -1, "/", "", h.opts.CookieSecure, true)
	c.Status(http.StatusNoContent)
}

func (h *UserHandler) sendTokenResponse(c *gin.Context, status int, user domain.User) {
	if h.jwtServ == nil {
		h.logger.Error("jwt issue failed", zap.Error(errors.New("jwt not configured")))
		fail(c, http.StatusInternalServerError, "Server error")
		return
	}
	session, err := h.jwtServ.Issue(c.Request.Context(), user)
	if err != nil {
		h.logger.Error("jwt issue failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Server error")
		return
	}
	h.setTokenCookie(c, session)
	c.JSON(status, gin.H{"success": true, "token": session.AccessToken, "tokens": session})
}

// setTokenCookie deja el access token en la cookie que usa el stream SSE.
func (h *UserHandler) setTokenCookie(c *gin.Context, session service.Session) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(credentialName, session.AccessToken, session.CookieMaxAge(), "/", "", h.opts.CookieSecure, true)
}

func (h *UserHandler) userLookupFailed(c *gin.Context, err error) {
	if errors.Is(err, service.ErrUserNotFound) {
		fail(c, http.StatusNotFound, "User not found")
		return
	}
	h.logger.Error("user lookup failed", zap.Error(err))
	fail(c, http.StatusInternalServerError, "Server error")
}

func (h *UserHandler) resetURLBase(c *gin.Context) string {
	if h.opts.ResetURLBase != "" {
		return h.opts.ResetURLBase
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}

func profileView(user domain.User) gin.H {
	return gin.H{
		"_id":       user.ID,
		"name":      user.Name,
		"firstName": user.FirstName,
		"lastName":  user.LastName,
		"email":     user.Email,
	}
}
