// Account HTTP handlers.
//
// This file exposes the session endpoints:
//   - POST /auth/signup   (create account, sets session cookie)
//   - POST /auth/login    (sets session cookie)
//   - POST /auth/logout   (clears session cookie)
//   - POST /auth/onboard  (complete profile; auth)
//   - GET  /auth/me       (current user; auth)
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-lingo-backend/internal/domain"
	"github.com/tbourn/go-lingo-backend/internal/services"
)

//
// DTOs
//

// SignupRequest is the JSON payload for creating an account.
type SignupRequest struct {
	FullName string `json:"fullName" example:"Ana Lopez"`
	Email    string `json:"email" example:"ana@example.com"`
	Password string `json:"password" example:"secret123"`
}

// LoginRequest is the JSON payload for logging in.
type LoginRequest struct {
	Email    string `json:"email" example:"ana@example.com"`
	Password string `json:"password" example:"secret123"`
}

// OnboardRequest is the JSON payload that completes a profile.
type OnboardRequest struct {
	FullName         string `json:"fullName" example:"Ana Lopez"`
	Bio              string `json:"bio" example:"Coffee, hiking and irregular verbs"`
	NativeLanguage   string `json:"nativeLanguage" example:"spanish"`
	LearningLanguage string `json:"learningLanguage" example:"english"`
	Location         string `json:"location" example:"Madrid, Spain"`
	ProfilePic       string `json:"profilePic" example:"https://i.pravatar.cc/150?img=12"`
}

// UserView is the caller's user record with the ids of its friends.
type UserView struct {
	*domain.User
	Friends []string `json:"friends"`
}

// UserResponse wraps the caller's own user record.
type UserResponse struct {
	Success bool      `json:"success" example:"true"`
	User    *UserView `json:"user"`
}

// MessageResponse is a success flag with a human-readable message.
type MessageResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message"`
}

// Signup godoc
// @ID          signup
// @Summary     Create an account
// @Description Creates a learner with a random avatar and starts a session (cookie).
// @Tags        auth
// @Accept      json
// @Produce     json
// @Param       body  body      SignupRequest  true  "New account"
// @Success     201   {object}  UserResponse
// @Header      201   {string}  Set-Cookie  "Session cookie"
// @Failure     400   {object}  ErrorResponse
// @Failure     500   {object}  ErrorResponse
// @Router      /auth/signup [post]
func (h *Handlers) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}
	u, err := h.accounts.Signup(c.Request.Context(), services.SignupInput{
		FullName: req.FullName,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if !h.startSession(c, u.ID) {
		return
	}
	ok(c, http.StatusCreated, UserResponse{Success: true, User: &UserView{User: u, Friends: []string{}}})
}

// Login godoc
// @ID          login
// @Summary     Log in
// @Tags        auth
// @Accept      json
// @Produce     json
// @Param       body  body      LoginRequest  true  "Credentials"
// @Success     200   {object}  UserResponse
// @Header      200   {string}  Set-Cookie  "Session cookie"
// @Failure     400   {object}  ErrorResponse
// @Failure     401   {object}  ErrorResponse
// @Failure     500   {object}  ErrorResponse
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}
	u, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if !h.startSession(c, u.ID) {
		return
	}
	h.writeUser(c, u)
}

// Logout godoc
// @ID          logout
// @Summary     Log out
// @Description Clears the session cookie. Bearer tokens stay valid until they expire.
// @Tags        auth
// @Produce     json
// @Success     200  {object}  MessageResponse
// @Router      /auth/logout [post]
func (h *Handlers) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
	ok(c, http.StatusOK, MessageResponse{Success: true, Message: "Logout successful"})
}

// Onboard godoc
// @ID          onboard
// @Summary     Complete the caller's profile
// @Description All fields but profilePic are required; languages are stored lower-cased.
// @Tags        auth
// @Accept      json
// @Produce     json
// @Param       body  body      OnboardRequest  true  "Profile"
// @Success     200   {object}  UserResponse
// @Failure     400   {object}  ErrorResponse
// @Failure     401   {object}  ErrorResponse
// @Failure     404   {object}  ErrorResponse
// @Failure     500   {object}  ErrorResponse
// @Security    CookieAuth
// @Router      /auth/onboard [post]
func (h *Handlers) Onboard(c *gin.Context) {
	var req OnboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}
	u, err := h.accounts.Onboard(c.Request.Context(), userID(c), services.OnboardInput{
		FullName:         req.FullName,
		Bio:              req.Bio,
		NativeLanguage:   req.NativeLanguage,
		LearningLanguage: req.LearningLanguage,
		Location:         req.Location,
		ProfilePic:       req.ProfilePic,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	h.writeUser(c, u)
}

// Me godoc
// @ID          me
// @Summary     Current user
// @Tags        auth
// @Produce     json
// @Success     200  {object}  UserResponse
// @Failure     401  {object}  ErrorResponse
// @Failure     404  {object}  ErrorResponse
// @Security    CookieAuth
// @Router      /auth/me [get]
func (h *Handlers) Me(c *gin.Context) {
	u, err := h.accounts.Me(c.Request.Context(), userID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	h.writeUser(c, u)
}

// writeUser responds 200 with u and its friend ids.
func (h *Handlers) writeUser(c *gin.Context, u *domain.User) {
	friends, err := h.accounts.FriendIDs(c.Request.Context(), u.ID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, UserResponse{Success: true, User: &UserView{User: u, Friends: friends}})
}

// startSession issues a token for uid and sets it as an HTTP-only,
// SameSite=Strict cookie. It writes a 500 and returns false on failure.
func (h *Handlers) startSession(c *gin.Context, uid string) bool {
	token, exp, err := h.sessions.Issue(uid)
	if err != nil {
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "Internal Server Error")
		return false
	}
	maxAge := int(time.Until(exp).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.cookie.Name, token, maxAge, "/", "", h.cookie.Secure, true)
	return true
}
