// Chat HTTP handler.
//
// Messaging and video calls run on the hosted chat provider; this backend
// only hands out provider tokens:
//   - GET /chat/token
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ChatToken godoc
// @ID          chatToken
// @Summary     Chat provider token
// @Description Signs a token the frontend uses to connect to the chat and video provider.
// @Description The body is the token itself as a JSON string.
// @Tags        chat
// @Produce     json
// @Success     200  {string}  string  "provider token"
// @Failure     401  {object}  ErrorResponse
// @Failure     500  {object}  ErrorResponse
// @Failure     503  {object}  ErrorResponse
// @Security    CookieAuth
// @Router      /chat/token [get]
func (h *Handlers) ChatToken(c *gin.Context) {
	token, err := h.accounts.ChatToken(c.Request.Context(), userID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, token)
}
