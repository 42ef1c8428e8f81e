package httpapi

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/logger"
)

// authorize starts an authorization for the current user. Browsers are
// redirected to the consent page; JSON clients receive the URL.
func (s *Server) authorize(c *gin.Context) {
	provider := domain.ProviderType(c.Param("provider"))
	user := currentUser(c)

	authURL, err := s.svc.Auth.BeginAuthorization(c.Request.Context(), provider, user.ID)
	if err != nil {
		fail(c, "begin authorization", err)
		return
	}

	if c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON {
		Ok(c, http.StatusOK, gin.H{"authorization_url": authURL}, nil)
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// callback completes an authorization. The provider redirects the user's
// browser here, so the response is a page.
func (s *Server) callback(c *gin.Context) {
	provider := domain.ProviderType(c.Param("provider"))

	if errParam := c.Query("error"); errParam != "" {
		logger.Info("%s authorization declined: %s", provider, errParam)
		callbackPage(c, http.StatusBadRequest, "Authorization failed", c.Query("error_description"))
		return
	}

	code, state := c.Query("code"), c.Query("state")
	if code == "" || state == "" {
		callbackPage(c, http.StatusBadRequest, "Authorization failed", "The provider did not return a code.")
		return
	}

	conn, err := s.svc.Auth.CompleteAuthorization(c.Request.Context(), provider, code, state)
	if err != nil {
		status, message := statusFor(err)
		if status >= http.StatusInternalServerError {
			logger.Error("complete %s authorization: %v", provider, err)
		}
		callbackPage(c, status, "Authorization failed", message)
		return
	}

	if c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON {
		Ok(c, http.StatusOK, toConnectionView(conn), nil)
		return
	}
	callbackPage(c, http.StatusOK, "Authorization successful!", "You can close this window and return to the application.")
}

// webhook verifies and routes a provider callback.
func (s *Server) webhook(c *gin.Context) {
	provider := domain.ProviderType(c.Param("provider"))

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(c, http.StatusRequestEntityTooLarge, "payload too large", nil)
			return
		}
		Error(c, http.StatusBadRequest, "unreadable body", nil)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.WebhookDeadline)
	defer cancel()

	enqueued, err := s.svc.Webhooks.Handle(ctx, provider, c.Request.Header, body)
	if err != nil {
		fail(c, "handle webhook", err)
		return
	}
	c.Header("X-Syncs-Enqueued", fmt.Sprint(enqueued))
	c.Status(http.StatusNoContent)
}

// verifySubscription answers a provider's endpoint verification challenge.
// A wrong code must be answered with 404.
func (s *Server) verifySubscription(c *gin.Context) {
	provider := domain.ProviderType(c.Param("provider"))

	ok, err := s.svc.Webhooks.VerifySubscription(c.Request.Context(), provider, c.Request.URL.Query())
	if err != nil {
		fail(c, "verify subscription", err)
		return
	}
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

//nolint:misspell // CSS properties use American spelling
func callbackPage(c *gin.Context, status int, title, message string) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(status, `<!DOCTYPE html>
<html>
<head>
    <title>Sync Engine - Authorization</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            height: 100vh;
            margin: 0;
            background: #FAFAFA;
        }
        .container {
            text-align: center;
            background: white;
            padding: 48px 64px;
            border-radius: 16px;
            border: 1px solid #C7C8CC;
        }
        h1 { color: #333F50; margin: 0 0 8px 0; font-size: 24px; font-weight: 600; }
        p { color: #7B8088; margin: 0; font-size: 16px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>%s</h1>
        <p>%s</p>
    </div>
</body>
</html>`, html.EscapeString(title), html.EscapeString(message))
}
