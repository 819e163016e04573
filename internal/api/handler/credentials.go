package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"unisaved/internal/api/middleware"
	"unisaved/internal/credentials"
	"unisaved/internal/service"
)

// CredentialsHandler manages stored source credentials.
type CredentialsHandler struct {
	store       credentials.Store
	coordinator *service.Coordinator
}

// NewCredentialsHandler creates a credentials handler.
func NewCredentialsHandler(store credentials.Store, coordinator *service.Coordinator) *CredentialsHandler {
	return &CredentialsHandler{
		store:       store,
		coordinator: coordinator,
	}
}

// CredentialStatusResponse reports credential state for one source.
type CredentialStatusResponse struct {
	Source     string `json:"source"`
	Configured bool   `json:"configured"`
	Valid      *bool  `json:"valid"`
	Message    string `json:"message"`
}

// Status reports whether credentials are configured per source. It does not
// hit the upstream APIs; use the validate endpoints for that.
func (h *CredentialsHandler) Status(c *gin.Context) {
	results := make([]CredentialStatusResponse, 0, 3)

	_, redditErr := h.store.Reddit()
	results = append(results, CredentialStatusResponse{
		Source:     "reddit",
		Configured: redditErr == nil,
		Message:    configuredMessage(redditErr == nil, "Credentials configured", "Credentials not configured"),
	})

	browser := h.store.YouTubeBrowser()
	results = append(results, CredentialStatusResponse{
		Source:     "youtube",
		Configured: true, // cookie-based, always "configured"
		Message:    "Using " + browser + " browser cookies",
	})

	_, raindropErr := h.store.RaindropToken()
	results = append(results, CredentialStatusResponse{
		Source:     "raindrop",
		Configured: raindropErr == nil,
		Message:    configuredMessage(raindropErr == nil, "Token configured", "Token not configured"),
	})

	c.JSON(http.StatusOK, results)
}

func configuredMessage(configured bool, yes, no string) string {
	if configured {
		return yes
	}
	return no
}

// RedditCredentialsRequest carries Reddit script-app credentials.
type RedditCredentialsRequest struct {
	ClientID     string `json:"client_id" binding:"required"`
	ClientSecret string `json:"client_secret" binding:"required"`
	Username     string `json:"username" binding:"required"`
	Password     string `json:"password" binding:"required"`
}

// SetReddit stores Reddit credentials in the system keyring.
func (h *CredentialsHandler) SetReddit(c *gin.Context) {
	var req RedditCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "client_id, client_secret, username and password are required"})
		return
	}

	err := h.store.SetReddit(&credentials.RedditCredentials{
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		Username:     req.Username,
		Password:     req.Password,
	})
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("Failed to store Reddit credentials")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store credentials in keyring"})
		return
	}

	c.JSON(http.StatusOK, CredentialStatusResponse{
		Source:     "reddit",
		Configured: true,
		Message:    "Credentials stored successfully",
	})
}

// DeleteReddit removes stored Reddit credentials.
func (h *CredentialsHandler) DeleteReddit(c *gin.Context) {
	if err := h.store.DeleteReddit(); err != nil {
		middleware.GetLogger(c).WithError(err).Warn("Failed to delete Reddit credentials")
	}
	c.JSON(http.StatusOK, CredentialStatusResponse{
		Source:  "reddit",
		Message: "Credentials deleted",
	})
}

// ValidateReddit authenticates against Reddit with the stored credentials.
func (h *CredentialsHandler) ValidateReddit(c *gin.Context) {
	h.validate(c, "reddit")
}

// RaindropTokenRequest carries a Raindrop.io API token.
type RaindropTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// SetRaindrop stores a Raindrop.io token in the system keyring.
func (h *CredentialsHandler) SetRaindrop(c *gin.Context) {
	var req RaindropTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	if err := h.store.SetRaindropToken(req.Token); err != nil {
		middleware.GetLogger(c).WithError(err).Error("Failed to store Raindrop token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store token in keyring"})
		return
	}

	c.JSON(http.StatusOK, CredentialStatusResponse{
		Source:     "raindrop",
		Configured: true,
		Message:    "Token stored successfully",
	})
}

// DeleteRaindrop removes the stored Raindrop token.
func (h *CredentialsHandler) DeleteRaindrop(c *gin.Context) {
	if err := h.store.DeleteRaindropToken(); err != nil {
		middleware.GetLogger(c).WithError(err).Warn("Failed to delete Raindrop token")
	}
	c.JSON(http.StatusOK, CredentialStatusResponse{
		Source:  "raindrop",
		Message: "Token deleted",
	})
}

// ValidateRaindrop checks the stored token against the Raindrop API.
func (h *CredentialsHandler) ValidateRaindrop(c *gin.Context) {
	h.validate(c, "raindrop")
}

// YouTubeBrowserRequest selects the browser for cookie extraction.
type YouTubeBrowserRequest struct {
	Browser string `json:"browser" binding:"required"`
}

// SetYouTubeBrowser stores the browser yt-dlp should read cookies from.
func (h *CredentialsHandler) SetYouTubeBrowser(c *gin.Context) {
	var req YouTubeBrowserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "browser is required"})
		return
	}

	if err := h.store.SetYouTubeBrowser(req.Browser); err != nil {
		middleware.GetLogger(c).WithError(err).Error("Failed to store YouTube browser")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store browser in keyring"})
		return
	}

	c.JSON(http.StatusOK, CredentialStatusResponse{
		Source:     "youtube",
		Configured: true,
		Message:    "Browser set to " + req.Browser,
	})
}

// ValidateYouTube checks yt-dlp and cookie browser availability.
func (h *CredentialsHandler) ValidateYouTube(c *gin.Context) {
	h.validate(c, "youtube")
}

func (h *CredentialsHandler) validate(c *gin.Context, name string) {
	valid, message, err := h.coordinator.ValidateCredentials(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, CredentialStatusResponse{
		Source:     name,
		Configured: true,
		Valid:      &valid,
		Message:    message,
	})
}
