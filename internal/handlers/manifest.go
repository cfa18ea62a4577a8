package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"midjourney-adapter/internal/config"
	"midjourney-adapter/internal/models"
)

// ManifestHandler describes the service to the workflow host: its auth
// mode, log endpoint and the credential forms each provider accepts.
func ManifestHandler(cfg *config.Config) gin.HandlerFunc {
	manifest := models.Manifest{
		SchemaVersion: "v1",
		DisplayName:   "MidJourney",
		Namespace:     "midjourney",
		Auth:          models.ManifestAuth{Type: cfg.Auth.Type},
		LogEndpoint:   "/logs/{taskId}",
		Credentials: []models.CredentialEndpoint{
			{
				Name:        "goapi",
				Type:        "aksk",
				DisplayName: "GoAPI",
				Properties: []models.CredentialField{
					{Name: "api_key", DisplayName: "API Key", Type: "string", Required: true},
				},
			},
			{
				Name:        "youchuan",
				Type:        "aksk",
				DisplayName: "Youchuan",
				Properties: []models.CredentialField{
					{Name: "app_id", DisplayName: "App ID", Type: "string", Required: true},
					{Name: "secret", DisplayName: "Secret", Type: "string", Required: true},
				},
			},
		},
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, manifest)
	}
}
