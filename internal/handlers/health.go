package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"midjourney-adapter/internal/models"
)

// HealthHandler reports liveness.
func HealthHandler(c *gin.Context) {
	response := models.HealthResponse{
		Status: "OK",
	}
	c.JSON(http.StatusOK, response)
}
