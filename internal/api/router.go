// Package api exposes the HTTP surface: habit and task CRUD, the
// completion endpoints, and the day summary, all behind bearer-token
// authentication.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ritmohq/ritmo/internal/service"
)

func NewRouter(svc *service.Service, jwtSecret string) *gin.Engine {
	server := NewServer(svc)

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	v1.Use(Authenticate(jwtSecret))
	{
		v1.POST("/habits", server.createHabit)
		v1.GET("/habits", server.listHabits)
		v1.GET("/habits/:id", server.getHabit)
		v1.PATCH("/habits/:id", server.updateHabit)
		v1.DELETE("/habits/:id", server.deactivateHabit)
		v1.POST("/habits/:id/complete", server.completeHabit)

		v1.POST("/tasks", server.createTask)
		v1.GET("/tasks", server.listTasks)
		v1.GET("/tasks/:id", server.getTask)
		v1.POST("/tasks/:id/complete", server.completeTask)
		v1.POST("/tasks/:id/postpone", server.postponeTask)
		v1.POST("/tasks/:id/plan", server.planTask)
		v1.GET("/tasks/:id/history", server.taskHistory)

		v1.GET("/summary", server.summary)
	}

	return router
}
