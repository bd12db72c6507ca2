package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ritmohq/ritmo/internal/model"
	"github.com/ritmohq/ritmo/internal/service"
)

type Server struct {
	svc *service.Service
}

func NewServer(svc *service.Service) *Server {
	return &Server{svc: svc}
}

type createHabitRequest struct {
	Name        string           `json:"name" binding:"required"`
	Description string           `json:"description"`
	Icon        string           `json:"icon"`
	Color       string           `json:"color"`
	TargetCount int              `json:"targetCount"`
	Frequency   frequencyPayload `json:"frequency" binding:"required"`
}

func (s *Server) createHabit(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		return
	}
	var req createHabitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid habit payload"})
		return
	}
	freq, err := req.Frequency.toModel()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	habit, err := s.svc.CreateHabit(c.Request.Context(), userID, service.CreateHabitInput{
		Name:        req.Name,
		Description: req.Description,
		Icon:        req.Icon,
		Color:       req.Color,
		TargetCount: req.TargetCount,
		Frequency:   freq,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, habitFromModel(habit))
}

func (s *Server) listHabits(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		return
	}
	activeOnly := c.Query("active") == "true"
	habits, err := s.svc.ListHabits(c.Request.Context(), userID, activeOnly)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, habitsFromModel(habits))
}

func (s *Server) getHabit(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		return
	}
	habit, err := s.svc.GetHabit(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, habitFromModel(habit))
}

type updateHabitRequest struct {
	Name        *string           `json:"name"`
	Description *string           `json:"description"`
	Icon        *string           `json:"icon"`
	Color       *string           `json:"color"`
	TargetCount *int              `json:"targetCount"`
	Frequency   *frequencyPayload `json:"frequency"`
}

func (s *Server) updateHabit(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		return
	}
	var req updateHabitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid habit payload"})
		return
	}

	input := service.UpdateHabitInput{
		Name:        req.Name,
		Description: req.Description,
		Icon:        req.Icon,
		Color:       req.Color,
		TargetCount: req.TargetCount,
	}
	if req.Frequency != nil {
		freq, err := req.Frequency.toModel()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		input.Frequency = &freq
	}

	habit, err := s.svc.UpdateHabit(c.Request.Context(), userID, c.Param("id"), input)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, habitFromModel(habit))
}

func (s *Server) deactivateHabit(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		return
	}
	if err := s.svc.DeactivateHabit(c.Request.Context(), userID, c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// completeRequest: day defaults to today (backdating allowed), count
// defaults to 1.
type completeRequest struct {
	Day   model.Day `json:"day"`
	Count int       `json:"count"`
	Notes string    `json:"notes"`
}

func (r completeRequest) toInput() service.CompleteInput {
	return service.CompleteInput{Day: r.Day, Count: r.Count, Notes: r.Notes}
}

func (s *Server) completeHabit(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		return
	}
	var req completeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid completion payload"})
			return
		}
	}
	result, err := s.svc.CompleteHabit(c.Request.Context(), userID, c.Param("id"), req.toInput())
	if err != nil {
		s.writeError(c, err)
		return
	}
	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, completionFromResult(result))
}

type createTaskRequest struct {
	Description  string            `json:"description" binding:"required"`
	EnergyPoints int               `json:"energyPoints"`
	ProjectID    string            `json:"projectId"`
	DueDate      model.Day         `json:"dueDate"`
	IsRecurring  bool              `json:"isRecurring"`
	Frequency    *frequencyPayload `json:"frequency"`
	PlanForToday bool              `json:"planForToday"`
}

func (s *Server) createTask(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		return
	}
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task payload"})
		return
	}

	input := service.CreateTaskInput{
		Description:  req.Description,
		EnergyPoints: req.EnergyPoints,
		ProjectID:    req.ProjectID,
		DueDate:      req.DueDate,
		IsRecurring:  req.IsRecurring,
		PlanForToday: req.PlanForToday,
	}
	if req.IsRecurring {
		if req.Frequency == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "recurring task requires a frequency"})
			return
		}
		freq, err := req.Frequency.toModel()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		input.Frequency = freq
	}

	task, err := s.svc.CreateTask(c.Request.Context(), userID, input)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, taskFromModel(task))
}

func (s *Server) listTasks(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		return
	}
	status := model.TaskStatus(c.Query("status"))
	if status != "" && !status.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
		return
	}
	tasks, err := s.svc.ListTasks(c.Request.Context(), userID, status)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasksFromModel(tasks))
}

func (s *Server) getTask(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		return
	}
	task, err := s.svc.GetTask(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, taskFromModel(task))
}

func (s *Server) completeTask(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		return
	}
	var req completeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid completion payload"})
			return
		}
	}
	result, err := s.svc.CompleteTask(c.Request.Context(), userID, c.Param("id"), req.toInput())
	if err != nil {
		s.writeError(c, err)
		return
	}
	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, completionFromResult(result))
}

type postponeRequest struct {
	Reason       string    `json:"reason"`
	RescheduleTo model.Day `json:"rescheduleTo"`
}

func (s *Server) postponeTask(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		return
	}
	var req postponeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid postpone payload"})
		return
	}
	task, err := s.svc.PostponeTask(c.Request.Context(), userID, c.Param("id"), req.Reason, req.RescheduleTo)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, taskFromModel(task))
}

func (s *Server) planTask(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		return
	}
	task, err := s.svc.PlanTaskForToday(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, taskFromModel(task))
}

func (s *Server) taskHistory(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		return
	}
	entries, err := s.svc.TaskHistory(c.Request.Context(), userID, c.Param("id"), 50)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, historyFromModel(entries))
}

func (s *Server) summary(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		return
	}
	summary, err := s.svc.Summary(c.Request.Context(), userID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaryFromModel(summary))
}

func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrEnergyBudgetExceeded):
		c.JSON(http.StatusConflict, gin.H{"error": "daily energy budget exceeded"})
	case errors.Is(err, service.ErrInactiveHabit):
		c.JSON(http.StatusConflict, gin.H{"error": "habit is inactive"})
	case errors.Is(err, service.ErrFutureCompletion):
		c.JSON(http.StatusBadRequest, gin.H{"error": "completion day is in the future"})
	case errors.Is(err, model.ErrInvalidFrequencyKind),
		errors.Is(err, model.ErrEmptyWeekdaySet),
		errors.Is(err, model.ErrInvalidInterval),
		errors.Is(err, model.ErrInvalidEnergy),
		errors.Is(err, model.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
