package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"household-missions/internal/datekey"
	"household-missions/internal/progression"
	"household-missions/internal/repository"
	"household-missions/internal/service"
	"household-missions/internal/suggestion"
)

// ActorHeader carries the id of the user performing a mutation.
const ActorHeader = "X-User-ID"

type createTaskRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	DueDate     string `json:"dueDate"`
	Recurrence  string `json:"recurrence"`
	ExpValue    int    `json:"exp"`
	AssignTo    *uint  `json:"assignTo"`
}

type joinFamilyRequest struct {
	Code string `json:"code" binding:"required"`
	Name string `json:"name"`
}

func (s *Server) handleRequiredExp(c *gin.Context) {
	level, err := strconv.Atoi(c.Param("level"))
	if err != nil {
		badRequest(c, "level must be an integer")
		return
	}
	if level > progression.MaxLevel {
		badRequest(c, "level must be at most "+strconv.Itoa(progression.MaxLevel))
		return
	}
	c.JSON(http.StatusOK, gin.H{"level": level, "requiredExp": progression.RequiredExpForLevel(level)})
}

func (s *Server) handleCreateTask(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	input := service.TaskInput{
		Title:       req.Title,
		Description: req.Description,
		Recurrence:  req.Recurrence,
		ExpValue:    req.ExpValue,
		AssignTo:    req.AssignTo,
	}
	if req.DueDate != "" {
		due, err := datekey.Parse(req.DueDate, s.deps.Location)
		if err != nil {
			badRequest(c, "dueDate must be YYYY-MM-DD")
			return
		}
		input.DueDate = &due
	}

	task, err := s.deps.Tasks.CreateTask(c.Request.Context(), actor, input)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (s *Server) handleOccurs(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	date, ok := s.dateQuery(c)
	if !ok {
		return
	}
	occurs, err := s.deps.Tasks.OccursOn(c.Request.Context(), id, date)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"taskId": id, "date": datekey.Of(date), "occurs": occurs})
}

func (s *Server) handleComplete(c *gin.Context) {
	id, date, actor, ok := s.occurrenceRequest(c)
	if !ok {
		return
	}
	res, err := s.deps.Tasks.MarkDone(c.Request.Context(), id, date, actor)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": res.Applied, "task": res.Task, "gain": res.Gain})
}

func (s *Server) handleSkip(c *gin.Context) {
	id, date, actor, ok := s.occurrenceRequest(c)
	if !ok {
		return
	}
	task, applied, err := s.deps.Tasks.SkipOccurrence(c.Request.Context(), id, date, actor)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": applied, "task": task})
}

func (s *Server) handleDeleteSeries(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	actor, ok := s.actor(c)
	if !ok {
		return
	}
	task, applied, err := s.deps.Tasks.DeleteSeries(c.Request.Context(), id, actor)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": applied, "task": task})
}

func (s *Server) handleAgenda(c *gin.Context) {
	uid, ok := uintParam(c, "uid")
	if !ok {
		return
	}
	date, ok := s.dateQuery(c)
	if !ok {
		return
	}
	items, err := s.deps.Tasks.Agenda(c.Request.Context(), uid, date)
	if err != nil {
		s.fail(c, err)
		return
	}
	if items == nil {
		items = []service.AgendaItem{}
	}
	c.JSON(http.StatusOK, gin.H{"date": datekey.Of(date), "items": items})
}

func (s *Server) handleProgress(c *gin.Context) {
	uid, ok := uintParam(c, "uid")
	if !ok {
		return
	}
	view, err := s.deps.Progress.Progress(c.Request.Context(), uid)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleJoinFamily(c *gin.Context) {
	uid, ok := s.self(c)
	if !ok {
		return
	}
	var req joinFamilyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	family, err := s.deps.Families.Join(c.Request.Context(), uid, req.Code, req.Name)
	if err != nil {
		s.fail(c, err)
		return
	}
	roster, err := s.deps.Families.Roster(c.Request.Context(), uid)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"family": family.Code, "name": family.Name, "members": roster})
}

func (s *Server) handleGenerate(c *gin.Context) {
	uid, ok := s.self(c)
	if !ok {
		return
	}
	batch, err := s.deps.Suggestions.Generate(c.Request.Context(), uid)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": batch})
}

func (s *Server) handlePending(c *gin.Context) {
	uid, ok := s.self(c)
	if !ok {
		return
	}
	pending, err := s.deps.Suggestions.Pending(c.Request.Context(), uid)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": pending})
}

func (s *Server) handleAccept(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}
	sg, applied, err := s.deps.Suggestions.Accept(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": applied, "suggestion": sg})
}

func (s *Server) handleDecline(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}
	sg, applied, err := s.deps.Suggestions.Decline(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": applied, "suggestion": sg})
}

func (s *Server) occurrenceRequest(c *gin.Context) (uint, time.Time, uint, bool) {
	id, ok := uintParam(c, "id")
	if !ok {
		return 0, time.Time{}, 0, false
	}
	date, err := datekey.Parse(c.Param("date"), s.deps.Location)
	if err != nil {
		badRequest(c, "date must be YYYY-MM-DD")
		return 0, time.Time{}, 0, false
	}
	actor, ok := s.actor(c)
	if !ok {
		return 0, time.Time{}, 0, false
	}
	return id, date, actor, true
}

// dateQuery reads ?date=, defaulting to today.
func (s *Server) dateQuery(c *gin.Context) (time.Time, bool) {
	raw := c.Query("date")
	if raw == "" {
		return datekey.Midnight(s.deps.Now().In(s.deps.Location)), true
	}
	date, err := datekey.Parse(raw, s.deps.Location)
	if err != nil {
		badRequest(c, "date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return date, true
}

func (s *Server) actor(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.GetHeader(ActorHeader), 10, 64)
	if err != nil || id == 0 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ActorHeader + " header is required"})
		return 0, false
	}
	return uint(id), true
}

// self reads :uid and requires the actor to be that user.
func (s *Server) self(c *gin.Context) (uint, bool) {
	uid, ok := uintParam(c, "uid")
	if !ok {
		return 0, false
	}
	actor, ok := s.actor(c)
	if !ok {
		return 0, false
	}
	if actor != uid {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "acting for another user is not allowed"})
		return 0, false
	}
	return uid, true
}

func uintParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		badRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return uint(id), true
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, suggestion.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidTask):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden), errors.Is(err, suggestion.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrNoOccurrence):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.FullPath(), "error", err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
