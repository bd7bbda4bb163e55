package triage

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/triage/internal/platform/auth"
	"github.com/ehr/triage/pkg/pagination"
)

// Handler exposes the triage service over HTTP.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the triage routes on api, normally the /api/v1 group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/triage")

	self := g.Group("", auth.Require(auth.CapTriageSelf))
	self.POST("/start", h.StartSession)
	self.POST("/add-symptom", h.AddSymptom)
	self.GET("/result/:id", h.FinalizeSession)
	self.POST("/sessions/:id/finalize", h.FinalizeSession)
	self.GET("/sessions", h.ListSessions)
	self.GET("/sessions/:id", h.GetSession)

	read := g.Group("", auth.Require(auth.CapCatalogRead))
	read.GET("/symptoms", h.ListSymptoms)
	read.GET("/red-flags", h.ListRedFlags)

	write := g.Group("", auth.Require(auth.CapCatalogWrite))
	write.POST("/symptoms", h.CreateSymptom)
	write.POST("/red-flags", h.CreateRedFlag)
}

// -- Request bodies --

type addSymptomRequest struct {
	SessionID uuid.UUID `json:"session_id" validate:"required"`
	SymptomID uuid.UUID `json:"symptom_id" validate:"required"`
}

type createSymptomRequest struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Description *string `json:"description"`
	Severity    int     `json:"severity" validate:"required,min=1,max=10"`
	RiskLevel   string  `json:"risk_level" validate:"risk_tier"`
	BodySystem  *string `json:"body_system" validate:"omitempty,max=50"`
}

type createRedFlagRequest struct {
	Name               string      `json:"name" validate:"required,max=100"`
	SymptomCombination []uuid.UUID `json:"symptom_combination" validate:"required,min=1"`
	TriggerAction      string      `json:"trigger_action" validate:"trigger_action"`
	Description        *string     `json:"description"`
	Priority           int         `json:"priority" validate:"gte=0"`
}

// -- Views --

type SessionView struct {
	SessionID        uuid.UUID   `json:"session_id"`
	PatientID        uuid.UUID   `json:"patient_id"`
	Status           Status      `json:"status"`
	SymptomsReported []uuid.UUID `json:"symptoms_reported"`
	RiskScore        *float64    `json:"risk_score,omitempty"`
	TriageResult     *Action     `json:"triage_result,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
}

func sessionView(s *Session) SessionView {
	v := SessionView{
		SessionID:        s.ID,
		PatientID:        s.PatientID,
		Status:           s.Status,
		SymptomsReported: s.SymptomsReported.IDs(),
		TriageResult:     s.TriageResult,
		CreatedAt:        s.CreatedAt,
		CompletedAt:      s.CompletedAt,
	}
	if s.RiskScore != nil {
		r := RoundScore(*s.RiskScore)
		v.RiskScore = &r
	}
	return v
}

type analyzedSymptom struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Severity   int       `json:"severity"`
	RiskLevel  RiskTier  `json:"risk_level"`
	BodySystem *string   `json:"body_system,omitempty"`
}

type triggeredRedFlag struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Action   Action    `json:"action"`
	Priority int       `json:"priority"`
}

type ResultView struct {
	SessionID         uuid.UUID          `json:"session_id"`
	RiskScore         float64            `json:"risk_score"`
	TriageResult      Action             `json:"triage_result"`
	Recommendation    string             `json:"recommendation"`
	SymptomsAnalyzed  []analyzedSymptom  `json:"symptoms_analyzed"`
	RedFlagsTriggered []triggeredRedFlag `json:"red_flags_triggered"`
	CompletedAt       *time.Time         `json:"completed_at"`
}

func resultView(r *Result) ResultView {
	s := r.Session
	v := ResultView{
		SessionID:         s.ID,
		CompletedAt:       s.CompletedAt,
		SymptomsAnalyzed:  make([]analyzedSymptom, 0, len(r.Symptoms)),
		RedFlagsTriggered: make([]triggeredRedFlag, 0, len(r.Matched)),
	}
	if s.RiskScore != nil {
		v.RiskScore = RoundScore(*s.RiskScore)
	}
	if s.TriageResult != nil {
		v.TriageResult = *s.TriageResult
		v.Recommendation = s.TriageResult.Recommendation()
	}
	for _, sym := range r.Symptoms {
		v.SymptomsAnalyzed = append(v.SymptomsAnalyzed, analyzedSymptom{
			ID: sym.ID, Name: sym.Name, Severity: sym.Severity, RiskLevel: sym.RiskTier, BodySystem: sym.BodySystem,
		})
	}
	for _, rf := range r.Matched {
		v.RedFlagsTriggered = append(v.RedFlagsTriggered, triggeredRedFlag{
			ID: rf.ID, Name: rf.Name, Action: rf.TriggerAction, Priority: rf.Priority,
		})
	}
	return v
}

// -- Session handlers --

func (h *Handler) StartSession(c echo.Context) error {
	pid, err := patientFrom(c)
	if err != nil {
		return err
	}
	s, err := h.svc.StartSession(c.Request().Context(), pid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sessionView(s))
}

func (h *Handler) AddSymptom(c echo.Context) error {
	pid, err := patientFrom(c)
	if err != nil {
		return err
	}
	var req addSymptomRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	s, err := h.svc.AddSymptom(c.Request().Context(), req.SessionID, pid, req.SymptomID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sessionView(s))
}

func (h *Handler) FinalizeSession(c echo.Context) error {
	pid, err := patientFrom(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	res, err := h.svc.FinalizeSession(c.Request().Context(), id, pid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resultView(res))
}

func (h *Handler) GetSession(c echo.Context) error {
	pid, err := patientFrom(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	s, err := h.svc.GetSession(c.Request().Context(), id, pid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sessionView(s))
}

func (h *Handler) ListSessions(c echo.Context) error {
	pid, err := patientFrom(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListSessions(c.Request().Context(), pid, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	views := make([]SessionView, 0, len(items))
	for _, s := range items {
		views = append(views, sessionView(s))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(views, total, pg, c.Request().URL))
}

// -- Catalog handlers --

func (h *Handler) ListSymptoms(c echo.Context) error {
	items, err := h.svc.ListSymptoms(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"symptoms": items,
		"total":    len(items),
	})
}

func (h *Handler) CreateSymptom(c echo.Context) error {
	var req createSymptomRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	sym := &Symptom{
		Name:        req.Name,
		Description: req.Description,
		Severity:    req.Severity,
		RiskTier:    RiskTier(req.RiskLevel),
		BodySystem:  req.BodySystem,
	}
	if err := h.svc.CreateSymptom(c.Request().Context(), sym); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, sym)
}

func (h *Handler) ListRedFlags(c echo.Context) error {
	items, err := h.svc.ListRedFlags(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"red_flags": items,
		"total":     len(items),
	})
}

func (h *Handler) CreateRedFlag(c echo.Context) error {
	var req createRedFlagRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	rf := &RedFlag{
		Name:               req.Name,
		SymptomCombination: req.SymptomCombination,
		TriggerAction:      Action(req.TriggerAction),
		Description:        req.Description,
		Priority:           req.Priority,
	}
	if err := h.svc.CreateRedFlag(c.Request().Context(), rf); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, rf)
}

func patientFrom(c echo.Context) (uuid.UUID, error) {
	pid := auth.PatientIDFromContext(c.Request().Context())
	if pid == uuid.Nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "no patient identity on request")
	}
	return pid, nil
}

// httpError maps service errors onto HTTP status codes.
func httpError(err error) error {
	var input *InputError
	var fault *StorageFault
	switch {
	case errors.As(err, &input):
		return echo.NewHTTPError(http.StatusBadRequest, input.Msg)
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &fault):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage unavailable").SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
}
