package handlers

import (
	"net/http"

	"forecast-dashboard/pkg/forecastapi"
	"forecast-dashboard/pkg/services"

	"github.com/gin-gonic/gin"
)

// ViewHandler exposes forecast and assistant views as a JSON API.
type ViewHandler struct {
	registry *services.ViewRegistry
}

func NewViewHandler(registry *services.ViewRegistry) *ViewHandler {
	return &ViewHandler{registry: registry}
}

// Register mounts the view routes on rg.
func (h *ViewHandler) Register(rg *gin.RouterGroup) {
	forecast := rg.Group("/views/forecast")
	{
		forecast.POST("", h.CreateForecastView)
		forecast.GET("/:id", h.GetForecastView)
		forecast.DELETE("/:id", h.DeleteForecastView)
		forecast.POST("/:id/query", h.UpdateQuery)
		forecast.POST("/:id/reload", h.Reload)
		forecast.POST("/:id/scenario", h.RunScenario)
	}

	assistant := rg.Group("/views/assistant")
	{
		assistant.POST("", h.CreateAssistantView)
		assistant.GET("/:id", h.GetAssistantView)
		assistant.DELETE("/:id", h.DeleteAssistantView)
		assistant.POST("/:id/submit", h.SubmitAssistant)
		assistant.POST("/:id/key", h.AssistantKey)
	}
}

type forecastViewResponse struct {
	ID           string                    `json:"id"`
	State        services.DashboardState   `json:"state"`
	Chart        services.ChartView        `json:"chart"`
	BacktestLine string                    `json:"backtest_line"`
	Scenario     services.ScenarioSnapshot `json:"scenario"`
}

func forecastResponse(v *services.ForecastView) forecastViewResponse {
	state := v.Dashboard.Snapshot()
	return forecastViewResponse{
		ID:           v.ID,
		State:        state,
		Chart:        state.Chart(),
		BacktestLine: state.BacktestLine(),
		Scenario:     v.Scenario.Snapshot(),
	}
}

type assistantViewResponse struct {
	ID    string                `json:"id"`
	State services.SessionState `json:"state"`
}

func (h *ViewHandler) forecastView(c *gin.Context) (*services.ForecastView, bool) {
	v, ok := h.registry.Forecast(c.Param("id"))
	if !ok {
		respondError(c, errViewNotFound)
	}
	return v, ok
}

func (h *ViewHandler) assistantView(c *gin.Context) (*services.AssistantView, bool) {
	v, ok := h.registry.Assistant(c.Param("id"))
	if !ok {
		respondError(c, errViewNotFound)
	}
	return v, ok
}

// CreateForecastView opens a forecast view, optionally for the query in the body.
func (h *ViewHandler) CreateForecastView(c *gin.Context) {
	var form queryForm
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&form); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
	}
	q, err := form.merge(h.registry.DefaultQuery())
	if err != nil {
		respondError(c, err)
		return
	}
	v, err := h.registry.OpenForecast(&q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, forecastResponse(v))
}

func (h *ViewHandler) GetForecastView(c *gin.Context) {
	if v, ok := h.forecastView(c); ok {
		c.JSON(http.StatusOK, forecastResponse(v))
	}
}

func (h *ViewHandler) DeleteForecastView(c *gin.Context) {
	if !h.registry.CloseForecast(c.Param("id")) {
		respondError(c, errViewNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateQuery merges the body into the current query. Fetches run in the
// background; poll GetForecastView until loading is false.
func (h *ViewHandler) UpdateQuery(c *gin.Context) {
	v, ok := h.forecastView(c)
	if !ok {
		return
	}
	var form queryForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	q, err := form.merge(v.Dashboard.Query())
	if err == nil {
		err = v.Dashboard.SetQuery(q)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, forecastResponse(v))
}

func (h *ViewHandler) Reload(c *gin.Context) {
	if v, ok := h.forecastView(c); ok {
		v.Dashboard.Reload()
		c.JSON(http.StatusAccepted, forecastResponse(v))
	}
}

type scenarioRequest struct {
	PriceDeltaPct *float64 `json:"price_delta_pct"`
}

// RunScenario runs the scenario synchronously and returns the comparator state.
func (h *ViewHandler) RunScenario(c *gin.Context) {
	v, ok := h.forecastView(c)
	if !ok {
		return
	}
	var req scenarioRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
	}
	if req.PriceDeltaPct != nil {
		if err := v.Scenario.SetPriceDelta(*req.PriceDeltaPct); err != nil {
			respondError(c, err)
			return
		}
	}
	if err := v.RunScenario(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v.Scenario.Snapshot())
}

type createAssistantRequest struct {
	Kind     string `json:"kind"`
	Provider string `json:"provider"`
}

func (h *ViewHandler) CreateAssistantView(c *gin.Context) {
	var req createAssistantRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
	}
	kind := services.KindChat
	if req.Kind != "" {
		k, ok := services.ParseSessionKind(req.Kind)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be chat or knowledge"})
			return
		}
		kind = k
	}
	p, hasProvider, err := submitForm{Provider: req.Provider}.provider()
	if err != nil {
		respondError(c, err)
		return
	}

	v := h.registry.OpenAssistant(kind)
	if hasProvider {
		if err := v.Session.SetProvider(p); err != nil {
			h.registry.CloseAssistant(v.ID)
			respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusCreated, assistantViewResponse{ID: v.ID, State: v.Session.Snapshot()})
}

func (h *ViewHandler) GetAssistantView(c *gin.Context) {
	if v, ok := h.assistantView(c); ok {
		c.JSON(http.StatusOK, assistantViewResponse{ID: v.ID, State: v.Session.Snapshot()})
	}
}

func (h *ViewHandler) DeleteAssistantView(c *gin.Context) {
	if !h.registry.CloseAssistant(c.Param("id")) {
		respondError(c, errViewNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

// SubmitAssistant sets the input (and provider) and submits it.
func (h *ViewHandler) SubmitAssistant(c *gin.Context) {
	h.handleAssistant(c, true, func(v *services.AssistantView, form submitForm) error {
		return v.Session.Submit(c.Request.Context())
	})
}

// AssistantKey forwards a key press; only Enter submits. The input is
// replaced only when the body carries one.
func (h *ViewHandler) AssistantKey(c *gin.Context) {
	h.handleAssistant(c, false, func(v *services.AssistantView, form submitForm) error {
		_, err := v.Session.HandleKey(c.Request.Context(), form.Key)
		return err
	})
}

func (h *ViewHandler) handleAssistant(c *gin.Context, replaceInput bool, action func(*services.AssistantView, submitForm) error) {
	v, ok := h.assistantView(c)
	if !ok {
		return
	}
	var form submitForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if err := applySubmitForm(v.Session, form, replaceInput); err != nil {
		respondError(c, err)
		return
	}
	if err := action(v, form); err != nil {
		status := errorStatus(err)
		body := gin.H{"error": err.Error(), "class": forecastapi.ErrorClass(err)}
		// backend failures are part of the session state, so return it too
		if status == http.StatusBadGateway || status == http.StatusNotFound {
			body["state"] = v.Session.Snapshot()
		}
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, assistantViewResponse{ID: v.ID, State: v.Session.Snapshot()})
}

func applySubmitForm(s *services.AssistantSession, form submitForm, replaceInput bool) error {
	p, ok, err := form.provider()
	if err != nil {
		return err
	}
	if ok {
		if err := s.SetProvider(p); err != nil {
			return err
		}
	}
	if replaceInput || form.Input != "" {
		s.SetInput(form.Input)
	}
	return nil
}
