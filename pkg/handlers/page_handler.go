package handlers

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"forecast-dashboard/pkg/forecastapi"
	"forecast-dashboard/pkg/models"
	"forecast-dashboard/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// refreshSeconds is the meta refresh interval while a fetch is outstanding.
const refreshSeconds = 1

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// renderMarkdown converts an assistant answer to HTML. Raw HTML in the answer
// is not passed through.
func renderMarkdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}

// LoadTemplates parses the embedded page templates.
func LoadTemplates() (*template.Template, error) {
	return template.New("pages").Funcs(template.FuncMap{
		"markdown": renderMarkdown,
	}).ParseFS(templateFS, "templates/*.tmpl")
}

// PageHandler serves the HTML dashboard. Every page is backed by a view in
// the registry; the view id travels in the ?view= query parameter.
type PageHandler struct {
	registry *services.ViewRegistry
}

func NewPageHandler(registry *services.ViewRegistry) *PageHandler {
	return &PageHandler{registry: registry}
}

// Register mounts the page routes.
func (h *PageHandler) Register(r gin.IRoutes) {
	r.GET("/", h.Home)

	r.GET("/forecast", h.ForecastPage)
	r.POST("/forecast/:id/query", h.SubmitQuery)
	r.POST("/forecast/:id/reload", h.SubmitReload)
	r.POST("/forecast/:id/scenario", h.SubmitScenario)
	r.GET("/forecast/:id/export.xlsx", h.ExportWorkbook)

	r.GET("/assistant", h.assistantPage(services.KindChat))
	r.POST("/assistant/:id/submit", h.submitAssistant(services.KindChat))
	r.GET("/knowledge", h.assistantPage(services.KindKnowledge))
	r.POST("/knowledge/:id/submit", h.submitAssistant(services.KindKnowledge))
}

type homePage struct {
	Title   string
	Refresh int
}

func (h *PageHandler) Home(c *gin.Context) {
	c.HTML(http.StatusOK, "home", homePage{Title: "Forecast dashboard"})
}

type forecastPage struct {
	Title        string
	ViewID       string
	Refresh      int
	Error        string
	State        services.DashboardState
	Chart        services.ChartView
	BacktestLine string
	Scenario     services.ScenarioSnapshot
}

// ForecastPage renders the dashboard for ?view=, opening a view first when
// the parameter is missing or the view has expired.
func (h *PageHandler) ForecastPage(c *gin.Context) {
	v, ok := h.registry.Forecast(c.Query("view"))
	if !ok {
		created, err := h.registry.OpenForecast(nil)
		if err != nil {
			log.Printf("[pages] ⚠️ failed to open forecast view: %v", err)
			c.String(http.StatusInternalServerError, "could not open forecast view: %v", err)
			return
		}
		c.Redirect(http.StatusSeeOther, pageURL("/forecast", created.ID, c.Query("error")))
		return
	}

	state := v.Dashboard.Snapshot()
	scenario := v.Scenario.Snapshot()
	page := forecastPage{
		Title:        "Demand forecast",
		ViewID:       v.ID,
		Error:        c.Query("error"),
		State:        state,
		Chart:        state.Chart(),
		BacktestLine: state.BacktestLine(),
		Scenario:     scenario,
	}
	if state.Loading || scenario.Loading {
		page.Refresh = refreshSeconds
	}
	c.HTML(http.StatusOK, "forecast", page)
}

// forecastAction resolves the view for a form post, or redirects to a fresh
// page when it has expired.
func (h *PageHandler) forecastAction(c *gin.Context) (*services.ForecastView, bool) {
	v, ok := h.registry.Forecast(c.Param("id"))
	if !ok {
		c.Redirect(http.StatusSeeOther, pageURL("/forecast", "", errViewNotFound.Error()))
	}
	return v, ok
}

func (h *PageHandler) SubmitQuery(c *gin.Context) {
	v, ok := h.forecastAction(c)
	if !ok {
		return
	}
	var form queryForm
	if err := c.ShouldBind(&form); err != nil {
		c.Redirect(http.StatusSeeOther, pageURL("/forecast", v.ID, err.Error()))
		return
	}
	q, err := form.merge(v.Dashboard.Query())
	if err == nil {
		err = v.Dashboard.SetQuery(q)
	}
	c.Redirect(http.StatusSeeOther, pageURL("/forecast", v.ID, formError(err)))
}

func (h *PageHandler) SubmitReload(c *gin.Context) {
	if v, ok := h.forecastAction(c); ok {
		v.Dashboard.Reload()
		c.Redirect(http.StatusSeeOther, pageURL("/forecast", v.ID, ""))
	}
}

// SubmitScenario reads price_delta_pct and runs the scenario. Backend
// failures are already part of the comparator state, so only input errors
// travel in the redirect.
func (h *PageHandler) SubmitScenario(c *gin.Context) {
	v, ok := h.forecastAction(c)
	if !ok {
		return
	}
	if raw := strings.TrimSpace(c.PostForm("price_delta_pct")); raw != "" {
		pct, err := strconv.ParseFloat(raw, 64)
		if err == nil {
			err = v.Scenario.SetPriceDelta(pct)
		}
		if err != nil {
			c.Redirect(http.StatusSeeOther, pageURL("/forecast", v.ID, "invalid price change: "+raw))
			return
		}
	}
	err := v.RunScenario(c.Request.Context())
	c.Redirect(http.StatusSeeOther, pageURL("/forecast", v.ID, formError(err)))
}

// ExportWorkbook downloads the current snapshot as XLSX.
func (h *PageHandler) ExportWorkbook(c *gin.Context) {
	v, ok := h.registry.Forecast(c.Param("id"))
	if !ok {
		c.String(http.StatusNotFound, errViewNotFound.Error())
		return
	}
	state := v.Dashboard.Snapshot()
	data, err := services.ExportForecastWorkbook(state, v.Scenario.Snapshot())
	if err != nil {
		log.Printf("[pages] ⚠️ export failed for view %s: %v", v.ID, err)
		c.String(http.StatusInternalServerError, "export failed: %v", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, exportFilename(state.Query)))
	c.Data(http.StatusOK, xlsxContentType, data)
}

func exportFilename(q models.ForecastQuery) string {
	return fmt.Sprintf("forecast_%s_%s_%s.xlsx", q.ProductID, q.FromDate, q.ToDate)
}

type providerOption struct {
	Value    string
	Label    string
	Selected bool
}

type assistantPage struct {
	Title     string
	ViewID    string
	Action    string
	Refresh   int
	Error     string
	State     services.SessionState
	Providers []providerOption
}

func assistantPath(kind services.SessionKind) string {
	if kind == services.KindKnowledge {
		return "/knowledge"
	}
	return "/assistant"
}

func assistantTitle(kind services.SessionKind) string {
	if kind == services.KindKnowledge {
		return "Document assistant"
	}
	return "Assistant"
}

// assistantView returns the view for id only when it is of the given kind.
func (h *PageHandler) assistantView(id string, kind services.SessionKind) (*services.AssistantView, bool) {
	v, ok := h.registry.Assistant(id)
	if !ok || v.Session.Kind() != kind {
		return nil, false
	}
	return v, true
}

func (h *PageHandler) assistantPage(kind services.SessionKind) gin.HandlerFunc {
	path := assistantPath(kind)
	return func(c *gin.Context) {
		v, ok := h.assistantView(c.Query("view"), kind)
		if !ok {
			created := h.registry.OpenAssistant(kind)
			c.Redirect(http.StatusSeeOther, pageURL(path, created.ID, c.Query("error")))
			return
		}

		state := v.Session.Snapshot()
		page := assistantPage{
			Title:  assistantTitle(kind),
			ViewID: v.ID,
			Action: path + "/" + v.ID + "/submit",
			Error:  c.Query("error"),
			State:  state,
		}
		if state.Loading {
			page.Refresh = refreshSeconds
		}
		if kind == services.KindChat {
			for _, p := range []models.Provider{models.ProviderPrimary, models.ProviderSecondary} {
				page.Providers = append(page.Providers, providerOption{
					Value:    string(p),
					Label:    p.Label(),
					Selected: p == state.Provider,
				})
			}
		}
		c.HTML(http.StatusOK, "assistant", page)
	}
}

// submitAssistant handles the question form. Pressing Enter in the input
// field posts the same form.
func (h *PageHandler) submitAssistant(kind services.SessionKind) gin.HandlerFunc {
	path := assistantPath(kind)
	return func(c *gin.Context) {
		v, ok := h.assistantView(c.Param("id"), kind)
		if !ok {
			c.Redirect(http.StatusSeeOther, pageURL(path, "", errViewNotFound.Error()))
			return
		}
		var form submitForm
		if err := c.ShouldBind(&form); err != nil {
			c.Redirect(http.StatusSeeOther, pageURL(path, v.ID, err.Error()))
			return
		}
		err := applySubmitForm(v.Session, form, true)
		if err == nil {
			err = v.Session.Submit(c.Request.Context())
		}
		c.Redirect(http.StatusSeeOther, pageURL(path, v.ID, formError(err)))
	}
}

func pageURL(path, viewID, errMsg string) string {
	params := url.Values{}
	if viewID != "" {
		params.Set("view", viewID)
	}
	if errMsg != "" {
		params.Set("error", errMsg)
	}
	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}

// formError is the banner text for a rejected form. Backend failures are
// already part of the view state and yield "".
func formError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, forecastapi.ErrBlankInput):
		return "Please enter a question."
	case errors.Is(err, forecastapi.ErrSubmissionPending):
		return "A request is already running."
	case forecastapi.IsPrecondition(err):
		return err.Error()
	default:
		return ""
	}
}
