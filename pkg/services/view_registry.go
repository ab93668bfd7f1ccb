package services

import (
	"context"
	"log"
	"sync"
	"time"

	"forecast-dashboard/pkg/models"

	"github.com/google/uuid"
)

// DefaultViewIdleTTL is how long an untouched view survives.
const DefaultViewIdleTTL = 30 * time.Minute

// ForecastBackend is everything the views of this application call.
type ForecastBackend interface {
	DashboardAPI
	ScenarioAPI
	ChatAPI
	KnowledgeAPI
}

// ViewConfig configures a ViewRegistry.
type ViewConfig struct {
	IdleTTL         time.Duration
	DefaultQuery    models.ForecastQuery
	DefaultProvider models.Provider
	Clock           func() time.Time
}

// ForecastView pairs the dashboard of one forecast page with its scenario form.
type ForecastView struct {
	ID        string
	CreatedAt time.Time
	Dashboard *DashboardController
	Scenario  *ScenarioComparator

	cancel   context.CancelFunc
	lastSeen time.Time
}

// RunScenario submits the scenario form against the dashboard's current query.
func (v *ForecastView) RunScenario(ctx context.Context) error {
	return v.Scenario.Submit(ctx, v.Dashboard.Query())
}

// AssistantView holds one chat or knowledge page.
type AssistantView struct {
	ID        string
	CreatedAt time.Time
	Session   *AssistantSession

	lastSeen time.Time
}

// ViewRegistry owns every open view. Views share nothing but the backend
// client; each is evicted once idle for longer than the configured TTL.
type ViewRegistry struct {
	base context.Context
	api  ForecastBackend
	cfg  ViewConfig

	mu         sync.Mutex
	forecasts  map[string]*ForecastView
	assistants map[string]*AssistantView
}

func NewViewRegistry(ctx context.Context, api ForecastBackend, cfg ViewConfig) *ViewRegistry {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultViewIdleTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = models.ProviderPrimary
	}
	return &ViewRegistry{
		base:       ctx,
		api:        api,
		cfg:        cfg,
		forecasts:  make(map[string]*ForecastView),
		assistants: make(map[string]*AssistantView),
	}
}

// DefaultQuery is the query a new forecast view starts with.
func (r *ViewRegistry) DefaultQuery() models.ForecastQuery {
	return r.cfg.DefaultQuery
}

// OpenForecast creates and mounts a forecast view for initial, or for the
// default query when initial is nil.
func (r *ViewRegistry) OpenForecast(initial *models.ForecastQuery) (*ForecastView, error) {
	q := r.cfg.DefaultQuery
	if initial != nil {
		q = *initial
	}
	ctx, cancel := context.WithCancel(r.base)
	dashboard, err := NewDashboardController(ctx, r.api, q)
	if err != nil {
		cancel()
		return nil, err
	}

	now := r.cfg.Clock()
	view := &ForecastView{
		ID:        uuid.NewString(),
		CreatedAt: now,
		Dashboard: dashboard,
		Scenario:  NewScenarioComparator(r.api),
		cancel:    cancel,
		lastSeen:  now,
	}
	r.mu.Lock()
	r.forecasts[view.ID] = view
	r.mu.Unlock()

	dashboard.Mount()
	log.Printf("[views] opened forecast view %s for %s", view.ID, q.ProductID)
	return view, nil
}

// Forecast looks up a forecast view and marks it as active.
func (r *ViewRegistry) Forecast(id string) (*ForecastView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.forecasts[id]
	if ok {
		v.lastSeen = r.cfg.Clock()
	}
	return v, ok
}

// CloseForecast drops a forecast view and abandons its outstanding fetches.
func (r *ViewRegistry) CloseForecast(id string) bool {
	r.mu.Lock()
	v, ok := r.forecasts[id]
	delete(r.forecasts, id)
	r.mu.Unlock()
	if ok {
		v.cancel()
	}
	return ok
}

// OpenAssistant creates a chat or knowledge view.
func (r *ViewRegistry) OpenAssistant(kind SessionKind) *AssistantView {
	var session *AssistantSession
	if kind == KindKnowledge {
		session = NewKnowledgeSession(r.api)
	} else {
		session = NewChatSession(r.api, r.cfg.DefaultProvider)
	}

	now := r.cfg.Clock()
	view := &AssistantView{
		ID:        uuid.NewString(),
		CreatedAt: now,
		Session:   session,
		lastSeen:  now,
	}
	r.mu.Lock()
	r.assistants[view.ID] = view
	r.mu.Unlock()
	log.Printf("[views] opened %s view %s", session.Kind(), view.ID)
	return view
}

// Assistant looks up an assistant view and marks it as active.
func (r *ViewRegistry) Assistant(id string) (*AssistantView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.assistants[id]
	if ok {
		v.lastSeen = r.cfg.Clock()
	}
	return v, ok
}

// CloseAssistant drops an assistant view.
func (r *ViewRegistry) CloseAssistant(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.assistants[id]
	delete(r.assistants, id)
	return ok
}

// Counts returns the number of open forecast and assistant views.
func (r *ViewRegistry) Counts() (forecasts, assistants int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.forecasts), len(r.assistants)
}

// Sweep evicts views idle for longer than the TTL and returns how many went.
func (r *ViewRegistry) Sweep() int {
	now := r.cfg.Clock()
	var cancels []context.CancelFunc
	evicted := 0

	r.mu.Lock()
	for id, v := range r.forecasts {
		if now.Sub(v.lastSeen) > r.cfg.IdleTTL {
			delete(r.forecasts, id)
			cancels = append(cancels, v.cancel)
			evicted++
		}
	}
	for id, v := range r.assistants {
		if now.Sub(v.lastSeen) > r.cfg.IdleTTL {
			delete(r.assistants, id)
			evicted++
		}
	}
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if evicted > 0 {
		log.Printf("[views] evicted %d idle views", evicted)
	}
	return evicted
}

// Run sweeps every interval until ctx is done, then closes every view.
func (r *ViewRegistry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *ViewRegistry) closeAll() {
	r.mu.Lock()
	forecasts := r.forecasts
	r.forecasts = make(map[string]*ForecastView)
	r.assistants = make(map[string]*AssistantView)
	r.mu.Unlock()

	for _, v := range forecasts {
		v.cancel()
	}
}
