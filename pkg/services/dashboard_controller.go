package services

import (
	"context"
	"log"
	"sync"

	"forecast-dashboard/pkg/forecastapi"
	"forecast-dashboard/pkg/models"
)

// BacktestUnavailableMessage replaces any failed backtest fetch.
const BacktestUnavailableMessage = "Backtest unavailable (historical data required)"

// DashboardAPI is the backend surface used by a forecast view.
type DashboardAPI interface {
	FetchProducts(ctx context.Context) ([]string, error)
	FetchForecast(ctx context.Context, productID string, from, to models.Date) (*models.ForecastSeries, error)
	FetchBacktest(ctx context.Context, productID string, from, to models.Date) (*models.BacktestSummary, error)
}

// DashboardState is an immutable snapshot of a forecast view.
type DashboardState struct {
	Query         models.ForecastQuery    `json:"query"`
	Catalog       []string                `json:"catalog"`
	CatalogLoaded bool                    `json:"catalog_loaded"`
	Options       []string                `json:"options"`
	Series        *models.ForecastSeries  `json:"series,omitempty"`
	Backtest      *models.BacktestSummary `json:"backtest,omitempty"`
	Loading       bool                    `json:"loading"`
	Error         string                  `json:"error,omitempty"`
}

// Chart normalizes the snapshot's series.
func (s DashboardState) Chart() ChartView {
	return NormalizeChart(s.Series)
}

// BacktestLine is the header text for the backtest summary.
func (s DashboardState) BacktestLine() string {
	return DescribeBacktest(s.Backtest)
}

// DashboardController owns the state of one forecast view. Every fetch it
// dispatches carries a token; a settling response is applied only when its
// token is still the latest of its kind and its query is still current.
type DashboardController struct {
	ctx context.Context
	api DashboardAPI

	mu             sync.Mutex
	query          models.ForecastQuery
	catalog        []string
	catalogLoaded  bool
	mounted        bool
	series         *models.ForecastSeries
	backtest       *models.BacktestSummary
	errMsg         string
	inflight       int
	latestForecast uint64
	latestBacktest uint64

	wg sync.WaitGroup
}

// NewDashboardController creates a controller for initial. Fetches run on ctx,
// so cancelling it abandons whatever is still outstanding.
func NewDashboardController(ctx context.Context, api DashboardAPI, initial models.ForecastQuery) (*DashboardController, error) {
	if err := initial.Validate(); err != nil {
		return nil, &forecastapi.PreconditionError{Op: "new dashboard", Err: err}
	}
	return &DashboardController{ctx: ctx, api: api, query: initial}, nil
}

// Mount loads the product catalog once. Later calls are no-ops.
func (c *DashboardController) Mount() {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = true
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		products, err := c.api.FetchProducts(c.ctx)
		c.settleCatalog(products, err)
	}()
}

func (c *DashboardController) settleCatalog(products []string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		log.Printf("[dashboard] ⚠️ product catalog unavailable, keeping %s as the only option: %v", c.query.ProductID, err)
		return
	}
	c.catalog = BuildDisplayCatalog(products)
	c.catalogLoaded = true
	if len(products) > 0 && !containsProduct(c.catalog, c.query.ProductID) {
		log.Printf("[dashboard] product %s not in catalog, switching to %s", c.query.ProductID, DefaultProductID)
		c.query.ProductID = DefaultProductID
	}
	c.dispatchLocked()
}

// SetQuery replaces the query. Invalid queries are rejected and leave the
// state untouched; an unchanged query is a no-op.
func (c *DashboardController) SetQuery(q models.ForecastQuery) error {
	if err := q.Validate(); err != nil {
		return &forecastapi.PreconditionError{Op: "set query", Err: err}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if q.Equal(c.query) {
		return nil
	}
	c.query = q
	if c.catalogLoaded {
		c.dispatchLocked()
	}
	return nil
}

// SetProduct changes only the product of the current query.
func (c *DashboardController) SetProduct(productID string) error {
	q := c.Query()
	q.ProductID = productID
	return c.SetQuery(q)
}

// SetRange changes only the date range of the current query.
func (c *DashboardController) SetRange(from, to models.Date) error {
	q := c.Query()
	q.FromDate, q.ToDate = from, to
	return c.SetQuery(q)
}

// Query returns the current query.
func (c *DashboardController) Query() models.ForecastQuery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

// Reload re-fetches the forecast for the current query. It may be called while
// other fetches are outstanding.
func (c *DashboardController) Reload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatchForecastLocked()
}

// Wait blocks until every dispatched fetch has settled.
func (c *DashboardController) Wait() {
	c.wg.Wait()
}

// Snapshot returns a copy of the current state.
func (c *DashboardController) Snapshot() DashboardState {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := DashboardState{
		Query:         c.query,
		Catalog:       append([]string(nil), c.catalog...),
		CatalogLoaded: c.catalogLoaded,
		Series:        c.series,
		Backtest:      c.backtest,
		Loading:       c.inflight > 0,
		Error:         c.errMsg,
	}
	if s.Catalog == nil {
		s.Catalog = []string{}
	}
	if c.catalogLoaded {
		s.Options = append([]string(nil), c.catalog...)
	} else {
		s.Options = []string{c.query.ProductID}
	}
	return s
}

func (c *DashboardController) dispatchLocked() {
	c.dispatchForecastLocked()
	c.dispatchBacktestLocked()
}

func (c *DashboardController) dispatchForecastLocked() {
	c.latestForecast++
	token, q := c.latestForecast, c.query
	c.inflight++
	c.errMsg = ""
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		series, err := c.api.FetchForecast(c.ctx, q.ProductID, q.FromDate, q.ToDate)
		c.settleForecast(token, q, series, err)
	}()
}

func (c *DashboardController) settleForecast(token uint64, q models.ForecastQuery, series *models.ForecastSeries, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inflight--
	if token != c.latestForecast || !q.Equal(c.query) {
		log.Printf("[dashboard] discarding stale forecast for %s %s..%s (token %d, latest %d)",
			q.ProductID, q.FromDate, q.ToDate, token, c.latestForecast)
		return
	}
	if err != nil {
		log.Printf("[dashboard] ⚠️ forecast %s failed (%s): %v", q.ProductID, forecastapi.ErrorClass(err), err)
		c.errMsg = err.Error()
		return
	}
	c.series = series
	c.errMsg = ""
}

func (c *DashboardController) dispatchBacktestLocked() {
	c.latestBacktest++
	token, q := c.latestBacktest, c.query
	c.backtest = nil
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		summary, err := c.api.FetchBacktest(c.ctx, q.ProductID, q.FromDate, q.ToDate)
		c.settleBacktest(token, q, summary, err)
	}()
}

func (c *DashboardController) settleBacktest(token uint64, q models.ForecastQuery, summary *models.BacktestSummary, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if token != c.latestBacktest || !q.Equal(c.query) {
		log.Printf("[dashboard] discarding stale backtest for %s (token %d, latest %d)", q.ProductID, token, c.latestBacktest)
		return
	}
	if err != nil || summary == nil {
		log.Printf("[dashboard] backtest %s unavailable: %v", q.ProductID, err)
		unavailable := models.BacktestUnavailable(BacktestUnavailableMessage)
		c.backtest = &unavailable
		return
	}
	c.backtest = summary
}
