// dashctl drives the forecast dashboard from a terminal.
//
// Usage:
//
//	dashctl products
//	dashctl forecast --product P001 --from 2023-06-01 --to 2023-06-30
//	dashctl scenario --product P001 --delta -2.5
//	dashctl chat --provider deepseek "why did demand drop?"
//	dashctl knowledge
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"forecast-dashboard/pkg/forecastapi"
	"forecast-dashboard/pkg/models"
	"forecast-dashboard/pkg/services"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

var version = "dev"

func main() {
	loadEnv()

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadEnv reads .env (or the given files) into the environment. A missing
// file is not fatal; flags and the real environment still apply.
func loadEnv(filenames ...string) {
	if err := godotenv.Load(filenames...); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "dashctl",
		Usage:   "Retail demand forecasts, price scenarios and assistants from the terminal",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api-url",
				Value:   "http://localhost:8000",
				Usage:   "Forecast service base URL",
				EnvVars: []string{"FORECAST_API_URL"},
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Value:   forecastapi.DefaultTimeout,
				Usage:   "Per-request timeout",
				EnvVars: []string{"BACKEND_TIMEOUT"},
			},
		},
		Commands: []*cli.Command{
			productsCommand(),
			forecastCommand(),
			scenarioCommand(),
			chatCommand(),
			knowledgeCommand(),
		},
	}
}

func newClient(c *cli.Context) *forecastapi.Client {
	return forecastapi.NewClient(c.String("api-url"), forecastapi.WithTimeout(c.Duration("timeout")))
}

func queryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "product",
			Aliases: []string{"p"},
			Value:   services.DefaultProductID,
			Usage:   "Product id",
			EnvVars: []string{"DEFAULT_PRODUCT_ID"},
		},
		&cli.StringFlag{
			Name:    "from",
			Value:   "2023-06-01",
			Usage:   "First forecast date (YYYY-MM-DD)",
			EnvVars: []string{"DEFAULT_FROM_DATE"},
		},
		&cli.StringFlag{
			Name:    "to",
			Value:   "2023-06-30",
			Usage:   "Last forecast date (YYYY-MM-DD)",
			EnvVars: []string{"DEFAULT_TO_DATE"},
		},
		&cli.IntFlag{
			Name:  "days",
			Usage: "Number of days starting at --from; overrides --to",
		},
	}
}

func queryFrom(c *cli.Context) (models.ForecastQuery, error) {
	to := c.String("to")
	if c.IsSet("days") {
		days := c.Int("days")
		if days < 1 {
			return models.ForecastQuery{}, fmt.Errorf("--days must be at least 1, got %d", days)
		}
		from, err := models.ParseDate(c.String("from"))
		if err != nil {
			return models.ForecastQuery{}, err
		}
		to = from.AddDays(days - 1).String()
	}
	return models.NewForecastQuery(c.String("product"), c.String("from"), to)
}

// =============================================================================
// PRODUCTS
// =============================================================================

func productsCommand() *cli.Command {
	return &cli.Command{
		Name:  "products",
		Usage: "List the product catalog",
		Action: func(c *cli.Context) error {
			products, err := newClient(c).FetchProducts(c.Context)
			if err != nil {
				return err
			}
			for _, p := range services.BuildDisplayCatalog(products) {
				fmt.Fprintln(c.App.Writer, p)
			}
			return nil
		},
	}
}

// =============================================================================
// FORECAST
// =============================================================================

func forecastCommand() *cli.Command {
	return &cli.Command{
		Name:  "forecast",
		Usage: "Show the demand forecast and backtest for a product",
		Flags: append(queryFlags(), &cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Value:   "table",
			Usage:   "Output format (table, json)",
		}),
		Action: func(c *cli.Context) error {
			q, err := queryFrom(c)
			if err != nil {
				return err
			}
			dashboard, err := services.NewDashboardController(c.Context, newClient(c), q)
			if err != nil {
				return err
			}
			dashboard.Mount()
			dashboard.Wait()
			// without a catalog nothing is fetched automatically
			if !dashboard.Snapshot().CatalogLoaded {
				dashboard.Reload()
				dashboard.Wait()
			}
			state := dashboard.Snapshot()

			if c.String("format") == "json" {
				enc := json.NewEncoder(c.App.Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					State services.DashboardState `json:"state"`
					Chart services.ChartView      `json:"chart"`
				}{state, state.Chart()})
			}
			writeForecast(c.App.Writer, state)
			if state.Error != "" {
				return errors.New(state.Error)
			}
			return nil
		},
	}
}

// =============================================================================
// SCENARIO
// =============================================================================

func scenarioCommand() *cli.Command {
	return &cli.Command{
		Name:  "scenario",
		Usage: "Compare revenue and quantity under a price change",
		Flags: append(queryFlags(), &cli.Float64Flag{
			Name:    "delta",
			Aliases: []string{"d"},
			Value:   services.DefaultPriceDeltaPct,
			Usage:   "Price change in percent (negative for a discount)",
		}),
		Action: func(c *cli.Context) error {
			q, err := queryFrom(c)
			if err != nil {
				return err
			}
			comparator := services.NewScenarioComparator(newClient(c))
			if err := comparator.SetPriceDelta(c.Float64("delta")); err != nil {
				return err
			}
			if err := comparator.Submit(c.Context, q); err != nil {
				return err
			}
			writeScenario(c.App.Writer, comparator.Snapshot())
			return nil
		},
	}
}

// =============================================================================
// ASSISTANTS
// =============================================================================

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:      "chat",
		Usage:     "Ask the assistant; without a question, read one per line from stdin",
		ArgsUsage: "[question]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "provider",
				Value:   string(models.ProviderPrimary),
				Usage:   "Model provider (openai, deepseek)",
				EnvVars: []string{"DEFAULT_CHAT_PROVIDER"},
			},
		},
		Action: func(c *cli.Context) error {
			provider, err := models.ParseProvider(c.String("provider"))
			if err != nil {
				return err
			}
			return runSession(c, services.NewChatSession(newClient(c), provider))
		},
	}
}

func knowledgeCommand() *cli.Command {
	return &cli.Command{
		Name:      "knowledge",
		Usage:     "Ask the document assistant; without a question, read one per line from stdin",
		ArgsUsage: "[question]",
		Action: func(c *cli.Context) error {
			return runSession(c, services.NewKnowledgeSession(newClient(c)))
		},
	}
}

// runSession answers the question given as arguments, or runs line mode where
// every line is typed into the input and submitted with Enter.
func runSession(c *cli.Context, session *services.AssistantSession) error {
	if c.Args().Present() {
		session.SetInput(strings.Join(c.Args().Slice(), " "))
		if err := session.Submit(c.Context); err != nil {
			return err
		}
		writeAnswer(c.App.Writer, session.Snapshot())
		return nil
	}
	return lineMode(c.Context, c.App.Reader, c.App.Writer, session)
}
