package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"forecast-dashboard/pkg/forecastapi"
	"forecast-dashboard/pkg/services"
)

// barUnit is the bar height, in chart units, drawn as one block.
const barUnit = 10.0

func writeForecast(w io.Writer, state services.DashboardState) {
	chart := state.Chart()
	fmt.Fprintf(w, "Product %s  %s .. %s\n", state.Query.ProductID, state.Query.FromDate, state.Query.ToDate)
	if line := state.BacktestLine(); line != "" {
		fmt.Fprintln(w, line)
	}
	if state.Error != "" {
		fmt.Fprintf(w, "error: %s\n", state.Error)
	}
	if state.Series == nil {
		return
	}
	if chart.Empty {
		fmt.Fprintln(w, chart.Message)
		return
	}
	if chart.ModelVersion != "" {
		fmt.Fprintf(w, "model %s\n", chart.ModelVersion)
	}
	fmt.Fprintln(w)
	for _, b := range chart.Bars {
		fmt.Fprintf(w, "%s %s %.1f\n", b.Date, strings.Repeat("#", int(b.Height/barUnit)), b.Quantity)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "date\tquantity\trevenue\tinterval\t")
	for _, r := range chart.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", r.Date, r.Quantity, r.Revenue, r.Interval)
	}
	tw.Flush()
}

func writeScenario(w io.Writer, snap services.ScenarioSnapshot) {
	if snap.Error != "" {
		fmt.Fprintf(w, "error: %s\n", snap.Error)
		return
	}
	if snap.Display == nil {
		fmt.Fprintf(w, "Price %s: no result\n", snap.PriceLabel)
		return
	}
	fmt.Fprintln(w, snap.Display.Summary)
}

func writeAnswer(w io.Writer, state services.SessionState) {
	fmt.Fprintln(w, state.Answer)
	if len(state.UsedTools) > 0 {
		fmt.Fprintf(w, "tools: %s\n", strings.Join(state.UsedTools, ", "))
	}
	if len(state.CitationLabels) > 0 {
		fmt.Fprintln(w, "sources:")
		for i, label := range state.CitationLabels {
			if excerpt := state.CitationExcerpts[i]; excerpt != "" {
				fmt.Fprintf(w, "  - %s: %q\n", label, excerpt)
				continue
			}
			fmt.Fprintf(w, "  - %s\n", label)
		}
	}
}

// lineMode reads questions until EOF. Each line is typed into the session
// input and submitted with Enter; failures are printed and the loop goes on.
func lineMode(ctx context.Context, r io.Reader, w io.Writer, session *services.AssistantSession) error {
	scanner := bufio.NewScanner(r)
	fmt.Fprint(w, "> ")
	for scanner.Scan() {
		session.SetInput(scanner.Text())
		_, err := session.HandleKey(ctx, services.SubmitKey)
		switch {
		case errors.Is(err, forecastapi.ErrBlankInput):
			fmt.Fprintln(w, "Please enter a question.")
		case err != nil:
			fmt.Fprintf(w, "error (%s): %v\n", forecastapi.ErrorClass(err), err)
		default:
			writeAnswer(w, session.Snapshot())
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprint(w, "> ")
	}
	fmt.Fprintln(w)
	return scanner.Err()
}
