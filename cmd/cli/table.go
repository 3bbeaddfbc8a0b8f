package main

import (
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/lakewatch/thermal-service/internal/database"
)

// renderTable writes a rounded table to terminals and TSV elsewhere.
func renderTable(w io.Writer, headers []string, rows [][]string) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)
	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range headers {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	if !isTerminal(w) {
		tw.RenderTSV()
		return
	}
	tw.SetStyle(table.StyleRounded)
	tw.Render()
}

func colorStatus(status string, colorize bool) string {
	if !colorize {
		return status
	}
	switch status {
	case string(database.StatusCompleted), string(database.JobSuccess):
		return text.FgGreen.Sprint(status)
	case string(database.StatusCompletedWithErrors), string(database.StatusProcessing), string(database.JobStarted):
		return text.FgYellow.Sprint(status)
	case string(database.StatusFailed):
		return text.FgRed.Sprint(status)
	}
	return status
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func intOrDash(n *int) string {
	if n == nil {
		return "-"
	}
	return strconv.Itoa(*n)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.DateTime)
}
