package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/term"
)

// Output formats for the call command.
const (
	formatJSON  = "json"
	formatJSONL = "jsonl"
	formatCSV   = "csv"
	formatTSV   = "tsv"
	formatTable = "table"
)

func validFormat(format string) bool {
	switch format {
	case formatJSON, formatJSONL, formatCSV, formatTSV, formatTable:
		return true
	}
	return false
}

// printResponse renders a successful response body. Non-JSON bodies are
// emitted verbatim regardless of format; the list-shaped formats fall back
// to plain JSON when the body holds no list.
func printResponse(w io.Writer, resp *http.Response, format string) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		_, err := fmt.Fprintln(w, strings.TrimRight(string(body), "\n"))
		return err
	}

	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		// Content type lied; emit verbatim.
		_, err := fmt.Fprintln(w, string(body))
		return err
	}

	if format != formatJSON {
		if items, ok := extractItems(parsed); ok {
			switch format {
			case formatJSONL:
				return printJSONL(w, items)
			case formatCSV:
				return printDelimited(w, items, ',')
			case formatTSV:
				return printDelimited(w, items, '\t')
			case formatTable:
				return printTable(w, items)
			}
		}
	}
	return printJSON(w, parsed)
}

// printJSON writes indented JSON on a terminal and compact JSON when piped.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	if isTerminal(w) {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func printJSONL(w io.Writer, items []any) error {
	enc := json.NewEncoder(w)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return err
		}
	}
	return nil
}

func printDelimited(w io.Writer, items []any, comma rune) error {
	fields := collectFieldNames(items)
	if len(fields) == 0 {
		fields = []string{"value"}
	}

	cw := csv.NewWriter(w)
	cw.Comma = comma
	if err := cw.Write(fields); err != nil {
		return err
	}
	for _, item := range items {
		if err := cw.Write(recordFor(item, fields)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func printTable(w io.Writer, items []any) error {
	fields := collectFieldNames(items)
	if len(fields) == 0 {
		fields = []string{"value"}
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)

	header := make(table.Row, len(fields))
	for i, f := range fields {
		header[i] = f
	}
	t.AppendHeader(header)

	for _, item := range items {
		record := recordFor(item, fields)
		row := make(table.Row, len(record))
		for i, cell := range record {
			row[i] = cell
		}
		t.AppendRow(row)
	}

	t.RenderMarkdown()
	return nil
}

// extractItems returns the list in a response body: the body itself when it
// is an array, or the single array value of a one-key object.
func extractItems(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case map[string]any:
		if len(t) == 1 {
			for _, val := range t {
				if items, ok := val.([]any); ok {
					return items, true
				}
			}
		}
	}
	return nil, false
}

// collectFieldNames returns the sorted union of keys across object items.
func collectFieldNames(items []any) []string {
	seen := map[string]bool{}
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		for key := range obj {
			seen[key] = true
		}
	}

	fields := make([]string, 0, len(seen))
	for key := range seen {
		fields = append(fields, key)
	}
	sort.Strings(fields)
	return fields
}

// recordFor renders one item as a row. Non-object items fill the first column.
func recordFor(item any, fields []string) []string {
	record := make([]string, len(fields))
	obj, ok := item.(map[string]any)
	if !ok {
		record[0] = stringifyValue(item)
		return record
	}
	for i, f := range fields {
		if v, ok := obj[f]; ok {
			record[i] = stringifyValue(v)
		}
	}
	return record
}

// stringifyValue flattens nested structures to JSON so they fit in one cell.
func stringifyValue(v any) string {
	switch v.(type) {
	case nil:
		return ""
	case map[string]any, []any:
		b, _ := json.Marshal(v)
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
