package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/melih/lighthouse-classroom/internal/core/domain"
	"gopkg.in/yaml.v3"
)

const timeLayout = "2006-01-02 15:04:05"

func printRecords(w io.Writer, format string, records []*domain.ContainerRecord) error {
	switch format {
	case "json", "yaml":
		return encode(w, format, records)
	case "table", "":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"Resource", "Container", "Host Port", "State", "Built"})
	for _, r := range records {
		built := "-"
		if !r.BuiltAt.IsZero() {
			built = r.BuiltAt.Local().Format(timeLayout)
		}
		t.AppendRow(table.Row{r.ResourceID, r.UniqueName, strconv.Itoa(r.HostPort), string(r.State()), built})
	}
	t.Render()
	return nil
}

func printResources(w io.Writer, format string, resources []*domain.Resource) error {
	switch format {
	case "json", "yaml":
		return encode(w, format, resources)
	case "table", "":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Filename", "Source", "Updated"})
	for _, r := range resources {
		source := r.Source
		if source == "" {
			source = "upload"
		}
		t.AppendRow(table.Row{r.ID, r.Filename, source, r.UpdatedAt.Local().Format(timeLayout)})
	}
	t.Render()
	return nil
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Header = text.FormatUpper
	return t
}

func encode(w io.Writer, format string, v interface{}) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
