package main

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/c4pt0r/sqlground/internal/catalog"
	"github.com/c4pt0r/sqlground/internal/runner"
)

// ResultIOWriter renders statement outcomes in one output format.
type ResultIOWriter interface {
	Write(out runner.Outcome) error
	Flush() error
}

func NewResultIOWriter(format string, w io.Writer) (ResultIOWriter, error) {
	switch format {
	case "plain":
		return NewPlainResultIOWriter(w), nil
	case "table":
		return NewTableResultIOWriter(w), nil
	case "json":
		return NewJSONResultIOWriter(w), nil
	case "csv":
		return NewCSVResultIOWriter(w), nil
	}
	return nil, fmt.Errorf("invalid output format: %s", format)
}

// writeResult renders every outcome of res. A nil result writes nothing.
func writeResult(w io.Writer, format string, res *runner.Result) error {
	if res == nil {
		return nil
	}
	rw, err := NewResultIOWriter(format, w)
	if err != nil {
		return err
	}
	for _, out := range res.Outcomes {
		if err := rw.Write(out); err != nil {
			return err
		}
	}
	return rw.Flush()
}

func formatValue(val any) string {
	switch v := val.(type) {
	case nil:
		return "NULL"
	case bool:
		return fmt.Sprintf("%t", v)
	case int, int64:
		return fmt.Sprintf("%d", v)
	case float64:
		return fmt.Sprintf("%g", v)
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprintf("%v", v)
	}
}

func ackText(a *runner.Acknowledgement) string {
	s := fmt.Sprintf("OK, %d row(s) affected", a.AffectedRows)
	if a.InsertID != nil {
		s += fmt.Sprintf(", insert id %d", *a.InsertID)
	}
	return s
}

type PlainResultIOWriter struct {
	writer *bufio.Writer
}

func NewPlainResultIOWriter(writer io.Writer) *PlainResultIOWriter {
	return &PlainResultIOWriter{
		writer: bufio.NewWriter(writer),
	}
}

func (w *PlainResultIOWriter) Write(out runner.Outcome) error {
	switch o := out.(type) {
	case *runner.Acknowledgement:
		_, err := fmt.Fprintln(w.writer, ackText(o))
		return err
	case *runner.RowSet:
		for _, row := range o.Rows {
			for i, col := range row.Columns {
				if _, err := fmt.Fprintf(w.writer, "%s: %s ", col, formatValue(row.Values[i])); err != nil {
					return err
				}
			}
			if _, err := w.writer.WriteString("\n"); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *PlainResultIOWriter) Flush() error {
	return w.writer.Flush()
}

type TableResultIOWriter struct {
	writer io.Writer
}

func NewTableResultIOWriter(writer io.Writer) *TableResultIOWriter {
	return &TableResultIOWriter{writer: writer}
}

func (w *TableResultIOWriter) Write(out runner.Outcome) error {
	switch o := out.(type) {
	case *runner.Acknowledgement:
		_, err := fmt.Fprintln(w.writer, ackText(o))
		return err
	case *runner.RowSet:
		if o.RowCount() == 0 {
			_, err := fmt.Fprintln(w.writer, "Empty set")
			return err
		}
		table := tablewriter.NewWriter(w.writer)
		table.SetHeader(o.Fields)
		table.SetAutoFormatHeaders(false)
		for _, row := range o.Rows {
			rowData := make([]string, len(row.Values))
			for i, val := range row.Values {
				rowData[i] = formatValue(val)
			}
			table.Append(rowData)
		}
		table.Render()
		_, err := fmt.Fprintf(w.writer, "%d row(s) in set\n", o.RowCount())
		return err
	}
	return nil
}

func (w *TableResultIOWriter) Flush() error {
	return nil
}

// JSONResultIOWriter writes all outcomes as one JSON array, in the same shape
// the HTTP API returns them.
type JSONResultIOWriter struct {
	writer *bufio.Writer
	first  bool
}

func NewJSONResultIOWriter(writer io.Writer) *JSONResultIOWriter {
	return &JSONResultIOWriter{
		writer: bufio.NewWriter(writer),
		first:  true,
	}
}

func (w *JSONResultIOWriter) Write(out runner.Outcome) error {
	sep := ","
	if w.first {
		sep = "["
		w.first = false
	}
	if _, err := w.writer.WriteString(sep); err != nil {
		return err
	}
	jsonData, err := json.Marshal(out)
	if err != nil {
		return err
	}
	_, err = w.writer.Write(jsonData)
	return err
}

func (w *JSONResultIOWriter) Flush() error {
	end := "]\n"
	if w.first {
		end = "[]\n"
	}
	if _, err := w.writer.WriteString(end); err != nil {
		return err
	}
	return w.writer.Flush()
}

// CSVResultIOWriter writes a header and the rows of every row set.
// Acknowledgements have no CSV form and are skipped.
type CSVResultIOWriter struct {
	writer *csv.Writer
}

func NewCSVResultIOWriter(writer io.Writer) *CSVResultIOWriter {
	return &CSVResultIOWriter{
		writer: csv.NewWriter(writer),
	}
}

func (w *CSVResultIOWriter) Write(out runner.Outcome) error {
	rs, ok := out.(*runner.RowSet)
	if !ok {
		return nil
	}
	if err := w.writer.Write(rs.Fields); err != nil {
		return err
	}
	for _, row := range rs.Rows {
		record := make([]string, len(row.Values))
		for i, val := range row.Values {
			if val == nil {
				record[i] = ""
				continue
			}
			record[i] = formatValue(val)
		}
		if err := w.writer.Write(record); err != nil {
			return err
		}
	}
	return nil
}

func (w *CSVResultIOWriter) Flush() error {
	w.writer.Flush()
	return w.writer.Error()
}

// printError reports a failed run, pointing at the statement when known.
func printError(w io.Writer, err error) {
	var runErr *runner.Error
	if !errors.As(err, &runErr) {
		fmt.Fprintf(w, "ERROR: %v\n", err)
		return
	}
	var sb strings.Builder
	sb.WriteString("ERROR")
	if runErr.Code != "" {
		fmt.Fprintf(&sb, " %s", runErr.Code)
	}
	if runErr.Located() {
		fmt.Fprintf(&sb, " at statement %d", runErr.Index)
	}
	fmt.Fprintf(&sb, ": %s\n", runErr.Message)
	if runErr.Statement != "" {
		fmt.Fprintf(&sb, "  %s\n", runErr.Statement)
	}
	_, _ = io.WriteString(w, sb.String())
}

// writeTree prints the catalog as an indented outline. The current database
// is marked with an asterisk.
func writeTree(w io.Writer, tree catalog.Tree) error {
	bw := bufio.NewWriter(w)
	for _, db := range tree.Databases {
		marker := " "
		if db.Name == tree.CurrentDatabase {
			marker = "*"
		}
		fmt.Fprintf(bw, "%s %s\n", marker, db.Name)
		for _, t := range db.Tables {
			fmt.Fprintf(bw, "    %s\n", t.Name)
			for _, c := range t.Columns {
				fmt.Fprintf(bw, "        %s %s\n", c.Name, c.Type)
			}
		}
	}
	return bw.Flush()
}
