package analytics

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Exporter defines the interface for exporting aggregated data
type Exporter interface {
	Export(ctx context.Context, data *AggregatedData) error
	Flush(ctx context.Context) error
	Close() error
}

// HTTPExporter exports data to external HTTP endpoints
type HTTPExporter struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	buffer     []*AggregatedData
	batchSize  int
}

func NewHTTPExporter(endpoint, apiKey string, batchSize int) *HTTPExporter {
	return &HTTPExporter{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		buffer:    make([]*AggregatedData, 0, batchSize),
		batchSize: batchSize,
	}
}

func (e *HTTPExporter) Export(ctx context.Context, data *AggregatedData) error {
	e.buffer = append(e.buffer, data)

	if len(e.buffer) >= e.batchSize {
		return e.Flush(ctx)
	}

	return nil
}

func (e *HTTPExporter) Flush(ctx context.Context) error {
	if len(e.buffer) == 0 {
		return nil
	}

	payload, err := json.Marshal(e.buffer)
	if err != nil {
		return fmt.Errorf("failed to marshal analytics data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send analytics data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("analytics export failed with status %d: %s", resp.StatusCode, string(body))
	}

	// Clear buffer on successful export
	e.buffer = e.buffer[:0]
	return nil
}

func (e *HTTPExporter) Close() error {
	// Flush any remaining data
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return e.Flush(ctx)
}

// CSVExporter writes aggregated rows to an io.Writer, one record per period.
type CSVExporter struct {
	writer        *csv.Writer
	headerWritten bool
}

func NewCSVExporter(w io.Writer) *CSVExporter {
	return &CSVExporter{writer: csv.NewWriter(w)}
}

func (e *CSVExporter) Export(_ context.Context, data *AggregatedData) error {
	if !e.headerWritten {
		header := []string{
			"period", "key", "start_time", "end_time",
			"active_users", "exp_gained", "exp_lost",
			"level_ups", "level_downs", "rewards_issued",
		}
		if err := e.writer.Write(header); err != nil {
			return err
		}
		e.headerWritten = true
	}

	record := []string{
		string(data.Period),
		data.Key,
		data.StartTime.Format(time.RFC3339),
		data.EndTime.Format(time.RFC3339),
		strconv.Itoa(data.ActiveUsers),
		data.ExpGained,
		data.ExpLost,
		strconv.FormatInt(data.LevelUps, 10),
		strconv.FormatInt(data.LevelDowns, 10),
		strconv.FormatInt(data.RewardsIssued, 10),
	}
	return e.writer.Write(record)
}

func (e *CSVExporter) Flush(_ context.Context) error {
	e.writer.Flush()
	return e.writer.Error()
}

func (e *CSVExporter) Close() error {
	e.writer.Flush()
	return e.writer.Error()
}

// ConsoleExporter prints aggregations, for demos and local debugging.
type ConsoleExporter struct {
	prefix string
	out    io.Writer
}

func NewConsoleExporter(prefix string, out io.Writer) *ConsoleExporter {
	return &ConsoleExporter{prefix: prefix, out: out}
}

func (e *ConsoleExporter) Export(_ context.Context, data *AggregatedData) error {
	_, err := fmt.Fprintf(e.out, "%s %s %s: active=%d exp+%s exp-%s ups=%d rewards=%d\n",
		e.prefix, data.Period, data.Key,
		data.ActiveUsers, data.ExpGained, data.ExpLost, data.LevelUps, data.RewardsIssued)
	return err
}

func (e *ConsoleExporter) Flush(context.Context) error { return nil }
func (e *ConsoleExporter) Close() error                { return nil }

// ExportManager fans aggregated data out to several exporters.
type ExportManager struct {
	exporters []Exporter
}

func NewExportManager(exporters ...Exporter) *ExportManager {
	return &ExportManager{exporters: exporters}
}

// ExportData pushes every aggregation through every exporter and flushes.
func (m *ExportManager) ExportData(ctx context.Context, data []*AggregatedData) error {
	for _, exporter := range m.exporters {
		for _, d := range data {
			if err := exporter.Export(ctx, d); err != nil {
				return err
			}
		}
		if err := exporter.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all exporters, flushing pending data.
func (m *ExportManager) Close() error {
	var firstErr error
	for _, exporter := range m.exporters {
		if err := exporter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
