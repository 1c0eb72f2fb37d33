// Package sheets exposes a spreadsheet as header-keyed tables.
package sheets

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// Row is one data row. Number is the 1-based sheet row (header is row 1).
type Row struct {
	Number int
	Values map[string]string
}

func (r Row) Get(column string) string {
	return r.Values[column]
}

type Table struct {
	Headers []string
	Rows    []Row
}

// TableClient is the storage surface the sheet-backed repository needs.
type TableClient interface {
	EnsureTable(ctx context.Context, name string, headers []string) error
	Read(ctx context.Context, name string) (Table, error)
	Append(ctx context.Context, name string, values map[string]string) error
	UpdateRow(ctx context.Context, name string, number int, values map[string]string) error
}

type Config struct {
	SpreadsheetID       string
	ServiceAccountEmail string
	PrivateKey          string
}

// Client implements TableClient against the Google Sheets API.
type Client struct {
	svc           *sheetsapi.Service
	spreadsheetID string

	mu      sync.RWMutex
	headers map[string][]string
}

// NewClient authenticates with a service account key.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	conf := &jwt.Config{
		Email:      cfg.ServiceAccountEmail,
		PrivateKey: []byte(cfg.PrivateKey),
		Scopes:     []string{sheetsapi.SpreadsheetsScope},
		TokenURL:   google.JWTTokenURL,
	}
	// Token refresh must outlive any single request context.
	svc, err := sheetsapi.NewService(ctx, option.WithHTTPClient(conf.Client(context.Background())))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: cfg.SpreadsheetID, headers: make(map[string][]string)}, nil
}

// EnsureTable creates the tab if missing and appends any absent headers.
func (c *Client) EnsureTable(ctx context.Context, name string, headers []string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read spreadsheet: %w", err)
	}
	exists := false
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == name {
			exists = true
			break
		}
	}
	if !exists {
		req := &sheetsapi.BatchUpdateSpreadsheetRequest{
			Requests: []*sheetsapi.Request{{
				AddSheet: &sheetsapi.AddSheetRequest{Properties: &sheetsapi.SheetProperties{Title: name}},
			}},
		}
		if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to add sheet %s: %w", name, err)
		}
	}

	current, err := c.readHeaders(ctx, name)
	if err != nil {
		return err
	}
	merged := append([]string(nil), current...)
	for _, h := range headers {
		if !contains(merged, h) {
			merged = append(merged, h)
		}
	}
	if len(merged) != len(current) {
		vr := &sheetsapi.ValueRange{Values: [][]interface{}{toRow(merged)}}
		if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, name+"!A1", vr).
			ValueInputOption("RAW").Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to write headers for %s: %w", name, err)
		}
	}
	c.setHeaders(name, merged)
	return nil
}

func (c *Client) Read(ctx context.Context, name string) (Table, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, name).Context(ctx).Do()
	if err != nil {
		return Table{}, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if len(resp.Values) == 0 {
		return Table{}, nil
	}
	headers := make([]string, len(resp.Values[0]))
	for i, v := range resp.Values[0] {
		headers[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	c.setHeaders(name, headers)

	table := Table{Headers: headers, Rows: make([]Row, 0, len(resp.Values)-1)}
	for i, raw := range resp.Values[1:] {
		values := make(map[string]string, len(headers))
		for j, h := range headers {
			if j < len(raw) {
				values[h] = fmt.Sprint(raw[j])
			}
		}
		table.Rows = append(table.Rows, Row{Number: i + 2, Values: values})
	}
	return table, nil
}

func (c *Client) Append(ctx context.Context, name string, values map[string]string) error {
	headers, err := c.headersFor(ctx, name)
	if err != nil {
		return err
	}
	vr := &sheetsapi.ValueRange{Values: [][]interface{}{project(headers, values)}}
	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, name, vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", name, err)
	}
	return nil
}

func (c *Client) UpdateRow(ctx context.Context, name string, number int, values map[string]string) error {
	if number < 2 {
		return fmt.Errorf("invalid row number %d", number)
	}
	headers, err := c.headersFor(ctx, name)
	if err != nil {
		return err
	}
	vr := &sheetsapi.ValueRange{Values: [][]interface{}{project(headers, values)}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, fmt.Sprintf("%s!A%d", name, number), vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update %s row %d: %w", name, number, err)
	}
	return nil
}

func (c *Client) readHeaders(ctx context.Context, name string) ([]string, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, name+"!1:1").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read headers of %s: %w", name, err)
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}
	headers := make([]string, len(resp.Values[0]))
	for i, v := range resp.Values[0] {
		headers[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return headers, nil
}

func (c *Client) headersFor(ctx context.Context, name string) ([]string, error) {
	c.mu.RLock()
	h, ok := c.headers[name]
	c.mu.RUnlock()
	if ok {
		return h, nil
	}
	h, err := c.readHeaders(ctx, name)
	if err != nil {
		return nil, err
	}
	c.setHeaders(name, h)
	return h, nil
}

func (c *Client) setHeaders(name string, headers []string) {
	c.mu.Lock()
	c.headers[name] = headers
	c.mu.Unlock()
}

// project orders values by headers. Columns without a value are written
// as empty strings so an update does not leave stale cells behind.
func project(headers []string, values map[string]string) []interface{} {
	row := make([]interface{}, len(headers))
	for i, h := range headers {
		row[i] = values[h]
	}
	return row
}

func toRow(values []string) []interface{} {
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	return row
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
