// Package memory is an in-process stand-in for the Drive and Sheets APIs,
// used for local runs without Google credentials and in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/waste-tracker/internal/sheets"
)

// Spreadsheet is the stored state of one spreadsheet.
type Spreadsheet struct {
	ID       string
	Name     string
	Writers  []string
	Values   [][]any
	Position int
}

// Client keeps spreadsheets in memory. Errors can be injected per operation.
type Client struct {
	mu     sync.Mutex
	seq    int
	files  map[string]*Spreadsheet
	calls  []string
	failOn map[string]error
}

// New returns an empty Client.
func New() *Client {
	return &Client{
		files:  make(map[string]*Spreadsheet),
		failOn: make(map[string]error),
	}
}

// FailOn makes every later call to op return err. op is one of "list",
// "delete", "create", "share", "write" or "rename".
func (c *Client) FailOn(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failOn[op] = err
}

// Calls returns the operations performed so far, in order.
func (c *Client) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// Spreadsheets returns a snapshot of the stored spreadsheets ordered by
// creation.
func (c *Client) Spreadsheets() []Spreadsheet {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Spreadsheet, 0, len(c.files))
	for _, f := range c.files {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (c *Client) record(op string) error {
	c.calls = append(c.calls, op)
	return c.failOn[op]
}

// ListSpreadsheets implements sheets.Client.
func (c *Client) ListSpreadsheets(_ context.Context) ([]sheets.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("list"); err != nil {
		return nil, err
	}
	out := make([]sheets.File, 0, len(c.files))
	for _, f := range c.files {
		out = append(out, sheets.File{ID: f.ID, Name: f.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteSpreadsheet implements sheets.Client.
func (c *Client) DeleteSpreadsheet(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("delete"); err != nil {
		return err
	}
	if _, ok := c.files[id]; !ok {
		return fmt.Errorf("spreadsheet %s not found", id)
	}
	delete(c.files, id)
	return nil
}

// CreateSpreadsheet implements sheets.Client.
func (c *Client) CreateSpreadsheet(_ context.Context, title string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("create"); err != nil {
		return "", err
	}
	c.seq++
	id := fmt.Sprintf("sheet-%03d", c.seq)
	c.files[id] = &Spreadsheet{ID: id, Name: title, Position: c.seq}
	return id, nil
}

// ShareWriter implements sheets.Client.
func (c *Client) ShareWriter(_ context.Context, id, email string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("share"); err != nil {
		return err
	}
	f, ok := c.files[id]
	if !ok {
		return fmt.Errorf("spreadsheet %s not found", id)
	}
	f.Writers = append(f.Writers, email)
	return nil
}

// WriteValues implements sheets.Client.
func (c *Client) WriteValues(_ context.Context, id string, values [][]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("write"); err != nil {
		return err
	}
	f, ok := c.files[id]
	if !ok {
		return fmt.Errorf("spreadsheet %s not found", id)
	}
	f.Values = values
	return nil
}

// RenameSpreadsheet implements sheets.Client.
func (c *Client) RenameSpreadsheet(_ context.Context, id, title string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("rename"); err != nil {
		return err
	}
	f, ok := c.files[id]
	if !ok {
		return fmt.Errorf("spreadsheet %s not found", id)
	}
	f.Name = title
	return nil
}
