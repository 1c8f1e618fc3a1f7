// Package google implements sheets.Client on the Drive v3 and Sheets v4 APIs.
package google

import (
	"context"
	"fmt"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/JakeFAU/waste-tracker/internal/sheets"
)

const spreadsheetQuery = "mimeType='application/vnd.google-apps.spreadsheet' and trashed=false"

// Scopes are the OAuth scopes the service account needs.
var Scopes = []string{
	drive.DriveScope,
	gsheets.SpreadsheetsScope,
}

// Client talks to Drive for file management and to Sheets for content.
type Client struct {
	drive  *drive.Service
	sheets *gsheets.Service
}

// New builds both services from the same client options, typically
// option.WithCredentialsFile for a service account key.
func New(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithScopes(Scopes...)}, opts...)
	driveSvc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	sheetsSvc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{drive: driveSvc, sheets: sheetsSvc}, nil
}

// ListSpreadsheets returns every spreadsheet visible to the caller.
func (c *Client) ListSpreadsheets(ctx context.Context) ([]sheets.File, error) {
	var out []sheets.File
	err := c.drive.Files.List().
		Q(spreadsheetQuery).
		Fields("nextPageToken, files(id, name)").
		PageSize(1000).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				out = append(out, sheets.File{ID: f.Id, Name: f.Name})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("drive files.list: %w", err)
	}
	return out, nil
}

// DeleteSpreadsheet permanently deletes a file.
func (c *Client) DeleteSpreadsheet(ctx context.Context, id string) error {
	if err := c.drive.Files.Delete(id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("drive files.delete: %w", err)
	}
	return nil
}

// CreateSpreadsheet creates an empty spreadsheet and returns its ID.
func (c *Client) CreateSpreadsheet(ctx context.Context, title string) (string, error) {
	created, err := c.sheets.Spreadsheets.Create(&gsheets.Spreadsheet{
		Properties: &gsheets.SpreadsheetProperties{Title: title},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("sheets spreadsheets.create: %w", err)
	}
	return created.SpreadsheetId, nil
}

// ShareWriter grants email writer access.
func (c *Client) ShareWriter(ctx context.Context, id, email string) error {
	_, err := c.drive.Permissions.Create(id, &drive.Permission{
		Type:         "user",
		Role:         "writer",
		EmailAddress: email,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("drive permissions.create: %w", err)
	}
	return nil
}

// WriteValues writes values starting at A1 of the first sheet in one call.
func (c *Client) WriteValues(ctx context.Context, id string, values [][]any) error {
	_, err := c.sheets.Spreadsheets.Values.Update(id, "A1", &gsheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("sheets values.update: %w", err)
	}
	return nil
}

// RenameSpreadsheet changes the file name.
func (c *Client) RenameSpreadsheet(ctx context.Context, id, title string) error {
	if _, err := c.drive.Files.Update(id, &drive.File{Name: title}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("drive files.update: %w", err)
	}
	return nil
}
