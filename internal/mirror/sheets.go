package mirror

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/uvolbolmasin/boxbot/internal/models"
)

const (
	usersTab       = "Users"
	restaurantsTab = "Restaurants"
	timeLayout     = "2006-01-02 15:04:05"
)

// SheetsSink appends rows to a Google spreadsheet with Users and
// Restaurants tabs.
type SheetsSink struct {
	values        *sheets.SpreadsheetsValuesService
	spreadsheetID string
}

// NewSheetsSink authenticates with a service account key file.
func NewSheetsSink(ctx context.Context, credentialsFile, spreadsheetID string) (*SheetsSink, error) {
	srv, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	return &SheetsSink{values: srv.Spreadsheets.Values, spreadsheetID: spreadsheetID}, nil
}

func (s *SheetsSink) AppendUser(ctx context.Context, u models.User, username string, at time.Time) error {
	return s.append(ctx, usersTab, userRow(u, username, at))
}

func (s *SheetsSink) AppendRestaurant(ctx context.Context, r models.Restaurant, at time.Time) error {
	return s.append(ctx, restaurantsTab, restaurantRow(r, at))
}

func (s *SheetsSink) append(ctx context.Context, tab string, row []interface{}) error {
	vr := &sheets.ValueRange{Values: [][]interface{}{row}}
	_, err := s.values.Append(s.spreadsheetID, tab+"!A1", vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", tab, err)
	}
	return nil
}

func userRow(u models.User, username string, at time.Time) []interface{} {
	handle := "No Username"
	if username != "" {
		handle = "@" + username
	}
	return []interface{}{
		strconv.FormatInt(u.ID, 10),
		handle,
		u.Name,
		u.Phone,
		formatCoord(u.Lat),
		formatCoord(u.Lon),
		at.Format(timeLayout),
	}
}

func restaurantRow(r models.Restaurant, at time.Time) []interface{} {
	return []interface{}{
		strconv.FormatInt(r.ID, 10),
		r.Name,
		formatCoord(r.Lat),
		formatCoord(r.Lon),
		strconv.Itoa(r.Boxes),
		at.Format(timeLayout),
	}
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
