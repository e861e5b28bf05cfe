package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"

	"olympspa/internal/interval"
	"olympspa/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

var errRowNotFound = errors.New("reservation row not found")

// reservationHeader is written to row 1 on a full replace.
var reservationHeader = []interface{}{"ID", "Check-in", "Check-out", "Hóspedes", "Status", "Sessão", "Criada em"}

// SheetsService mirrors confirmed reservations into one spreadsheet tab.
// It is a read-only copy for the operator; the store stays authoritative.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	rowCache      map[string]int
	cacheMu       sync.RWMutex
}

func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID, sheetName string) (*SheetsService, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %v", err)
	}

	return NewSheetsServiceWithClient(srv, spreadsheetID, sheetName), nil
}

// NewSheetsServiceWithClient wraps an already configured API client.
func NewSheetsServiceWithClient(srv *sheets.Service, spreadsheetID, sheetName string) *SheetsService {
	if sheetName == "" {
		sheetName = "Reservas"
	}
	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		rowCache:      make(map[string]int),
	}
}

// TestConnection reads the first cell to confirm access to the spreadsheet.
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetName+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to access spreadsheet: %v", err)
	}
	return nil
}

// GetServiceAccountEmail returns the account the spreadsheet must be shared with.
func GetServiceAccountEmail(credentialsFile string) (string, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return "", err
	}
	if creds.ClientEmail == "" {
		return "", errors.New("client_email missing from credentials")
	}
	return creds.ClientEmail, nil
}

// ReservationRow renders r in column order A:G.
func ReservationRow(r *models.Reservation) []interface{} {
	created := ""
	if !r.CreatedAt.IsZero() {
		created = r.CreatedAt.UTC().Format("2006-01-02 15:04:05")
	}
	return []interface{}{
		r.ID,
		interval.Format(r.From),
		interval.Format(r.To),
		r.Guests,
		r.Status,
		r.SessionID,
		created,
	}
}

// WarmUpCache maps reservation ids in column A to their row numbers.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetName+"!A:A").Context(ctx).Do()
	if err != nil {
		return err
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[string]int)
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if id, ok := row[0].(string); ok && id != "" && id != "ID" {
			s.rowCache[id] = i + 1
		}
	}
	return nil
}

// AppendReservation writes r once. A reservation already present in the
// sheet is rewritten in place, so retried sync tasks do not add rows.
func (s *SheetsService) AppendReservation(ctx context.Context, r *models.Reservation) error {
	if r == nil {
		return errors.New("reservation is nil")
	}

	rowIdx, err := s.FindReservationRow(ctx, r.ID)
	switch {
	case err == nil:
		rng := fmt.Sprintf("%s!A%d:G%d", s.sheetName, rowIdx, rowIdx)
		_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rng, &sheets.ValueRange{
			Values: [][]interface{}{ReservationRow(r)},
		}).ValueInputOption("USER_ENTERED").Context(ctx).Do()
		return err
	case !errors.Is(err, errRowNotFound):
		return err
	}

	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.sheetName+"!A:G", &sheets.ValueRange{
		Values: [][]interface{}{ReservationRow(r)},
	}).ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return err
	}

	if resp.Updates != nil {
		if row, ok := firstRow(resp.Updates.UpdatedRange); ok {
			s.setCachedRow(r.ID, row)
		}
	}
	return nil
}

// FindReservationRow returns the 1-based sheet row holding id.
func (s *SheetsService) FindReservationRow(ctx context.Context, id string) (int, error) {
	if row, ok := s.getCachedRow(id); ok {
		return row, nil
	}

	if err := s.WarmUpCache(ctx); err != nil {
		return 0, err
	}
	if row, ok := s.getCachedRow(id); ok {
		return row, nil
	}
	return 0, errRowNotFound
}

// ReplaceReservations rewrites the whole tab from the store's current state.
func (s *SheetsService) ReplaceReservations(ctx context.Context, reservations []*models.Reservation) error {
	_, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, s.sheetName+"!A1:Z", &sheets.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear reservations sheet: %v", err)
	}

	values := make([][]interface{}, 0, len(reservations)+1)
	values = append(values, reservationHeader)
	for _, r := range reservations {
		values = append(values, ReservationRow(r))
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.sheetName+"!A1", &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update reservations sheet: %v", err)
	}

	s.cacheMu.Lock()
	s.rowCache = make(map[string]int, len(reservations))
	for i, r := range reservations {
		s.rowCache[r.ID] = i + 2
	}
	s.cacheMu.Unlock()
	return nil
}

func (s *SheetsService) getCachedRow(id string) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id string, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

var updatedRangeRow = regexp.MustCompile(`![A-Z]+(\d+)`)

// firstRow extracts the starting row from an A1 range such as "Reservas!A10:G10".
func firstRow(a1 string) (int, bool) {
	m := updatedRangeRow.FindStringSubmatch(a1)
	if len(m) != 2 {
		return 0, false
	}
	row, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return row, true
}
