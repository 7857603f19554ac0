package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/seyone-projects/reda-backend/internal/models"
)

func setupMockServer(ctx context.Context) (*http.ServeMux, *httptest.Server, *SheetsService) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	srv, _ := sheets.NewService(ctx, option.WithEndpoint(server.URL), option.WithoutAuthentication())
	s := newSheetsService(srv, "res_tid", "")
	s.now = func() time.Time { return time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC) }
	return mux, server, s
}

func testReservation(id int64) *models.Reservation {
	return &models.Reservation{
		ID:            id,
		ResourceID:    "hall",
		AssociationID: "assoc",
		UserID:        7,
		BookingDate:   time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		Kind:          models.KindHalfDay,
		TimeSlot:      models.SlotMorning,
	}
}

func TestSheetsService_TestConnection(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/res_tid/values/Reservations!A1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})
	if err := s.TestConnection(ctx); err != nil {
		t.Errorf("TestConnection failed: %v", err)
	}
}

func TestSheetsService_EnsureHeader(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()

	var got sheets.ValueRange
	mux.HandleFunc("/v4/spreadsheets/res_tid/values/Reservations!A1:K1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})
	if err := s.EnsureHeader(ctx); err != nil {
		t.Fatalf("EnsureHeader failed: %v", err)
	}
	if len(got.Values) != 1 || len(got.Values[0]) != len(reservationHeaders) {
		t.Errorf("unexpected header payload %+v", got.Values)
	}
}

func TestSheetsService_WarmUpCache(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/res_tid/values/Reservations!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{
			Values: [][]interface{}{{"ID"}, {"123"}, {}, {456.0}},
		})
	})
	if err := s.WarmUpCache(ctx); err != nil {
		t.Fatalf("WarmUpCache failed: %v", err)
	}
	if row, ok := s.getCachedRow(123); !ok || row != 2 {
		t.Errorf("expected row 2 for ID 123, got %d", row)
	}
	if row, ok := s.getCachedRow(456); !ok || row != 4 {
		t.Errorf("expected row 4 for ID 456, got %d", row)
	}
}

func TestSheetsService_UpsertReservation_Append(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()

	mux.HandleFunc("/v4/spreadsheets/res_tid/values/Reservations!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})
	var appended sheets.ValueRange
	mux.HandleFunc("/v4/spreadsheets/res_tid/values/Reservations!A:A:append", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&appended)
		_ = json.NewEncoder(w).Encode(sheets.AppendValuesResponse{
			Updates: &sheets.UpdateValuesResponse{UpdatedRange: "Reservations!A10:K10"},
		})
	})

	if err := s.UpsertReservation(ctx, testReservation(789)); err != nil {
		t.Fatalf("UpsertReservation failed: %v", err)
	}
	if row, _ := s.getCachedRow(789); row != 10 {
		t.Errorf("expected cached row 10, got %d", row)
	}
	if len(appended.Values) != 1 || appended.Values[0][4] != "2024-05-10" || appended.Values[0][6] != "Morning" {
		t.Errorf("unexpected row %+v", appended.Values)
	}
}

func TestSheetsService_UpsertReservation_Update(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	s.setCachedRow(123, 2)

	called := false
	mux.HandleFunc("/v4/spreadsheets/res_tid/values/Reservations!A2:K2", func(w http.ResponseWriter, r *http.Request) {
		called = true
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})

	r := testReservation(123)
	r.IsCancelled = true
	if err := s.UpsertReservation(ctx, r); err != nil {
		t.Fatalf("UpsertReservation failed: %v", err)
	}
	if !called {
		t.Error("expected the cached row to be updated in place")
	}
	if v := s.rowValues(r)[9]; v != "cancelled" {
		t.Errorf("expected cancelled status, got %v", v)
	}
}

func TestSheetsService_UpdateReservationStatus(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	s.setCachedRow(123, 2)

	var req sheets.BatchUpdateValuesRequest
	mux.HandleFunc("/v4/spreadsheets/res_tid/values:batchUpdate", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(sheets.BatchUpdateValuesResponse{})
	})

	if err := s.UpdateReservationStatus(ctx, 123, "cancelled"); err != nil {
		t.Fatalf("UpdateReservationStatus failed: %v", err)
	}
	if len(req.Data) != 2 || req.Data[0].Range != "Reservations!J2" || req.Data[1].Range != "Reservations!K2" {
		t.Errorf("unexpected batch %+v", req.Data)
	}
}

func TestSheetsService_FindReservationRow(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/res_tid/values/Reservations!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}, {"5"}}})
	})

	if row, err := s.FindReservationRow(ctx, 5); err != nil || row != 2 {
		t.Errorf("expected row 2, got %d (%v)", row, err)
	}
	if _, err := s.FindReservationRow(ctx, 6); err != ErrRowNotFound {
		t.Errorf("expected ErrRowNotFound, got %v", err)
	}
	if _, err := s.FindReservationRow(ctx, 0); err == nil {
		t.Error("expected error for zero id")
	}
}

func TestFirstRow(t *testing.T) {
	tests := map[string]int{
		"Reservations!A10:K10": 10,
		"A3":                   3,
		"Sheet!A:A":            0,
	}
	for in, want := range tests {
		got, ok := firstRow(in)
		if want == 0 {
			if ok {
				t.Errorf("%s: expected no row, got %d", in, got)
			}
			continue
		}
		if !ok || got != want {
			t.Errorf("%s: expected %d, got %d", in, want, got)
		}
	}
}

func TestServiceAccountEmail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	if err := os.WriteFile(path, []byte(`{"client_email":"sync@project.iam.gserviceaccount.com"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	email, err := ServiceAccountEmail(path)
	if err != nil || email != "sync@project.iam.gserviceaccount.com" {
		t.Errorf("unexpected %q (%v)", email, err)
	}
	if _, err := ServiceAccountEmail(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
