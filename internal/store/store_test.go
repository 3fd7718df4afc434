package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcabul/broker/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func ptr[T any](v T) *T { return &v }

func sampleRequest(id string) model.RequestRecord {
	city := "istanbul"
	return model.RequestRecord{
		RequestID:     id,
		CustomerName:  "Ayşe",
		CustomerPhone: "905321234567",
		Criteria:      model.Criteria{Brand: "BMW", Model: "320i", Year: 2012, PartCode: "17117585440"},
		Filters:       model.FilterSnapshot{City: &city, RecipientPhones: []string{"905551112233"}},
		MatchCount:    3,
		CreatedAt:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGetVendor", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		v, err := s.CreateVendor(ctx, model.SupplierRecord{
			Name:       "Örnek Parçacı A",
			Phone:      "905551112233",
			City:       "istanbul",
			Conditions: []string{"çıkma", "sıfır"},
		})
		require.NoError(t, err)
		assert.NotZero(t, v.ID)
		assert.False(t, v.CreatedAt.IsZero())

		got, err := s.GetVendor(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, "Örnek Parçacı A", got.Name)
		assert.Equal(t, "905551112233", got.Phone)
		assert.Equal(t, "istanbul", got.City)
		assert.Equal(t, []string{"çıkma", "sıfır"}, got.Conditions)
	})

	t.Run("CreateVendorDuplicatePhone", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.CreateVendor(ctx, model.SupplierRecord{Name: "A", Phone: "905551112233"})
		require.NoError(t, err)
		_, err = s.CreateVendor(ctx, model.SupplierRecord{Name: "B", Phone: "905551112233"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("GetVendorNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetVendor(context.Background(), 999)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("UpdateVendor", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		v, err := s.CreateVendor(ctx, model.SupplierRecord{Name: "A", Phone: "905551112233", City: "bursa"})
		require.NoError(t, err)

		err = s.UpdateVendor(ctx, v.ID, model.SupplierUpdate{
			Name:       ptr("A Oto"),
			Conditions: []string{"yenilenmiş"},
		})
		require.NoError(t, err)

		got, err := s.GetVendor(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, "A Oto", got.Name)
		assert.Equal(t, "bursa", got.City)
		assert.Equal(t, []string{"yenilenmiş"}, got.Conditions)
	})

	t.Run("UpdateVendorNotFound", func(t *testing.T) {
		s := newStore(t)
		err := s.UpdateVendor(context.Background(), 42, model.SupplierUpdate{Name: ptr("x")})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("UpdateVendorNoFields", func(t *testing.T) {
		s := newStore(t)
		err := s.UpdateVendor(context.Background(), 1, model.SupplierUpdate{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no fields")
	})

	t.Run("DeleteVendor", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		v, err := s.CreateVendor(ctx, model.SupplierRecord{Name: "A", Phone: "905551112233"})
		require.NoError(t, err)
		require.NoError(t, s.DeleteVendor(ctx, v.ID))

		_, err = s.GetVendor(ctx, v.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.DeleteVendor(ctx, v.ID), ErrNotFound)
	})

	t.Run("ListVendorsSearchAndLimit", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i, city := range []string{"istanbul", "bursa", "izmir"} {
			_, err := s.CreateVendor(ctx, model.SupplierRecord{
				Name:  fmt.Sprintf("Parçacı %d", i),
				Phone: fmt.Sprintf("90555000000%d", i),
				City:  city,
			})
			require.NoError(t, err)
		}

		all, err := s.ListVendors(ctx, VendorFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)
		assert.Equal(t, "Parçacı 2", all[0].Name, "newest first")

		byCity, err := s.ListVendors(ctx, VendorFilter{Query: "burs"})
		require.NoError(t, err)
		require.Len(t, byCity, 1)
		assert.Equal(t, "bursa", byCity[0].City)

		limited, err := s.ListVendors(ctx, VendorFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})

	t.Run("FindVendorsByPhones", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.CreateVendor(ctx, model.SupplierRecord{Name: "A", Phone: "905551112233"})
		require.NoError(t, err)
		_, err = s.CreateVendor(ctx, model.SupplierRecord{Name: "B", Phone: "905551114455"})
		require.NoError(t, err)

		found, err := s.FindVendorsByPhones(ctx, []string{"905551112233", "900000000000"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "A", found[0].Name)

		none, err := s.FindVendorsByPhones(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("InsertAndGetRequest", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		req := sampleRequest("REQ-20260301-ABC123")
		require.NoError(t, s.InsertRequest(ctx, req))

		got, err := s.GetRequest(ctx, req.RequestID)
		require.NoError(t, err)
		assert.Equal(t, req.RequestID, got.RequestID)
		assert.Equal(t, req.Criteria, got.Criteria)
		assert.Equal(t, "istanbul", *got.Filters.City)
		assert.Equal(t, []string{"905551112233"}, got.Filters.RecipientPhones)
		assert.Equal(t, 3, got.MatchCount)
		assert.True(t, req.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("InsertRequestDuplicate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		req := sampleRequest("REQ-20260301-DUP000")
		require.NoError(t, s.InsertRequest(ctx, req))
		err := s.InsertRequest(ctx, req)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("GetRequestNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetRequest(context.Background(), "REQ-00000000-NOPE00")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("InsertAndListMatches", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		req := sampleRequest("REQ-20260301-MATCH1")
		require.NoError(t, s.InsertRequest(ctx, req))

		matches := []model.MatchRecord{
			{Position: 0, SupplierName: "A", SupplierPhone: "905551112233", City: "istanbul", Condition: "çıkma",
				Price: ptr(4500.0), Currency: "TRY", PartName: "Radyatör", SupplierKnown: true, SupplierID: ptr(int64(7))},
			{Position: 1, SupplierName: "B", SupplierPhone: "905551114455", Condition: "sıfır",
				Currency: "TRY"},
			{Position: 2, SupplierName: "C", SupplierPhone: "905551116677", City: "izmir", Condition: "yenilenmiş",
				Price: ptr(0.0), Currency: "TRY"},
		}
		require.NoError(t, s.InsertMatches(ctx, req.RequestID, matches))

		got, err := s.ListMatches(ctx, req.RequestID)
		require.NoError(t, err)
		require.Len(t, got, 3)

		// Ascending price, missing last.
		assert.Equal(t, "C", got[0].SupplierName)
		assert.Equal(t, 0.0, *got[0].Price)
		assert.Equal(t, "A", got[1].SupplierName)
		assert.True(t, got[1].SupplierKnown)
		require.NotNil(t, got[1].SupplierID)
		assert.Equal(t, int64(7), *got[1].SupplierID)
		assert.Equal(t, "B", got[2].SupplierName)
		assert.Nil(t, got[2].Price)
		assert.Empty(t, got[2].City)

		for _, m := range got {
			assert.NotEmpty(t, m.ID)
			assert.Equal(t, req.RequestID, m.RequestID)
		}
	})

	t.Run("InsertMatchesDuplicatePositionRollsBack", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		req := sampleRequest("REQ-20260301-ROLLBK")
		require.NoError(t, s.InsertRequest(ctx, req))

		err := s.InsertMatches(ctx, req.RequestID, []model.MatchRecord{
			{Position: 0, SupplierName: "A", SupplierPhone: "1", Condition: "çıkma", Currency: "TRY"},
			{Position: 0, SupplierName: "B", SupplierPhone: "2", Condition: "çıkma", Currency: "TRY"},
		})
		require.Error(t, err)

		got, err := s.ListMatches(ctx, req.RequestID)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("RecordRequestRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		req := sampleRequest("REQ-20260301-ATOM01")
		rows := []model.MatchRecord{
			{Position: 0, SupplierName: "A", SupplierPhone: "905551112233", Condition: "çıkma", Price: ptr(4500.0), Currency: "TRY"},
			{Position: 1, SupplierName: "C", SupplierPhone: "905551116677", Condition: "yenilenmiş", Price: ptr(5200.0), Currency: "TRY"},
			{Position: 2, SupplierName: "B", SupplierPhone: "905551114455", Condition: "sıfır", Price: ptr(6200.0), Currency: "TRY"},
		}
		require.NoError(t, s.RecordRequest(ctx, req, rows))

		got, err := s.GetRequest(ctx, req.RequestID)
		require.NoError(t, err)
		assert.Equal(t, req.Criteria, got.Criteria)

		stored, err := s.ListMatches(ctx, req.RequestID)
		require.NoError(t, err)
		assert.Len(t, stored, len(rows))
	})

	t.Run("RecordRequestRowFailureDropsHeader", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		req := sampleRequest("REQ-20260301-ATOM02")
		err := s.RecordRequest(ctx, req, []model.MatchRecord{
			{Position: 0, SupplierName: "A", SupplierPhone: "1", Condition: "çıkma", Currency: "TRY"},
			{Position: 0, SupplierName: "B", SupplierPhone: "2", Condition: "çıkma", Currency: "TRY"},
		})
		require.Error(t, err)

		_, err = s.GetRequest(ctx, req.RequestID)
		assert.ErrorIs(t, err, ErrNotFound)

		list, err := s.ListRequests(ctx, RequestFilter{})
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("RecordRequestDuplicateKeepsOriginal", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		req := sampleRequest("REQ-20260301-ATOM03")
		require.NoError(t, s.RecordRequest(ctx, req, nil))
		err := s.RecordRequest(ctx, req, nil)
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("InsertMatchesEmpty", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.InsertMatches(context.Background(), "REQ-20260301-EMPTY0", nil))
	})

	t.Run("ListRequestsNewestFirst", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			require.NoError(t, s.InsertRequest(ctx, sampleRequest(fmt.Sprintf("REQ-20260301-AAAAA%d", i))))
		}

		got, err := s.ListRequests(ctx, RequestFilter{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "REQ-20260301-AAAAA2", got[0].RequestID)
		assert.Equal(t, "REQ-20260301-AAAAA0", got[2].RequestID)

		limited, err := s.ListRequests(ctx, RequestFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestLimits(t *testing.T) {
	tests := []struct {
		name string
		fn   func(int) int
		in   int
		want int
	}{
		{"vendor default", vendorLimit, 0, 50},
		{"vendor negative", vendorLimit, -3, 50},
		{"vendor within", vendorLimit, 120, 120},
		{"vendor capped", vendorLimit, 500, 200},
		{"request default", requestLimit, 0, 20},
		{"request within", requestLimit, 5, 5},
		{"request capped", requestLimit, 101, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fn(tt.in))
		})
	}
}

func sampleMatches() []model.MatchRecord {
	return []model.MatchRecord{
		{Position: 0, SupplierName: "A", SupplierPhone: "905551112233", City: "istanbul", Condition: "çıkma",
			Price: ptr(4500.0), Currency: "TRY"},
		{Position: 1, SupplierName: "B", SupplierPhone: "905551114455", City: "bursa", Condition: "sıfır",
			Price: ptr(6200.0), Currency: "TRY"},
		{Position: 2, SupplierName: "C", SupplierPhone: "905551116677", Condition: "yenilenmiş", Currency: "TRY"},
	}
}
