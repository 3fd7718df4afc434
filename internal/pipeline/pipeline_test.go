package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/parcabul/broker/internal/catalog"
	"github.com/parcabul/broker/internal/contact"
	"github.com/parcabul/broker/internal/directory"
	"github.com/parcabul/broker/internal/events"
	"github.com/parcabul/broker/internal/model"
	"github.com/parcabul/broker/internal/recorder"
	"github.com/parcabul/broker/internal/store"
)

var samplePhones = []string{"905551112233", "905551114455", "905551116677"}

func validSearch() SearchInput {
	return SearchInput{Brand: "BMW", Model: "320i", Year: 2018, PartCode: "17117585440"}
}

func validSubmit() SubmitInput {
	return SubmitInput{
		CustomerName:  "Ayşe Yılmaz",
		CustomerPhone: "+90 532 000 11 22",
		SearchInput:   validSearch(),
	}
}

type harness struct {
	src *mockSource
	dir *mockDirectory
	rec *mockRecorder
	pub *mockPublisher
	p   *Pipeline
}

func newHarness() *harness {
	h := &harness{
		src: new(mockSource),
		dir: new(mockDirectory),
		rec: new(mockRecorder),
		pub: new(mockPublisher),
	}
	h.p = New(Config{}, h.src, h.dir, h.rec, h.pub)
	return h
}

func (h *harness) assertExpectations(t *testing.T) {
	h.src.AssertExpectations(t)
	h.dir.AssertExpectations(t)
	h.rec.AssertExpectations(t)
	h.pub.AssertExpectations(t)
}

func TestSearch_Scenario(t *testing.T) {
	h := newHarness()
	criteria := model.Criteria{Brand: "BMW", Model: "320i", Year: 2018, PartCode: "17117585440"}
	h.src.On("Search", mock.Anything, criteria).Return(sampleCatalog(), nil)
	h.dir.On("FindByPhones", mock.Anything, samplePhones).Return(knownA(), nil)

	res, err := h.p.Search(context.Background(), validSearch())
	require.NoError(t, err)

	require.Len(t, res.Matches, 3)
	assert.Equal(t, "A", res.Matches[0].SupplierName)
	assert.True(t, res.Matches[0].SupplierKnown)
	assert.Equal(t, "C", res.Matches[1].SupplierName)
	assert.Equal(t, "B", res.Matches[2].SupplierName)
	assert.False(t, res.DirectoryDegraded)

	assert.Equal(t, 3, res.Summary.Total)
	assert.Equal(t, model.SupplierCounts{Known: 1, Unknown: 2}, res.Summary.Suppliers)
	assert.Equal(t, 4500.0, *res.Summary.Price.Min)
	assert.Equal(t, 6200.0, *res.Summary.Price.Max)
	assert.Equal(t, 5300.0, *res.Summary.Price.Avg)
	assert.Equal(t, map[string]int{"istanbul": 1, "bursa": 1, "izmir": 1}, res.Summary.City)
	h.assertExpectations(t)
}

func TestSearch_CityFilter(t *testing.T) {
	h := newHarness()
	h.src.On("Search", mock.Anything, mock.Anything).Return(sampleCatalog(), nil)
	h.dir.On("FindByPhones", mock.Anything, samplePhones).Return(knownA(), nil)

	in := validSearch()
	in.City = ptr("  BURSA ")
	res, err := h.p.Search(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, "B", res.Matches[0].SupplierName)
	assert.Equal(t, 1, res.Summary.Total)
	assert.Equal(t, "bursa", *res.Filters.City)
	assert.Equal(t, 6200.0, *res.Summary.Price.Avg)
}

func TestSearch_ConditionFilterNormalized(t *testing.T) {
	h := newHarness()
	h.src.On("Search", mock.Anything, mock.Anything).Return(sampleCatalog(), nil)
	h.dir.On("FindByPhones", mock.Anything, mock.Anything).Return(map[string]model.SupplierRecord{}, nil)

	in := validSearch()
	in.Condition = ptr("Yenilenmis")
	res, err := h.p.Search(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "C", res.Matches[0].SupplierName)
	assert.Equal(t, "yenilenmiş", *res.Filters.Condition)
}

func TestSearch_ValidationSkipsCollaborators(t *testing.T) {
	h := newHarness()
	in := validSearch()
	in.Year = 1979
	in.Condition = ptr("garip")

	_, err := h.p.Search(context.Background(), in)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Fields, 2)
	h.src.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
	h.dir.AssertNotCalled(t, "FindByPhones", mock.Anything, mock.Anything)
}

func TestSearch_CatalogFailure(t *testing.T) {
	h := newHarness()
	h.src.On("Search", mock.Anything, mock.Anything).
		Return(nil, &catalog.Error{Status: 503, Detail: `{"error":"bakımda"}`})

	_, err := h.p.Search(context.Background(), validSearch())
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 503, ue.Status())
	assert.Equal(t, `{"error":"bakımda"}`, ue.Detail())
	h.dir.AssertNotCalled(t, "FindByPhones", mock.Anything, mock.Anything)
}

func TestSearch_CatalogTransportFailure(t *testing.T) {
	h := newHarness()
	h.src.On("Search", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	_, err := h.p.Search(context.Background(), validSearch())
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Zero(t, ue.Status())
	assert.Equal(t, "connection refused", ue.Detail())
}

func TestSearch_DirectoryFailureDegrades(t *testing.T) {
	h := newHarness()
	h.src.On("Search", mock.Anything, mock.Anything).Return(sampleCatalog(), nil)
	h.dir.On("FindByPhones", mock.Anything, samplePhones).Return(nil, errors.New("db down"))

	res, err := h.p.Search(context.Background(), validSearch())
	require.NoError(t, err)
	assert.True(t, res.DirectoryDegraded)
	require.Len(t, res.Matches, 3)
	for _, m := range res.Matches {
		assert.False(t, m.SupplierKnown)
		assert.Nil(t, m.Supplier)
	}
	assert.Equal(t, "A", res.Matches[0].SupplierName)
	assert.Equal(t, "C", res.Matches[1].SupplierName)
	assert.Equal(t, model.SupplierCounts{Unknown: 3}, res.Summary.Suppliers)
}

func TestSearch_DirectoryTimeoutDegrades(t *testing.T) {
	src := new(mockSource)
	dir := new(mockDirectory)
	src.On("Search", mock.Anything, mock.Anything).Return(sampleCatalog(), nil)
	dir.On("FindByPhones", mock.Anything, samplePhones).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)
	p := New(Config{DirectoryTimeout: 20 * time.Millisecond}, src, dir, nil, nil)

	start := time.Now()
	res, err := p.Search(context.Background(), validSearch())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, res.DirectoryDegraded)
	assert.Zero(t, res.Summary.Suppliers.Known)
	assert.Equal(t, 3, res.Summary.Suppliers.Unknown)
	require.Len(t, res.Matches, 3)
	dir.AssertExpectations(t)
}

func TestSearch_NoPhonesSkipsDirectory(t *testing.T) {
	h := newHarness()
	h.src.On("Search", mock.Anything, mock.Anything).
		Return([]model.CatalogMatch{{SupplierName: "X", Price: model.NewPrice(1)}}, nil)

	res, err := h.p.Search(context.Background(), validSearch())
	require.NoError(t, err)
	assert.Len(t, res.Matches, 1)
	h.dir.AssertNotCalled(t, "FindByPhones", mock.Anything, mock.Anything)
}

func TestSearch_NilDirectory(t *testing.T) {
	src := new(mockSource)
	src.On("Search", mock.Anything, mock.Anything).Return(sampleCatalog(), nil)
	p := New(Config{}, src, nil, nil, nil)

	res, err := p.Search(context.Background(), validSearch())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Summary.Suppliers.Unknown)
	assert.False(t, res.DirectoryDegraded)
}

func TestSearch_EmptyCatalog(t *testing.T) {
	h := newHarness()
	h.src.On("Search", mock.Anything, mock.Anything).Return([]model.CatalogMatch{}, nil)

	res, err := h.p.Search(context.Background(), validSearch())
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
	assert.Zero(t, res.Summary.Total)
	assert.Nil(t, res.Summary.Price.Min)
	assert.Equal(t, model.DefaultCurrency, res.Summary.Currency)
}

func TestSearch_CatalogTimeout(t *testing.T) {
	src := new(mockSource)
	src.On("Search", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)
	p := New(Config{CatalogTimeout: 20 * time.Millisecond}, src, nil, nil, nil)

	_, err := p.Search(context.Background(), validSearch())
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func storedHeader(hdr model.RequestRecord, n int) *model.RequestRecord {
	hdr.RequestID = "REQ-20260301-ABC123"
	hdr.MatchCount = n
	hdr.CreatedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &hdr
}

func TestSubmit_RecordsAndBuildsLinks(t *testing.T) {
	h := newHarness()
	h.src.On("Search", mock.Anything, mock.Anything).Return(sampleCatalog(), nil)
	h.dir.On("FindByPhones", mock.Anything, samplePhones).Return(knownA(), nil)

	var gotHdr model.RequestRecord
	h.rec.On("Record", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { gotHdr = args.Get(1).(model.RequestRecord) }).
		Return(storedHeader(model.RequestRecord{}, 3), nil)
	h.pub.On("PublishRequestCreated", mock.Anything, mock.MatchedBy(func(e events.RequestCreated) bool {
		return e.Type == events.TypeRequestCreated && e.RequestID == "REQ-20260301-ABC123" && e.Known == 1
	})).Return(nil)

	in := validSubmit()
	in.MinPrice = ptr(1000.0)
	sub, err := h.p.Submit(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "Ayşe Yılmaz", gotHdr.CustomerName)
	assert.Equal(t, "905320001122", gotHdr.CustomerPhone)
	assert.Equal(t, "17117585440", gotHdr.Criteria.PartCode)
	assert.Equal(t, 1000.0, *gotHdr.Filters.MinPrice)
	assert.Nil(t, gotHdr.Filters.RecipientPhones)

	assert.Equal(t, "REQ-20260301-ABC123", sub.Request.RequestID)
	require.Len(t, sub.Recipients, 3)

	first := sub.Recipients[0]
	assert.Equal(t, "A Oto", first.SupplierName, "directory name wins")
	assert.Equal(t, "905551112233", first.Phone)
	assert.Equal(t, "çıkma", first.Condition)
	assert.Equal(t, 4500.0, *first.Price)
	assert.True(t, strings.HasPrefix(first.Link, "https://wa.me/905551112233?text="))

	want := contact.Link("905551112233", contact.Message{
		RequestID: "REQ-20260301-ABC123",
		Criteria:  gotHdr.Criteria,
		MinPrice:  ptr(1000.0),
		PartName:  "Radyatör",
	})
	assert.Equal(t, want, first.Link)
	assert.Contains(t, first.Link, "Talep%20ID%3A%20REQ-20260301-ABC123")

	assert.Equal(t, "C", sub.Recipients[1].SupplierName)
	h.assertExpectations(t)
}

func TestSubmit_ScopeNarrowsRecordedMatches(t *testing.T) {
	h := newHarness()
	h.src.On("Search", mock.Anything, mock.Anything).Return(sampleCatalog(), nil)
	h.dir.On("FindByPhones", mock.Anything, mock.Anything).Return(knownA(), nil)
	h.rec.On("Record", mock.Anything,
		mock.MatchedBy(func(hdr model.RequestRecord) bool {
			return assert.ObjectsAreEqual([]string{"905551114455", "905551116677"}, hdr.Filters.RecipientPhones)
		}),
		mock.MatchedBy(func(ms []model.EnrichedMatch) bool {
			return len(ms) == 2 && ms[0].SupplierName == "C" && ms[1].SupplierName == "B"
		}),
	).Return(storedHeader(model.RequestRecord{}, 2), nil)
	h.pub.On("PublishRequestCreated", mock.Anything, mock.Anything).Return(nil)

	in := validSubmit()
	in.RecipientPhones = []string{"+90 555 111 44 55, 905551116677", "905551114455"}
	sub, err := h.p.Submit(context.Background(), in)
	require.NoError(t, err)
	assert.Len(t, sub.Matches, 2)
	assert.Equal(t, 2, sub.Summary.Total)
	assert.Equal(t, 0, sub.Summary.Suppliers.Known)
	h.assertExpectations(t)
}

func TestSubmit_EmptyResultStillRecorded(t *testing.T) {
	h := newHarness()
	h.src.On("Search", mock.Anything, mock.Anything).Return(sampleCatalog(), nil)
	h.dir.On("FindByPhones", mock.Anything, mock.Anything).Return(knownA(), nil)
	h.rec.On("Record", mock.Anything, mock.Anything, mock.MatchedBy(func(ms []model.EnrichedMatch) bool {
		return len(ms) == 0
	})).Return(storedHeader(model.RequestRecord{}, 0), nil)
	h.pub.On("PublishRequestCreated", mock.Anything, mock.Anything).Return(nil)

	in := validSubmit()
	in.City = ptr("Ankara")
	sub, err := h.p.Submit(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, sub.Recipients)
	assert.Zero(t, sub.Request.MatchCount)
}

func TestSubmit_PersistenceFailure(t *testing.T) {
	h := newHarness()
	h.src.On("Search", mock.Anything, mock.Anything).Return(sampleCatalog(), nil)
	h.dir.On("FindByPhones", mock.Anything, mock.Anything).Return(knownA(), nil)
	h.rec.On("Record", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &recorder.Error{Op: recorder.OpWrite, RequestID: "REQ-20260301-ABC123", Err: store.ErrDuplicate})

	sub, err := h.p.Submit(context.Background(), validSubmit())
	assert.Nil(t, sub)
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, recorder.OpWrite, pe.Op)
	assert.ErrorIs(t, err, store.ErrDuplicate)
	h.pub.AssertNotCalled(t, "PublishRequestCreated", mock.Anything, mock.Anything)
}

func TestSubmit_UnlabelledRecorderError(t *testing.T) {
	h := newHarness()
	h.src.On("Search", mock.Anything, mock.Anything).Return(sampleCatalog(), nil)
	h.dir.On("FindByPhones", mock.Anything, mock.Anything).Return(knownA(), nil)
	h.rec.On("Record", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("disk full"))

	_, err := h.p.Submit(context.Background(), validSubmit())
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "record", pe.Op)
}

func TestSubmit_PublishFailureIgnored(t *testing.T) {
	h := newHarness()
	h.src.On("Search", mock.Anything, mock.Anything).Return(sampleCatalog(), nil)
	h.dir.On("FindByPhones", mock.Anything, mock.Anything).Return(knownA(), nil)
	h.rec.On("Record", mock.Anything, mock.Anything, mock.Anything).Return(storedHeader(model.RequestRecord{}, 3), nil)
	h.pub.On("PublishRequestCreated", mock.Anything, mock.Anything).Return(errors.New("broker unreachable"))

	sub, err := h.p.Submit(context.Background(), validSubmit())
	require.NoError(t, err)
	assert.Equal(t, "REQ-20260301-ABC123", sub.Request.RequestID)
}

func TestSubmit_ValidationSkipsCollaborators(t *testing.T) {
	h := newHarness()
	in := validSubmit()
	in.CustomerName = " A "
	in.CustomerPhone = "123"

	_, err := h.p.Submit(context.Background(), in)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Fields, 2)
	h.src.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
	h.rec.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_UpstreamFailureRecordsNothing(t *testing.T) {
	h := newHarness()
	h.src.On("Search", mock.Anything, mock.Anything).Return(nil, &catalog.Error{Status: 500, Detail: "boom"})

	_, err := h.p.Submit(context.Background(), validSubmit())
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	h.rec.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecipients_NameFallback(t *testing.T) {
	ms := Enrich([]model.CatalogMatch{
		{SupplierPhone: "905550000001", SupplierName: "Katalog Adı"},
		{SupplierPhone: "905550000002"},
		{SupplierName: "telefonsuz"},
	}, map[string]model.SupplierRecord{"905550000002": {ID: 9, Phone: "905550000002"}})

	got := recipients("REQ-1", model.Criteria{}, model.Filters{City: ptr("bursa"), Condition: ptr("sıfır")}, ms)
	require.Len(t, got, 3)
	assert.Equal(t, "Katalog Adı", got[0].SupplierName)
	assert.Equal(t, fallbackSupplierName, got[1].SupplierName)
	assert.Contains(t, got[0].Link, "%C5%9Eehir%3A%20bursa")
	assert.Empty(t, got[2].Link)
	assert.Nil(t, got[2].Price)
}

func TestSubmit_EndToEndSQLite(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "broker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	vendor, err := st.CreateVendor(ctx, model.SupplierRecord{Name: "A Oto", Phone: "905551112233", City: "Kocaeli"})
	require.NoError(t, err)

	p := New(Config{}, catalog.MockSource{}, directory.NewStoreDirectory(st), recorder.New(st), nil)
	sub, err := p.Submit(ctx, validSubmit())
	require.NoError(t, err)

	got, err := st.GetRequest(ctx, sub.Request.RequestID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.MatchCount)
	assert.Equal(t, "905320001122", got.CustomerPhone)

	rows, err := st.ListMatches(ctx, sub.Request.RequestID)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	var known *model.MatchRecord
	for i := range rows {
		if rows[i].SupplierKnown {
			known = &rows[i]
		}
	}
	require.NotNil(t, known)
	assert.Equal(t, "905551112233", known.SupplierPhone)
	assert.Equal(t, "Kocaeli", known.City)
	require.NotNil(t, known.SupplierID)
	assert.Equal(t, vendor.ID, *known.SupplierID)
	assert.Equal(t, 0, known.Position)
}
