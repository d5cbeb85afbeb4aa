package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"bib-resale/internal/auth"
	"bib-resale/internal/bib"
	"bib-resale/internal/bib/api"
	"bib-resale/internal/config"
	"bib-resale/internal/logger"
	"bib-resale/internal/models"
	"bib-resale/internal/store"
)

// Mock implementations
type MockDBLayer struct {
	mock.Mock
}

func (m *MockDBLayer) CreateBib(b models.Bib) error {
	args := m.Called(b)
	return args.Error(0)
}

func (m *MockDBLayer) GetBibByID(id string) (*models.Bib, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Bib), args.Error(1)
}

func (m *MockDBLayer) GetBibByToken(token string) (*models.Bib, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Bib), args.Error(1)
}

func (m *MockDBLayer) ListBibsByEvent(eventID string, listedOnly bool) ([]models.Bib, error) {
	args := m.Called(eventID, listedOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Bib), args.Error(1)
}

func (m *MockDBLayer) CountByEventAndRegistration(eventID, registrationNumber string) (int, error) {
	args := m.Called(eventID, registrationNumber)
	return args.Int(0), args.Error(1)
}

func (m *MockDBLayer) ListExpiredCandidates(now time.Time) ([]models.Bib, error) {
	args := m.Called(now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Bib), args.Error(1)
}

func (m *MockDBLayer) UpdateBib(b models.Bib, expectedRevision int64) error {
	args := m.Called(b, expectedRevision)
	return args.Error(0)
}

func newHandler(mockDB *MockDBLayer) *api.Handler {
	svc := bib.NewBibService(mockDB, nil, nil, config.TopicConfig{}, logger.NewLogger())
	return &api.Handler{BibService: svc}
}

func newRouter(h *api.Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/api/v1/bibs", h.CreateBib)
	r.Get("/api/v1/bibs/{bibId}", h.GetBib)
	r.Put("/api/v1/bibs/{bibId}/listing", h.RequestListing)
	r.Post("/api/v1/bibs/{bibId}/withdraw", h.Withdraw)
	return r
}

func authedRequest(method, target string, body []byte, userID string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	return req.WithContext(auth.ContextWithUserID(req.Context(), userID))
}

// Tests start here
func TestCreateBibRequiresAuth(t *testing.T) {
	router := newRouter(newHandler(new(MockDBLayer)))

	body, _ := json.Marshal(models.BibRegistrationRequest{EventID: "event-1", RegistrationNumber: "M-1"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bibs", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateBib(t *testing.T) {
	mockDB := new(MockDBLayer)
	router := newRouter(newHandler(mockDB))

	mockDB.On("CountByEventAndRegistration", "event-1", "M-1").Return(0, nil)
	mockDB.On("CreateBib", mock.AnythingOfType("models.Bib")).Return(nil)

	body, _ := json.Marshal(models.BibRegistrationRequest{EventID: "event-1", RegistrationNumber: "M-1"})
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/bibs", body, "seller-1"))

	require.Equal(t, http.StatusCreated, rec.Code)
	mockDB.AssertExpectations(t)
}

func TestCreateBibDuplicateConflict(t *testing.T) {
	mockDB := new(MockDBLayer)
	router := newRouter(newHandler(mockDB))

	mockDB.On("CountByEventAndRegistration", "event-1", "M-1").Return(1, nil)

	body, _ := json.Marshal(models.BibRegistrationRequest{EventID: "event-1", RegistrationNumber: "M-1"})
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/bibs", body, "seller-1"))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetBibNotFound(t *testing.T) {
	mockDB := new(MockDBLayer)
	router := newRouter(newHandler(mockDB))

	mockDB.On("GetBibByID", "missing").Return(nil, store.ErrNotFound)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/bibs/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestListingBadPrice(t *testing.T) {
	mockDB := new(MockDBLayer)
	router := newRouter(newHandler(mockDB))

	body, _ := json.Marshal(models.ListingRequest{Price: -5})
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, authedRequest(http.MethodPut, "/api/v1/bibs/bib-1/listing", body, "seller-1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	mockDB.AssertNotCalled(t, "UpdateBib", mock.Anything, mock.Anything)
}

func TestWithdrawOtherSellersBib(t *testing.T) {
	mockDB := new(MockDBLayer)
	router := newRouter(newHandler(mockDB))

	mockDB.On("GetBibByID", "bib-1").Return(&models.Bib{
		BibID:    "bib-1",
		SellerID: "seller-1",
		Status:   models.BibListedPublic,
		Revision: 2,
	}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/bibs/bib-1/withdraw", nil, "intruder"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
