package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-trucks-must-roll/internal/auth"
	"github.com/Veraticus/the-trucks-must-roll/internal/common"
	"github.com/Veraticus/the-trucks-must-roll/internal/model"
	"github.com/Veraticus/the-trucks-must-roll/internal/process"
	"github.com/Veraticus/the-trucks-must-roll/internal/service"
	"github.com/Veraticus/the-trucks-must-roll/internal/ticket"
	"github.com/Veraticus/the-trucks-must-roll/internal/ws"
)

type memKV struct {
	data map[string][]byte
	mu   sync.Mutex
}

func (m *memKV) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, service.ErrKeyNotFound
	}
	return v, nil
}

func (m *memKV) Update(_ context.Context, key string, fn service.UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := fn(m.data[key])
	if err != nil {
		return err
	}
	m.data[key] = next
	return nil
}

type fakeDetector struct {
	result *model.DetectionResult
	err    error
	got    []byte
	got64  string
}

func (f *fakeDetector) DetectBase64(_ context.Context, image string) (*model.DetectionResult, error) {
	f.got64 = image
	return f.result, f.err
}

func (f *fakeDetector) DetectImage(_ context.Context, _ string, data []byte) (*model.DetectionResult, error) {
	f.got = data
	return f.result, f.err
}

type testAPI struct {
	store   *process.Store
	handler http.Handler
}

func newTestAPI(t *testing.T, opts ...Option) *testAPI {
	t.Helper()
	now := func() time.Time { return time.Date(2024, 7, 15, 9, 30, 0, 0, time.UTC) }
	seq := ticket.NewSequencer(&memKV{data: map[string][]byte{}},
		ticket.WithClock(now), ticket.WithLocation(time.UTC))
	store := process.NewStore(seq, process.WithClock(now), process.WithLocation(time.UTC))
	srv := NewServer(store, seq, opts...)
	return &testAPI{store: store, handler: srv.Routes()}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func waitInBody(category string) model.WaitInForm {
	form := model.NewWaitInForm(time.Now())
	form.Category = category
	form.VehicleNumber = "WP CAB-1234"
	form.DeliveryTable[0].RequestedBag = 20
	return form
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t, WithJWTSecret("secret"))
	rec := a.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealth_ReportsListeners(t *testing.T) {
	hub := ws.NewHub(nil)
	a := newTestAPI(t, WithHub(hub))
	rec := a.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","listeners":0}`, rec.Body.String())
}

func TestWaitInAndList(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/v1/wait-in", waitInBody("Sanstha"))
	require.Equal(t, http.StatusCreated, rec.Code)
	first := decode[model.ProcessRecord](t, rec)
	assert.Equal(t, "S-01", first.TicketNumber)
	assert.Equal(t, model.StatusPending, first.Status)
	assert.Nil(t, first.WaitOut)

	rec = a.do(t, http.MethodPost, "/api/v1/wait-in", waitInBody("Bulk"))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "B-01", decode[model.ProcessRecord](t, rec).TicketNumber)

	rec = a.do(t, http.MethodGet, "/api/v1/processes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[[]model.ProcessRecord](t, rec)
	require.Len(t, all, 2)
	assert.Equal(t, "B-01", all[0].TicketNumber)
	assert.Equal(t, "S-01", all[1].TicketNumber)

	rec = a.do(t, http.MethodGet, "/api/v1/processes/S-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first.ID, decode[model.ProcessRecord](t, rec).ID)

	rec = a.do(t, http.MethodGet, "/api/v1/processes/S-99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWaitIn_StoresFormAsSent(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/wait-in", strings.NewReader(`{"vehicleNumber":"AB-1234"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	got := decode[model.ProcessRecord](t, rec)
	assert.Equal(t, model.DefaultPrefix+"-01", got.TicketNumber)
	assert.Equal(t, "", got.WaitIn.Category)
	assert.Equal(t, "AB-1234", got.WaitIn.VehicleNumber)

	stored, ok := a.store.Get(got.TicketNumber)
	require.True(t, ok)
	assert.Equal(t, "", stored.WaitIn.Category)
}

func TestWaitIn_Validation(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/wait-in", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	form := waitInBody("Sanstha")
	form.DeliveryTable[1].RequestedBag = -3
	rec = a.do(t, http.MethodPost, "/api/v1/wait-in", form)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, a.store.Len())
}

func TestWaitOut(t *testing.T) {
	a := newTestAPI(t)
	require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/api/v1/wait-in", waitInBody("Mahamera")).Code)

	out := model.WaitOutForm{
		DepartureTime: "11:00",
		TotalIssue:    "20",
		Notes:         "done",
		DeliveryTable: model.NewDeliveryTable(),
	}
	out.DeliveryTable[0].DeliveryBag = 18

	rec := a.do(t, http.MethodPost, "/api/v1/wait-out/MM-01", out)
	require.Equal(t, http.StatusOK, rec.Code)
	finished := decode[model.ProcessRecord](t, rec)
	assert.Equal(t, model.StatusFinished, finished.Status)
	require.NotNil(t, finished.WaitOut)
	assert.Equal(t, "done", finished.WaitOut.Notes)
	assert.Equal(t, 20, finished.WaitIn.DeliveryTable[0].RequestedBag)
	assert.Equal(t, 18, finished.WaitIn.DeliveryTable[0].DeliveryBag)

	rec = a.do(t, http.MethodPost, "/api/v1/wait-out/MM-01", out)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/v1/wait-out/XX-07", out)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/v1/processes?status=Finished", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.ProcessRecord](t, rec), 1)

	rec = a.do(t, http.MethodGet, "/api/v1/processes?status=Pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]model.ProcessRecord](t, rec))

	rec = a.do(t, http.MethodGet, "/api/v1/processes?status=Lost", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFormAndCounters(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/v1/forms/wait-in", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	form := decode[model.WaitInForm](t, rec)
	assert.Equal(t, model.CategorySanstha, form.Category)
	assert.Equal(t, model.AlcoholLow, form.DriverAlcoholTest)

	a.do(t, http.MethodPost, "/api/v1/wait-in", waitInBody("Bulk"))
	a.do(t, http.MethodPost, "/api/v1/wait-in", waitInBody("Bulk"))

	rec = a.do(t, http.MethodGet, "/api/v1/counters", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state := decode[model.DailyCounterState](t, rec)
	assert.Equal(t, "2024-07-15", state.Date)
	assert.Equal(t, 2, state.Counts["B"])
}

func TestDetectedVehicle(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPut, "/api/v1/detected-vehicle", vehicleNumberBody{VehicleNumber: " NW LB-4455 "})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/v1/detected-vehicle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "NW LB-4455", decode[vehicleNumberBody](t, rec).VehicleNumber)
}

func multipartImage(t *testing.T, field string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, "gate.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestDetect(t *testing.T) {
	detector := &fakeDetector{result: &model.DetectionResult{
		Success: true,
		Detections: []model.PlateDetection{
			{RawText: "CAB1234", FormattedText: "CAB-1234", Confidence: 0.61},
			{RawText: "NWLB4455", FormattedText: "NW LB-4455", Confidence: 0.93},
		},
		DetectedCount: 2,
	}}
	a := newTestAPI(t, WithDetector(detector))

	body, contentType := multipartImage(t, "image")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/detect", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[detectResponse](t, rec)
	assert.Equal(t, "NW LB-4455", resp.VehicleNumber)
	assert.Len(t, resp.Result.Detections, 2)
	assert.Equal(t, []byte("jpeg-bytes"), detector.got)
	assert.Equal(t, "NW LB-4455", a.store.DetectedVehicleNumber())
}

func TestDetectBase64(t *testing.T) {
	detector := &fakeDetector{result: &model.DetectionResult{
		Success:       true,
		Detections:    []model.PlateDetection{{RawText: "WPCAB1234", FormattedText: "WP CAB-1234", Confidence: 0.88}},
		DetectedCount: 1,
	}}
	a := newTestAPI(t, WithDetector(detector))

	snapshot := "data:image/jpeg;base64,anBlZy1ieXRlcw=="
	rec := a.do(t, http.MethodPost, "/api/v1/detect-base64", map[string]string{"image": snapshot})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "WP CAB-1234", decode[detectResponse](t, rec).VehicleNumber)
	assert.Equal(t, snapshot, detector.got64)
	assert.Equal(t, "WP CAB-1234", a.store.DetectedVehicleNumber())

	rec = a.do(t, http.MethodPost, "/api/v1/detect-base64", map[string]string{"image": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = newTestAPI(t).do(t, http.MethodPost, "/api/v1/detect-base64", map[string]string{"image": snapshot})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	failing := newTestAPI(t, WithDetector(&fakeDetector{err: errors.New("boom")}))
	rec = failing.do(t, http.MethodPost, "/api/v1/detect-base64", map[string]string{"image": snapshot})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestDetect_Failures(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		a := newTestAPI(t)
		body, contentType := multipartImage(t, "image")
		req := httptest.NewRequest(http.MethodPost, "/api/v1/detect", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		a.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("missing field", func(t *testing.T) {
		a := newTestAPI(t, WithDetector(&fakeDetector{}))
		body, contentType := multipartImage(t, "photo")
		req := httptest.NewRequest(http.MethodPost, "/api/v1/detect", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		a.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("service error", func(t *testing.T) {
		a := newTestAPI(t, WithDetector(&fakeDetector{err: errors.New("boom")}))
		body, contentType := multipartImage(t, "image")
		req := httptest.NewRequest(http.MethodPost, "/api/v1/detect", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		a.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("no plate", func(t *testing.T) {
		a := newTestAPI(t, WithDetector(&fakeDetector{result: &model.DetectionResult{Success: true}}))
		a.store.SetDetectedVehicleNumber("KEEP")
		body, contentType := multipartImage(t, "image")
		req := httptest.NewRequest(http.MethodPost, "/api/v1/detect", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		a.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), common.ErrNoPlateDetected.Error())
		assert.Equal(t, "KEEP", a.store.DetectedVehicleNumber())
	})
}

func TestAuthentication(t *testing.T) {
	const secret = "api-secret"
	a := newTestAPI(t, WithJWTSecret(secret))

	rec := a.do(t, http.MethodGet, "/api/v1/processes", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/v1/processes", nil, "Authorization", "Token abc")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/v1/processes", nil, "Authorization", "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := auth.GenerateToken(secret, "gate-1", time.Minute)
	require.NoError(t, err)
	rec = a.do(t, http.MethodGet, "/api/v1/processes", nil, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClaimsFromContext(t *testing.T) {
	const secret = "ctx-secret"
	token, err := auth.GenerateToken(secret, "gate-7", time.Minute)
	require.NoError(t, err)

	var operator string
	h := Authenticate(secret)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		operator = ClaimsFromContext(r.Context()).Operator
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "gate-7", operator)
	assert.Nil(t, ClaimsFromContext(context.Background()))
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	h := middleware.RequestID(requestLogger(base)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		common.Logger(r.Context()).Info("handled")
	})))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/wait-in", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	assert.Contains(t, line, "msg=handled")
	assert.Contains(t, line, "request_id=")
	assert.Contains(t, line, "method=POST")
	assert.Contains(t, line, "path=/api/v1/wait-in")
}
