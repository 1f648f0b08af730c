package event_api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"event-ticketing/internal/auth"
	"event-ticketing/internal/clock"
	"event-ticketing/internal/config"
	events "event-ticketing/internal/events/service"
	"event-ticketing/internal/logger"
	"event-ticketing/internal/models"
	"event-ticketing/internal/testutil"
	"event-ticketing/internal/uploads"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type userLoader struct{ db *bun.DB }

func (u userLoader) GetByID(ctx context.Context, id string) (*models.User, error) {
	user := new(models.User)
	err := u.db.NewSelect().Model(user).Where("id = ?", id).Scan(ctx)
	return user, err
}

func (u userLoader) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user := new(models.User)
	err := u.db.NewSelect().Model(user).Where("email = ?", email).Scan(ctx)
	return user, err
}

type env struct {
	t         *testing.T
	router    chi.Router
	db        *bun.DB
	auth      *auth.Authenticator
	uploadDir string
}

func setup(t *testing.T) *env {
	db := testutil.NewDB(t)
	dir := t.TempDir()
	store := uploads.NewStore(config.UploadConfig{Dir: dir, PublicPrefix: "/static/uploads", MaxSizeBytes: 1 << 20})
	svc := events.NewService(db, store, nil, config.TopicConfig{}, clock.NewFixed(now), logger.Nop())
	a := testutil.NewAuthenticator(t, userLoader{db: db})

	r := chi.NewRouter()
	r.Use(a.Authenticate)
	NewHandler(svc, a, store, nil, logger.Nop()).Routes(r)
	return &env{t: t, router: r, db: db, auth: a, uploadDir: dir}
}

func (e *env) do(req *http.Request, user *models.User) *httptest.ResponseRecorder {
	if user != nil {
		req.Header.Set("Authorization", testutil.Bearer(e.t, e.auth, user))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data any) {
	t.Helper()
	var body struct {
		Error string          `json:"error"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body), rec.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(body.Data, data))
	}
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(dir, "events"))
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	return len(entries)
}

const createBody = `{
	"title": "Jazz Night",
	"description": "Live jazz",
	"category": "music",
	"starts_at": "2026-05-10T20:00:00Z",
	"location": "Dakar",
	"ticket_types": [{"name": "Standard", "price": "10.00", "total_quantity": 50}]
}`

func TestCreateAndRead_JSON(t *testing.T) {
	e := setup(t)
	organizer := testutil.CreateUser(t, e.db, models.RoleOrganizer)

	rec := e.do(jsonRequest(http.MethodPost, "/api/events", createBody), organizer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created events.EventView
	decode(t, rec, &created)
	assert.Equal(t, models.StatusUpcoming, created.Status)
	assert.Equal(t, 50, created.Available)
	assert.True(t, created.CanBeDeleted)

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/events/"+created.ID, nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched events.EventView
	decode(t, rec, &fetched)
	require.Len(t, fetched.TicketTypes, 1)
	assert.Equal(t, "Standard", fetched.TicketTypes[0].Name)

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/events?status=upcoming&search=JAZZ", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []events.EventView
	decode(t, rec, &listed)
	assert.Len(t, listed, 1)

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/events?status=someday", nil), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/events/filters", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var filters events.Filters
	decode(t, rec, &filters)
	assert.Equal(t, []string{"music"}, filters.Categories)

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/organizer/events", nil), organizer)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &listed)
	assert.Len(t, listed, 1)
}

func TestCreate_RoleGate(t *testing.T) {
	e := setup(t)
	buyer := testutil.CreateUser(t, e.db, models.RoleUser)

	rec := e.do(jsonRequest(http.MethodPost, "/api/events", createBody), buyer)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Browsers without a session are sent to the login page.
	form := url.Values{"title": {"x"}}
	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = e.do(req, nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, auth.LoginPath, rec.Header().Get("Location"))
}

func TestCreate_MultipartWithImage(t *testing.T) {
	e := setup(t)
	organizer := testutil.CreateUser(t, e.db, models.RoleOrganizer)

	fields := map[string]string{
		"title":        "Theatre",
		"description":  "A play",
		"category":     "theatre",
		"starts_at":    "2026-06-01T19:30",
		"location":     "Saint-Louis",
		"ticket_types": `[{"name":"Balcony","price":"15","total_quantity":20}]`,
	}
	body, ctype := testutil.Multipart(t, fields, map[string][]byte{"image": testutil.PNG(t)})
	req := httptest.NewRequest(http.MethodPost, "/api/events", body)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("Accept", "application/json")
	rec := e.do(req, organizer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created events.EventView
	decode(t, rec, &created)
	assert.True(t, strings.HasPrefix(created.ImageURL, "/static/uploads/events/"))
	assert.True(t, time.Date(2026, 6, 1, 19, 30, 0, 0, time.UTC).Equal(created.StartsAt))
	assert.Equal(t, 1, countFiles(t, e.uploadDir))

	// A rejected payload does not leave its image behind.
	fields["ticket_types"] = `[]`
	body, ctype = testutil.Multipart(t, fields, map[string][]byte{"image": testutil.PNG(t)})
	req = httptest.NewRequest(http.MethodPost, "/api/events", body)
	req.Header.Set("Content-Type", ctype)
	rec = e.do(req, organizer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1, countFiles(t, e.uploadDir))
}

func TestUpdateAndDelete(t *testing.T) {
	e := setup(t)
	organizer := testutil.CreateUser(t, e.db, models.RoleOrganizer)
	other := testutil.CreateUser(t, e.db, models.RoleOrganizer)
	event := testutil.CreateEvent(t, e.db, organizer.ID, now.Add(48*time.Hour),
		testutil.TypeSpec{Name: "Standard", Price: "10", Total: 10, Available: 10})

	update := `{"title":"Renamed","description":"d","category":"music","starts_at":"2026-05-10T20:00:00Z","location":"Thies",
		"ticket_types":[{"name":"Early","price":"5","total_quantity":30}]}`

	rec := e.do(jsonRequest(http.MethodPut, "/api/events/"+event.ID, update), other)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(jsonRequest(http.MethodPut, "/api/events/"+event.ID+"?replace_ticket_types=true", update), organizer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated events.EventView
	decode(t, rec, &updated)
	assert.Equal(t, "Renamed", updated.Title)
	require.Len(t, updated.TicketTypes, 1)
	assert.Equal(t, "Early", updated.TicketTypes[0].Name)

	rec = e.do(httptest.NewRequest(http.MethodDelete, "/api/events/"+event.ID, nil), organizer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/events/"+event.ID, nil), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTicketTypeRoutes(t *testing.T) {
	e := setup(t)
	organizer := testutil.CreateUser(t, e.db, models.RoleOrganizer)
	event := testutil.CreateEvent(t, e.db, organizer.ID, now.Add(48*time.Hour),
		testutil.TypeSpec{Name: "Sold", Price: "10", Total: 10, Available: 8})

	rec := e.do(jsonRequest(http.MethodPost, "/api/events/"+event.ID+"/ticket-types",
		`{"name":"VIP","price":"25.5","total_quantity":5}`), organizer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var vip models.TicketType
	decode(t, rec, &vip)
	assert.Equal(t, 5, vip.AvailableQuantity)

	form := url.Values{"name": {"VIP+"}, "price": {"30"}, "total_quantity": {"6"}}
	req := httptest.NewRequest(http.MethodPut, "/api/events/"+event.ID+"/ticket-types/"+vip.ID, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	rec = e.do(req, organizer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 6, testutil.TicketType(t, e.db, vip.ID).TotalQuantity)

	rec = e.do(jsonRequest(http.MethodPost, "/api/events/"+event.ID+"/ticket-types",
		`{"name":"Cheap","price":"1.999","total_quantity":5}`), organizer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	sold := event.TicketTypes[0]
	rec = e.do(httptest.NewRequest(http.MethodDelete, "/api/events/"+event.ID+"/ticket-types/"+sold.ID, nil), organizer)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(httptest.NewRequest(http.MethodDelete, "/api/events/"+event.ID+"/ticket-types/"+vip.ID, nil), organizer)
	assert.Equal(t, http.StatusOK, rec.Code)
}
