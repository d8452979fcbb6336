package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/golang-jwt/jwt/v5"
	"github.com/iziplay/csw-harvester/pkg/database"
	"github.com/iziplay/csw-harvester/pkg/harvest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu        sync.Mutex
	instances map[string]*database.Instance
	created   []*database.Instance
	reset     []string
	masterErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{instances: map[string]*database.Instance{
		"csw_de": {ID: 1, Prefix: "csw_de", URL: "http://example.org/csw", PageLimit: 10, Type: "get", Active: true},
	}}
}

func (g *fakeGateway) InitMaster(context.Context) error { return g.masterErr }

func (g *fakeGateway) CreateInstance(_ context.Context, inst *database.Instance) error {
	if err := database.ValidatePrefix(inst.Prefix); err != nil {
		return err
	}
	if _, ok := g.instances[inst.Prefix]; ok {
		return fmt.Errorf("%w: %s", database.ErrInstanceExists, inst.Prefix)
	}
	inst.ID = uint(len(g.instances) + 1)
	g.instances[inst.Prefix] = inst
	g.created = append(g.created, inst)
	return nil
}

func (g *fakeGateway) GetInstance(_ context.Context, identifier string) (*database.Instance, error) {
	for _, inst := range g.instances {
		if inst.Prefix == identifier || fmt.Sprint(inst.ID) == identifier {
			return inst, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", database.ErrInstanceNotFound, identifier)
}

func (g *fakeGateway) ResetTables(_ context.Context, prefix string) error {
	g.reset = append(g.reset, prefix)
	return nil
}

func (g *fakeGateway) LastHarvest(context.Context) (*database.Harvest, error) {
	return &database.Harvest{Date: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), Instances: 1, Complete: true}, nil
}

func (g *fakeGateway) InstanceStats(_ context.Context, prefix string) (*database.InstanceStats, error) {
	return &database.InstanceStats{Prefix: prefix, Records: 42}, nil
}

func (g *fakeGateway) SearchRecords(_ context.Context, prefix, query string, limit, offset int) ([]database.RecordRow, int64, error) {
	title := fmt.Sprintf("%s:%s:%d:%d", prefix, query, limit, offset)
	return []database.RecordRow{{ID: "abc", Title: &title}}, 1, nil
}

func (g *fakeGateway) GetRecord(_ context.Context, prefix, id string) (*database.RecordDetail, error) {
	if id != "abc" {
		return nil, fmt.Errorf("%w: %s", database.ErrRecordNotFound, id)
	}
	return &database.RecordDetail{RecordRow: database.RecordRow{ID: id}, Keywords: []database.KeywordRow{{ID: 1, Name: "roads"}}}, nil
}

type fakeHarvester struct {
	stats    *harvest.Stats
	pages    int
	queueErr error
	claim    bool
	done     chan string
}

func newFakeHarvester() *fakeHarvester {
	return &fakeHarvester{stats: harvest.NewStats(), pages: 3, done: make(chan string, 4)}
}

func (h *fakeHarvester) Queue(_ context.Context, inst *database.Instance) (int, error) {
	if h.queueErr != nil {
		return 0, h.queueErr
	}
	h.stats.StartInstance(inst.Prefix, h.pages)
	return h.pages, nil
}

func (h *fakeHarvester) Drain(_ context.Context, inst *database.Instance) (harvest.Result, error) {
	h.done <- "drain " + inst.Prefix
	return harvest.Result{}, nil
}

func (h *fakeHarvester) Claim(context.Context, *database.Instance) (uint, bool, error) {
	return 7, h.claim, nil
}

func (h *fakeHarvester) Continue(_ context.Context, inst *database.Instance, id uint) (harvest.Result, error) {
	h.done <- fmt.Sprintf("continue %s %d", inst.Prefix, id)
	return harvest.Result{}, nil
}

func (h *fakeHarvester) ProcessAll(context.Context) (*database.Harvest, error) {
	h.done <- "all"
	return &database.Harvest{}, nil
}

func (h *fakeHarvester) Stats() *harvest.Stats { return h.stats }

func (h *fakeHarvester) wait(t *testing.T) string {
	t.Helper()
	select {
	case s := <-h.done:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("background processing was not started")
		return ""
	}
}

func setup(t *testing.T, secret string) (humatest.TestAPI, *fakeGateway, *fakeHarvester) {
	_, api := humatest.New(t)
	gw, h := newFakeGateway(), newFakeHarvester()
	Setup(api, Options{Gateway: gw, Harvester: h, JWTSecret: secret})
	return api, gw, h
}

func decode(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestHealthCheck(t *testing.T) {
	api, _, _ := setup(t, "")
	resp := api.Get("/healthz")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "OK", resp.Body.String())
}

func TestInitMaster(t *testing.T) {
	api, gw, _ := setup(t, "")
	resp := api.Get("/master/init")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "Init completed", decode(t, resp.Body.Bytes())["message"])

	gw.masterErr = errors.New("connection refused")
	resp = api.Get("/master/init")
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestInitInstance(t *testing.T) {
	api, gw, _ := setup(t, "")

	resp := api.Get("/instance/init?url=http://example.com/csw&prefix=csw_fr&type=post&limit=50&rateLimit=2&note=test")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.Len(t, gw.created, 1)

	inst := gw.created[0]
	assert.Equal(t, "http://example.com/csw", inst.URL)
	assert.Equal(t, "csw_fr", inst.Prefix)
	assert.Equal(t, "post", inst.Type)
	assert.Equal(t, 50, inst.PageLimit)
	assert.Equal(t, "2.0.2", inst.Version)
	assert.True(t, inst.Active)
	require.NotNil(t, inst.RateLimit)
	assert.Equal(t, 2, *inst.RateLimit)
	require.NotNil(t, inst.Note)
	assert.Nil(t, inst.SpecialParams)
}

func TestInitInstanceDefaults(t *testing.T) {
	api, gw, _ := setup(t, "")

	resp := api.Get("/instance/init?url=http://example.com/csw&type=put&active=false")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.Len(t, gw.created, 1)

	inst := gw.created[0]
	assert.NoError(t, database.ValidatePrefix(inst.Prefix))
	assert.Equal(t, "get", inst.Type)
	assert.Equal(t, 10, inst.PageLimit)
	assert.False(t, inst.Active)
	assert.Nil(t, inst.RateLimit)
	assert.Nil(t, inst.Note)
}

func TestInitInstanceErrors(t *testing.T) {
	api, _, _ := setup(t, "")

	assert.Equal(t, http.StatusUnprocessableEntity, api.Get("/instance/init").Code)
	assert.Equal(t, http.StatusConflict, api.Get("/instance/init?url=http://x&prefix=csw_de").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, api.Get("/instance/init?url=http://x&prefix=Bad-Prefix").Code)
}

func TestResetInstance(t *testing.T) {
	api, gw, _ := setup(t, "")

	resp := api.Get("/instance/reset/1")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, []string{"csw_de"}, gw.reset)

	resp = api.Get("/instance/reset/unknown")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Contains(t, resp.Body.String(), "Instance not found.")
}

func TestProcessInstance(t *testing.T) {
	api, _, h := setup(t, "")

	resp := api.Get("/process/instance/csw_de")
	require.Equal(t, http.StatusOK, resp.Code)
	body := decode(t, resp.Body.Bytes())
	assert.Equal(t, "Queue created", body["message"])
	assert.EqualValues(t, 3, body["pages"])
	assert.Equal(t, "drain csw_de", h.wait(t))

	assert.Equal(t, http.StatusNotFound, api.Get("/process/instance/other").Code)

	h.queueErr = errors.New("catalogue down")
	assert.Equal(t, http.StatusInternalServerError, api.Get("/process/instance/csw_de").Code)
}

func TestProcessPackage(t *testing.T) {
	api, _, h := setup(t, "")

	resp := api.Get("/process/package/csw_de")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "Nothing to process", decode(t, resp.Body.Bytes())["message"])

	h.claim = true
	resp = api.Get("/process/package/1")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "Initiated package processing", decode(t, resp.Body.Bytes())["message"])
	assert.Equal(t, "continue csw_de 7", h.wait(t))
}

func TestProcessAll(t *testing.T) {
	api, _, h := setup(t, "")

	resp := api.Get("/process/all")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "all", h.wait(t))
}

func TestStatistics(t *testing.T) {
	api, _, h := setup(t, "")
	h.stats.StartInstance("csw_de", 5)

	resp := api.Get("/v1/statistics/harvest")
	require.Equal(t, http.StatusOK, resp.Code)
	body := decode(t, resp.Body.Bytes())
	assert.Equal(t, true, body["isRunning"])
	assert.Len(t, body["instances"], 1)
	assert.NotNil(t, body["last"])

	resp = api.Get("/v1/instances/csw_de/statistics")
	require.Equal(t, http.StatusOK, resp.Code)
	body = decode(t, resp.Body.Bytes())
	assert.EqualValues(t, 42, body["stats"].(map[string]any)["records"])
	assert.EqualValues(t, 5, body["progress"].(map[string]any)["pages"])
}

func TestRecords(t *testing.T) {
	api, _, _ := setup(t, "")

	resp := api.Get("/v1/instances/csw_de/records?q=road&limit=5&offset=10")
	require.Equal(t, http.StatusOK, resp.Code)
	body := decode(t, resp.Body.Bytes())
	assert.EqualValues(t, 1, body["total"])
	results := body["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "csw_de:road:5:10", results[0].(map[string]any)["title"])

	resp = api.Get("/v1/instances/csw_de/records/abc")
	require.Equal(t, http.StatusOK, resp.Code)
	body = decode(t, resp.Body.Bytes())
	assert.Equal(t, "abc", body["id"])
	assert.Len(t, body["keywords"], 1)

	resp = api.Get("/v1/instances/csw_de/records/missing")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Contains(t, resp.Body.String(), "Record not found.")
}

func TestAuthMiddleware(t *testing.T) {
	api, _, _ := setup(t, "s3cret")

	assert.Equal(t, http.StatusOK, api.Get("/healthz").Code)
	assert.Equal(t, http.StatusOK, api.Get("/v1/statistics/harvest").Code)
	assert.Equal(t, http.StatusUnauthorized, api.Get("/master/init").Code)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "operator"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, api.Get("/master/init", "Authorization: Bearer "+token).Code)
	assert.Equal(t, http.StatusOK, api.Get("/master/init?jwt="+token).Code)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "operator"}).SignedString([]byte("other"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, api.Get("/master/init", "Authorization: Bearer "+forged).Code)
}
