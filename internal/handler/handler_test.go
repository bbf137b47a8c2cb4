package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ontograph/internal/adapter/memstore"
	"ontograph/internal/engine"
	"ontograph/internal/graph"
	"ontograph/internal/ontology"
	"ontograph/internal/service"
	"ontograph/internal/session"
)

const testSchema = `
version: "1.0"
namespace: city

classes:
  - name: entity
  - name: populatedPlace
    superclasses: [entity]
    attributes:
      name:
  - name: city
    superclasses: [populatedPlace]
    restrictions:
      - relationship: hasPart
        target: neighbourhood
        min: 1
  - name: neighbourhood
    superclasses: [populatedPlace]

relationships:
  - name: relationship
    superclasses: [entity]
  - name: hasPart
    superclasses: [relationship]
    inverse: isPartOf
    active: true
    domain: populatedPlace
    range: populatedPlace
  - name: isPartOf
    superclasses: [relationship]

attributes:
  - name: name
    superclasses: [entity]
    datatype: string(120)
    default: ""
`

func newTestRouter(t *testing.T) (*gin.Engine, *memstore.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	loader := ontology.NewLoaderBytes([]byte(testSchema))
	require.NoError(t, loader.Load())
	store := memstore.New()
	sess := session.New(graph.New(loader), engine.New(loader, engine.MinRequirements), store)

	schemaHandler := NewSchemaHandler(service.NewSchemaService(loader))
	nodeHandler := NewNodeHandler(service.NewNodeService(sess, loader))
	edgeHandler := NewEdgeHandler(service.NewEdgeService(sess, loader))
	syncHandler := NewSyncHandler(service.NewSyncService(sess))

	router := gin.New()
	api := router.Group("/api/v1")
	api.GET("/schema/classes/:name", schemaHandler.GetClass)
	api.POST("/nodes", nodeHandler.CreateNode)
	api.GET("/nodes/:id", nodeHandler.GetNode)
	api.POST("/nodes/:id/edges", edgeHandler.AddEdge)
	api.GET("/nodes/:id/neighbors/:relationship", edgeHandler.GetNeighbors)
	api.POST("/session/commit", syncHandler.Commit)
	api.GET("/session/pending", syncHandler.Pending)
	return router, store
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func createNode(t *testing.T, router *gin.Engine, class string) string {
	t.Helper()
	w, resp := doJSON(t, router, http.MethodPost, "/api/v1/nodes", map[string]any{
		"classes": []string{class},
	})
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]any)
	return data["id"].(string)
}

func TestNodeEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	cityID := createNode(t, router, "city")
	hoodID := createNode(t, router, "neighbourhood")

	w, _ := doJSON(t, router, http.MethodPost, "/api/v1/nodes/"+cityID+"/edges", map[string]any{
		"relationship": "hasPart",
		"object":       hoodID,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp := doJSON(t, router, http.MethodGet, "/api/v1/nodes/"+cityID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := resp.Data.(map[string]any)
	assert.Equal(t, cityID, view["id"])

	w, resp = doJSON(t, router, http.MethodGet, "/api/v1/nodes/"+cityID+"/neighbors/hasPart", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{hoodID}, resp.Data)

	// 未知节点映射到 404
	w, _ = doJSON(t, router, http.MethodGet, "/api/v1/nodes/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 缺少必填字段映射到 400
	w, _ = doJSON(t, router, http.MethodPost, "/api/v1/nodes", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCycleMapsToConflict(t *testing.T) {
	router, _ := newTestRouter(t)
	cityID := createNode(t, router, "city")
	hoodID := createNode(t, router, "neighbourhood")

	w, _ := doJSON(t, router, http.MethodPost, "/api/v1/nodes/"+cityID+"/edges", map[string]any{
		"relationship": "hasPart",
		"object":       hoodID,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, router, http.MethodPost, "/api/v1/nodes/"+hoodID+"/edges", map[string]any{
		"relationship": "hasPart",
		"object":       cityID,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestValidationMapsToUnprocessable(t *testing.T) {
	router, store := newTestRouter(t)
	cityID := createNode(t, router, "city")

	// 城市缺少部件，提交报出违规清单
	w, resp := doJSON(t, router, http.MethodPost, "/api/v1/session/commit", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Len(t, resp.Violations, 1)
	assert.Equal(t, graph.NodeID(cityID), resp.Violations[0].Node)
	assert.Equal(t, 0, store.Len())

	hoodID := createNode(t, router, "neighbourhood")
	w, _ = doJSON(t, router, http.MethodPost, "/api/v1/nodes/"+cityID+"/edges", map[string]any{
		"relationship": "hasPart",
		"object":       hoodID,
	})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = doJSON(t, router, http.MethodPost, "/api/v1/session/commit", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, store.Len())
}

func TestGetClassEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w, resp := doJSON(t, router, http.MethodGet, "/api/v1/schema/classes/city", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := resp.Data.(map[string]any)
	assert.Equal(t, "CITY.CITY", view["name"])

	w, _ = doJSON(t, router, http.MethodGet, "/api/v1/schema/classes/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFailMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err  error
		code int
	}{
		{&graph.NotFoundError{ID: "x"}, http.StatusNotFound},
		{&graph.CycleError{Subject: "a", Object: "b"}, http.StatusConflict},
		{&engine.ConstraintError{Message: "m"}, http.StatusConflict},
		{&engine.ValidationError{}, http.StatusUnprocessableEntity},
		{&ontology.DatatypeError{Err: errors.New("bad")}, http.StatusBadRequest},
		{&session.AdapterError{Op: "apply", Err: errors.New("down")}, http.StatusBadGateway},
		{session.ErrCommitting, http.StatusConflict},
		{errors.New("something else"), http.StatusBadRequest},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		Fail(c, tc.err)
		assert.Equal(t, tc.code, w.Code, "error %v", tc.err)
	}
}
