package gate

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secopshq/console/pkg/rbac"
)

func doEvaluate(t *testing.T, access rbac.Access, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	router := mux.NewRouter()
	NewHandlers().RegisterRoutes(router)

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/gates/evaluate", bytes.NewReader(body))
	req = req.WithContext(rbac.WithAccess(req.Context(), access))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestEvaluateBatch(t *testing.T) {
	access := accessWith(rbac.RoleMember, false, rbac.PermScansRun)

	rec := doEvaluate(t, access, map[string]interface{}{
		"gates": []map[string]interface{}{
			{"id": "run-scan", "permissions": []string{"scans:run"}, "mode": "disable"},
			{"id": "delete-report", "permissions": []string{"reports:delete"}, "mode": "hide"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body evaluateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Gates, 2)

	assert.True(t, body.Gates["run-scan"].Render)
	assert.False(t, body.Gates["run-scan"].Disabled)

	assert.False(t, body.Gates["delete-report"].Render)
}

func TestEvaluateRejectsMixedModeFields(t *testing.T) {
	access := accessWith(rbac.RoleMember, false)

	rec := doEvaluate(t, access, map[string]interface{}{
		"gates": []map[string]interface{}{
			{"id": "g", "permissions": []string{"scans:run"}, "mode": "hide", "tooltip": "nope"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doEvaluate(t, access, map[string]interface{}{
		"gates": []map[string]interface{}{
			{"id": "g", "permissions": []string{"scans:run"}, "mode": "disable", "fallback": "nope"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvaluateRejectsUnknownMode(t *testing.T) {
	rec := doEvaluate(t, accessWith(rbac.RoleMember, false), map[string]interface{}{
		"gates": []map[string]interface{}{{"id": "g", "mode": "blink"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvaluateRequiresAccessContext(t *testing.T) {
	router := mux.NewRouter()
	NewHandlers().RegisterRoutes(router)

	body, _ := json.Marshal(map[string]interface{}{"gates": []map[string]interface{}{{"id": "g"}}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/gates/evaluate", bytes.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEvaluateRequiresGates(t *testing.T) {
	rec := doEvaluate(t, accessWith(rbac.RoleMember, false), map[string]interface{}{"gates": []interface{}{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvaluateDefaultModeIsHide(t *testing.T) {
	access := accessWith(rbac.RoleMember, false)

	rec := doEvaluate(t, access, map[string]interface{}{
		"gates": []map[string]interface{}{
			{"id": "g", "permissions": []string{"scans:run"}, "fallback": "locked"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body evaluateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Gates["g"].Render)
	assert.Equal(t, "locked", body.Gates["g"].Fallback)
}
