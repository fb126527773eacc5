package his

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"station-scheduler/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestResolveProcedureName_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/his/procedure/resolve", r.URL.Path)

		var req ProcedureRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "app-1", req.AppID)
		assert.Equal(t, "XRAY", req.ProcedureID)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ProcedureResponse{Status: 0, Name: "Chest X-Ray"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "app-1", "key-1", zap.NewNop())
	name, mapped, err := client.ResolveProcedureName("XRAY")

	require.NoError(t, err)
	assert.True(t, mapped)
	assert.Equal(t, "Chest X-Ray", name)
}

// An unknown procedure id is not an error: intake keeps the step with a
// placeholder name and it stays out of automatic room matching.
func TestResolveProcedureName_Unmapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ProcedureResponse{Status: 1, Msg: "unknown procedure"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "app-1", "key-1", zap.NewNop())
	name, mapped, err := client.ResolveProcedureName("UNKNOWN-77")

	require.NoError(t, err)
	assert.False(t, mapped)
	assert.Equal(t, domain.PlaceholderProcedureName, name)
}

func TestResolveProcedureName_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(ProcedureResponse{Status: 2, Msg: "internal error"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "app-1", "key-1", zap.NewNop())
	_, _, err := client.ResolveProcedureName("XRAY")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "HIS API error")
}
