package main

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// withServer points serverAddr (and a fresh token cache) at a test
// server for the duration of the test, restoring both afterward.
func withServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	prevAddr := serverAddr
	prevSign := signWithKey
	serverAddr = srv.URL
	signWithKey = ""
	t.Cleanup(func() {
		serverAddr = prevAddr
		signWithKey = prevSign
	})

	withTokenFile(t)
	require.NoError(t, saveTokens(tokenPair{Access: "test-access-token"}))
	return srv
}

func TestRunTrustAddSendsExpectedBody(t *testing.T) {
	var gotBody map[string]string
	var gotAuth string
	withServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}))

	trustAddPeerID = "peer-1"
	trustAddPubkey = base64.StdEncoding.EncodeToString(make([]byte, 32))
	require.NoError(t, runTrustAdd(nil, nil))

	require.Equal(t, "Bearer test-access-token", gotAuth)
	require.Equal(t, trustAddPeerID, gotBody["id"])
	require.Equal(t, trustAddPubkey, gotBody["pubkey_base64_32"])
}

func TestRunTrustAddRequiresFlags(t *testing.T) {
	trustAddPeerID = ""
	trustAddPubkey = ""
	require.Error(t, runTrustAdd(nil, nil))
}

func TestRunRoutingAddSendsExpectedBody(t *testing.T) {
	var gotBody map[string]string
	withServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}))

	routingAddPeerID = "peer-1"
	routingAddPubkey = base64.StdEncoding.EncodeToString(make([]byte, 32))
	require.NoError(t, runRoutingAdd(nil, nil))

	require.Equal(t, routingAddPeerID, gotBody["peerId"])
	require.Equal(t, routingAddPubkey, gotBody["pubkey"])
}

func TestRunStoragePutAndGetRoundTrip(t *testing.T) {
	stored := map[string]string{}
	withServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var body struct{ Key, Value string }
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			stored[body.Key] = body.Value
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		case http.MethodGet:
			key := r.URL.Query().Get("key")
			resp := storageKVResponse{Key: key, Value: stored[key]}
			json.NewEncoder(w).Encode(resp)
		}
	}))

	storageKVPutKey = "greeting"
	storageKVPutValue = "hello"
	require.NoError(t, runStoragePut(nil, nil))

	storageKVGetKey = "greeting"
	require.NoError(t, runStorageGet(nil, nil))
}

func TestRunGetPrintPropagatesHTTPErrors(t *testing.T) {
	withServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))

	err := runGetPrint("/api/state")(nil, nil)
	require.Error(t, err)
}
