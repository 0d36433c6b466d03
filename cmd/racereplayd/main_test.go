package main

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/raceplay.report/internal/session"
)

func TestKeyFromRequestParsesValidQuery(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws?year=2024&round=5&session_type=R", nil)
	key, err := keyFromRequest(req)
	require.NoError(t, err)
	require.Equal(t, session.Key{Year: 2024, Round: 5, SessionType: session.TypeRace}, key)
}

func TestKeyFromRequestRejectsMissingYear(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws?round=5&session_type=R", nil)
	_, err := keyFromRequest(req)
	require.Error(t, err)
}

func TestKeyFromRequestRejectsBadSessionType(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws?year=2024&round=5&session_type=ZZ", nil)
	_, err := keyFromRequest(req)
	require.Error(t, err)
}

func TestHandleHealthzReturnsOK(t *testing.T) {
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	handleHealthz(rec, req)
	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "ok version=")
}
