package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/yshiba/kujibiki/internal/registry"
	"github.com/yshiba/kujibiki/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *registry.App) {
	t.Helper()

	st := store.New(clockwork.NewFakeClock(), store.DefaultTTL, store.DefaultSweepInterval)
	app := registry.NewApp(st)

	mux := http.NewServeMux()
	NewHandler(app).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, app
}

func postForm(t *testing.T, url string, form url.Values, cookies ...*http.Cookie) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestCreateSession(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postForm(t, srv.URL+"/sessions", url.Values{"max_participants": {"10"}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody[createSessionResponse](t, resp)
	require.Len(t, body.SessionID, 8)
	require.Len(t, body.HostPasscode, 6)
	require.Equal(t, 10, body.MaxParticipants)
	require.Contains(t, body.JoinURL, "/sessions/"+body.SessionID)
}

func TestCreateSessionInvalidCapacity(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, value := range []string{"4", "51", "0", "abc", ""} {
		resp := postForm(t, srv.URL+"/sessions", url.Values{"max_participants": {value}})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, "max_participants=%q", value)
	}
}

func TestGetSession(t *testing.T) {
	srv, app := newTestServer(t)

	session, err := app.CreateSession(10)
	require.NoError(t, err)
	_, _, err = app.JoinSession(session.ID, "alice")
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/sessions/" + session.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[sessionResponse](t, resp)
	require.Equal(t, session.ID, body.SessionID)
	require.Equal(t, 1, body.ParticipantCount)
	require.Equal(t, 10, body.MaxParticipants)
	require.EqualValues(t, "waiting", body.Status)
}

func TestGetSessionNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/sessions/unknown1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJoinSessionIssuesCookie(t *testing.T) {
	srv, app := newTestServer(t)

	session, err := app.CreateSession(5)
	require.NoError(t, err)

	resp := postForm(t, srv.URL+"/sessions/"+session.ID+"/join", url.Values{"name": {"alice"}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody[joinResponse](t, resp)
	require.NotEmpty(t, body.ParticipantID)
	require.Equal(t, 1, body.Number)
	require.Equal(t, "alice", body.Name)
	require.Equal(t, 1, body.Total)

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "participant_"+session.ID {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "join must set the participant cookie")
	require.Equal(t, body.ParticipantID, cookie.Value)
	require.True(t, cookie.HttpOnly)
}

func TestJoinSessionCookieReuse(t *testing.T) {
	srv, app := newTestServer(t)

	session, err := app.CreateSession(5)
	require.NoError(t, err)

	first := postForm(t, srv.URL+"/sessions/"+session.ID+"/join", url.Values{"name": {"alice"}})
	require.Equal(t, http.StatusCreated, first.StatusCode)
	joined := decodeBody[joinResponse](t, first)

	// Re-joining with the cookie returns the same participant, no new join
	again := postForm(t, srv.URL+"/sessions/"+session.ID+"/join", url.Values{"name": {"other"}},
		&http.Cookie{Name: "participant_" + session.ID, Value: joined.ParticipantID})
	require.Equal(t, http.StatusOK, again.StatusCode)

	body := decodeBody[joinResponse](t, again)
	require.Equal(t, joined.ParticipantID, body.ParticipantID)
	require.Equal(t, 1, body.Number)

	got, ok := app.GetSession(session.ID)
	require.True(t, ok)
	require.Equal(t, 1, got.ParticipantCount())
}

func TestJoinSessionFull(t *testing.T) {
	srv, app := newTestServer(t)

	session, err := app.CreateSession(5)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, _, err := app.JoinSession(session.ID, "")
		require.NoError(t, err)
	}

	resp := postForm(t, srv.URL+"/sessions/"+session.ID+"/join", url.Values{})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestJoinSessionNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postForm(t, srv.URL+"/sessions/unknown1/join", url.Values{})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestVerifyHost(t *testing.T) {
	srv, app := newTestServer(t)

	session, err := app.CreateSession(5)
	require.NoError(t, err)

	resp := postForm(t, srv.URL+"/sessions/"+session.ID+"/host/verify",
		url.Values{"passcode": {session.HostPasscode}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "host_auth_"+session.ID {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "verification must be recorded in the host cookie")
	require.Equal(t, session.HostPasscode, cookie.Value)

	wrong := postForm(t, srv.URL+"/sessions/"+session.ID+"/host/verify",
		url.Values{"passcode": {"000000"}})
	require.Equal(t, http.StatusUnauthorized, wrong.StatusCode)
	require.Empty(t, wrong.Cookies())

	missing := postForm(t, srv.URL+"/sessions/unknown1/host/verify",
		url.Values{"passcode": {session.HostPasscode}})
	require.Equal(t, http.StatusUnauthorized, missing.StatusCode)
}
