package remote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"soma/internal/adapter/remote"
	"soma/internal/domain"
)

// fakeAPI is a tiny stand-in for the server: one user, one session token.
type fakeAPI struct {
	mu     sync.Mutex
	rows   []domain.Measurement
	nextID int64
}

func (f *fakeAPI) authed(r *http.Request) bool {
	c, err := r.Cookie(remote.SessionCookie)
	return err == nil && c.Value == "tok-1"
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Username, Password string }
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: remote.SessionCookie, Value: "tok-1", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /api/register", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Username, Password string }
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Username == "taken" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"username already exists"}`))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: remote.SessionCookie, Value: "tok-1", Path: "/"})
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(domain.User{ID: 7, Username: req.Username})
	})
	mux.HandleFunc("GET /api/me", func(w http.ResponseWriter, r *http.Request) {
		if !f.authed(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(domain.User{ID: 7, Username: "ana"})
	})
	mux.HandleFunc("GET /api/measurements", func(w http.ResponseWriter, r *http.Request) {
		if !f.authed(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(f.rows)
	})
	mux.HandleFunc("POST /api/measurements", func(w http.ResponseWriter, r *http.Request) {
		if !f.authed(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var m domain.Measurement
		_ = json.NewDecoder(r.Body).Decode(&m)
		f.mu.Lock()
		f.nextID++
		m.ID = f.nextID
		f.rows = append([]domain.Measurement{m}, f.rows...)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(m)
	})
	mux.HandleFunc("PUT /api/measurements/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("measurement not found\n"))
	})
	mux.HandleFunc("DELETE /api/measurements/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /api/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	return mux
}

func newClient(t *testing.T, opts ...remote.Option) (*remote.Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{}
	ts := httptest.NewServer(api.handler())
	t.Cleanup(ts.Close)
	c, err := remote.New(ts.URL+"/", opts...)
	require.NoError(t, err)
	return c, api
}

func TestClient_Unauthorized(t *testing.T) {
	c, _ := newClient(t)
	_, err := c.List(context.Background())
	require.ErrorIs(t, err, remote.ErrUnauthorized)

	_, err = c.Login(context.Background(), "ana", "wrong")
	require.ErrorIs(t, err, remote.ErrUnauthorized)
}

func TestClient_LoginAndCRUD(t *testing.T) {
	ctx := context.Background()
	c, _ := newClient(t)

	token, err := c.Login(ctx, "ana", "secret")
	require.NoError(t, err)
	require.Equal(t, "tok-1", token)

	me, err := c.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, "ana", me.Username)

	empty, err := c.List(ctx)
	require.NoError(t, err)
	require.NotNil(t, empty)
	require.Empty(t, empty)

	id, err := c.Add(ctx, domain.Measurement{Date: "2024-01-01", Weight: 80})
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	rows, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 80.0, rows[0].Weight)

	require.NoError(t, c.Remove(ctx, 1))
}

func TestClient_WithSession(t *testing.T) {
	c, _ := newClient(t, remote.WithSession("tok-1"))
	require.Equal(t, "tok-1", c.Session())
	_, err := c.Me(context.Background())
	require.NoError(t, err)
}

func TestClient_StatusErrors(t *testing.T) {
	ctx := context.Background()
	c, _ := newClient(t)

	err := c.Update(ctx, domain.Measurement{ID: 9, Date: "2024-01-01"})
	require.ErrorIs(t, err, domain.ErrMeasurementNotFound)
	var se *remote.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "measurement not found", se.Message)

	_, _, err = c.Register(ctx, "taken", "pw")
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusConflict, se.Code)
	require.Equal(t, "username already exists", se.Message)
	require.NotErrorIs(t, err, domain.ErrMeasurementNotFound)

	// Empty body falls back to the status text.
	err = c.Logout(ctx)
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusText(http.StatusBadGateway), se.Message)
}

func TestClient_Register(t *testing.T) {
	c, _ := newClient(t)
	u, token, err := c.Register(context.Background(), "ben", "pw")
	require.NoError(t, err)
	require.Equal(t, int64(7), u.ID)
	require.Equal(t, "tok-1", token)
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := remote.New("ftp://example.com")
	require.Error(t, err)
}
