package insight_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/imvu-insight/datasync/internal/classify"
	"github.com/imvu-insight/datasync/internal/digest"
	"github.com/imvu-insight/datasync/internal/insight"
)

// ---------------------------------------------------------------------------
// Auth
// ---------------------------------------------------------------------------

func TestLogin_HashesPasswordClientSide(t *testing.T) {
	wantHash := digest.Sum([]byte("hunter2"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/insight/api/auth/login" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req struct {
			Username     string `json:"username"`
			PasswordHash string `json:"password_hash"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode login body: %v", err)
		}
		if req.Username != "admin" || req.PasswordHash != wantHash {
			t.Errorf("login body = %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"user": map[string]any{
				"id": 1, "username": "admin", "is_admin": true, "is_active": true,
				"access_token": "acc-1", "refresh_token": "ref-1",
			},
		})
	}))
	defer srv.Close()

	c := insight.New(srv.URL)
	user, err := c.Login(context.Background(), "admin", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.Username != "admin" || !user.IsAdmin {
		t.Errorf("user = %+v", user)
	}
	if access, refresh := c.Tokens(); access != "acc-1" || refresh != "ref-1" {
		t.Errorf("tokens = %q, %q", access, refresh)
	}
}

func TestLogin_RejectedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false})
	}))
	defer srv.Close()

	c := insight.New(srv.URL)
	if _, err := c.Login(context.Background(), "admin", "wrong"); !errors.Is(err, insight.ErrLoginFailed) {
		t.Fatalf("err = %v, want ErrLoginFailed", err)
	}
}

func TestDo_RefreshesOnceAndRetries(t *testing.T) {
	var refreshCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/insight/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.RefreshToken != "ref-old" {
			t.Errorf("refresh token = %q", req.RefreshToken)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true, "access_token": "acc-new", "refresh_token": "ref-new",
		})
	})
	mux.HandleFunc("/insight/api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer acc-new" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"id": 1, "username": "admin", "is_admin": true, "is_active": true})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var mu sync.Mutex
	var saved [][2]string
	c := insight.New(srv.URL,
		insight.WithTokens("acc-stale", "ref-old"),
		insight.WithTokenCallback(func(access, refresh string) {
			mu.Lock()
			saved = append(saved, [2]string{access, refresh})
			mu.Unlock()
		}),
	)

	user, err := c.Me(context.Background())
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if user.Username != "admin" {
		t.Errorf("user = %+v", user)
	}
	if got := refreshCalls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(saved) != 1 || saved[0] != [2]string{"acc-new", "ref-new"} {
		t.Errorf("persisted tokens = %v", saved)
	}
}

func TestDo_ConcurrentRefreshCollapses(t *testing.T) {
	var refreshCalls atomic.Int32
	release := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("/insight/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		<-release
		json.NewEncoder(w).Encode(map[string]any{
			"success": true, "access_token": "acc-new", "refresh_token": "ref-new",
		})
	})
	mux.HandleFunc("/insight/api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer acc-new" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"id": 1, "username": "admin"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := insight.New(srv.URL, insight.WithTokens("acc-stale", "ref-old"))

	const callers = 5
	errs := make(chan error, callers)
	var started sync.WaitGroup
	started.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			started.Done()
			_, err := c.Me(context.Background())
			errs <- err
		}()
	}
	started.Wait()
	close(release)

	for i := 0; i < callers; i++ {
		if err := <-errs; err != nil {
			t.Errorf("Me: %v", err)
		}
	}
	// A caller arriving after the shared refresh finished may start a
	// second one, but the burst must not fan out one per caller.
	if got := refreshCalls.Load(); got > 2 {
		t.Errorf("refresh calls = %d, want collapsed burst", got)
	}
}

func TestDo_RefreshFailureSurfacesUnauthorized(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/insight/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false})
	})
	mux.HandleFunc("/insight/api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := insight.New(srv.URL, insight.WithTokens("acc-stale", "ref-revoked"))
	if _, err := c.Me(context.Background()); !errors.Is(err, insight.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

// ---------------------------------------------------------------------------
// Data sync
// ---------------------------------------------------------------------------

func TestRecordByHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("hash") {
		case "known":
			json.NewEncoder(w).Encode(map[string]any{
				"exists": true,
				"record": map[string]any{
					"id": 9, "type": "product", "filename": "products.csv",
					"hash": "known", "record_count": 12, "file_size": 340,
					"uploaded_at": "2026-03-01T12:00:00Z",
				},
			})
		default:
			json.NewEncoder(w).Encode(map[string]any{"exists": false})
		}
	}))
	defer srv.Close()

	c := insight.New(srv.URL)

	rec, err := c.RecordByHash(context.Background(), "known")
	if err != nil {
		t.Fatalf("RecordByHash: %v", err)
	}
	if rec == nil || rec.ID != 9 || rec.Type != classify.Product || rec.RecordCount != 12 {
		t.Errorf("record = %+v", rec)
	}

	rec, err = c.RecordByHash(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("RecordByHash: %v", err)
	}
	if rec != nil {
		t.Errorf("record = %+v, want nil for missing hash", rec)
	}
}

func TestImportFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/insight/api/data-sync/income/import" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "sales.csv" {
			t.Errorf("filename = %s", header.Filename)
		}
		var buf strings.Builder
		if _, err := io.Copy(&buf, file); err != nil {
			t.Fatalf("read file part: %v", err)
		}
		if buf.String() != "amount\n12.50\n" {
			t.Errorf("file content = %q", buf.String())
		}
		if r.FormValue("overwrite") != "true" || r.FormValue("dry_run") != "false" {
			t.Errorf("form fields: overwrite=%s dry_run=%s", r.FormValue("overwrite"), r.FormValue("dry_run"))
		}
		json.NewEncoder(w).Encode(map[string]any{"id": 31, "filename": "income.upload.20260301.csv", "imported_count": 1})
	}))
	defer srv.Close()

	c := insight.New(srv.URL)
	res, err := c.ImportFile(context.Background(), classify.Income, "sales.csv", []byte("amount\n12.50\n"), true, false)
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if res.ID != 31 || res.ImportedCount == nil || *res.ImportedCount != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestImportFile_UnknownType(t *testing.T) {
	c := insight.New("http://unused")
	if _, err := c.ImportFile(context.Background(), classify.DataType("bogus"), "f.csv", nil, false, false); err == nil {
		t.Fatal("want error for unknown data type")
	}
}

func TestListRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("page") != "2" || q.Get("page_size") != "10" || q.Get("type") != "income" {
			t.Errorf("query = %v", q)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"total": 25, "page": 2, "page_size": 10,
			"items": []map[string]any{
				{"id": 11, "type": "income", "filename": "a.csv", "hash": "h", "record_count": 3, "file_size": 90, "uploaded_at": "2026-03-01T12:00:00Z"},
			},
		})
	}))
	defer srv.Close()

	c := insight.New(srv.URL)
	list, err := c.ListRecords(context.Background(), 2, 10, classify.Income)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if list.Total != 25 || len(list.Items) != 1 || list.Items[0].Type != classify.Income {
		t.Errorf("list = %+v", list)
	}
}

func TestDeleteRecord_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"detail": "record not found"})
	}))
	defer srv.Close()

	c := insight.New(srv.URL)
	err := c.DeleteRecord(context.Background(), 404)
	var apiErr *insight.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("err = %v, want *APIError with 404", err)
	}
	if apiErr.Detail != "record not found" {
		t.Errorf("detail = %q", apiErr.Detail)
	}
}
