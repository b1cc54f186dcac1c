package arc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
)

// testHTTPLocator points the https locator at a plain-HTTP test server.
func testHTTPLocator(opts Options, srv *httptest.Server) *HTTPLocator {
	return &HTTPLocator{opts: opts, client: srv.Client(), scheme: "http"}
}

// arcURIFor converts a test server URL into the arc URI reaching path on it.
func arcURIFor(srv *httptest.Server, path string) URI {
	host := strings.TrimPrefix(srv.URL, "http://")
	u, _ := ParseURI("arc://https/" + host + path)
	return u
}

func TestHTTPDownloadAvailable(t *testing.T) {
	dir := t.TempDir()
	arcPath := seedArc(t, dir, "served.arc")
	payload, err := os.ReadFile(arcPath)
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	loc := testHTTPLocator(Options{}, srv)
	res := loc.Open(context.Background(), arcURIFor(srv, "/served.arc"))
	if res.Status != Available {
		t.Fatalf("status = %v (%s), want Available", res.Status, res.Message)
	}
	defer res.Handle.Close()
	if res.Handle.DB == nil {
		t.Fatal("no database on handle")
	}
}

func TestHTTPOversizeRejectedByContentLength(t *testing.T) {
	bodyServed := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Declare 2 GiB without sending it: the locator must reject on the
		// header alone.
		w.Header().Set("Content-Length", strconv.FormatInt(2147483648, 10))
		w.WriteHeader(http.StatusOK)
		bodyServed = true
	}))
	defer srv.Close()

	loc := testHTTPLocator(Options{MaxFileSizeBytes: 100 * 1024 * 1024}, srv)
	res := loc.Open(context.Background(), arcURIFor(srv, "/huge.arc"))
	if res.Status != Untrusted {
		t.Fatalf("status = %v, want Untrusted", res.Status)
	}
	_ = bodyServed
}

func TestHTTPOversizeRejectedByRunningCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No Content-Length (chunked): the streaming cap must catch it.
		w.Header().Set("Transfer-Encoding", "chunked")
		chunk := make([]byte, 64*1024)
		for i := 0; i < 40; i++ {
			if _, err := w.Write(chunk); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	loc := testHTTPLocator(Options{MaxFileSizeBytes: 1024 * 1024}, srv)
	res := loc.Open(context.Background(), arcURIFor(srv, "/chunky.arc"))
	if res.Status != Untrusted {
		t.Fatalf("status = %v, want Untrusted", res.Status)
	}
}

func TestHTTPNon2xxUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	loc := testHTTPLocator(Options{}, srv)
	res := loc.Open(context.Background(), arcURIFor(srv, "/missing.arc"))
	if res.Status != Unreachable {
		t.Fatalf("status = %v, want Unreachable", res.Status)
	}
}

func TestHTTPBadMagicUntrusted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>this is not a database</html>"))
	}))
	defer srv.Close()

	loc := testHTTPLocator(Options{}, srv)
	res := loc.Open(context.Background(), arcURIFor(srv, "/page.arc"))
	if res.Status != Untrusted {
		t.Fatalf("status = %v, want Untrusted", res.Status)
	}
}
