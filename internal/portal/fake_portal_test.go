package portal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakePortal emulates both the OAuth host and the portal host on one server
type fakePortal struct {
	t      *testing.T
	server *httptest.Server

	mu           sync.Mutex
	hits         map[string]int
	forms        []url.Values
	noRedirect   bool
	redirectQS   string
	authStatuses []int
	authBody     string
	logoutStatus int
	listing      string
	details      map[string]string
}

func newFakePortal(t *testing.T) *fakePortal {
	t.Helper()

	f := &fakePortal{
		t:            t,
		hits:         make(map[string]int),
		redirectQS:   "oauth_token=tok-123&oauth_consumer_key=jsos-key&oauth_locale=pl",
		authBody:     "<html><body>Witaj</body></html>",
		logoutStatus: http.StatusOK,
		details:      make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(loginPath, func(w http.ResponseWriter, r *http.Request) {
		f.hit("login")
		if f.noRedirect {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("<html>no redirect</html>"))
			return
		}
		http.Redirect(w, r, authPath+"?"+f.redirectQS, http.StatusFound)
	})
	mux.HandleFunc(authPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(`<html><form id="authenticateForm"></form></html>`))
			return
		}

		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse auth form: %v", err)
		}

		f.mu.Lock()
		f.hits["auth"]++
		attempt := f.hits["auth"]
		f.forms = append(f.forms, r.PostForm)
		status := http.StatusOK
		if len(f.authStatuses) > 0 {
			idx := attempt - 1
			if idx >= len(f.authStatuses) {
				idx = len(f.authStatuses) - 1
			}
			status = f.authStatuses[idx]
		}
		body := f.authBody
		f.mu.Unlock()

		w.WriteHeader(status)
		w.Write([]byte(body))
	})
	mux.HandleFunc(logoutPath, func(w http.ResponseWriter, r *http.Request) {
		f.hit("logout")
		w.WriteHeader(f.logoutStatus)
	})
	mux.HandleFunc(messagesPath, func(w http.ResponseWriter, r *http.Request) {
		f.hit("listing")
		w.Write([]byte(f.listing))
	})
	mux.HandleFunc(messagesPath+"/", func(w http.ResponseWriter, r *http.Request) {
		f.hit("detail")
		body, ok := f.details[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakePortal) hit(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[name]++
}

func (f *fakePortal) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[name]
}

// sleepRecorder replaces the retry wait and remembers requested delays
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func (f *fakePortal) config(sleeper *sleepRecorder) Config {
	return Config{
		AuthURL:   f.server.URL,
		BaseURL:   f.server.URL,
		UserAgent: "test-agent",
		Timeout:   5 * time.Second,
		Sleeper:   sleeper.sleep,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type listingRow struct {
	unread  bool
	id      int
	sender  string
	subject string
	date    string
}

// listingPage renders a mailbox table with a header row
func listingPage(rows ...listingRow) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="content"><table class="table table-mailbox">`)
	b.WriteString(`<tr><th></th><th>Od</th><th>Temat</th><th>Data</th></tr>`)
	for _, r := range rows {
		class := "read"
		if r.unread {
			class = "unread"
		}
		fmt.Fprintf(&b, `<tr class="%s" data-url="%s/%d"><td><input type="checkbox"/></td><td> %s </td><td>%s</td><td>%s</td></tr>`,
			class, messagesPath, r.id, r.sender, r.subject, r.date)
	}
	b.WriteString(`</table></div></body></html>`)
	return b.String()
}

// detailPage renders a message page whose body holds the given text
func detailPage(text string) string {
	return `<html><body><div id="content">
<div class="panel">
	<div class="header">Szczegóły wiadomości</div>
	<div class="message-body">` + text + `</div>
</div>
</div></body></html>`
}

func (f *fakePortal) addMessages(rows ...listingRow) {
	f.listing = listingPage(rows...)
	for _, r := range rows {
		f.details[fmt.Sprintf("%s/%d", messagesPath, r.id)] = detailPage("Message content<p>Body of " + r.subject + "</p>")
	}
}
