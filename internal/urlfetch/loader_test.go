package urlfetch

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pollUntil(t *testing.T, l *Loader, url string) []byte {
	var body []byte
	require.Eventually(t, func() bool {
		b, ok := l.Poll(url)
		body = b
		return ok
	}, 2*time.Second, time.Millisecond)
	return body
}

func TestLoader_PollLifecycle(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Write([]byte("fortune text"))
	}))
	defer srv.Close()

	l := New()
	defer l.Close()

	body, ok := l.Poll(srv.URL)
	assert.False(t, ok)
	assert.Nil(t, body)

	// In flight: polling does not launch a second request.
	_, ok = l.Poll(srv.URL)
	assert.False(t, ok)
	close(release)

	assert.Equal(t, "fortune text", string(pollUntil(t, l, srv.URL)))
	assert.Equal(t, int32(1), hits.Load())

	// The next poll starts over.
	assert.Equal(t, "fortune text", string(pollUntil(t, l, srv.URL)))
	assert.Equal(t, int32(2), hits.Load())
}

func TestLoader_ErrorBecomesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	l := New()
	defer l.Close()
	assert.Contains(t, string(pollUntil(t, l, srv.URL)), "410")
}

func TestLoader_CloseStopsPolling(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	l := New()
	l.Poll(srv.URL)
	l.Close()
	time.Sleep(10 * time.Millisecond)
	_, ok := l.Poll(srv.URL)
	assert.False(t, ok)
}

func TestLoader_DifferentURLStartsOver(t *testing.T) {
	slow := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-slow:
		case <-r.Context().Done():
			return
		}
		w.Write([]byte("from a"))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("from b"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	defer close(slow)

	l := New()
	defer l.Close()

	_, ok := l.Poll(srv.URL + "/a")
	assert.False(t, ok)
	assert.Equal(t, "from b", string(pollUntil(t, l, srv.URL+"/b")))
}

func TestLoader_FinishedBodyOnlyForItsURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("from a")) })
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("from b")) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	l := New()
	defer l.Close()

	l.Poll(srv.URL + "/a")
	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.done
	}, 2*time.Second, time.Millisecond)

	body, ok := l.Poll(srv.URL + "/b")
	assert.False(t, ok)
	assert.Nil(t, body)
	assert.Equal(t, "from b", string(pollUntil(t, l, srv.URL+"/b")))
}
