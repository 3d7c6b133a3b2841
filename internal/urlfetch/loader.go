// Package urlfetch loads URLs in the background for renderers that poll
// once per frame.
package urlfetch

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

// MaxBody caps how much of a response is kept.
const MaxBody = 16 << 20

// Loader fetches one URL at a time. Poll launches a fetch, then returns
// nothing until it completes; the completed body is handed out once.
type Loader struct {
	Client *http.Client

	mu      sync.Mutex
	gen     int // identifies the current fetch
	loading string
	body    []byte
	done    bool
	cancel  context.CancelFunc
	closed  bool
}

func New() *Loader {
	return &Loader{Client: &http.Client{Timeout: 30 * time.Second}}
}

// Poll returns the body of url once its fetch has finished. While the
// fetch is in flight it returns false. After a body has been returned, the
// next Poll starts over. A failed fetch yields the error text as its body.
// Asking for a different url abandons the current fetch.
func (l *Loader) Poll(url string) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, false
	}
	if l.loading == url {
		if !l.done {
			return nil, false
		}
		body := l.body
		l.reset()
		return body, true
	}
	if l.loading != "" {
		log.Printf("urlfetch: abandoning %s", l.loading)
	}
	l.reset()

	ctx, cancel := context.WithCancel(context.Background())
	l.gen++
	l.loading = url
	l.cancel = cancel
	log.Printf("urlfetch: launching %s", url)
	go l.fetch(ctx, url, l.gen)
	return nil, false
}

// reset cancels the current fetch, if any, and forgets its result.
func (l *Loader) reset() {
	if l.cancel != nil {
		l.cancel()
	}
	l.loading, l.body, l.done, l.cancel = "", nil, false, nil
}

func (l *Loader) fetch(ctx context.Context, url string, gen int) {
	body, err := l.get(ctx, url)
	if err != nil {
		log.Printf("urlfetch: %s: %v", url, err)
		body = []byte(err.Error())
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.gen != gen {
		return
	}
	l.body = body
	l.done = true
}

func (l *Loader) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, MaxBody))
}

// Close cancels any fetch in flight. Poll returns nothing afterwards.
func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.cancel != nil {
		l.cancel()
	}
}
