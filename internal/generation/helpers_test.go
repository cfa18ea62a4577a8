package generation_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"midjourney-adapter/internal/credentials"
	"midjourney-adapter/internal/generation"
	"midjourney-adapter/internal/progress"
)

type step struct {
	result *generation.StatusResult
	err    error
}

func pending() step { return step{result: &generation.StatusResult{RawStatus: "pending"}} }

func finished(url string) step {
	return step{result: &generation.StatusResult{RawStatus: "finished", ImageURL: url}}
}

func failed(reason string) step {
	return step{result: &generation.StatusResult{RawStatus: "failed", FailReason: reason}}
}

// fakeProvider replays steps; the last step repeats.
type fakeProvider struct {
	name      generation.ProviderName
	taskID    string
	submitErr error
	steps     []step

	mu        sync.Mutex
	submitted []generation.SubmitRequest
	creds     []credentials.Credential
	queries   int
}

func (p *fakeProvider) Name() generation.ProviderName { return p.name }

func (p *fakeProvider) Submit(_ context.Context, cred credentials.Credential, req generation.SubmitRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitted = append(p.submitted, req)
	p.creds = append(p.creds, cred)
	if p.submitErr != nil {
		return "", p.submitErr
	}
	return p.taskID, nil
}

func (p *fakeProvider) QueryStatus(_ context.Context, _ credentials.Credential, _ string) (*generation.StatusResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.queries
	if i >= len(p.steps) {
		i = len(p.steps) - 1
	}
	p.queries++
	return p.steps[i].result, p.steps[i].err
}

func (p *fakeProvider) MapStatus(raw string) generation.Status {
	switch raw {
	case "finished":
		return generation.StatusFinished
	case "failed":
		return generation.StatusFailed
	default:
		return generation.StatusPending
	}
}

func (p *fakeProvider) queryCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queries
}

// memStore keeps uploads in memory; keys containing failOn are rejected.
type memStore struct {
	mu     sync.Mutex
	objs   map[string][]byte
	types  map[string]string
	failOn string
}

func newMemStore() *memStore {
	return &memStore{objs: map[string][]byte{}, types: map[string]string{}}
}

func (s *memStore) Put(_ context.Context, key string, data []byte, contentType string) (string, error) {
	if s.failOn != "" && strings.Contains(key, s.failOn) {
		return "", errors.New("bucket unavailable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objs[key] = data
	s.types[key] = contentType
	return "https://cdn.test/" + key, nil
}

func (s *memStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.objs))
	for k := range s.objs {
		out = append(out, k)
	}
	return out
}

func compositePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		for y := 0; y < 16; y++ {
			img.Set(x, y, color.RGBA{uint8(x * 16), uint8(y * 16), 0, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// artifactServer serves a composite at /composite.png and plain images at
// /img/<name>; /missing answers 404.
func artifactServer(t *testing.T) *httptest.Server {
	t.Helper()
	composite := compositePNG(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/composite.png", strings.HasPrefix(r.URL.Path, "/img/"):
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(composite)
		case r.URL.Path == "/garbage.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("not a png"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

type harness struct {
	bus          *progress.MemoryBus
	pub          *progress.Publisher
	store        *memStore
	finisher     *generation.Finisher
	poller       *generation.Poller
	orchestrator *generation.Orchestrator
}

func newHarness(t *testing.T, backends ...generation.Backend) *harness {
	t.Helper()
	bus := progress.NewMemoryBus()
	pub := progress.NewPublisher(bus, zap.NewNop())
	store := newMemStore()
	downloader := generation.NewHTTPDownloader(http.DefaultClient).WithBackoff(1)
	finisher := generation.NewFinisher(downloader, store, pub, nil, "workflow/artifact", zap.NewNop())
	poller := generation.NewPoller(pub, nil, zap.NewNop())
	return &harness{
		bus:          bus,
		pub:          pub,
		store:        store,
		finisher:     finisher,
		poller:       poller,
		orchestrator: generation.NewOrchestrator(backends, poller, finisher, pub, nil, zap.NewNop()),
	}
}

func backend(p *fakeProvider, defaults credentials.Credential, policy generation.PollPolicy) generation.Backend {
	return generation.Backend{
		Provider: p,
		Resolver: credentials.NewResolver(string(p.name), credentials.GoAPIFields, defaults, nil),
		Policy:   policy,
	}
}

// watch subscribes to id and returns a function that waits for the stream
// to end and returns its messages.
func (h *harness) watch(t *testing.T, id string) func() []progress.Message {
	t.Helper()
	sub, err := h.bus.Subscribe(context.Background(), id)
	require.NoError(t, err)
	t.Cleanup(sub.Close)

	return func() []progress.Message {
		var got []progress.Message
		timeout := time.After(5 * time.Second)
		for {
			select {
			case msg, ok := <-sub.C:
				if !ok {
					return got
				}
				got = append(got, msg)
			case <-timeout:
				t.Fatalf("progress stream for %s did not end", id)
				return got
			}
		}
	}
}

func bodies(msgs []progress.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Message
	}
	return out
}

func countLevel(msgs []progress.Message, level progress.Level) int {
	n := 0
	for _, m := range msgs {
		if m.Level == level {
			n++
		}
	}
	return n
}

var fastPolicy = generation.PollPolicy{Timeout: 2 * time.Second, Interval: 5 * time.Millisecond}
