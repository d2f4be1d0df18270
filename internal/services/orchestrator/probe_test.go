package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
)

func newTestProbe() *LivenessProbe {
	return NewLivenessProbe(5*time.Second, 100, arbor.NewLogger())
}

func TestLivenessProbe_NotFoundIsGone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	dead, status := newTestProbe().Gone(context.Background(), server.URL+"/missing")
	assert.True(t, dead)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestLivenessProbe_GoneIsGone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	dead, status := newTestProbe().Gone(context.Background(), server.URL+"/removed")
	assert.True(t, dead)
	assert.Equal(t, http.StatusGone, status)
}

func TestLivenessProbe_AliveAndErrorsAreNotGone(t *testing.T) {
	statuses := []int{
		http.StatusOK,
		http.StatusForbidden,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusServiceUnavailable,
	}
	for _, status := range statuses {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		assert.False(t, newTestProbe().IsGone(context.Background(), server.URL), "status %d must not be treated as gone", status)
		server.Close()
	}
}

func TestLivenessProbe_FallsBackToRangedGET(t *testing.T) {
	var methods []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		assert.Equal(t, "bytes=0-0", r.Header.Get("Range"))
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	assert.True(t, newTestProbe().IsGone(context.Background(), server.URL+"/article"))
	assert.Equal(t, []string{http.MethodHead, http.MethodGet}, methods)
}

func TestLivenessProbe_UnreachableHostIsInconclusive(t *testing.T) {
	probe := NewLivenessProbe(500*time.Millisecond, 100, arbor.NewLogger())
	assert.False(t, probe.IsGone(context.Background(), "http://127.0.0.1:1/dead-port"))
}

func TestLivenessProbe_MalformedURL(t *testing.T) {
	assert.False(t, newTestProbe().IsGone(context.Background(), "::bad"))
}
