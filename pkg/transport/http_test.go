package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/blackcoderx/hive/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Do(t *testing.T) {
	var gotMethod, gotQuery, gotHeader, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotQuery = r.URL.RawQuery
		gotHeader = r.Header.Get("X-Trace")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":7}`))
	}))
	defer srv.Close()

	resp, err := NewClient().Do(context.Background(), Request{
		Method:    "post",
		URL:       srv.URL + "/items",
		Params:    []Pair{{Key: "page", Value: "2"}},
		Headers:   []Pair{{Key: "X-Trace", Value: "t1"}},
		Body:      []byte(`{"name":"a"}`),
		SSLVerify: true,
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "page=2", gotQuery)
	assert.Equal(t, "t1", gotHeader)
	assert.Equal(t, `{"name":"a"}`, gotBody)

	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])
	assert.Equal(t, `{"id":7}`, resp.BodyText)
	assert.Equal(t, map[string]any{"id": float64(7)}, resp.BodyJSON)
	assert.GreaterOrEqual(t, resp.ElapsedMs, 0.0)
}

func TestClient_Do_NonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain"))
	}))
	defer srv.Close()

	resp, err := NewClient().Do(context.Background(), Request{URL: srv.URL, SSLVerify: true})
	require.NoError(t, err)
	assert.Equal(t, "plain", resp.BodyText)
	assert.Nil(t, resp.BodyJSON)
}

func TestClient_Do_SSLVerifyToggle(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := NewClient()

	_, err := client.Do(context.Background(), Request{URL: srv.URL, SSLVerify: true})
	var fault *Fault
	require.ErrorAs(t, err, &fault)

	resp, err := client.Do(context.Background(), Request{URL: srv.URL, SSLVerify: false})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.BodyText)
}

func TestClient_Do_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := NewClient().Do(context.Background(), Request{Method: "GET", URL: addr})
	var fault *Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "GET", fault.Method)
	assert.Contains(t, err.Error(), addr)
}

func TestClient_Do_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(WithTimeout(50*time.Millisecond)).Do(context.Background(), Request{URL: srv.URL})
	var fault *Fault
	require.ErrorAs(t, err, &fault)
}

func TestFaultResponse(t *testing.T) {
	resp := FaultResponse(errors.New("dial tcp: refused"))
	assert.Equal(t, 0, resp.Status)
	assert.Equal(t, "dial tcp: refused", resp.BodyText)
	assert.Nil(t, resp.BodyJSON)
	assert.NotNil(t, resp.Headers)
}

func TestFromNode(t *testing.T) {
	vars := map[string]string{"host": "api.test", "token": "abc", "k": "name"}
	resolve := func(s string) string {
		for k, v := range vars {
			s = strings.ReplaceAll(s, "{{"+k+"}}", v)
		}
		return s
	}

	t.Run("raw body defaults content type", func(t *testing.T) {
		req := FromNode(&storage.Node{
			Method: "post",
			URL:    "https://{{host}}/v1",
			Params: []storage.KeyValue{
				{Key: "q", Value: "{{token}}", Enabled: true},
				{Key: "skip", Value: "x", Enabled: false},
			},
			Headers: []storage.KeyValue{{Key: "Authorization", Value: "Bearer {{token}}", Enabled: true}},
			Body:    storage.Body{Mode: storage.BodyRaw, Raw: `{"t":"{{token}}"}`},
		}, resolve, true)

		assert.Equal(t, "POST", req.Method)
		assert.Equal(t, "https://api.test/v1", req.URL)
		assert.Equal(t, []Pair{{Key: "q", Value: "abc"}}, req.Params)
		assert.Equal(t, []Pair{
			{Key: "Authorization", Value: "Bearer abc"},
			{Key: "Content-Type", Value: "application/json"},
		}, req.Headers)
		assert.Equal(t, `{"t":"abc"}`, string(req.Body))
		assert.True(t, req.SSLVerify)
	})

	t.Run("explicit content type is kept", func(t *testing.T) {
		req := FromNode(&storage.Node{
			Method:  "PUT",
			Headers: []storage.KeyValue{{Key: "content-type", Value: "text/plain", Enabled: true}},
			Body:    storage.Body{Mode: storage.BodyRaw, Raw: "hi"},
		}, resolve, false)

		assert.Equal(t, []Pair{{Key: "content-type", Value: "text/plain"}}, req.Headers)
	})

	t.Run("urlencoded body", func(t *testing.T) {
		req := FromNode(&storage.Node{
			Method: "POST",
			Body: storage.Body{Mode: storage.BodyURLEncoded, URLEncoded: []storage.KeyValue{
				{Key: "{{k}}", Value: "a b", Enabled: true},
				{Key: "off", Value: "1", Enabled: false},
				{Key: "t", Value: "{{token}}", Enabled: true},
			}},
		}, resolve, true)

		assert.Equal(t, "name=a+b&t=abc", string(req.Body))
		assert.Equal(t, []Pair{{Key: "Content-Type", Value: "application/x-www-form-urlencoded"}}, req.Headers)
	})

	t.Run("none mode sends no body", func(t *testing.T) {
		req := FromNode(&storage.Node{Method: "GET", Body: storage.Body{Mode: storage.BodyNone, Raw: "ignored"}}, resolve, true)
		assert.Empty(t, req.Body)
		assert.Empty(t, req.Headers)
	})
}

func TestResponse_Format(t *testing.T) {
	out := (&Response{
		Status:    200,
		Headers:   map[string]string{"B": "2", "A": "1"},
		BodyText:  `{"ok":true}`,
		ElapsedMs: 12,
	}).Format()

	assert.Contains(t, out, "Status: 200 OK (12ms)")
	assert.Less(t, strings.Index(out, "A: 1"), strings.Index(out, "B: 2"))
	assert.Contains(t, out, "\"ok\": true")
}
