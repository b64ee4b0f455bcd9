package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voice-assistant/server/internal/assistant/model"
)

func newServer(t *testing.T) (*httptest.Server, Endpoints) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/serper/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k1", r.Header.Get("X-API-KEY"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "golang", body["q"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"organic":[{"title":"Go","link":"https://go.dev","snippet":"The Go language"},{"title":"Tour","link":"https://go.dev/tour"}]}`))
	})
	mux.HandleFunc("/news/everything", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k2", r.URL.Query().Get("apiKey"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","articles":[{"title":"Go 1.25","url":"https://n.test","publishedAt":"2025-08-12","source":{"name":"Blog"}}]}`))
	})
	mux.HandleFunc("/weather/weather", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"Paris","weather":[{"description":"clear sky"}],"main":{"temp":21.5,"feels_like":20.9,"humidity":40},"wind":{"speed":3.2}}`))
	})
	mux.HandleFunc("/wiki/page/summary/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/wiki/page/summary/Nope" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title":"Alan Turing","extract":"English mathematician.","type":"standard"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, Endpoints{
		Serper:      srv.URL + "/serper",
		NewsAPI:     srv.URL + "/news",
		OpenWeather: srv.URL + "/weather",
		Wikipedia:   srv.URL + "/wiki",
	}
}

func TestClient(t *testing.T) {
	_, ep := newServer(t)
	c := New(model.SearchConfig{SerperAPIKey: "k1", NewsAPIKey: "k2", OpenWeatherAPIKey: "k3"}, ep)
	ctx := context.Background()

	hits, err := c.Web(ctx, "golang", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "https://go.dev", hits[0].URL)

	news, err := c.News(ctx, "go", 5)
	require.NoError(t, err)
	require.Len(t, news, 1)
	assert.Equal(t, "Blog", news[0].Source)

	w, err := c.Weather(ctx, "Paris")
	require.NoError(t, err)
	assert.Contains(t, w, "Weather in Paris: clear sky, 21.5°C")

	wiki, err := c.Wikipedia(ctx, "Alan Turing")
	require.NoError(t, err)
	assert.Equal(t, "Page: Alan Turing\nSummary: English mathematician.", wiki)

	missing, err := c.Wikipedia(ctx, "Nope")
	require.NoError(t, err)
	assert.Contains(t, missing, "No Wikipedia article found")
}

func TestClient_MissingKeys(t *testing.T) {
	c := New(model.SearchConfig{}, DefaultEndpoints)
	_, err := c.Web(context.Background(), "x", 1)
	assert.ErrorIs(t, err, errNoKey)
}
