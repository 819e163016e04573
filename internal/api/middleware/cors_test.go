package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func corsRouter(config CORSConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS(config))
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return r
}

func doRequest(r *gin.Engine, method, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/ping", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIsOriginAllowed(t *testing.T) {
	testCases := []struct {
		name   string
		origin string
		config CORSConfig
		want   bool
	}{
		{
			name:   "allow all",
			origin: "https://anywhere.example",
			config: CORSConfig{AllowAllOrigins: true},
			want:   true,
		},
		{
			name:   "listed origin",
			origin: "https://app.example.com",
			config: CORSConfig{AllowedOrigins: []string{"https://app.example.com"}},
			want:   true,
		},
		{
			name:   "case insensitive match",
			origin: "https://App.Example.COM",
			config: CORSConfig{AllowedOrigins: []string{"https://app.example.com"}},
			want:   true,
		},
		{
			name:   "wildcard entry",
			origin: "https://anywhere.example",
			config: CORSConfig{AllowedOrigins: []string{"*"}},
			want:   true,
		},
		{
			name:   "unlisted origin",
			origin: "https://evil.example",
			config: CORSConfig{AllowedOrigins: []string{"https://app.example.com"}},
			want:   false,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsOriginAllowed(tc.origin, tc.config); got != tc.want {
				t.Errorf("IsOriginAllowed(%q) = %v, want %v", tc.origin, got, tc.want)
			}
		})
	}
}

func TestCORSAllowAll(t *testing.T) {
	w := doRequest(corsRouter(CORSConfig{AllowAllOrigins: true}), http.MethodGet, "https://anywhere.example")

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "false" {
		t.Errorf("Allow-Credentials = %q, want false with wildcard origin", got)
	}
}

func TestCORSAllowedOriginEchoed(t *testing.T) {
	config := CORSConfig{AllowedOrigins: []string{"https://app.example.com"}}
	w := doRequest(corsRouter(config), http.MethodGet, "https://app.example.com")

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q, want origin echoed", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q, want true", got)
	}
}

func TestCORSUnlistedOriginGetsNoHeaders(t *testing.T) {
	config := CORSConfig{AllowedOrigins: []string{"https://app.example.com"}}
	w := doRequest(corsRouter(config), http.MethodGet, "https://evil.example")

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want no CORS headers for unlisted origin", got)
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want request still served", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	w := doRequest(corsRouter(CORSConfig{AllowAllOrigins: true}), http.MethodOptions, "https://anywhere.example")

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got == "" {
		t.Error("preflight missing Allow-Methods header")
	}
}
