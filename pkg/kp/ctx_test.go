package kp

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/sing3demons/jwks-server/internal/config"
	"github.com/sing3demons/jwks-server/pkg/logger"
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		ServiceName: "test",
		Version:     "1.0",
		Port:        "0",
		LoggerConfig: config.LoggerConfig{
			Detail:  config.LogOutputConfig{Console: false},
			Summary: config.LogOutputConfig{Console: false},
		},
	}
}

func newTestCtx(req *http.Request) *Ctx {
	cfg := testConfig()
	return &Ctx{
		Res: httptest.NewRecorder(),
		Req: req,
		Cfg: cfg,
		Log: logger.NewLoggerWithConfig(cfg.ServiceName, cfg.Version, &cfg.LoggerConfig),
	}
}

func TestCtx_Body_JSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    map[string]any
		wantErr bool
	}{
		{
			name: "Valid JSON",
			body: `{"username":"alice","age":25}`,
			want: map[string]any{"username": "alice", "age": float64(25)},
		},
		{
			name:    "Invalid JSON",
			body:    `{invalid}`,
			wantErr: true,
		},
		{
			name:    "Empty body",
			body:    ``,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			ctx := newTestCtx(req)

			var result map[string]any
			err := ctx.Bind(&result)

			if (err != nil) != tt.wantErr {
				t.Errorf("Bind() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && result["username"] != tt.want["username"] {
				t.Errorf("got %v, want %v", result, tt.want)
			}
		})
	}
}

func TestCtx_Bind_RestoresBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/auth", strings.NewReader(`{"username":"alice"}`))
	ctx := newTestCtx(req)

	var first, second map[string]any
	if err := ctx.Bind(&first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ctx.Bind(&second); err != nil {
		t.Fatalf("unexpected error on re-read: %v", err)
	}
	if second["username"] != "alice" {
		t.Errorf("got %v, want username=alice", second)
	}
}

func TestCtx_Body_XML(t *testing.T) {
	type Person struct {
		XMLName xml.Name `xml:"person"`
		Name    string   `xml:"name"`
		Age     int      `xml:"age"`
	}

	xmlBody := `<?xml version="1.0"?><person><name>John</name><age>30</age></person>`
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(xmlBody))
	req.Header.Set("Content-Type", "application/xml")
	ctx := newTestCtx(req)

	var result Person
	if err := ctx.Bind(&result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Name != "John" || result.Age != 30 {
		t.Errorf("got %+v, want Name=John Age=30", result)
	}
}

func TestCtx_Body_Form(t *testing.T) {
	formData := url.Values{}
	formData.Set("username", "john")
	formData.Set("password", "secret")

	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(formData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	ctx := newTestCtx(req)

	var result map[string]string
	if err := ctx.Bind(&result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["username"] != "john" || result["password"] != "secret" {
		t.Errorf("got %v, want username=john password=secret", result)
	}
}

func TestCtx_Body_PlainText(t *testing.T) {
	textBody := "Hello, World!"
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(textBody))
	req.Header.Set("Content-Type", "text/plain")
	ctx := newTestCtx(req)

	var result string
	if err := ctx.Bind(&result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != textBody {
		t.Errorf("got %q, want %q", result, textBody)
	}
}

func TestCtx_Body_UnsupportedContentType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("x"))
	req.Header.Set("Content-Type", "application/octet-stream")
	ctx := newTestCtx(req)

	var result map[string]any
	if err := ctx.Bind(&result); err == nil {
		t.Error("expected error for unsupported content type")
	}
}

func TestCtx_SessionID_Idempotent(t *testing.T) {
	ctx := newTestCtx(httptest.NewRequest(http.MethodGet, "/test", nil))

	sid1 := ctx.SessionID()
	sid2 := ctx.SessionID()

	if sid1 != sid2 {
		t.Errorf("SessionID() not idempotent: %q != %q", sid1, sid2)
	}
	if ctx.Log.SessionID() != sid1 {
		t.Errorf("logger session id = %q, want %q", ctx.Log.SessionID(), sid1)
	}
}

func TestCtx_TransactionID_Priority(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{name: "header only", header: "h-1", want: "h-1"},
		{name: "query only", query: "q-1", want: "q-1"},
		{name: "both equal", header: "same", query: "same", want: "same"},
		{name: "both differ", header: "h-1", query: "q-1", want: "h-1:q-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/test"
			if tt.query != "" {
				target += "?tid=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("x-transaction-id", tt.header)
			}
			ctx := newTestCtx(req)

			if got := ctx.TransactionID(); got != tt.want {
				t.Errorf("TransactionID() = %q, want %q", got, tt.want)
			}
			if got := ctx.TransactionID(); got != tt.want {
				t.Errorf("TransactionID() second call = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCtx_QueryValue(t *testing.T) {
	ctx := newTestCtx(httptest.NewRequest(http.MethodPost, "/auth?expired&x=1", nil))

	if v, ok := ctx.QueryValue("expired"); !ok || v != "" {
		t.Errorf("QueryValue(expired) = %q, %v", v, ok)
	}
	if v, ok := ctx.QueryValue("x"); !ok || v != "1" {
		t.Errorf("QueryValue(x) = %q, %v", v, ok)
	}
	if _, ok := ctx.QueryValue("missing"); ok {
		t.Error("QueryValue(missing) should be absent")
	}
}

func TestMicroservice_RoutesAndJSON(t *testing.T) {
	app := NewMicroservice(testConfig())
	app.GET("/ping", func(ctx *Ctx) {
		ctx.L("ping")
		ctx.SetHeader("Cache-Control", "no-store")
		ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	app.POST("/fail", func(ctx *Ctx) {
		ctx.Fail(NewError(http.StatusServiceUnavailable, "unavailable", errors.New("no key")))
	})
	app.POST("/boom", func(ctx *Ctx) {
		ctx.Fail(errors.New("storage down"))
	})

	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ping")
	if err != nil {
		t.Fatalf("GET /ping: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Content-Type") != "application/json" || resp.Header.Get("Cache-Control") != "no-store" {
		t.Errorf("unexpected headers: %v", resp.Header)
	}
	if resp.Header.Get("x-session-id") == "" {
		t.Error("expected x-session-id response header")
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}

	tests := []struct {
		path     string
		wantCode int
		wantErr  string
	}{
		{path: "/fail", wantCode: http.StatusServiceUnavailable, wantErr: "unavailable"},
		{path: "/boom", wantCode: http.StatusInternalServerError, wantErr: "server_error"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Post(srv.URL+tt.path, "application/json", nil)
			if err != nil {
				t.Fatalf("POST %s: %v", tt.path, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			var body map[string]string
			json.NewDecoder(resp.Body).Decode(&body)
			if body["error"] != tt.wantErr {
				t.Errorf("error = %q, want %q", body["error"], tt.wantErr)
			}
		})
	}

	resp, err = http.Post(srv.URL+"/ping", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /ping: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /ping status = %d, want 405", resp.StatusCode)
	}
}

func TestMicroservice_RecoversHandlerPanic(t *testing.T) {
	app := NewMicroservice(testConfig())
	app.GET("/panic", func(ctx *Ctx) {
		panic("kaboom")
	})

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "internal_server_error") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestRecoverMiddleware(t *testing.T) {
	app := NewMicroservice(testConfig())
	app.Use(RecoverMiddleware)
	app.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic(errors.New("middleware failure"))
		})
	})
	app.GET("/ok", func(ctx *Ctx) { ctx.JSON(http.StatusOK, "ok") })

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	b, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(b), "internal_server_error") {
		t.Errorf("body = %s", b)
	}
}
