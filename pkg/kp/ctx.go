package kp

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sing3demons/jwks-server/internal/config"
	"github.com/sing3demons/jwks-server/pkg/logAction"
	"github.com/sing3demons/jwks-server/pkg/logger"
)

const MaxBodySize = 10 << 20 // 10 MB

type ContentType string

const (
	ContentTypeJSON      ContentType = "application/json"
	ContentTypeXML       ContentType = "application/xml"
	ContentTypeForm      ContentType = "application/x-www-form-urlencoded"
	ContentTypePlainText ContentType = "text/plain"
)

type CtxKey string

const (
	SessionID     CtxKey = "x-session-id"
	TransactionID CtxKey = "x-transaction-id"
)

var ErrEmptyBody = errors.New("empty body")

// always hidden from inbound logs
var defaultInboundMasking = []logger.MaskingRule{
	{Field: "headers.Authorization", Type: logger.MaskingTypeFull},
	{Field: "body.password", Type: logger.MaskingTypeFull},
}

type Ctx struct {
	Res   http.ResponseWriter
	Req   *http.Request
	Cfg   *config.AppConfig
	Log   *logger.Logger
	start time.Time
}

func newMuxContext(w http.ResponseWriter, r *http.Request, cfg *config.AppConfig) *Ctx {
	csLog := logger.NewLoggerWithConfig(cfg.ServiceName, cfg.Version, &cfg.LoggerConfig)

	myCtx := &Ctx{
		Res:   w,
		Req:   r.WithContext(logger.NewContext(r.Context(), csLog)),
		Cfg:   cfg,
		Log:   csLog,
		start: time.Now(),
	}
	myCtx.TransactionID()
	return myCtx
}

// TransactionID resolves the id from context, then header x-transaction-id, then query tid,
// and generates one when none is supplied.
func (c *Ctx) TransactionID() string {
	return c.resolveID(TransactionID, "tid", c.Log.SetTransactionID)
}

// SessionID resolves the id from context, then header x-session-id, then query sid.
func (c *Ctx) SessionID() string {
	return c.resolveID(SessionID, "sid", c.Log.SetSessionID)
}

func (c *Ctx) resolveID(key CtxKey, queryName string, set func(string)) string {
	if v, ok := c.Req.Context().Value(key).(string); ok && v != "" {
		return v
	}

	headerID := strings.TrimSpace(c.Req.Header.Get(string(key)))
	queryID := strings.TrimSpace(c.Req.URL.Query().Get(queryName))

	var id string
	switch {
	case headerID != "" && queryID != "" && headerID != queryID:
		id = fmt.Sprintf("%s:%s", headerID, queryID)
	case headerID != "":
		id = headerID
	case queryID != "":
		id = queryID
	default:
		id = uuid.NewString()
	}

	c.Req = c.Req.WithContext(context.WithValue(c.Req.Context(), key, id))
	if c.Log != nil {
		set(id)
	}
	return id
}

func (c *Ctx) Context() context.Context {
	if c.Req == nil {
		return context.Background()
	}
	return c.Req.Context()
}

func (c *Ctx) Params(name string) string {
	return c.Req.PathValue(name)
}

func (c *Ctx) Query(name string) string {
	return c.Req.URL.Query().Get(name)
}

// QueryValue reports whether the query parameter is present, even with an empty value.
func (c *Ctx) QueryValue(name string) (string, bool) {
	values, ok := c.Req.URL.Query()[name]
	if !ok {
		return "", false
	}
	if len(values) == 0 {
		return "", true
	}
	return values[0], true
}

func (c *Ctx) BasicAuth() (username, password string, ok bool) {
	return c.Req.BasicAuth()
}

func (c *Ctx) SetHeader(key, value string) {
	c.Res.Header().Set(key, value)
}

func (c *Ctx) Bind(v any) error {
	if c.Req.Method == http.MethodGet || c.Req.Method == http.MethodHead || c.Req.Body == nil {
		return nil
	}

	contentType := c.Req.Header.Get("Content-Type")
	if contentType == "" {
		contentType = string(ContentTypeJSON)
	}
	baseContentType := strings.TrimSpace(strings.Split(contentType, ";")[0])

	limitedReader := io.LimitReader(c.Req.Body, MaxBodySize)
	bodyBytes, err := io.ReadAll(limitedReader)
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}
	if int64(len(bodyBytes)) >= MaxBodySize {
		return fmt.Errorf("request body too large (max %d bytes)", MaxBodySize)
	}

	// restore for later readers
	c.Req.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	switch ContentType(baseContentType) {
	case ContentTypeJSON:
		return parseJSON(bodyBytes, v)
	case ContentTypeXML:
		return parseXML(bodyBytes, v)
	case ContentTypeForm:
		return parseFormURLEncoded(bodyBytes, v)
	case ContentTypePlainText:
		return parsePlainText(bodyBytes, v)
	default:
		return fmt.Errorf("unsupported content type: %s", contentType)
	}
}

// L starts the request log for a use case and writes the INBOUND line.
func (c *Ctx) L(useCase string, masking ...logger.MaskingRule) *logger.Logger {
	c.Log.SetUseCase(useCase)
	c.SessionID()

	body := make(map[string]any)
	_ = c.Bind(&body)

	rules := append(append([]logger.MaskingRule{}, defaultInboundMasking...), masking...)
	c.Log.Info(logAction.INBOUND(fmt.Sprintf("client %s %s server", c.Req.Method, c.Req.URL.Path)), map[string]any{
		"method":  c.Req.Method,
		"url":     c.Req.URL.String(),
		"headers": c.Headers(),
		"query":   c.QueryString(),
		"body":    body,
		"remote":  c.Req.RemoteAddr,
	}, rules...)
	return c.Log
}

func (c *Ctx) Headers() map[string]string {
	headers := make(map[string]string)
	for key, values := range c.Req.Header {
		headers[key] = strings.Join(values, ", ")
	}
	return headers
}

func (c *Ctx) QueryString() map[string]string {
	queries := make(map[string]string)
	for key, values := range c.Req.URL.Query() {
		if len(values) > 0 {
			queries[key] = values[0]
		} else {
			queries[key] = ""
		}
	}
	return queries
}

func (c *Ctx) JSON(code int, v any, masking ...logger.MaskingRule) {
	c.writeJSON(code, v, masking...)
	c.Log.Flush(code, statusMessage(code))
}

func (c *Ctx) JSONError(code int, v any, err error) {
	c.writeJSON(code, v)
	if err != nil {
		c.Log.AddMetadata("ErrorCode", err.Error())
	}
	c.Log.FlushError(code, statusMessage(code))
}

func (c *Ctx) writeJSON(code int, v any, masking ...logger.MaskingRule) {
	c.Res.Header().Set("Content-Type", "application/json")
	c.Res.Header().Set(string(SessionID), c.SessionID())
	c.Res.WriteHeader(code)
	json.NewEncoder(c.Res).Encode(v)

	c.Log.Info(logAction.OUTBOUND("server response to client"), map[string]any{
		"status":  code,
		"headers": c.Res.Header(),
		"body":    v,
	}, masking...)
}

func (c *Ctx) recoverPanic() {
	rec := recover()
	if rec == nil {
		return
	}

	var err error
	switch v := rec.(type) {
	case error:
		err = v
	default:
		err = fmt.Errorf("%v", v)
	}

	c.Log.Error(logAction.EXCEPTION("panic recovered"), map[string]any{
		"method":   c.Req.Method,
		"path":     c.Req.URL.Path,
		"panic":    err.Error(),
		"duration": time.Since(c.start).Milliseconds(),
		"stack":    string(debug.Stack()),
	})
	c.JSONError(http.StatusInternalServerError, map[string]string{"error": "internal_server_error"}, err)
}

func statusMessage(code int) string {
	msg := http.StatusText(code)
	if msg == "" {
		return "unknown_status"
	}
	return strings.ToLower(strings.ReplaceAll(msg, " ", "_"))
}

func parseJSON(bodyBytes []byte, v any) error {
	if len(bytes.TrimSpace(bodyBytes)) == 0 {
		return ErrEmptyBody
	}
	if err := json.Unmarshal(bodyBytes, v); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return nil
}

func parseXML(bodyBytes []byte, v any) error {
	if len(bodyBytes) == 0 {
		return ErrEmptyBody
	}
	if err := xml.Unmarshal(bodyBytes, v); err != nil {
		return fmt.Errorf("failed to unmarshal XML: %w", err)
	}
	return nil
}

func parseFormURLEncoded(bodyBytes []byte, v any) error {
	if len(bodyBytes) == 0 {
		return ErrEmptyBody
	}

	values, err := url.ParseQuery(string(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to parse form data: %w", err)
	}

	flat := make(map[string]any)
	for key, vals := range values {
		if len(vals) == 1 {
			flat[key] = vals[0]
		} else {
			flat[key] = vals
		}
	}

	switch target := v.(type) {
	case *map[string]any:
		*target = flat
	case *map[string]string:
		result := make(map[string]string)
		for key, vals := range values {
			if len(vals) > 0 {
				result[key] = vals[0]
			}
		}
		*target = result
	default:
		jsonData, err := json.Marshal(flat)
		if err != nil {
			return fmt.Errorf("failed to convert form data: %w", err)
		}
		if err := json.Unmarshal(jsonData, v); err != nil {
			return fmt.Errorf("failed to unmarshal form data to struct: %w", err)
		}
	}
	return nil
}

func parsePlainText(bodyBytes []byte, v any) error {
	switch target := v.(type) {
	case *string:
		*target = string(bodyBytes)
	case *[]byte:
		*target = bodyBytes
	default:
		return fmt.Errorf("plain text can only be parsed into *string or *[]byte")
	}
	return nil
}
