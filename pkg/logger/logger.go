package logger

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sing3demons/jwks-server/internal/config"
	"github.com/sing3demons/jwks-server/pkg/logAction"
)

type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

type LogType string

const (
	TypeDetail  LogType = "detail"
	TypeSummary LogType = "summary"
)

type DetailLog struct {
	Timestamp         string         `json:"timestamp"`
	Level             LogLevel       `json:"level"`
	Type              LogType        `json:"type"`
	Service           string         `json:"service"`
	Version           string         `json:"version"`
	TransactionID     string         `json:"transactionId,omitempty"`
	SessionID         string         `json:"sessionId,omitempty"`
	UseCase           string         `json:"useCase,omitempty"`
	Action            string         `json:"action,omitempty"`
	ActionDescription string         `json:"actionDescription,omitempty"`
	SubAction         string         `json:"subAction,omitempty"`
	Dependency        string         `json:"dependency,omitempty"`
	ResponseTime      int64          `json:"responseTime,omitempty"`
	Message           string         `json:"message,omitempty"`
	Duration          int64          `json:"duration,omitempty"`
	StatusCode        int            `json:"statusCode,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// DependencyMetadata describes the downstream system a detail line talks to.
type DependencyMetadata struct {
	Dependency   string
	ResponseTime int64
}

type Logger struct {
	mu            sync.Mutex
	service       string
	version       string
	config        *config.LoggerConfig
	out           io.Writer
	transactionID string
	sessionID     string
	useCase       string
	dependency    *DependencyMetadata
	startTime     time.Time
	metadata      map[string]any
}

func NewLogger(service, version string) *Logger {
	return NewLoggerWithConfig(service, version, config.DefaultConfig())
}

func NewLoggerWithConfig(service, version string, cfg *config.LoggerConfig) *Logger {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Logger{
		service:   service,
		version:   version,
		config:    cfg,
		out:       os.Stdout,
		startTime: time.Now(),
		metadata:  make(map[string]any),
	}
}

// SetOutput replaces the console writer.
func (l *Logger) SetOutput(w io.Writer) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
	return l
}

func (l *Logger) SetSessionID(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessionID = sessionID
}

func (l *Logger) SetTransactionID(transactionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transactionID = transactionID
}

func (l *Logger) SessionID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessionID
}

func (l *Logger) TransactionID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transactionID
}

func (l *Logger) SetUseCase(useCase string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.useCase = useCase
}

// SetDependencyMetadata tags the next detail line only.
func (l *Logger) SetDependencyMetadata(dm DependencyMetadata) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dependency = &dm
	return l
}

// StartTransaction initializes a new transaction with IDs
func (l *Logger) StartTransaction(transactionID, sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transactionID = transactionID
	l.sessionID = sessionID
	l.startTime = time.Now()
	l.metadata = make(map[string]any)
}

// AddMetadata adds or overwrites a metadata key-value pair
func (l *Logger) AddMetadata(key string, value any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.metadata[key] = value
}

// AddSuccess adds a value to metadata, creating an array if the key already exists
func (l *Logger) AddSuccess(key string, value any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, exists := l.metadata[key]
	if !exists {
		l.metadata[key] = value
		return
	}
	if arr, isArray := existing.([]any); isArray {
		l.metadata[key] = append(arr, value)
		return
	}
	l.metadata[key] = []any{existing, value}
}

// Detail logs detailed information with optional data masking
func (l *Logger) Detail(level LogLevel, actionInfo logAction.LoggerAction, data any, maskingRules ...MaskingRule) {
	maskedData := data
	if len(maskingRules) > 0 {
		maskedData = MaskData(data, maskingRules)
	}

	l.mu.Lock()
	entry := DetailLog{
		Level:             level,
		Type:              TypeDetail,
		UseCase:           l.useCase,
		Action:            actionInfo.Action,
		ActionDescription: actionInfo.ActionDescription,
		SubAction:         actionInfo.SubAction,
		Message:           dataToString(maskedData),
		TransactionID:     l.transactionID,
		SessionID:         l.sessionID,
	}
	if l.dependency != nil {
		entry.Dependency = l.dependency.Dependency
		entry.ResponseTime = l.dependency.ResponseTime
		l.dependency = nil
	}
	l.mu.Unlock()

	l.write(entry)
}

func (l *Logger) Info(action logAction.LoggerAction, data any, maskingRules ...MaskingRule) {
	l.Detail(LevelInfo, action, data, maskingRules...)
}

func (l *Logger) Debug(action logAction.LoggerAction, data any, maskingRules ...MaskingRule) {
	l.Detail(LevelDebug, action, data, maskingRules...)
}

func (l *Logger) Warn(action logAction.LoggerAction, data any, maskingRules ...MaskingRule) {
	l.Detail(LevelWarn, action, data, maskingRules...)
}

func (l *Logger) Error(action logAction.LoggerAction, data any, maskingRules ...MaskingRule) {
	l.Detail(LevelError, action, data, maskingRules...)
}

// Flush writes a summary log with success status and resets the transaction state
func (l *Logger) Flush(statusCode int, message string) {
	l.summary(LevelInfo, statusCode, message)
}

// FlushError writes a summary log with error status and resets the transaction state
func (l *Logger) FlushError(statusCode int, message string) {
	l.summary(LevelError, statusCode, message)
}

func (l *Logger) summary(level LogLevel, statusCode int, message string) {
	l.mu.Lock()
	entry := DetailLog{
		Level:         level,
		Type:          TypeSummary,
		UseCase:       l.useCase,
		Message:       message,
		TransactionID: l.transactionID,
		SessionID:     l.sessionID,
		StatusCode:    statusCode,
		Duration:      time.Since(l.startTime).Milliseconds(),
		Metadata:      l.metadata,
	}
	l.metadata = make(map[string]any)
	l.startTime = time.Now()
	l.mu.Unlock()

	l.write(entry)
}

func (l *Logger) write(entry DetailLog) {
	entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	entry.Service = l.service
	entry.Version = l.version

	jsonLog, err := json.Marshal(entry)
	if err != nil {
		return
	}
	jsonLog = append(jsonLog, '\n')

	outputConfig := l.config.Detail
	if entry.Type == TypeSummary {
		outputConfig = l.config.Summary
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if outputConfig.Console && l.out != nil {
		l.out.Write(jsonLog)
	}
	if outputConfig.File {
		writeToFile(outputConfig.Path, entry.Timestamp, jsonLog)
	}
}

func writeToFile(basePath, timestamp string, data []byte) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return
	}

	// YYYY-MM-DD.log
	filename := filepath.Join(basePath, timestamp[:10]) + ".log"

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()

	f.Write(data)
}

func dataToString(data any) string {
	if data == nil {
		return ""
	}
	if str, ok := data.(string); ok {
		return str
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return string(jsonBytes)
}
