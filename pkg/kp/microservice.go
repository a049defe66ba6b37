package kp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sing3demons/jwks-server/internal/config"
)

type MyHandler func(ctx *Ctx)
type Middleware func(http.Handler) http.Handler

type Microservice struct {
	config      *config.AppConfig
	mux         *http.ServeMux
	middlewares []Middleware
}

type IMicroservice interface {
	Start()
	GET(path string, handler MyHandler, middlewares ...Middleware)
	POST(path string, handler MyHandler, middlewares ...Middleware)
	Use(middleware Middleware)
	Handler() http.Handler
}

func NewMicroservice(cfg *config.AppConfig) IMicroservice {
	return &Microservice{
		config: cfg,
		mux:    http.NewServeMux(),
	}
}

// Handler returns the mux wrapped in the global middlewares, first registered outermost.
func (m *Microservice) Handler() http.Handler {
	var handler http.Handler = m.mux
	for i := len(m.middlewares) - 1; i >= 0; i-- {
		handler = m.middlewares[i](handler)
	}
	return handler
}

// Start serves until SIGINT/SIGTERM and then drains in-flight requests.
func (m *Microservice) Start() {
	srv := http.Server{
		Addr:         ":" + m.config.Port,
		Handler:      m.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		log.Printf("starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server listen err: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}
	wg.Wait()
	log.Println("server exited")
}

func (m *Microservice) Use(middleware Middleware) {
	m.middlewares = append(m.middlewares, middleware)
}

func (m *Microservice) preHandle(handler MyHandler, middlewares ...Middleware) http.HandlerFunc {
	final := func(w http.ResponseWriter, r *http.Request) {
		ctx := newMuxContext(w, r, m.config)
		defer ctx.recoverPanic()
		handler(ctx)
	}
	// first middleware is outermost
	for i := len(middlewares) - 1; i >= 0; i-- {
		final = middlewares[i](http.HandlerFunc(final)).ServeHTTP
	}
	return final
}

func (m *Microservice) GET(path string, handler MyHandler, middlewares ...Middleware) {
	m.mux.HandleFunc(fmt.Sprintf("%s %s", http.MethodGet, path), m.preHandle(handler, middlewares...))
}

func (m *Microservice) POST(path string, handler MyHandler, middlewares ...Middleware) {
	m.mux.HandleFunc(fmt.Sprintf("%s %s", http.MethodPost, path), m.preHandle(handler, middlewares...))
}
