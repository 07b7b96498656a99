package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/rohits-web03/clipdrop/docs"
	"github.com/rohits-web03/clipdrop/internal/api/handlers"
	"github.com/rohits-web03/clipdrop/internal/api/middleware"
)

type Deps struct {
	Clipboard   *handlers.Clipboard
	Progress    http.Handler // websocket progress channel
	RateLimiter *middleware.RateLimiter
	Cors        cors.Options
	JWTSecret   string
	Logger      *slog.Logger
}

func SetupRouter(d Deps) http.Handler {
	mainMux := http.NewServeMux()
	c := cors.New(d.Cors)

	// ---------- PUBLIC ROUTES ----------
	mainMux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})

	mainMux.HandleFunc("/docs/", httpSwagger.WrapHandler)

	mainMux.Handle("GET /ws", d.Progress)

	// ---------- CLIPBOARD ROUTES ----------
	clipMux := http.NewServeMux()
	clipMux.HandleFunc("POST /v1/clipboard", d.Clipboard.Create)
	clipMux.Handle("GET /v1/clipboard/mine", middleware.RequireOwner(http.HandlerFunc(d.Clipboard.Mine)))
	clipMux.HandleFunc("GET /v1/clipboard/{id}", d.Clipboard.Get)
	clipMux.HandleFunc("GET /v1/clipboard/{id}/progress", d.Clipboard.Progress)
	clipMux.HandleFunc("GET /v1/clipboard/{id}/download", d.Clipboard.Download)
	clipMux.HandleFunc("GET /v1/quota", d.Clipboard.Quota)

	mainMux.Handle("/v1/", gzhttp.GzipHandler(middleware.Auth(d.JWTSecret)(clipMux)))

	d.Logger.Info("Router initialized")
	var handler http.Handler = mainMux
	if d.RateLimiter != nil {
		handler = d.RateLimiter.Middleware(handler)
	}
	handler = c.Handler(handler)
	handler = middleware.Logger(d.Logger)(handler)
	return handler
}
