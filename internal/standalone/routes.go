package standalone

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/robalb/mnodemo/internal/metrics"
	"github.com/robalb/mnodemo/internal/webresources"
)

func NewRouter(
	logger *zap.Logger,
	resources fs.FS,
	m *metrics.Metrics,
) http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  zap.NewStdLog(logger.Named("http")),
		NoColor: true,
	}))
	mux.Use(middleware.Recoverer)
	mux.Use(m.Middleware)
	mux.Use(middleware.Heartbeat("/health"))
	mux.Use(cors.Handler(cors.Options{
		AllowOriginFunc:  func(r *http.Request, origin string) bool { return true },
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Upgrade", "Cookie"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	mux.Method(http.MethodGet, "/metrics", m.Handler())

	static := webresources.Handler(resources)
	mux.Method(http.MethodGet, "/*", static)
	mux.Method(http.MethodHead, "/*", static)

	return mux
}

// newResources builds the resource root served at "/": the web content
// folder, fronted by the compiled output folder when it exists.
func newResources(logger *zap.Logger, webContent, compiled string, hasCompiled bool) *webresources.Root {
	root := webresources.NewRoot(webresources.DirSet(webContent))
	if hasCompiled {
		logger.Debug("Loading compiled resources", zap.String("dir", compiled))
		root.AddPreResources("/", webresources.DirSet(compiled))
	} else {
		root.AddPreResources("/", webresources.EmptySet())
	}
	return root
}
