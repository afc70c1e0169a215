package routes

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	ogmetahandlers "SaveBox/internal/api/handlers/ogmeta"
)

// RegisterOGMetaRoutes registers the link metadata endpoint.
//
// Route: POST /api/og-meta
//
// Body: {"url": "<user supplied URL, scheme optional>"}
func RegisterOGMetaRoutes(r chi.Router, handler *ogmetahandlers.Handler) {
	r.Post("/api/og-meta", handler.HandleResolve)
}

// RegisterAdminRoutes registers operator endpoints. Mount them only on the
// admin listener; they expose hostnames users tried to save.
//
// Route: GET /admin/og-meta/circuits
func RegisterAdminRoutes(r chi.Router, handler *ogmetahandlers.Handler) {
	r.Get("/admin/og-meta/circuits", handler.HandleCircuitStats)
}

// RegisterThumbnailRoutes serves thumbnails written by the disk storage
// backend. baseDir is the store root; objects live under baseDir/thumbnails.
//
// Route: GET /thumbnails/*
func RegisterThumbnailRoutes(r chi.Router, baseDir string) {
	fs := http.StripPrefix("/thumbnails/", http.FileServer(http.Dir(filepath.Join(baseDir, "thumbnails"))))

	r.Get("/thumbnails/*", func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "*")
		// No directory listings, and no temp files from in-flight writes.
		if name == "" || strings.HasSuffix(name, "/") || strings.HasSuffix(name, ".tmp") {
			http.NotFound(w, r)
			return
		}

		// Object names embed a timestamp and random suffix, so content never changes.
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		fs.ServeHTTP(w, r)
	})
}

// CORSMiddleware allows the web app and browser extension origins to call the API.
// Mount it at the router root so preflight requests are answered before routing.
func CORSMiddleware(allowedOrigins []string) func(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			"X-Requested-With",
		},
		AllowCredentials: false,
		MaxAge:           300, // 5 minutes
	})
}
