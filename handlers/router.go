package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/camden-git/ppemonitor/permissions"
	"github.com/camden-git/ppemonitor/repository"
)

// RouterDeps carries everything the HTTP surface needs. Setup, Uploads and Events
// are optional; their routes are not mounted when nil.
type RouterDeps struct {
	Tokens         *TokenManager
	UserRepo       repository.UserRepository
	Auth           *AuthHandler
	Setup          *SetupHandler
	Detect         *DetectHandler
	Violations     *ViolationHandler
	Admin          *AdminUserHandler
	Uploads        *UploadHandler
	Events         http.HandlerFunc
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter wires middleware and routes.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(corsHandler.Handler)

	r.Get("/", Health)

	// served under /api and at the root paths the web client calls
	routes := apiRoutes(deps)
	r.Route("/api", routes)
	r.Group(routes)

	return r
}

func apiRoutes(deps RouterDeps) func(r chi.Router) {
	permsHandler := NewPermissionsHandler()
	authenticated := AuthMiddleware(deps.Tokens, deps.UserRepo, deps.Logger)

	return func(r chi.Router) {
		r.Post("/signup", deps.Auth.Signup)
		r.Post("/login", deps.Auth.Login)
		if deps.Setup != nil {
			r.Post("/setup/admin", deps.Setup.CreateFirstAdmin)
		}

		r.Group(func(r chi.Router) {
			r.Use(authenticated)

			r.Get("/permissions", permsHandler.ListPermissions)

			r.Route("/user", func(r chi.Router) {
				r.Get("/me", deps.Auth.CurrentUser)
				r.With(RequireGlobalPermission(permissions.ViolationViewOwn)).Get("/violations", deps.Violations.MyViolations)
				r.With(RequireGlobalPermission(permissions.ViolationViewOwn)).Get("/dashboard", deps.Violations.Dashboard)
			})

			r.Route("/detect", func(r chi.Router) {
				r.Use(RequireGlobalPermission(permissions.DetectionRun))
				r.Post("/", deps.Detect.Detect)
				r.Post("/frame", deps.Detect.DetectFrame)
			})

			if deps.Uploads != nil {
				r.Get("/uploads/{id}/{kind}", deps.Uploads.ServeAsset)
			}

			r.Route("/admin", func(r chi.Router) {
				r.With(RequireGlobalPermission(permissions.UserList)).Get("/users", deps.Admin.ListUsers)
				r.With(RequireGlobalPermission(permissions.UserDelete)).Delete("/users/{id}", deps.Admin.DeleteUser)
				r.With(RequireGlobalPermission(permissions.UserEditRole)).Put("/users/{id}/role", deps.Admin.UpdateUserRole)
				r.With(RequireGlobalPermission(permissions.ViolationViewAny)).Get("/violations/{id}", deps.Admin.UserViolations)
				r.With(RequireGlobalPermission(permissions.ReportSummary)).Get("/summary", deps.Admin.Summary)
				r.With(RequireGlobalPermission(permissions.ReportExport)).Get("/export", deps.Admin.ExportSummary)
				if deps.Events != nil {
					r.With(RequireGlobalPermission(permissions.ReportEvents)).Get("/events", deps.Events)
				}
			})
		})
	}
}
