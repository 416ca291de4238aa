package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/kb-management/internal/accesscontrol"
	"github.com/frahmantamala/kb-management/internal/auth"
	"github.com/frahmantamala/kb-management/internal/directory"
	"github.com/frahmantamala/kb-management/internal/kb"
	"github.com/frahmantamala/kb-management/internal/transport/middleware"
	"github.com/frahmantamala/kb-management/internal/transport/swagger"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

func RegisterAllRoutes(
	router *chi.Mux,
	db *sql.DB,
	authHandler *auth.Handler,
	directoryHandler *directory.Handler,
	kbHandler *kb.Handler,
	accessHandler *accesscontrol.Handler,
	engine *accesscontrol.Engine,
	directoryReader accesscontrol.DirectoryReader,
	logger *slog.Logger,
) {
	healthHandler := NewHealthHandler(db)

	adminOnly := middleware.RequireRole(directoryReader, accesscontrol.RoleAdmin, accesscontrol.RoleSuperAdmin)

	// Apply global middleware
	router.Use(middleware.CORS)
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/login", authHandler.Login)
			sr.Post("/refresh", authHandler.RefreshToken)
			sr.Post("/logout", authHandler.Logout)
		})

		// Protected routes that require authentication
		r.Group(func(pr chi.Router) {
			pr.Use(authHandler.AuthMiddleware)

			pr.Get("/users/me", directoryHandler.GetCurrentUser)

			// Directory administration is role-gated; kb sharing is not.
			pr.Group(func(ar chi.Router) {
				ar.Use(adminOnly)

				ar.Route("/users", func(ur chi.Router) {
					ur.Post("/", directoryHandler.CreateUser)
					ur.Get("/", directoryHandler.ListUsers)
					ur.Get("/{userID}", directoryHandler.GetUser)
					ur.Patch("/{userID}", directoryHandler.UpdateUser)
					ur.Post("/{userID}/deactivate", directoryHandler.DeactivateUser)
					ur.Post("/{userID}/reactivate", directoryHandler.ReactivateUser)
				})

				ar.Route("/departments", func(dr chi.Router) {
					dr.Post("/", directoryHandler.CreateDepartment)
					dr.Get("/", directoryHandler.ListDepartments)
					dr.Get("/{deptID}", directoryHandler.GetDepartment)
					dr.Patch("/{deptID}", directoryHandler.UpdateDepartment)
					dr.Delete("/{deptID}", directoryHandler.DeleteDepartment)
				})
			})

			pr.Route("/groups", func(gr chi.Router) {
				gr.Post("/", directoryHandler.CreateGroup)
				gr.Get("/", directoryHandler.ListGroups)
				gr.Get("/{groupID}", directoryHandler.GetGroup)
				gr.Get("/{groupID}/members", directoryHandler.ListMembers)

				gr.Group(func(mr chi.Router) {
					mr.Use(adminOnly)
					mr.Delete("/{groupID}", directoryHandler.DeleteGroup)
					mr.Post("/{groupID}/members", directoryHandler.AddMember)
					mr.Delete("/{groupID}/members/{userID}", directoryHandler.RemoveMember)
				})
			})

			pr.Route("/kbs", func(kr chi.Router) {
				kr.Post("/", kbHandler.Create)
				kr.Get("/", kbHandler.List)

				kr.Group(func(rr chi.Router) {
					rr.Use(middleware.RequireKBAccess(engine, accesscontrol.LevelRead))
					rr.Get("/{kbID}", kbHandler.Get)
					rr.Post("/{kbID}/qa", kbHandler.TouchQA)
					rr.Get("/{kbID}/permissions/effective", accessHandler.EffectiveAccess)
				})

				kr.Group(func(wr chi.Router) {
					wr.Use(middleware.RequireKBAccess(engine, accesscontrol.LevelWrite))
					wr.Patch("/{kbID}", kbHandler.Rename)
					wr.Post("/{kbID}/documents", kbHandler.TouchInsert)
				})

				// Grant administration needs admin on the kb itself.
				kr.Group(func(gr chi.Router) {
					gr.Use(middleware.RequireKBAccess(engine, accesscontrol.LevelAdmin))
					gr.Delete("/{kbID}", kbHandler.Delete)
					gr.Get("/{kbID}/permissions", accessHandler.ListGrants)
					gr.Post("/{kbID}/permissions", accessHandler.Grant)
					gr.Delete("/{kbID}/permissions", accessHandler.Revoke)
					gr.Post("/{kbID}/permissions/batch", accessHandler.BatchSet)
					gr.Post("/{kbID}/transfer-owner", accessHandler.TransferOwnership)
				})
			})
		})
	})
}
