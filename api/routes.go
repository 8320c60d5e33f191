package api

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes registers the public health check and the authenticated API
func setupRoutes(r chi.Router, handlers *routeHandlers, authMiddleware authMiddleware) {
	r.Get("/healthz", handlers.healthHandler.health())

	r.Group(func(r chi.Router) {
		r.Use(requestLogger)
		r.Use(authMiddleware.authenticate)

		// Blog config endpoints
		r.Get("/blog-configs", handlers.blogConfigHandler.getAllBlogConfigs())
		r.Post("/blog-config", handlers.blogConfigHandler.createBlogConfig())
		r.Get("/blog-config/{blogConfigID}", handlers.blogConfigHandler.getBlogConfig())
		r.Put("/blog-config/{blogConfigID}", handlers.blogConfigHandler.updateBlogConfig())
		r.Delete("/blog-config/{blogConfigID}", handlers.blogConfigHandler.deleteBlogConfig())

		// Scheduling endpoints
		r.Put("/blog-config/{blogConfigID}/schedule", handlers.schedulingHandler.updateSchedule())
		r.Post("/blog-config/{blogConfigID}/ensure-scheduled", handlers.schedulingHandler.ensureScheduled())
		r.Post("/blog-config/{blogConfigID}/generate", handlers.schedulingHandler.generateDraft())

		// Post endpoints
		r.Get("/posts", handlers.postHandler.getAllPosts())
		r.Get("/post/{postID}", handlers.postHandler.getPost())
		r.Put("/post/{postID}", handlers.postHandler.updatePost())
		r.Delete("/post/{postID}", handlers.postHandler.deletePost())
		r.Get("/post/{postID}/seo", handlers.postHandler.getPostSEO())

		// Queue and publishing endpoints
		r.Put("/post/{postID}/reschedule", handlers.schedulingHandler.reschedulePost())
		r.Put("/post/{postID}/reassign", handlers.schedulingHandler.reassignPost())
		r.Post("/post/{postID}/unschedule", handlers.schedulingHandler.unschedulePost())
		r.Post("/post/{postID}/publish", handlers.schedulingHandler.publishPost())
		r.Post("/post/{postID}/retry", handlers.schedulingHandler.retryPost())
	})
}
