package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printfarm/internal/api/handlers"
	"github.com/orrn/printfarm/internal/api/middleware"
	"github.com/orrn/printfarm/internal/config"
	"github.com/orrn/printfarm/internal/core"
	"github.com/orrn/printfarm/internal/db"
	"github.com/orrn/printfarm/internal/live"
	"github.com/orrn/printfarm/internal/notify"
)

// Services is everything the HTTP layer needs. MetricsLimiter is optional.
type Services struct {
	Config         *config.Config
	Store          *db.Store
	Registry       *core.Registry
	Queue          *core.Queue
	Jobs           *core.Jobs
	Tracker        *core.Tracker
	Hub            *live.Hub
	Webhooks       *notify.WebhookSink
	Auth           *middleware.AuthMiddleware
	MetricsLimiter gin.HandlerFunc
}

func NewRouter(s Services) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())

	r.GET("/health", func(c *gin.Context) {
		if err := s.Store.DB().PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	printers := handlers.NewPrinterHandler(s.Registry)
	queue := handlers.NewQueueHandler(s.Queue)
	jobs := handlers.NewJobHandler(s.Jobs)
	status := handlers.NewStatusHandler(s.Tracker)
	webhooks := handlers.NewWebhookHandler(s.Store, s.Webhooks)
	prefs := handlers.NewPreferencesHandler(s.Store)
	settings := handlers.NewSettingsHandler(s.Jobs, s.Config)
	notifications := handlers.NewNotificationHandler(s.Store)

	admin := s.Auth.RequireAuth()
	limitMetrics := s.MetricsLimiter
	if limitMetrics == nil {
		limitMetrics = func(c *gin.Context) { c.Next() }
	}

	v1 := r.Group("/api/v1")

	auth := v1.Group("/auth")
	{
		auth.POST("/setup", s.Auth.SetupHandler)
		auth.POST("/login", s.Auth.LoginHandler)
		auth.POST("/logout", s.Auth.LogoutHandler)
		auth.GET("/status", s.Auth.StatusHandler)
		auth.POST("/password", admin, s.Auth.ChangePasswordHandler)
	}

	p := v1.Group("/printers")
	{
		p.GET("", printers.ListPrinters)
		p.POST("", admin, printers.CreatePrinter)
		p.GET("/available", printers.ListAvailable)
		p.POST("/compatible", printers.FindCompatible)
		p.GET("/stats", printers.Statistics)
		p.GET("/:id", printers.GetPrinter)
		p.PUT("/:id", admin, printers.UpdatePrinter)
		p.DELETE("/:id", admin, printers.DeletePrinter)
		p.PUT("/:id/status", admin, printers.SetStatus)
		p.POST("/:id/maintenance", admin, printers.RegisterMaintenance)
	}

	q := v1.Group("/queue")
	{
		q.GET("", queue.List)
		q.POST("", queue.Enqueue)
		q.GET("/pending", queue.Pending)
		q.GET("/stats", queue.Stats)
		q.GET("/:id", queue.Get)
		q.DELETE("/:id", admin, queue.Delete)
		q.PUT("/:id/status", admin, queue.UpdateStatus)
		q.PUT("/:id/priority", admin, queue.UpdatePriority)
		q.GET("/:id/history", queue.History)
	}

	j := v1.Group("/jobs")
	{
		j.GET("", jobs.ListJobs)
		j.POST("", admin, jobs.CreateJob)
		j.GET("/current", jobs.CurrentJobs)
		j.GET("/stats", jobs.Statistics)
		j.GET("/:id", jobs.GetJob)
		j.PUT("/:id/status", admin, jobs.UpdateStatus)
		j.PUT("/:id/progress", admin, jobs.UpdateProgress)
		j.PUT("/:id/material", admin, jobs.SetMaterialUsed)
	}

	st := v1.Group("/status")
	{
		st.POST("", admin, status.Create)
		st.GET("/active", status.Active)
		st.GET("/completed", status.RecentlyCompleted)
		st.GET("/order/:orderID", status.ByOrder)
		st.GET("/queue/:queueID", status.ByQueue)
		st.GET("/:id", status.Get)
		st.GET("/:id/live", status.Live)
		st.PUT("/:id/status", admin, status.UpdateStatus)
		st.POST("/:id/reset", admin, status.Reset)
		st.POST("/:id/metrics", admin, limitMetrics, status.RecordMetrics)
		st.GET("/:id/metrics", status.Metrics)
		st.GET("/:id/messages", status.Messages)
		st.POST("/:id/messages", admin, status.AddMessage)
		st.GET("/:id/updates", status.Updates)
	}

	w := v1.Group("/webhooks", admin)
	{
		w.GET("", webhooks.ListWebhooks)
		w.POST("", webhooks.CreateWebhook)
		w.GET("/:id", webhooks.GetWebhook)
		w.PUT("/:id", webhooks.UpdateWebhook)
		w.DELETE("/:id", webhooks.DeleteWebhook)
		w.POST("/:id/test", webhooks.TestWebhook)
	}

	v1.GET("/preferences/:userID", prefs.Get)
	v1.PUT("/preferences/:userID", admin, prefs.Update)

	v1.GET("/settings", settings.GetSettings)
	v1.PUT("/settings", admin, settings.UpdateSettings)

	v1.GET("/notifications", admin, notifications.List)

	v1.GET("/live", admin, gin.WrapF(s.Hub.ServeWS))

	return r
}
