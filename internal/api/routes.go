package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"careerHub/internal/api/middleware"
	"careerHub/internal/auth"
	"careerHub/internal/catalog"
	"careerHub/internal/checkout"
	"careerHub/internal/config"
	"careerHub/internal/entitlement"
	"careerHub/internal/profile"
	"careerHub/internal/resume"
	"careerHub/internal/storage"
)

// Dependencies 汇总路由注册所需的服务实例。
type Dependencies struct {
	Config       *config.Config
	DB           *gorm.DB
	Redis        redis.UniversalClient
	Queue        TaskEnqueuer
	Auth         *auth.AuthService
	Storage      ObjectStore
	Scanner      storage.Scanner
	Catalog      *catalog.Service
	Entitlements *entitlement.Service
	Profiles     *profile.Service
	Resumes      *resume.Store
	Workflow     *checkout.Workflow
	Logger       *slog.Logger
}

// RegisterRoutes 注册全部业务路由。
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	cfg := deps.Config
	sessionTTL := cfg.Checkout.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}

	assetHandler := NewAssetHandler(deps.Storage, deps.Scanner, deps.Logger)
	authHandler := NewAuthHandler(deps.DB, deps.Auth, deps.Redis, deps.Logger, cfg.Auth, cfg.API.CookieDomain)
	jobHandler := NewJobHandler(deps.Catalog, deps.Entitlements, deps.Workflow, assetHandler, deps.Logger, cfg.API.CookieDomain, sessionTTL)
	checkoutHandler := NewCheckoutHandler(deps.Catalog, deps.Workflow, deps.Storage, deps.Logger)
	profileHandler := NewProfileHandler(deps.Profiles, assetHandler, deps.Logger)
	resumeHandler := NewResumeHandler(deps.Resumes, deps.Queue, deps.Storage, deps.Logger)
	adminHandler := NewAdminHandler(deps.DB, assetHandler, deps.Logger)
	wsHandler := NewWsHandler(deps.Redis, deps.Auth, deps.Logger, cfg.API.AllowedOrigins)

	authMiddleware := middleware.AuthMiddleware(deps.Auth)
	passwordGate := middleware.RequirePasswordChanged()
	callbackLimiter := middleware.NewIPRateLimiter(cfg.Checkout.CallbackRatePerSec, cfg.Checkout.CallbackBurst)

	router.GET("/ws", wsHandler.HandleConnection)

	// 账号
	router.POST("/register", authHandler.Register)
	router.POST("/login", authHandler.Login)
	router.POST("/refresh", authHandler.Refresh)
	router.POST("/logout", authMiddleware, authHandler.Logout)
	router.POST("/change-password", authMiddleware, authHandler.ChangePassword)

	// 公开页面
	router.GET("/jobs/search", jobHandler.SearchJobs)
	router.GET("/job/:id", middleware.OptionalAuthMiddleware(deps.Auth), passwordGate, jobHandler.JobDetail)
	router.GET("/plans", checkoutHandler.ListPlans)

	// 支付网关回调，不需要登录，按来源 IP 限流
	paymentGroup := router.Group("/payment", callbackLimiter.Middleware())
	{
		paymentGroup.POST("/callback", checkoutHandler.PaymentCallback)
		paymentGroup.POST("/stripe/webhook", checkoutHandler.StripeWebhook)
	}

	user := router.Group("", authMiddleware, passwordGate)
	{
		user.GET("/jobs", jobHandler.ListJobs)
		user.POST("/apply/:id", jobHandler.Apply)

		user.POST("/plans", checkoutHandler.ChoosePlan)
		user.POST("/plans/:id/select", checkoutHandler.SelectPlan)
		user.GET("/payment-success", checkoutHandler.PaymentSuccess)
		user.GET("/confirm-courses/:course_id", checkoutHandler.CourseView)
		user.POST("/confirm-courses/:course_id", checkoutHandler.SubmitDoubt)

		user.GET("/profile", profileHandler.GetProfile)
		user.POST("/profile", profileHandler.UpdateProfile)

		user.POST("/generate-bio", resumeHandler.GenerateBio)
		user.POST("/resume-builder", resumeHandler.CreateDraft)
		user.GET("/resume-builder/:id", resumeHandler.GetDraft)
		user.POST("/resume-builder/:id/pdf", resumeHandler.RequestPDF)
		user.GET("/resume-builder/:id/download-link", resumeHandler.GetDownloadLink)

		user.GET("/assets/view", assetHandler.GetAssetURL)
	}

	admin := router.Group("/admin", authMiddleware, passwordGate, middleware.RequireAdmin())
	{
		admin.GET("/plans", adminHandler.ListPlans)
		admin.POST("/plans", adminHandler.CreatePlan)
		admin.PUT("/plans/:id", adminHandler.UpdatePlan)

		admin.GET("/jobs", adminHandler.ListJobs)
		admin.POST("/jobs", adminHandler.CreateJob)
		admin.PUT("/jobs/:id", adminHandler.UpdateJob)

		admin.GET("/courses", adminHandler.ListCourses)
		admin.POST("/courses", adminHandler.CreateCourse)
		admin.PUT("/courses/:id", adminHandler.UpdateCourse)
		admin.POST("/courses/:id/topics", adminHandler.CreateTopic)
		admin.POST("/courses/:id/videos", adminHandler.CreateVideo)
		admin.POST("/courses/:id/questions", adminHandler.CreateInterviewQuestion)
		admin.POST("/courses/:id/sessions", adminHandler.CreatePlacementSession)

		admin.GET("/doubts", adminHandler.ListDoubts)
		admin.GET("/payments", adminHandler.ListPayments)
	}
}
