package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/render-tgm/server/internal/cache"
	"github.com/render-tgm/server/internal/config"
	"github.com/render-tgm/server/internal/mail"
	"github.com/render-tgm/server/internal/middleware"
	"github.com/render-tgm/server/internal/models"
	"github.com/render-tgm/server/internal/repository"
	"github.com/render-tgm/server/internal/service"
	"github.com/render-tgm/server/internal/storage"
)

// UserStore is the slice of the user repository the handlers touch.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (models.User, error)
	UpdateProfile(ctx context.Context, id int64, name, email string) error
	UpdateProfilePhoto(ctx context.Context, id int64, fileName string) (*string, error)
	UpdateRole(ctx context.Context, id int64, role models.Role) error
	List(ctx context.Context) ([]models.User, error)
	ListByRole(ctx context.Context, role models.Role) ([]models.User, error)
}

// FriendStore covers the friendship queries behind the /friends routes.
type FriendStore interface {
	Search(ctx context.Context, userID int64, nameQuery string) ([]models.FriendInfo, error)
	ListFriends(ctx context.Context, userID int64) ([]models.FriendInfo, error)
	ListPending(ctx context.Context, userID int64) ([]models.FriendInfo, error)
	CreateRequest(ctx context.Context, userID, friendID int64) error
	Resolve(ctx context.Context, userID, friendID int64, status models.FriendshipStatus) error
}

// AdminRequestStore covers the role-escalation queue.
type AdminRequestStore interface {
	Create(ctx context.Context, userID int64, reason string) error
	ListPending(ctx context.Context) ([]models.AdminRequest, error)
	Resolve(ctx context.Context, requestID, reviewerID int64, status models.AdminRequestStatus) (int64, error)
}

// UserCacher extends the auth middleware's cache view with invalidation,
// which the profile and role handlers need after writes.
type UserCacher interface {
	middleware.UserCache
	Invalidate(ctx context.Context, id int64)
}

type HandlerSet struct {
	log           zerolog.Logger
	cfg           *config.AppConfig
	layout        *storage.Layout
	authService   *service.AuthService
	imageService  *service.ImageService
	users         UserStore
	friends       FriendStore
	adminRequests AdminRequestStore
	userCache     UserCacher
	db            *pgxpool.Pool
	redis         *redis.Client
}

func NewHandlerSet(
	log zerolog.Logger,
	cfg *config.AppConfig,
	db *pgxpool.Pool,
	redisClient *redis.Client,
	layout *storage.Layout,
	enhancer *service.ImageService,
	mailer mail.Sender,
) HandlerSet {
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	friendRepo := repository.NewFriendshipRepository(db)
	adminRepo := repository.NewAdminRequestRepository(db)
	auth := service.NewAuthService(userRepo, sessionRepo, mailer, cfg, log)

	return HandlerSet{
		log:           log,
		cfg:           cfg,
		layout:        layout,
		authService:   auth,
		imageService:  enhancer,
		users:         userRepo,
		friends:       friendRepo,
		adminRequests: adminRepo,
		userCache:     cache.NewUserCache(redisClient),
		db:            db,
		redis:         redisClient,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/health", h.Health)

	auth := router.Group("/auth")
	auth.POST("/register", h.RegisterUser)
	auth.POST("/login", h.Login)
	auth.POST("/forgot-password", h.ForgotPassword)
	auth.POST("/reset-password", h.ResetPassword)

	authRequired := middleware.Auth(h.cfg, h.users, h.userCache)

	users := router.Group("/users", authRequired)
	users.GET("/me", h.GetProfile)
	users.PUT("/me", h.UpdateProfile)
	users.PUT("/me/photo", h.UpdateProfilePhoto)
	users.GET("", middleware.RequireModerator(), h.ListUsers)

	images := router.Group("/images", authRequired)
	images.GET("", h.ListImages)
	images.POST("/upload", middleware.ImageUpload(h.layout, h.cfg.Upload.MaxSizeBytes), h.UploadImage)
	// /results serves the same record set; unprocessed entries simply
	// carry no url_procesada.
	images.GET("/results", h.ListImages)
	images.DELETE("/:imageId", h.DeleteImage)
	images.POST("/:imageId/process", h.ProcessImage)
	images.GET("/:imageId/download", h.DownloadProcessedImage)

	friends := router.Group("/friends", authRequired)
	friends.GET("/search", h.SearchUsers)
	friends.GET("", h.ListFriends)
	friends.GET("/requests", h.ListFriendRequests)
	friends.POST("/:friendId/request", h.SendFriendRequest)
	friends.PUT("/:friendId/accept", h.AcceptFriendRequest)
	friends.PUT("/:friendId/reject", h.RejectFriendRequest)

	admin := router.Group("/admin", authRequired)
	admin.POST("/requests", h.CreateAdminRequest)
	admin.GET("/requests", middleware.RequireModerator(), h.ListAdminRequests)
	admin.PUT("/requests", middleware.RequireModerator(), h.ResolveAdminRequest)
	admin.GET("/admins", middleware.RequireSuperAdmin(), h.ListAdmins)
	admin.DELETE("/admins/:adminId", middleware.RequireSuperAdmin(), h.RemoveAdmin)
}

// requestBaseURL rebuilds the externally visible base URL from the
// request so stored relative paths resolve no matter which hostname or IP
// the deployment is reached through.
func requestBaseURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, c.Request.Host)
}

// requireUser fetches the authenticated user set by the auth middleware,
// answering 401 itself when the context carries none.
func requireUser(c *gin.Context) (models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
	}
	return user, ok
}
