package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/storage/memory/v2"
	"github.com/gofiber/storage/redis/v3"
	"github.com/khanghh/kadmin/internal/alerts"
	"github.com/khanghh/kadmin/internal/audit"
	"github.com/khanghh/kadmin/internal/authz"
	"github.com/khanghh/kadmin/internal/common"
	"github.com/khanghh/kadmin/internal/config"
	"github.com/khanghh/kadmin/internal/db"
	"github.com/khanghh/kadmin/internal/handlers/api"
	"github.com/khanghh/kadmin/internal/mail"
	"github.com/khanghh/kadmin/internal/middlewares"
	"github.com/khanghh/kadmin/internal/rbac"
	"github.com/khanghh/kadmin/internal/sessions"
	"github.com/khanghh/kadmin/internal/store"
	"github.com/khanghh/kadmin/internal/twofactor"
	"github.com/khanghh/kadmin/internal/users"
	"github.com/khanghh/kadmin/internal/workflow"
	"github.com/khanghh/kadmin/params"
	goredis "github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var (
	app       *cli.App
	gitCommit string
	gitDate   string
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "YAML config file",
		Value: "config.yaml",
	}
	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Enable debug logging",
	}
	tenantNameFlag = &cli.StringFlag{
		Name:     "name",
		Usage:    "Tenant display name",
		Required: true,
	}
	tenantSlugFlag = &cli.StringFlag{
		Name:     "slug",
		Usage:    "Tenant slug used at login",
		Required: true,
	}
	adminEmailFlag = &cli.StringFlag{
		Name:     "admin-email",
		Usage:    "Email of the initial administrator",
		Required: true,
	}
	adminNameFlag = &cli.StringFlag{
		Name:  "admin-name",
		Usage: "Full name of the initial administrator",
	}
	adminPasswordFlag = &cli.StringFlag{
		Name:    "admin-password",
		Usage:   "Password of the initial administrator, generated when empty",
		EnvVars: []string{"KADMIN_ADMIN_PASSWORD"},
	}
)

func init() {
	app = cli.NewApp()
	app.EnableBashCompletion = true
	app.Usage = "kadmin - tenant-scoped sessions, permissions and document workflow"
	app.Flags = []cli.Flag{
		configFileFlag,
		debugFlag,
	}
	app.Commands = []*cli.Command{
		{
			Name:  "version",
			Usage: "Print the version",
			Action: func(ctx *cli.Context) error {
				fmt.Println(params.VersionWithCommit(gitCommit, gitDate))
				return nil
			},
		},
		{
			Name:   "migrate",
			Usage:  "Create or update tables and seed the permission catalog",
			Action: migrate,
		},
		{
			Name:  "tenant",
			Usage: "Manage tenants",
			Subcommands: []*cli.Command{
				{
					Name:   "create",
					Usage:  "Create a tenant with its system roles and an administrator",
					Flags:  []cli.Flag{tenantNameFlag, tenantSlugFlag, adminEmailFlag, adminNameFlag, adminPasswordFlag},
					Action: createTenant,
				},
			},
		},
	}
	app.Action = run
}

func mustInitLogger(logCfg config.LogConfig, debug bool) {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(logCfg.Level)); err != nil && logCfg.Level != "" {
		slog.Warn("Unknown log level, using info", "level", logCfg.Level)
	}
	if debug {
		logLevel = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	if strings.EqualFold(logCfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(ctx.String(configFileFlag.Name))
	if err != nil {
		slog.Error("Could not load config file.", "error", err)
		return nil, err
	}
	mustInitLogger(cfg.Log, cfg.Debug || ctx.IsSet(debugFlag.Name))
	return cfg, nil
}

func mustInitDatabase(dbCfg config.DatabaseConfig) *gorm.DB {
	gdb, err := db.Open(dbCfg)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	return gdb
}

// mustInitStorages returns the key-value storage for second-factor state and the
// limiter storage. Both are backed by redis when configured so that replicas share
// counters, and fall back to process memory otherwise.
func mustInitStorages(redisCfg config.RedisConfig) (store.Storage, fiber.Storage, goredis.UniversalClient) {
	if redisCfg.URL == "" {
		slog.Warn("Redis is not configured, using in-process storage")
		return store.NewMemoryStorage(), memory.New(), nil
	}
	redisStorage := redis.New(redis.Config{
		URL:           redisCfg.URL,
		PoolSize:      redisCfg.PoolSize,
		IsClusterMode: redisCfg.ClusterMode,
	})
	return store.NewRedisStorage(redisStorage.Conn()), redisStorage, redisStorage.Conn()
}

func mustInitMailSender(mailCfg config.MailConfig) mail.MailSender {
	switch mailCfg.Backend {
	case "", "log":
		return &mail.LogMailSender{From: mailCfg.From}
	case "smtp":
		smtpCfg := mailCfg.SMTP
		sender, err := mail.NewSMTPMailSender(mail.SMTPConfig{
			Host:     smtpCfg.Host,
			Port:     smtpCfg.Port,
			Username: smtpCfg.Username,
			Password: smtpCfg.Password,
			TLS:      smtpCfg.TLS,
			CertFile: smtpCfg.CertFile,
			KeyFile:  smtpCfg.KeyFile,
			CAFile:   smtpCfg.CAFile,
		}, mailCfg.From)
		if err != nil {
			slog.Error("Failed to initialize SMTP mail sender", "error", err)
			os.Exit(1)
		}
		return sender
	default:
		slog.Error("Unsupported mail sender backend", "backend", mailCfg.Backend)
		os.Exit(1)
		return nil
	}
}

func migrate(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	gdb := mustInitDatabase(cfg.Database)
	if err := db.Migrate(ctx.Context, gdb); err != nil {
		slog.Error("Database migration failed", "error", err)
		return err
	}
	slog.Info("Database migrated")
	return nil
}

func createTenant(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	gdb := mustInitDatabase(cfg.Database)
	if err := db.Migrate(ctx.Context, gdb); err != nil {
		return err
	}

	resolver := rbac.NewResolver(gdb)
	auditService := audit.NewAuditService(gdb, resolver, nil, audit.Config{
		MasterKey:    cfg.MasterKey,
		MinRetention: cfg.Audit.MinRetention,
	})
	sessionService := sessions.NewSessionService(gdb, auditService, resolver, sessions.Config{MasterKey: cfg.MasterKey})
	roleService := rbac.NewRoleService(gdb, resolver, auditService)
	userService := users.NewUserService(gdb, resolver, roleService, sessionService, auditService, users.Config{})

	password := ctx.String(adminPasswordFlag.Name)
	generated := password == ""
	if generated {
		if password, err = common.GenerateSecret(params.GeneratedPasswordLength); err != nil {
			return err
		}
	}

	tenant, admin, err := userService.BootstrapTenant(ctx.Context, users.BootstrapOptions{
		Name:          ctx.String(tenantNameFlag.Name),
		Slug:          ctx.String(tenantSlugFlag.Name),
		AdminEmail:    ctx.String(adminEmailFlag.Name),
		AdminName:     ctx.String(adminNameFlag.Name),
		AdminPassword: password,
	})
	if err != nil {
		slog.Error("Failed to create tenant", "error", err)
		return err
	}
	slog.Info("Tenant created", "tenantID", tenant.ID, "slug", tenant.Slug, "adminID", admin.ID)
	if generated {
		fmt.Printf("Administrator password: %s\n", password)
	}
	return nil
}

func run(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	gdb := mustInitDatabase(cfg.Database)
	if err := db.Migrate(ctx.Context, gdb); err != nil {
		slog.Error("Database migration failed", "error", err)
		return err
	}
	kvStorage, limiterStorage, redisClient := mustInitStorages(cfg.Redis)
	mailSender := mustInitMailSender(cfg.Mail)

	// services
	var (
		resolver     = rbac.NewResolver(gdb)
		alertService = alerts.NewService(gdb, resolver, alerts.NewMailNotifier(mailSender, cfg.Alerts.NotifyEmails))
		dispatcher   = alerts.NewDispatcher(alertService, cfg.Alerts.Workers, cfg.Alerts.QueueSize)
		auditService = audit.NewAuditService(gdb, resolver, dispatcher, audit.Config{
			MasterKey:    cfg.MasterKey,
			MinRetention: cfg.Audit.MinRetention,
		})
		sessionService = sessions.NewSessionService(gdb, auditService, resolver, sessions.Config{
			MasterKey:   cfg.MasterKey,
			Lifetime:    cfg.Session.Lifetime,
			MaxLifetime: cfg.Session.MaxLifetime,
		})
		roleService      = rbac.NewRoleService(gdb, resolver, auditService)
		userService      = users.NewUserService(gdb, resolver, roleService, sessionService, auditService, users.Config{})
		twoFactorService = twofactor.NewTwoFactorService(gdb, kvStorage, sessionService, auditService, twofactor.Config{MasterKey: cfg.MasterKey})
		engine           = workflow.NewEngine(gdb, resolver, auditService)
	)

	router := fiber.New(fiber.Config{
		Prefork:       false,
		CaseSensitive: true,
		BodyLimit:     params.ServerBodyLimit,
		IdleTimeout:   params.ServerIdleTimeout,
		ReadTimeout:   params.ServerReadTimeout,
		WriteTimeout:  params.ServerWriteTimeout,
		ErrorHandler:  middlewares.ErrorHandler,
	})

	router.Use(recover.New())
	router.Use(requestid.New())
	router.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowOrigins, ", "),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: len(cfg.AllowOrigins) > 0 && cfg.AllowOrigins[0] != "*",
	}))

	api.SetupRoutes(router, api.Services{
		Authorizer: authz.NewAuthorizer(sessionService, resolver),
		Users:      userService,
		Sessions:   sessionService,
		TwoFactor:  twoFactorService,
		Workflow:   engine,
		Audit:      auditService,
		Roles:      roleService,
		Alerts:     alertService,
	}, api.RouteConfig{
		Cookie: api.CookieConfig{
			Name:   cfg.Session.CookieName,
			Secure: cfg.Session.CookieSecure,
		},
		InternalSecret: cfg.InternalSecret,
		LimiterStorage: limiterStorage,
	})

	runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		return dispatcher.Run(groupCtx)
	})
	group.Go(func() error {
		return common.StartHealthCheckServer(groupCtx, cfg.HealthCheckAddr, redisClient, gdb)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		return router.ShutdownWithTimeout(params.ServerShutdownTimeout)
	})
	group.Go(func() error {
		slog.Info("Server listening", "addr", cfg.ListenAddr)
		return router.Listen(cfg.ListenAddr)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
