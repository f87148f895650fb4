package serve

import (
	"fmt"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stokaro/trustboard/admin"
	"github.com/stokaro/trustboard/auth"
	"github.com/stokaro/trustboard/cache"
	"github.com/stokaro/trustboard/cmd/cmdutil"
	"github.com/stokaro/trustboard/config"
	"github.com/stokaro/trustboard/core/clock"
	"github.com/stokaro/trustboard/directory"
	"github.com/stokaro/trustboard/forum"
	"github.com/stokaro/trustboard/mailer"
	"github.com/stokaro/trustboard/seo"
	"github.com/stokaro/trustboard/server"
	"github.com/stokaro/trustboard/session"
	"github.com/stokaro/trustboard/store"
	"github.com/stokaro/trustboard/uploads"
)

var serveFlags = map[string]cobraflags.Flag{
	config.KeyListen: &cobraflags.StringFlag{
		Name:  config.KeyListen,
		Usage: "Address to listen on (default :$PORT or :4200)",
	},
	config.KeyEnv: &cobraflags.StringFlag{
		Name:  config.KeyEnv,
		Usage: "Environment: production hides reset tokens from responses (default development)",
	},
	config.KeyBaseURL: &cobraflags.StringFlag{
		Name:  config.KeyBaseURL,
		Usage: "Public origin used in reset links, canonical URLs and the sitemap",
	},
	config.KeySessionSecret: &cobraflags.StringFlag{
		Name:  config.KeySessionSecret,
		Usage: "Secret signing the session cookie",
	},
	config.KeyCookieSecure: &cobraflags.StringFlag{
		Name:  config.KeyCookieSecure,
		Usage: "Mark the session cookie Secure (true or false)",
	},
	config.KeyUploadDir: &cobraflags.StringFlag{
		Name:  config.KeyUploadDir,
		Usage: "Directory for uploaded attachments (default uploads)",
	},
}

// NewServeCommand returns the command running the web server.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the community web server",
		Long: `Apply pending migrations, make sure the bootstrap administrator exists and
serve the API, crawler documents and detail pages until interrupted.`,
		Args: cobra.NoArgs,
		RunE: serveCommand,
	}
	cobraflags.RegisterMap(cmd, cmdutil.CommonFlags())
	cobraflags.RegisterMap(cmd, serveFlags)
	return cmd
}

func serveCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	env, err := cmdutil.Setup(cmd)
	if err != nil {
		return err
	}
	defer env.Close()
	cfg, logger := env.Config, env.Logger

	conn, err := env.Connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := env.Migrate(ctx, conn); err != nil {
		return err
	}

	clk := clock.Real()
	st := store.New(conn, clk)

	files, err := uploads.New(cfg.Uploads)
	if err != nil {
		return err
	}
	files = files.WithLogger(logger)

	authSvc := auth.NewService(st, mailer.New(cfg.SMTP, logger), clk, auth.Options{
		Production: cfg.Production(),
		BaseURL:    cfg.BaseURL,
	}).WithLogger(logger)

	created, err := authSvc.SeedAdmin(ctx, cfg.Admin.Username, cfg.Admin.Email, cfg.Admin.Password)
	if err != nil {
		return fmt.Errorf("failed to seed admin: %w", err)
	}
	if created {
		logger.Warn("Created bootstrap administrator, change its password", "username", cfg.Admin.Username)
	}

	pages, err := seo.NewRenderer(cfg.BaseURL)
	if err != nil {
		return err
	}

	sessions := session.NewManager(session.NewSQLStore(conn, clk), cfg.Session.Secret,
		session.WithTTL(cfg.Session.TTL),
		session.WithSecureCookie(cfg.Session.CookieSecure),
		session.WithClock(clk),
	).WithLogger(logger)

	srv := server.New(server.Deps{
		Sessions:  sessions,
		Auth:      authSvc,
		Forum:     forum.NewService(st, files).WithLogger(logger),
		Directory: directory.NewService(st, clk).WithLogger(logger),
		Admin:     admin.NewService(st, files).WithLogger(logger),
		Latest:    cache.NewLatest(st, cfg.CacheTTL, clk),
		Uploads:   files,
		Pages:     pages,
		Sitemap:   st,
		Ping:      conn.PingContext,
		BaseURL:   cfg.BaseURL,
		Clock:     clk,
	}).WithLogger(logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sessions.RunCleanup(gctx, cfg.Session.CleanupInterval, st.PurgeExpiredResetTokens)
		return nil
	})
	g.Go(func() error {
		return srv.Run(gctx, cfg.Listen, cfg.ShutdownTimeout)
	})
	return g.Wait()
}
