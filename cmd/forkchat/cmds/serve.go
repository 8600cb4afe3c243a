package cmds

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/go-go-golems/forkchat/pkg/server"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func NewServeCommand() (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the branch API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), viper.GetViper())
		},
	}

	fs := cmd.Flags()
	fs.Int("port", server.DefaultPort, "Port to listen on (also read from $PORT)")
	fs.String("cors-origin", server.DefaultCORSOrigin, "Allowed CORS origin (empty disables CORS headers)")
	fs.Duration("read-timeout", server.DefaultReadTimeout, "Timeout for reading request headers")
	fs.Duration("shutdown-timeout", server.DefaultShutdownTimeout, "Grace period for in-flight requests on shutdown")
	fs.Bool("tokens", true, "Report a token estimate with each history")
	fs.String("chat-branch", server.DefaultChatBranch, "Branch used by POST /api/chat")

	if err := viper.BindPFlags(fs); err != nil {
		return nil, err
	}
	if err := viper.BindEnv("port", "FORKCHAT_PORT", "PORT"); err != nil {
		return nil, err
	}

	return cmd, nil
}

func runServe(ctx context.Context, v *viper.Viper) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(v)
	if err != nil {
		return err
	}

	options := []server.Option{
		server.WithPort(v.GetInt("port")),
		server.WithCORSOrigin(v.GetString("cors-origin")),
		server.WithReadTimeout(v.GetDuration("read-timeout")),
		server.WithShutdownTimeout(v.GetDuration("shutdown-timeout")),
		server.WithChatBranch(v.GetString("chat-branch")),
		server.WithInfo(server.Info{
			Engine: string(app.Settings.Chat.Provider()),
			Model:  app.Settings.Chat.EngineName(),
		}),
		server.WithMetricsHandler(promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{})),
	}
	if v.GetBool("tokens") {
		tc, err := conversation.NewDefaultTokenCounter()
		if err != nil {
			log.Warn().Err(err).Msg("token estimates disabled")
		} else {
			options = append(options, server.WithTokenCounter(tc))
		}
	}
	srv := server.NewServer(app.Manager, options...)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return app.RunRouter(ctx)
	})
	eg.Go(func() error {
		select {
		case <-app.Router.Running():
		case <-ctx.Done():
			return nil
		}
		return srv.Run(ctx)
	})

	err = eg.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("Server stopped")
	return nil
}
