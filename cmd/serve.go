package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the CV analysis HTTP API",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("addr", "a", "", "listen address (default is :8000)")

	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer logger.Sync() //nolint:errcheck

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the cv-screener server", zap.String("version", version))

	pool, closePool, err := newScorePool(ctx, config.Scores, logger)
	if err != nil {
		logger.Fatal("preparing the score registry", zap.Error(err))
	}
	defer closePool()

	srv := server.New(newAnalyzer(ctx, config, logger), pool,
		server.WithLogger(logger),
		server.WithMaxBodyBytes(config.Server.MaxBodyBytes),
	)
	if err := srv.ListenAndServe(ctx, config.Server.Addr); err != nil {
		logger.Error("serving", zap.Error(err))
	}
}
