package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"chat-relay/internal/domain"
	"chat-relay/internal/identity"
	"chat-relay/internal/platform/config"
)

const shutdownTimeout = 10 * time.Second

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chat-relay",
		Short:         "Relay WhatsApp webhook messages to a conversational agent",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return report(err)
			}
			if cfg.InLambda() {
				return report(runLambda(cmd.Context(), cfg))
			}
			return report(runServe(cmd.Context(), cfg))
		},
	}
	root.AddCommand(serveCmd(), lambdaCmd(), sessionKeyCmd())
	return root
}

func serveCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return report(err)
			}
			if port != "" {
				cfg.Port = port
			}
			return report(runServe(cmd.Context(), cfg))
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port or address (overrides PORT)")
	return cmd
}

func lambdaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Run as an API Gateway Lambda handler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return report(err)
			}
			return report(runLambda(cmd.Context(), cfg))
		},
	}
}

func sessionKeyCmd() *cobra.Command {
	var (
		namespace string
		salt      string
	)
	cmd := &cobra.Command{
		Use:   "session-key [sender]",
		Short: "Print the session key derived for a sender",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := identity.NewDeriver(namespace)
			if err != nil {
				return report(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), d.DeriveSessionKey(domain.SenderIdentity(args[0]), salt))
			return nil
		},
	}
	cmd.Flags().StringVar(&namespace, "namespace", defaultNamespace(), "session key namespace")
	cmd.Flags().StringVar(&salt, "salt", "", "rotation salt")
	return cmd
}

func runServe(ctx context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		a.logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", "err", err)
	}
	if err := a.shutdown(shutdownCtx); err != nil {
		a.logger.Warn("tracing shutdown", "err", err)
	}
	return nil
}

func runLambda(ctx context.Context, cfg config.Config) error {
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	lambda.StartWithOptions(a.handler.Handle,
		lambda.WithEnableSIGTERM(func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = a.shutdown(shutdownCtx)
		}),
	)
	return nil
}

// report prints err to stderr and returns it unchanged.
func report(err error) error {
	if err != nil {
		fmt.Fprintln(os.Stderr, "chat-relay:", err)
	}
	return err
}

// defaultNamespace is the configured session namespace, or the built-in one
// when the environment does not parse.
func defaultNamespace() string {
	cfg, err := config.Load()
	if err != nil {
		return identity.DefaultNamespace
	}
	return cfg.SessionNamespace
}
