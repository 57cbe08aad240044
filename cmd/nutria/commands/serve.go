package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/nutria-ai/nutria-go/internal/logging"
	"github.com/nutria-ai/nutria-go/internal/server"
	"github.com/nutria-ai/nutria-go/internal/tracing"
)

// NewServeCmd constructs the `nutria serve` command, which starts the HTTP
// server exposing the three plan motors as a REST API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Nutria HTTP server",
		Long: `Start the Nutria HTTP server on localhost.

The server exposes the plan engine over REST: POST /api/plan/new,
/api/plan/control, and /api/plan/replace, plus health, readiness, and
Prometheus metrics endpoints.

Examples:
  nutria serve
  nutria serve --port 9090
  MODEL_PROVIDER=openai nutria serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			deps, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer deps.close()

			srv, err := server.New(deps.pipeline, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: deps.pingers,
				APIKey:  os.Getenv("NUTRIA_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
