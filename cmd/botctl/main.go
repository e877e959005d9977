package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"connectrpc.com/connect"
	"github.com/spf13/cobra"

	"github.com/Anmol9893/botservice/internal/connectutil"
	"github.com/Anmol9893/botservice/internal/turn/turnv1"
)

// clientFactory builds the TurnService client for one command run.
type clientFactory func(addr, token string, timeout time.Duration) turnv1.TurnServiceClient

// globalFlags are shared by every subcommand.
type globalFlags struct {
	addr    string
	token   string
	timeout time.Duration
	dial    clientFactory
}

func (g *globalFlags) client() turnv1.TurnServiceClient {
	return g.dial(g.addr, g.token, g.timeout)
}

// newRootCmd builds a fresh command tree. dial may be nil for the default
// HTTP client.
func newRootCmd(dial clientFactory) *cobra.Command {
	if dial == nil {
		dial = dialHTTP
	}
	g := &globalFlags{dial: dial}

	root := &cobra.Command{
		Use:          "botctl",
		Short:        "Talk to and inspect a running bot service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.addr, "addr", envOr("BOTCTL_ADDR", "http://localhost:8080"), "bot service base URL")
	root.PersistentFlags().StringVar(&g.token, "token", os.Getenv("BOTCTL_TOKEN"), "bearer token sent with every call")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 10*time.Second, "per-call timeout")

	root.AddCommand(newChatCmd(g), newInspectCmd(g), newResetCmd(g))
	return root
}

func dialHTTP(addr, token string, timeout time.Duration) turnv1.TurnServiceClient {
	opts := connectutil.ClientOptions()
	if token != "" {
		opts = append(opts, connect.WithInterceptors(bearer(token)))
	}
	return turnv1.NewTurnServiceClient(&http.Client{Timeout: timeout}, addr, opts...)
}

func bearer(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			req.Header().Set("Authorization", "Bearer "+token)
			return next(ctx, req)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := newRootCmd(nil).Execute(); err != nil {
		os.Exit(1)
	}
}
