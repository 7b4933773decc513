// Command inspector connects to an MCP server through the inspector proxy
// and tails the connection's traffic history from the terminal.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/segun/mcp-inspector/auth"
	"github.com/segun/mcp-inspector/client"
	"github.com/segun/mcp-inspector/events"
	"github.com/segun/mcp-inspector/mcp"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "inspector",
		Short:   "MCP Inspector - connect to and observe an MCP server",
		Version: version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	rootCmd.AddCommand(newConnectCommand())
	return rootCmd
}

type connectFlags struct {
	proxyAddr string
	transport string
	command   string
	args      []string
	env       []string
	serverURL string
	verbose   bool
}

func newConnectCommand() *cobra.Command {
	flags := &connectFlags{}

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to an MCP server and tail its traffic",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConnect(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.proxyAddr, "proxy", "http://localhost:6277", "backend proxy address")
	cmd.Flags().StringVar(&flags.transport, "transport", "stdio", "transport type (stdio or sse)")
	cmd.Flags().StringVar(&flags.command, "command", "", "server command (stdio transport)")
	cmd.Flags().StringSliceVar(&flags.args, "args", nil, "server command arguments (stdio transport)")
	cmd.Flags().StringSliceVar(&flags.env, "env", nil, "server environment, KEY=VALUE (stdio transport)")
	cmd.Flags().StringVar(&flags.serverURL, "url", "", "remote server URL (sse transport)")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")

	return cmd
}

func runConnect(ctx context.Context, flags *connectFlags) error {
	level := slog.LevelInfo
	if flags.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))

	target, err := buildTarget(flags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	flow := auth.NewFlow(auth.NewSessionStore(),
		auth.Config{ClientID: "mcp-inspector"},
		auth.WithLogger(logger),
		auth.WithNavigator(auth.NavigatorFunc(func(url string) error {
			fmt.Fprintf(os.Stderr, "\nAuthorization required. Open this URL in a browser:\n\n  %s\n\n", url)
			return nil
		})),
	)

	conn := client.NewConnection(flags.proxyAddr, target,
		client.WithLogger(logger),
		client.WithAuthFlow(flow),
		client.WithToaster(client.ToasterFunc(func(level, message string) {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", level, message)
		})),
		client.WithStderrNotificationHandler(func(n mcp.ServerNotification) {
			if params, err := mcp.ParseStderr(n.Params); err == nil {
				fmt.Fprintf(os.Stderr, "server: %s", params.Content)
			}
		}),
	)

	tailHistory(conn)

	conn.Connect(ctx)
	switch conn.Status() {
	case client.StatusConnected:
		printCapabilities(conn.Capabilities())
	case client.StatusError:
		return fmt.Errorf("connection to %s failed", flags.proxyAddr)
	default:
		// Disconnected with a pending authorization redirect.
		return nil
	}

	<-ctx.Done()
	return conn.Disconnect()
}

func tailHistory(conn *client.Connection) {
	events.Subscribe(conn.Events(), events.TopicHistoryAppended,
		func(_ context.Context, evt events.HistoryAppendedEvent) error {
			fmt.Printf("→ #%d %s\n", evt.ID, evt.Method)
			return nil
		})
	events.Subscribe(conn.Events(), events.TopicRequestFailed,
		func(_ context.Context, evt events.RequestFailedEvent) error {
			fmt.Printf("✗ %s: %s\n", evt.Method, evt.Error)
			return nil
		})
	events.Subscribe(conn.Events(), events.TopicStatusChanged,
		func(_ context.Context, evt events.StatusChangedEvent) error {
			fmt.Printf("status: %s → %s\n", evt.From, evt.To)
			return nil
		})
}

func buildTarget(flags *connectFlags) (client.Target, error) {
	switch flags.transport {
	case string(client.TransportStdio):
		if flags.command == "" {
			return client.Target{}, fmt.Errorf("--command is required for stdio transport")
		}
		env := make(map[string]string, len(flags.env))
		for _, kv := range flags.env {
			key, value, ok := strings.Cut(kv, "=")
			if !ok {
				return client.Target{}, fmt.Errorf("invalid --env entry %q, want KEY=VALUE", kv)
			}
			env[key] = value
		}
		return client.Target{
			Kind:    client.TransportStdio,
			Command: flags.command,
			Args:    flags.args,
			Env:     env,
		}, nil
	case string(client.TransportSSE):
		if flags.serverURL == "" {
			return client.Target{}, fmt.Errorf("--url is required for sse transport")
		}
		return client.Target{Kind: client.TransportSSE, URL: flags.serverURL}, nil
	default:
		return client.Target{}, fmt.Errorf("unsupported transport %q", flags.transport)
	}
}

func printCapabilities(caps *mcp.ServerCapabilities) {
	if caps == nil {
		fmt.Println("connected; server declared no capabilities")
		return
	}
	var features []string
	if caps.Tools != nil {
		features = append(features, "tools")
	}
	if caps.Resources != nil {
		features = append(features, "resources")
	}
	if caps.Prompts != nil {
		features = append(features, "prompts")
	}
	if caps.Logging != nil {
		features = append(features, "logging")
	}
	if len(features) == 0 {
		fmt.Println("connected; server declared no capabilities")
		return
	}
	fmt.Printf("connected; server capabilities: %s\n", strings.Join(features, ", "))
}
