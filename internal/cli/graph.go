package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cfncheck/cfncheck/internal/graph"
	"github.com/cfncheck/cfncheck/internal/logger"
	"github.com/cfncheck/cfncheck/internal/parser"
)

// watchInterval is how often a served template is checked for changes.
const watchInterval = time.Second

func newGraphCommand() *cobra.Command {
	var serve string
	cmd := &cobra.Command{
		Use:   "graph <file|->",
		Short: "Print the dependency graph of a template as Mermaid",
		Long: "Print the dependency graph of a template as Mermaid.\n\n" +
			"With --serve the graph is shown in a browser and redrawn whenever the file changes.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			g, err := loadGraph(name, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if serve == "" {
				_, err := io.WriteString(cmd.OutOrStdout(), g.Mermaid())
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			srv := graph.NewServer(name, g)
			if name != "-" {
				go watchGraph(ctx, name, srv, watchInterval)
			}
			return srv.Serve(ctx, serve)
		},
	}
	cmd.Flags().StringVar(&serve, "serve", "", "serve an HTML view on this address, e.g. localhost:8080")
	return cmd
}

func loadGraph(name string, stdin io.Reader) (*graph.Graph, error) {
	var (
		content []byte
		err     error
	)
	if name == "-" {
		content, err = io.ReadAll(stdin)
	} else {
		content, err = os.ReadFile(name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", name)
	}
	tmpl, err := parser.Parse(content)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", name)
	}
	return graph.Build(tmpl.Root), nil
}

// watchGraph rebuilds the served graph whenever path's modification time or
// size changes, until ctx is done. An empty file is treated as a save in
// progress, and a template that no longer parses keeps the last good graph.
func watchGraph(ctx context.Context, path string, srv *graph.Server, interval time.Duration) {
	stamp := func() (time.Time, int64) {
		info, err := os.Stat(path)
		if err != nil {
			return time.Time{}, -1
		}
		return info.ModTime(), info.Size()
	}
	// The first successful stat always rebuilds, catching edits made between
	// the initial load and the start of the watch.
	var lastMod time.Time
	lastSize := int64(-2)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		mod, size := stamp()
		if size <= 0 || (mod.Equal(lastMod) && size == lastSize) {
			continue
		}
		lastMod, lastSize = mod, size

		g, err := loadGraph(path, nil)
		if err != nil {
			logger.Warnf("graph not updated: %v", err)
			continue
		}
		logger.Debugf("graph of %s rebuilt: %d nodes, %d edges", path, len(g.Nodes), len(g.Edges))
		srv.SetGraph(g)
	}
}
