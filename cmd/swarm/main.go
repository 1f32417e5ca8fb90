package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Ankesh2004/swarmfs/internal/integrity"
	"github.com/Ankesh2004/swarmfs/internal/peer"
	"github.com/Ankesh2004/swarmfs/internal/protocol"
	"github.com/Ankesh2004/swarmfs/internal/tracker"
)

const defaultTrackerAddr = "127.0.0.1:5000"

// globalFlags are shared by every subcommand. Chunk size must match between
// the tracker and all peers.
type globalFlags struct {
	logLevel    string
	chunkSize   int64
	callTimeout time.Duration
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:          "swarm",
		Short:        "Tracker-coordinated peer-to-peer file sharing",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			level, err := log.ParseLevel(g.logLevel)
			if err != nil {
				return err
			}
			log.SetLevel(level)
			log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
			if g.chunkSize <= 0 || g.chunkSize > protocol.MaxChunkSize {
				return fmt.Errorf("--chunk-size must be in (0, %d]", protocol.MaxChunkSize)
			}
			return nil
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&g.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.Int64Var(&g.chunkSize, "chunk-size", protocol.DefaultChunkSize, "chunk size in bytes; must match the tracker")
	flags.DurationVar(&g.callTimeout, "timeout", protocol.DefaultCallTimeout, "per-request network timeout")

	root.AddCommand(newTrackerCommand(g), newPeerCommand(g), newFetchCommand(g))
	return root
}

func newTrackerCommand(g *globalFlags) *cobra.Command {
	var (
		listen        string
		statsInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "tracker",
		Short: "Run the tracker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := tracker.NewServer(tracker.Options{
				ListenAddr:    listen,
				ChunkSize:     g.chunkSize,
				CallTimeout:   g.callTimeout,
				StatsInterval: statsInterval,
				Logger:        log.WithField("component", "tracker"),
			})
			if err := s.Start(); err != nil {
				return err
			}
			defer s.Stop()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			log.Info("shutting down tracker")
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", defaultTrackerAddr, "address to listen on")
	cmd.Flags().DurationVar(&statsInterval, "stats-interval", time.Minute, "how often to log registry stats (0 disables)")
	return cmd
}

type peerFlags struct {
	mount       string
	tracker     string
	listen      string
	advertise   string
	algorithm   string
	concurrency int
}

func (p *peerFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&p.mount, "mount", "m", "", "directory to share and download into (required)")
	cmd.Flags().StringVarP(&p.tracker, "tracker", "t", defaultTrackerAddr, "tracker address")
	cmd.Flags().StringVar(&p.listen, "listen", peer.DefaultListenAddr, "chunk server address; port 0 picks a free port")
	cmd.Flags().StringVar(&p.advertise, "advertise-host", "", "host other peers should dial (defaults to the listen host)")
	cmd.Flags().StringVar(&p.algorithm, "algorithm", integrity.DefaultAlgorithm, fmt.Sprintf("chunk digest for shared files %v", integrity.Algorithms()))
	cmd.Flags().IntVar(&p.concurrency, "concurrency", protocol.DefaultConcurrency, "chunks fetched in parallel per download")
	_ = cmd.MarkFlagRequired("mount")
}

// startPeer builds, starts and mounts a node.
func startPeer(ctx context.Context, g *globalFlags, p *peerFlags) (*peer.Node, error) {
	n, err := peer.NewNode(peer.Options{
		MountDir:      p.mount,
		ListenAddr:    p.listen,
		AdvertiseHost: p.advertise,
		TrackerAddr:   p.tracker,
		ChunkSize:     g.chunkSize,
		Algorithm:     p.algorithm,
		Concurrency:   p.concurrency,
		CallTimeout:   g.callTimeout,
		Logger:        log.WithField("component", "peer"),
	})
	if err != nil {
		return nil, err
	}
	if err := n.Start(); err != nil {
		return nil, err
	}
	if _, err := n.Mount(ctx); err != nil {
		n.Stop()
		return nil, err
	}
	return n, nil
}

func newPeerCommand(g *globalFlags) *cobra.Command {
	p := &peerFlags{}
	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Share a directory and download files interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			n, err := startPeer(ctx, g, p)
			if err != nil {
				return err
			}
			defer n.Stop()

			newShell(n, os.Stdin, cmd.OutOrStdout()).run(ctx)
			return nil
		},
	}
	p.bind(cmd)
	return cmd
}

func newFetchCommand(g *globalFlags) *cobra.Command {
	p := &peerFlags{}
	var linger time.Duration
	cmd := &cobra.Command{
		Use:   "fetch <file>...",
		Short: "Download files into the mount directory and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			n, err := startPeer(ctx, g, p)
			if err != nil {
				return err
			}
			defer n.Stop()

			for _, name := range args {
				d, err := n.Download(ctx, name)
				if err != nil {
					return fmt.Errorf("download %s: %w", name, err)
				}
				if err := waitWithProgress(ctx, cmd, d); err != nil {
					return fmt.Errorf("download %s: %w", name, err)
				}
			}

			// keep serving for a while so others can pull from us
			if linger > 0 {
				select {
				case <-time.After(linger):
				case <-ctx.Done():
				}
			}
			return nil
		},
	}
	p.bind(cmd)
	cmd.Flags().DurationVar(&linger, "linger", 0, "keep serving chunks this long after the downloads finish")
	return cmd
}

func waitWithProgress(ctx context.Context, cmd *cobra.Command, d *peer.Download) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-d.Done():
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %.2f%%\n", d.Name, d.Percent())
			return d.Err()
		case <-ticker.C:
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %.2f%%\n", d.Name, d.Percent())
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
