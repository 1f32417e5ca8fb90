package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Ankesh2004/swarmfs/internal/peer"
)

// shell is the interactive terminal for a running peer.
type shell struct {
	node *peer.Node
	in   *bufio.Scanner
	out  io.Writer
}

func newShell(n *peer.Node, in io.Reader, out io.Writer) *shell {
	return &shell{node: n, in: bufio.NewScanner(in), out: out}
}

func (s *shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

// run reads commands until "exit", end of input or ctx is done. Downloads
// started here run in the background and outlive the command that started
// them, but not the shell.
func (s *shell) run(ctx context.Context) {
	s.printf("\n>>> Sharing %s as %s\n", s.node.MountDir, s.node.Self())
	s.printf(">>> Type 'help' for available commands.\n")

	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		for s.in.Scan() {
			select {
			case lines <- s.in.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		s.printf("\nswarm> ")
		var input string
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			input = strings.TrimSpace(line)
		}
		if input == "" {
			continue
		}
		if !s.exec(ctx, input) {
			return
		}
	}
}

// exec runs one command line and reports whether the shell should continue.
func (s *shell) exec(ctx context.Context, input string) bool {
	parts := strings.Fields(input)
	cmd, args := parts[0], parts[1:]

	switch cmd {
	case "help":
		s.printf("Available Commands:\n")
		s.printf("  list [pattern]   - List files known to the tracker\n")
		s.printf("  get <file>       - Download a file in the background\n")
		s.printf("  downloads        - Show active downloads with percent complete\n")
		s.printf("  local            - Show files this peer holds\n")
		s.printf("  id               - Show this peer's endpoint\n")
		s.printf("  exit             - Stop the peer and exit\n")

	case "list":
		pattern := ""
		if len(args) > 0 {
			pattern = args[0]
		}
		files, err := s.node.ListFiles(ctx, pattern)
		if err != nil {
			s.printf("Error: list failed: %v\n", err)
			return true
		}
		if len(files) == 0 {
			s.printf("No files.\n")
		}
		for i, f := range files {
			s.printf("%d. %s (%d bytes)\n", i+1, f.Name, f.Length)
		}

	case "get":
		if len(args) < 1 {
			s.printf("Error: missing file name. Usage: get <file>\n")
			return true
		}
		for _, name := range args {
			d, err := s.node.Download(ctx, name)
			if err != nil {
				s.printf("Error: %s: %v\n", name, err)
				continue
			}
			s.printf("Downloading %s...\n", d.Name)
		}

	case "downloads":
		active := s.node.Downloader.Active()
		if len(active) == 0 {
			s.printf("No active downloads.\n")
		}
		for _, d := range active {
			done, total := d.Progress()
			s.printf("Downloading: %s - %.2f%% complete (%d/%d chunks)\n", d.Name, d.Percent(), done, total)
		}

	case "local":
		for _, e := range s.node.Catalog.List() {
			s.printf("  %s  %d bytes  %d/%d chunks\n", e.Manifest.Name, e.Manifest.Length, len(e.Owned), len(e.Manifest.Hashes))
		}

	case "id":
		s.printf("Endpoint : %s\n", s.node.Self())
		s.printf("Tracker  : %s\n", s.node.TrackerAddr)
		s.printf("Mount    : %s\n", s.node.MountDir)

	case "exit", "quit":
		s.printf("Stopping peer...\n")
		return false

	default:
		s.printf("Unknown command: %s. Type 'help' for info.\n", cmd)
	}
	return true
}
