// Command localvcs edits a versioned file tree from the shell.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/meigma/localvcs"
	"github.com/meigma/localvcs/content"
	"github.com/meigma/localvcs/internal/config"
	"github.com/meigma/localvcs/paths"
	"github.com/meigma/localvcs/tree"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "localvcs: %v\n", err)
		os.Exit(1)
	}
}

// env is what a command runs with.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	stdin  io.Reader
	stdout io.Writer
	now    func() int64
}

type command struct {
	usage string
	help  string
	args  int // exact positional argument count, or -1 to let run check
	run   func(e *env, args []string) error
}

var commands = map[string]command{
	"init":       {usage: "init", help: "create the repository", args: 0, run: cmdInit},
	"mkdir":      {usage: "mkdir PATH", help: "create a directory", args: 1, run: cmdMkdir},
	"write":      {usage: "write PATH [FILE]", help: "create or replace a file from FILE or stdin", args: -1, run: cmdWrite},
	"mv":         {usage: "mv PATH DIR", help: "move an entry into DIR (\"\" is the root)", args: 2, run: cmdMove},
	"rename":     {usage: "rename PATH NAME", help: "rename an entry", args: 2, run: cmdRename},
	"rm":         {usage: "rm PATH", help: "delete an entry and its contents", args: 1, run: cmdRemove},
	"ls":         {usage: "ls [PATH]", help: "list entries", args: -1, run: cmdList},
	"cat":        {usage: "cat PATH", help: "print a file", args: 1, run: cmdCat},
	"log":        {usage: "log", help: "show changes since the last checkpoint", args: 0, run: cmdLog},
	"undo":       {usage: "undo [-n COUNT]", help: "revert the most recent changes", args: -1, run: cmdUndo},
	"checkpoint": {usage: "checkpoint", help: "save the tree and clear the history", args: 0, run: cmdCheckpoint},
	"verify":     {usage: "verify", help: "check stored payloads against their digests", args: 0, run: cmdVerify},
	"prune":      {usage: "prune", help: "delete payloads nothing refers to", args: 0, run: cmdPrune},
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var (
		configPath  string
		dir         string
		caseMode    string
		compression string
		logLevel    string
	)
	flagSet := pflag.NewFlagSet("localvcs", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&configPath, "config", "", "path to a YAML config file (default: $"+config.EnvVar+")")
	flagSet.StringVarP(&dir, "dir", "C", "", "repository directory")
	flagSet.StringVar(&caseMode, "case-mode", "", "name comparison for new repositories: sensitive or insensitive")
	flagSet.StringVar(&compression, "compression", "", "object compression: zstd, lz4 or none")
	flagSet.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	flagSet.Usage = func() { printHelp(stderr, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() == 0 {
		printHelp(stderr, flagSet)
		return errors.New("no command given")
	}

	name, rest := flagSet.Arg(0), flagSet.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}
	if cmd.args >= 0 && len(rest) != cmd.args {
		return fmt.Errorf("usage: localvcs %s", cmd.usage)
	}

	if configPath == "" {
		configPath = os.Getenv(config.EnvVar)
	}
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	if dir != "" {
		cfg.Dir = dir
	}
	if caseMode != "" {
		cfg.CaseMode = caseMode
	}
	if compression != "" {
		cfg.Compression = compression
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	e := &env{
		cfg:    cfg,
		logger: logger,
		stdin:  stdin,
		stdout: stdout,
		now:    func() int64 { return time.Now().UnixMilli() },
	}
	return cmd.run(e, rest)
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, "localvcs keeps a file tree with undo history.\n\nUsage:\n  localvcs [flags] COMMAND [args]\n\nCommands:\n")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range slices.Sorted(maps.Keys(commands)) {
		fmt.Fprintf(tw, "  %s\t%s\n", commands[name].usage, commands[name].help)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\nFlags:\n%s", flagSet.FlagUsages())
}

// open opens the configured repository and passes it to fn, closing it
// afterwards so pending changes are flushed.
func (e *env) open(init bool, fn func(r *localvcs.Repository) error) (err error) {
	opts, err := e.cfg.RepositoryOptions(e.logger, init)
	if err != nil {
		return err
	}
	if !init {
		if _, statErr := os.Stat(e.cfg.Dir); statErr != nil {
			return fmt.Errorf("no repository at %s (run \"localvcs init\"): %w", e.cfg.Dir, statErr)
		}
	}
	r, err := localvcs.Open(e.cfg.Dir, opts...)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, r.Close())
	}()
	return fn(r)
}

func cmdInit(e *env, _ []string) error {
	return e.open(true, func(r *localvcs.Repository) error {
		fmt.Fprintf(e.stdout, "initialized %s (case %s)\n", r.Dir(), r.CaseMode())
		return nil
	})
}

func cmdMkdir(e *env, args []string) error {
	return e.open(false, func(r *localvcs.Repository) error {
		_, err := r.CreateDirectory(args[0], e.now())
		return err
	})
}

func cmdWrite(e *env, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: localvcs %s", "write PATH [FILE]")
	}
	var src io.Reader = e.stdin
	if len(args) == 2 && args[1] != "-" {
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	body := content.New(data)

	return e.open(false, func(r *localvcs.Repository) error {
		entry, err := r.Entry(args[0])
		switch {
		case errors.Is(err, localvcs.ErrEntryNotFound):
			_, err = r.CreateFile(args[0], body, e.now())
			return err
		case err != nil:
			return err
		case entry.Content.Equal(body):
			return nil
		default:
			return r.ChangeFileContent(args[0], body, e.now())
		}
	})
}

func cmdMove(e *env, args []string) error {
	return e.open(false, func(r *localvcs.Repository) error {
		return r.Move(args[0], args[1])
	})
}

func cmdRename(e *env, args []string) error {
	return e.open(false, func(r *localvcs.Repository) error {
		return r.Rename(args[0], args[1])
	})
}

func cmdRemove(e *env, args []string) error {
	return e.open(false, func(r *localvcs.Repository) error {
		return r.Delete(args[0])
	})
}

func cmdList(e *env, args []string) error {
	if len(args) > 1 {
		return fmt.Errorf("usage: localvcs %s", "ls [PATH]")
	}
	root := ""
	if len(args) == 1 {
		root = args[0]
	}
	return e.open(false, func(r *localvcs.Repository) error {
		t := r.Tree()
		if root != "" {
			dir, err := t.Entry(root)
			if err != nil {
				return err
			}
			if dir.Kind != tree.KindDirectory {
				return fmt.Errorf("ls %q: %w", root, localvcs.ErrNotADirectory)
			}
		}

		tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
		for path, entry := range t.All() {
			if root != "" {
				if _, ok := paths.WithoutRootIfUnder(path, root, t.CaseMode()); !ok {
					continue
				}
			}
			kind, size := "d", "-"
			if entry.Kind == tree.KindFile {
				kind = "f"
				if !entry.Content.IsAbsent() {
					size = fmt.Sprint(entry.Content.Len())
				}
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", kind, entry.ID, size, path)
		}
		return tw.Flush()
	})
}

func cmdCat(e *env, args []string) error {
	return e.open(false, func(r *localvcs.Repository) error {
		body, err := r.ReadFile(args[0])
		if err != nil {
			return err
		}
		_, err = e.stdout.Write(body.Bytes())
		return err
	})
}

func cmdLog(e *env, _ []string) error {
	return e.open(false, func(r *localvcs.Repository) error {
		for i, c := range r.History() {
			fmt.Fprintf(e.stdout, "%d\t%s\n", i+1, c)
		}
		return nil
	})
}

func cmdUndo(e *env, args []string) error {
	flagSet := pflag.NewFlagSet("undo", pflag.ContinueOnError)
	count := flagSet.IntP("count", "n", 1, "number of changes to revert")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 0 || *count < 1 {
		return fmt.Errorf("usage: localvcs %s", "undo [-n COUNT]")
	}

	return e.open(false, func(r *localvcs.Repository) error {
		for range *count {
			c, err := r.Revert()
			if err != nil {
				return err
			}
			fmt.Fprintf(e.stdout, "reverted %s\n", c)
		}
		return nil
	})
}

func cmdCheckpoint(e *env, _ []string) error {
	return e.open(false, func(r *localvcs.Repository) error {
		n := len(r.History())
		if err := r.Checkpoint(); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "checkpoint written, %d %s folded in\n", n, plural(n, "change"))
		return nil
	})
}

func cmdVerify(e *env, _ []string) error {
	return e.open(false, func(r *localvcs.Repository) error {
		if err := r.Verify(context.Background()); err != nil {
			return err
		}
		fmt.Fprintln(e.stdout, "ok")
		return nil
	})
}

func cmdPrune(e *env, _ []string) error {
	return e.open(false, func(r *localvcs.Repository) error {
		n, err := r.Prune()
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "removed %d %s\n", n, plural(n, "payload"))
		return nil
	})
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
