package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pkt.systems/shpipe"
	"pkt.systems/shpipe/adapters/shelllauncher"
)

// exitError propagates the child's exit code to main without printing
// an error message.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

type options struct {
	inputPath  string
	envPairs   []string
	shell      string
	trace      bool
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:     "shpipe [flags] -- COMMAND",
		Short:   "Run a shell command, feeding its stdin and capturing its stdout",
		Long:    "shpipe runs COMMAND under an interpreter (default /bin/bash -c), streams the --input bytes into its stdin and prints everything it writes to stdout. The process exits with the child's exit code.",
		Version: version,
		Args:    cobra.MinimumNArgs(1),

		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd, opts, args)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.inputPath, "input", "i", "", `file fed to the child's stdin ("-" for this process's stdin)`)
	flags.StringArrayVarP(&opts.envPairs, "env", "e", nil, "KEY=VALUE environment override (repeatable)")
	flags.StringVarP(&opts.shell, "shell", "s", "", `interpreter argv, space separated (default "/bin/bash -c")`)
	flags.BoolVar(&opts.trace, "trace", false, "log every pipe event to stderr")
	flags.StringVar(&opts.configPath, "config", "", "TOML config file (default "+defaultConfigPath()+")")
	return cmd
}

func runRoot(cmd *cobra.Command, opts *options, args []string) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.shell != "" {
		cfg.Interpreter = strings.Fields(opts.shell)
	}
	if opts.trace {
		cfg.Trace = true
	}
	if cfg.Trace && cfg.Logger == nil {
		logger, lerr := zap.NewDevelopment()
		if lerr != nil {
			return fmt.Errorf("trace logger: %w", lerr)
		}
		defer logger.Sync()
		cfg.Logger = logger
	}

	env, err := parseEnvPairs(opts.envPairs)
	if err != nil {
		return err
	}

	var input []byte
	switch opts.inputPath {
	case "":
	case "-":
		input, err = io.ReadAll(cmd.InOrStdin())
	default:
		input, err = os.ReadFile(opts.inputPath)
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	res := shpipe.RunWith(cmd.Context(), shelllauncher.Default, cfg, strings.Join(args, " "), input, env)
	if _, werr := cmd.OutOrStdout().Write(res.Output); werr != nil {
		return werr
	}
	if res.Error != nil {
		return res.Error
	}
	if res.ExitCode != 0 {
		return &exitError{code: res.ExitCode}
	}
	return nil
}

func parseEnvPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --env %q, want KEY=VALUE", pair)
		}
		env[key] = value
	}
	return env, nil
}
