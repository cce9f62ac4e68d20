package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	keepself "github.com/axondata/go-keepself"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- COMMAND [ARGS...]",
	Short: "Run a command and restart it whenever it exits",
	Long: `Run a command as a supervised worker.

The command is restarted after it exits unless its exit code is excluded.
SIGINT, SIGQUIT and SIGTERM are forwarded to the command and end
supervision; keepself then exits with the command's exit code.

The worker identity is passed in the KEEP_SELF_WORKER environment variable,
so programs built with the keepself library can request a force kill.`,
	Example: `  keepself run --exclude-exit-code 0 -- ./server --port 8080
  keepself run --config keepself.yaml -- python worker.py`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSupervised,
}

func init() {
	runCmd.Flags().String("config", "", "YAML configuration file")
	runCmd.Flags().Duration("restart-delay", keepself.DefaultRestartDelay, "Pause between an exit and the next start")
	runCmd.Flags().Duration("retry-delay", keepself.DefaultStartFailRetryDelay, "Pause after a failed start")
	runCmd.Flags().Duration("retry-max-delay", 0, "Double the retry delay per failure up to this value (0 keeps it fixed)")
	runCmd.Flags().Int("max-retries", 0, "Give up after this many consecutive start failures (0 retries forever)")
	runCmd.Flags().IntSlice("exclude-exit-code", nil, "Exit codes that end supervision instead of restarting")
	runCmd.Flags().StringSlice("feature", nil, "Enabled features, replacing the defaults")
	runCmd.Flags().String("token-dir", "", "Directory for liveness token files")
	runCmd.Flags().Bool("share-process-group", false, "Keep the command in keepself's process group so it can read the terminal")
}

func runSupervised(cmd *cobra.Command, args []string) error {
	opts, err := runOptions(cmd.Flags())
	if err != nil {
		return err
	}

	spec, err := launchSpec(args)
	if err != nil {
		return err
	}

	sup, err := keepself.NewSupervisor(spec, opts...)
	if err != nil {
		return err
	}

	code, ok, err := sup.Run(context.Background())
	if err != nil {
		return err
	}
	if !ok {
		logger.Info("Supervision of {Command} ended without an exit code.", spec.Path)
		code = 0
	}
	os.Exit(code)
	return nil
}

// runOptions merges the configuration file with the flags that were set.
func runOptions(flags *pflag.FlagSet) ([]keepself.Option, error) {
	opts := []keepself.Option{
		keepself.WithLogger(logger),
		keepself.WithOmitIdentityArgument(),
	}

	if path, _ := flags.GetString("config"); path != "" {
		cfg, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfgOpts, err := cfg.Options()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		opts = append(opts, cfgOpts...)
	}

	if flags.Changed("restart-delay") {
		d, _ := flags.GetDuration("restart-delay")
		opts = append(opts, keepself.WithRestartDelay(d))
	}
	if flags.Changed("retry-delay") {
		d, _ := flags.GetDuration("retry-delay")
		opts = append(opts, keepself.WithStartFailRetryDelay(d))
	}
	if flags.Changed("retry-max-delay") {
		d, _ := flags.GetDuration("retry-max-delay")
		opts = append(opts, keepself.WithStartFailBackoff(d))
	}
	if flags.Changed("max-retries") {
		n, _ := flags.GetInt("max-retries")
		opts = append(opts, keepself.WithMaxStartRetries(n))
	}
	if flags.Changed("exclude-exit-code") {
		codes, _ := flags.GetIntSlice("exclude-exit-code")
		opts = append(opts, keepself.WithExcludeRestartExitCodes(codes...))
	}
	if flags.Changed("feature") {
		names, _ := flags.GetStringSlice("feature")
		features, err := keepself.ParseFeatures(names)
		if err != nil {
			return nil, err
		}
		opts = append(opts, keepself.WithFeatures(features))
	}
	if flags.Changed("token-dir") {
		dir, _ := flags.GetString("token-dir")
		opts = append(opts, keepself.WithTokenDir(dir))
	}
	if share, _ := flags.GetBool("share-process-group"); share {
		opts = append(opts, keepself.WithShareProcessGroup())
	}

	return opts, nil
}

// launchSpec resolves the command to supervise.
func launchSpec(args []string) (keepself.LaunchSpec, error) {
	path, err := exec.LookPath(args[0])
	if err != nil {
		return keepself.LaunchSpec{}, fmt.Errorf("resolving %s: %w", args[0], err)
	}

	dir, err := os.Getwd()
	if err != nil {
		return keepself.LaunchSpec{}, fmt.Errorf("resolving working directory: %w", err)
	}

	return keepself.LaunchSpec{
		Path: path,
		Dir:  dir,
		Args: args[1:],
	}, nil
}
