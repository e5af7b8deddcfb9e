// Package main provides the command-line interface for resumable SFTP transfers.
//
// A transfer interrupted by an error or by Ctrl-C leaves a resume record next to
// the local file; running the same command again continues where it stopped.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/opd-ai/sftptask/config"
	"github.com/opd-ai/sftptask/remote"
	"github.com/opd-ai/sftptask/transfer"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Exit codes.
const (
	exitOK         = 0
	exitError      = 1
	exitUsage      = 2
	exitSetup      = 3
	exitIncomplete = 4
)

// CLI configuration
type CLIConfig struct {
	configFile string
	envFile    string
	host       string
	port       int
	user       string
	knownHosts string
	insecure   bool
	chunkSize  int
	logLevel   string
	logFile    string
	noColor    bool
	help       bool

	operation  string
	localPath  string
	remotePath string
}

// parseCLIFlags parses command-line flags and the positional operation arguments.
func parseCLIFlags(args []string, output io.Writer) (*CLIConfig, error) {
	cli := &CLIConfig{}
	fs := flag.NewFlagSet("sftptask", flag.ContinueOnError)
	fs.SetOutput(output)

	// Configuration sources
	fs.StringVar(&cli.configFile, "config", "", "YAML configuration file")
	fs.StringVar(&cli.envFile, "env-file", "", "dotenv file with SFTP_* variables (default: .env if present)")

	// Connection
	fs.StringVar(&cli.host, "host", "", "SFTP server host")
	fs.IntVar(&cli.port, "port", 0, "SFTP server port (default 22)")
	fs.StringVar(&cli.user, "user", "", "SSH user name")
	fs.StringVar(&cli.knownHosts, "known-hosts", "", "known_hosts file for host key verification (default ~/.ssh/known_hosts)")
	fs.BoolVar(&cli.insecure, "insecure-ignore-host-key", false, "accept any server host key (test servers only)")

	// Transfer
	fs.IntVar(&cli.chunkSize, "chunk-size", 0, "bytes per read/write (default 1024)")

	// Logging
	fs.StringVar(&cli.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&cli.logFile, "log-file", "", "rotating log file in addition to stderr")
	fs.BoolVar(&cli.noColor, "no-color", false, "disable colored progress output")

	fs.BoolVar(&cli.help, "help", false, "show help message")

	fs.Usage = func() { printUsage(fs, output) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cli.help {
		fs.Usage()
		return cli, nil
	}

	rest := fs.Args()
	if len(rest) != 3 {
		return nil, fmt.Errorf("expected <upload|download> <local> <remote>, got %d arguments", len(rest))
	}
	cli.operation, cli.localPath, cli.remotePath = rest[0], rest[1], rest[2]
	if cli.operation != "upload" && cli.operation != "download" {
		return nil, fmt.Errorf("unknown operation %q", cli.operation)
	}
	return cli, nil
}

// printUsage prints the usage information.
func printUsage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintln(w, "Resumable single-file SFTP transfer")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintf(w, "  %s [options] upload <local> <remote>\n", fs.Name())
	fmt.Fprintf(w, "  %s [options] download <local> <remote>\n", fs.Name())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fs.PrintDefaults()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  SFTP_HOST, SFTP_PORT, SFTP_USER, SFTP_PASSWORD, SFTP_KNOWN_HOSTS,")
	fmt.Fprintln(w, "  SFTP_INSECURE_IGNORE_HOST_KEY,")
	fmt.Fprintln(w, "  SFTPTASK_CHUNK_SIZE, SFTPTASK_LOG_LEVEL")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintf(w, "  SFTP_PASSWORD=secret %s -host files.example.com -user deploy upload ./build.tar /srv/build.tar\n", fs.Name())
	fmt.Fprintf(w, "  %s -config sftptask.yaml download ./dump.sql /backups/dump.sql\n", fs.Name())
}

// buildConfig layers defaults, the config file, the environment and the flags.
func buildConfig(cli *CLIConfig) (config.Config, error) {
	if err := config.LoadEnvFile(cli.envFile); err != nil {
		return config.Config{}, err
	}

	cfg := config.Default()
	if cli.configFile != "" {
		fileCfg, err := config.LoadFromFile(cli.configFile)
		if err != nil {
			return config.Config{}, err
		}
		cfg = fileCfg
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}

	cfg = cfg.Merge(config.Config{
		Host:            cli.host,
		Port:            cli.port,
		Username:        cli.user,
		KnownHosts:      cli.knownHosts,
		InsecureHostKey: cli.insecure,
		ChunkSize:       cli.chunkSize,
		LogLevel:        cli.logLevel,
		LogFile:         cli.logFile,
	})

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// setupLogging configures the global logrus logger. The returned closer flushes
// the rotating log file, if any.
func setupLogging(cfg config.Config, stderr io.Writer) (io.Closer, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if cfg.LogFile == "" {
		logrus.SetOutput(stderr)
		return io.NopCloser(nil), nil
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    10, // MB
		MaxBackups: 3,
		Compress:   false,
	}
	logrus.SetOutput(io.MultiWriter(stderr, rotator))
	return rotator, nil
}

// exitCodeFor maps an error to the process exit code.
func exitCodeFor(err error) int {
	var incomplete *transfer.IncompleteError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &incomplete):
		return exitIncomplete
	case errors.Is(err, remote.ErrInit),
		errors.Is(err, remote.ErrConnect),
		errors.Is(err, remote.ErrHandshake),
		errors.Is(err, remote.ErrAuth),
		errors.Is(err, remote.ErrChannelInit):
		return exitSetup
	case errors.Is(err, transfer.ErrInvalidPath):
		return exitUsage
	default:
		return exitError
	}
}

// progressPrinter renders percentages on a single terminal line.
type progressPrinter struct {
	out   io.Writer
	label string
	done  *color.Color
	fail  *color.Color
}

func newProgressPrinter(out io.Writer, label string) *progressPrinter {
	return &progressPrinter{
		out:   out,
		label: label,
		done:  color.New(color.FgGreen, color.Bold),
		fail:  color.New(color.FgRed, color.Bold),
	}
}

func (p *progressPrinter) update(percent int) {
	switch {
	case percent == transfer.ProgressFailed:
		p.fail.Fprintf(p.out, "\r%s interrupted\n", p.label)
	case percent >= 100:
		p.done.Fprintf(p.out, "\r%s 100%%\n", p.label)
	default:
		fmt.Fprintf(p.out, "\r%s %3d%%", p.label, percent)
	}
}

func run(args []string, stdout, stderr io.Writer) int {
	cli, err := parseCLIFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	if cli.help {
		return exitOK
	}
	if cli.noColor {
		color.NoColor = true
	}

	cfg, err := buildConfig(cli)
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return exitUsage
	}

	closer, err := setupLogging(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Logging setup error: %v\n", err)
		return exitUsage
	}
	defer closer.Close()

	localPath, err := filepath.Abs(cli.localPath)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid local path: %v\n", err)
		return exitUsage
	}

	logger := logrus.WithField("component", "sftp")
	sshOpts := cfg.SSHOptions()
	sshOpts.Logger = logger
	engine, err := transfer.NewEngine(
		remote.NewSSHChannel(sshOpts),
		append(cfg.EngineOptions(), transfer.WithLogger(logger))...,
	)
	if err != nil {
		fmt.Fprintf(stderr, "Engine setup error: %v\n", err)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engine.Init(); err != nil {
		fmt.Fprintf(stderr, "Initialization failed: %v\n", err)
		return exitCodeFor(err)
	}
	if err := engine.StartSession(ctx, cfg.ConnectionParams()); err != nil {
		fmt.Fprintf(stderr, "Connection failed: %v\n", err)
		return exitCodeFor(err)
	}
	defer engine.StopSession()

	label := fmt.Sprintf("%s %s", cli.operation, filepath.Base(localPath))
	printer := newProgressPrinter(stdout, label)

	var result *transfer.Result
	if cli.operation == "upload" {
		result, err = engine.Upload(localPath, cli.remotePath, printer.update)
	} else {
		result, err = engine.Download(localPath, cli.remotePath, printer.update)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Transfer rejected: %v\n", err)
		return exitCodeFor(err)
	}

	select {
	case <-result.Done():
	case <-ctx.Done():
		logger.WithField("function", "run").Info("Signal received, cancelling transfer")
		if err := engine.Cancel(); err != nil && !errors.Is(err, transfer.ErrNotWorking) {
			logger.WithError(err).Warn("Cancel failed")
		}
		<-result.Done()
	}

	n, err := result.Wait(context.Background())
	if err != nil {
		fmt.Fprintf(stderr, "Transfer incomplete: %v\n", err)
		fmt.Fprintln(stderr, "Run the same command again to resume.")
		return exitCodeFor(err)
	}

	fmt.Fprintf(stdout, "%d bytes transferred\n", n)
	return exitOK
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
