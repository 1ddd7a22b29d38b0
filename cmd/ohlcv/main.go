// Binance futures OHLCV extractor CLI
// This application downloads historical klines from the Binance USDT-M futures
// market for a list of symbols and writes one candle file per symbol.
//
// Usage:
//
//	ohlcv extract --symbols BTCUSDT ETHUSDT --start 2021-01-01
//	ohlcv extract --symbols BTCUSDT,ETHUSDT --start 2021-01-01 --end 2021-12-31 --interval 4h
//	ohlcv ping
//
// For detailed help on any command, use: ohlcv help <command>
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/collector"
	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/config"
	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/exchange"
	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/logger"
	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/models"
	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/storage"
)

// CLI version information
const (
	Version = "1.0.0"
	AppName = "ohlcv"
)

// Exit codes following standard conventions
const (
	ExitSuccess       = 0
	ExitUsageError    = 1
	ExitConfigError   = 2
	ExitConnectionErr = 3
	ExitInterrupt     = 130
)

// errHelp is returned by the flag parsers when --help was given
var errHelp = errors.New("help requested")

// CLI holds the output streams of one invocation
type CLI struct {
	stdout io.Writer
	stderr io.Writer

	// now anchors the default end date shown in the banner
	now func() time.Time
}

// main is the entry point for the CLI application
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := newCLI(os.Stdout, os.Stderr).run(ctx, os.Args[1:])
	cancel()
	os.Exit(code)
}

func newCLI(stdout, stderr io.Writer) *CLI {
	return &CLI{stdout: stdout, stderr: stderr, now: time.Now}
}

// run dispatches the command and returns the process exit code
func (cli *CLI) run(ctx context.Context, args []string) int {
	if len(args) < 1 {
		cli.printUsage(cli.stderr)
		return ExitUsageError
	}

	command := args[0]
	rest := args[1:]

	switch command {
	case "extract":
		return cli.handleExtract(ctx, rest)
	case "ping":
		return cli.handlePing(ctx, rest)
	case "--version", "-v", "version":
		fmt.Fprintf(cli.stdout, "%s version %s\n", AppName, Version)
		return ExitSuccess
	case "--help", "-h", "help":
		if len(rest) > 0 {
			return cli.printCommandHelp(rest[0])
		}
		cli.printUsage(cli.stdout)
		return ExitSuccess
	default:
		fmt.Fprintf(cli.stderr, "Error: Unknown command '%s'\n\n", command)
		cli.printUsage(cli.stderr)
		return ExitUsageError
	}
}

// handleExtract handles the 'extract' command
func (cli *CLI) handleExtract(ctx context.Context, args []string) int {
	flags, err := parseExtractFlags(args)
	if errors.Is(err, errHelp) {
		return cli.printCommandHelp("extract")
	}
	if err != nil {
		fmt.Fprintf(cli.stderr, "Error: %v\n\nRun '%s help extract' for usage.\n", err, AppName)
		return ExitUsageError
	}

	cfg, err := loadConfig(ctx, flags.ConfigPath, flags.EnvFile)
	if err != nil {
		fmt.Fprintf(cli.stderr, "Error: %v\n", err)
		return ExitConfigError
	}
	flags.apply(cfg)

	symbols := flags.Symbols
	if len(symbols) == 0 {
		symbols = normalizeSymbols(cfg.Extract.DefaultSymbols)
	}
	if len(symbols) == 0 {
		fmt.Fprintf(cli.stderr, "Error: --symbols is required\n")
		return ExitUsageError
	}
	if flags.Start == "" {
		fmt.Fprintf(cli.stderr, "Error: --start is required\n")
		return ExitUsageError
	}

	lm, err := cli.setupLogging(cfg.Logging)
	if err != nil {
		fmt.Fprintf(cli.stderr, "Error: %v\n", err)
		return ExitConfigError
	}
	defer lm.Close()
	log := lm.GetLogger().With("run_id", logger.NewRunID())

	transport, err := exchange.NewTransport(cfg.Exchange, log)
	if err != nil {
		fmt.Fprintf(cli.stderr, "Error: %v\n", err)
		return ExitConfigError
	}
	sink, err := storage.NewSink(cfg.Extract.Format, log)
	if err != nil {
		fmt.Fprintf(cli.stderr, "Error: %v\n", err)
		return ExitConfigError
	}

	fetcher := collector.NewRangeFetcher(transport, collector.FetcherConfigFrom(cfg.Exchange), log)
	extractor := collector.NewExtractor(fetcher, sink, collector.ExtractorConfig{
		DefaultInterval: cfg.Extract.DefaultInterval,
		OutputDir:       cfg.Extract.OutputDir,
	}, log)

	progress := &progressPrinter{w: cli.stdout, dryRun: flags.DryRun}
	runner := collector.NewBatchRunner(extractor, collector.BatchConfigFrom(cfg.Batch), log).
		OnResult(progress.print)

	interval := models.NormalizeInterval(flags.Interval)
	if interval == "" {
		interval = cfg.Extract.DefaultInterval
	}
	endDate := flags.End
	if endDate == "" {
		endDate = cli.now().UTC().AddDate(0, 0, -1).Format(models.DateLayout)
	}

	fmt.Fprintf(cli.stdout, "Starting data extraction for tickers: %s\n", strings.Join(symbols, ", "))
	fmt.Fprintf(cli.stdout, "Timeframe: %s, start date: %s, end date: %s\n", interval, flags.Start, endDate)

	reqs := make([]collector.ExtractRequest, len(symbols))
	for i, symbol := range symbols {
		reqs[i] = collector.ExtractRequest{
			Symbol:    symbol,
			StartDate: flags.Start,
			EndDate:   flags.End,
			Interval:  interval,
			OutputDir: cfg.Extract.OutputDir,
		}
	}

	summary := runner.Run(ctx, reqs)
	printSummary(cli.stdout, summary)

	if ctx.Err() != nil {
		fmt.Fprintln(cli.stderr, "Interrupted")
		return ExitInterrupt
	}

	fmt.Fprintln(cli.stdout, "Data extraction finished :)")
	return ExitSuccess
}

// handlePing handles the 'ping' command
func (cli *CLI) handlePing(ctx context.Context, args []string) int {
	flags, err := parsePingFlags(args)
	if errors.Is(err, errHelp) {
		return cli.printCommandHelp("ping")
	}
	if err != nil {
		fmt.Fprintf(cli.stderr, "Error: %v\n", err)
		return ExitUsageError
	}

	cfg, err := loadConfig(ctx, flags.ConfigPath, flags.EnvFile)
	if err != nil {
		fmt.Fprintf(cli.stderr, "Error: %v\n", err)
		return ExitConfigError
	}
	if flags.ForceRequests {
		cfg.Exchange.Transport = exchange.TransportHTTP
	}

	lm, err := cli.setupLogging(cfg.Logging)
	if err != nil {
		fmt.Fprintf(cli.stderr, "Error: %v\n", err)
		return ExitConfigError
	}
	defer lm.Close()

	client, err := exchange.NewTransport(cfg.Exchange, lm.GetLogger())
	if err != nil {
		fmt.Fprintf(cli.stderr, "Error: %v\n", err)
		return ExitConfigError
	}

	start := time.Now()
	if err := client.HealthCheck(ctx); err != nil {
		fmt.Fprintf(cli.stderr, "Error: %s is unreachable: %v\n", cfg.Exchange.BaseURL, err)
		return ExitConnectionErr
	}

	fmt.Fprintf(cli.stdout, "%s reachable via %s transport in %v\n",
		cfg.Exchange.BaseURL, cfg.Exchange.Transport, time.Since(start).Round(time.Millisecond))
	return ExitSuccess
}

// ExtractFlags represents flags for the extract command
type ExtractFlags struct {
	Symbols       []string
	Start         string
	End           string
	Interval      string
	Out           string
	Format        string
	ForceRequests bool
	Concurrency   int
	Retries       int
	DryRun        bool
	ConfigPath    string
	EnvFile       string
}

// apply overrides the loaded configuration with the flags that were given
func (f *ExtractFlags) apply(cfg *config.AppConfig) {
	if f.ForceRequests {
		cfg.Exchange.Transport = exchange.TransportHTTP
	}
	if f.Out != "" {
		cfg.Extract.OutputDir = f.Out
	}
	if f.Format != "" {
		cfg.Extract.Format = f.Format
	}
	if f.DryRun {
		cfg.Extract.Format = storage.FormatMemory
	}
	if f.Concurrency > 0 {
		cfg.Batch.Concurrency = f.Concurrency
	}
	if f.Retries >= 0 {
		cfg.Batch.Retry.MaxAttempts = f.Retries + 1
	}
}

// PingFlags represents flags for the ping command
type PingFlags struct {
	ConfigPath    string
	EnvFile       string
	ForceRequests bool
}

// parseExtractFlags parses command line arguments for the extract command
func parseExtractFlags(args []string) (*ExtractFlags, error) {
	flags := &ExtractFlags{
		Retries: -1, // keep the configured policy
		EnvFile: ".env",
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "--symbols", "--tickers":
			// Consume every following value up to the next flag
			j := i + 1
			for ; j < len(args) && !strings.HasPrefix(args[j], "-"); j++ {
				flags.Symbols = append(flags.Symbols, strings.Split(args[j], ",")...)
			}
			if j == i+1 {
				return nil, fmt.Errorf("%s requires at least one value", arg)
			}
			i = j - 1
		case "--start", "-s":
			value, err := flagValue(args, &i)
			if err != nil {
				return nil, err
			}
			flags.Start = value
		case "--end", "-e":
			value, err := flagValue(args, &i)
			if err != nil {
				return nil, err
			}
			flags.End = value
		case "--interval", "-i":
			value, err := flagValue(args, &i)
			if err != nil {
				return nil, err
			}
			flags.Interval = value
		case "--out", "-o":
			value, err := flagValue(args, &i)
			if err != nil {
				return nil, err
			}
			flags.Out = value
		case "--format", "-f":
			value, err := flagValue(args, &i)
			if err != nil {
				return nil, err
			}
			flags.Format = strings.ToLower(value)
		case "--concurrency", "-c":
			n, err := intFlagValue(args, &i)
			if err != nil {
				return nil, err
			}
			if n < 1 {
				return nil, fmt.Errorf("--concurrency must be at least 1")
			}
			flags.Concurrency = n
		case "--retries", "-r":
			n, err := intFlagValue(args, &i)
			if err != nil {
				return nil, err
			}
			if n < 0 {
				return nil, fmt.Errorf("--retries cannot be negative")
			}
			flags.Retries = n
		case "--config":
			value, err := flagValue(args, &i)
			if err != nil {
				return nil, err
			}
			flags.ConfigPath = value
		case "--env-file":
			value, err := flagValue(args, &i)
			if err != nil {
				return nil, err
			}
			flags.EnvFile = value
		case "--force-requests":
			flags.ForceRequests = true
		case "--dry-run":
			flags.DryRun = true
		case "--help", "-h":
			return nil, errHelp
		default:
			return nil, fmt.Errorf("unknown flag: %s", arg)
		}
	}

	flags.Symbols = normalizeSymbols(flags.Symbols)
	return flags, nil
}

// parsePingFlags parses command line arguments for the ping command
func parsePingFlags(args []string) (*PingFlags, error) {
	flags := &PingFlags{EnvFile: ".env"}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			value, err := flagValue(args, &i)
			if err != nil {
				return nil, err
			}
			flags.ConfigPath = value
		case "--env-file":
			value, err := flagValue(args, &i)
			if err != nil {
				return nil, err
			}
			flags.EnvFile = value
		case "--force-requests":
			flags.ForceRequests = true
		case "--help", "-h":
			return nil, errHelp
		default:
			return nil, fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	return flags, nil
}

// flagValue returns the argument after args[*i] and advances i past it
func flagValue(args []string, i *int) (string, error) {
	name := args[*i]
	if *i+1 >= len(args) {
		return "", fmt.Errorf("%s requires a value", name)
	}
	*i++
	return args[*i], nil
}

func intFlagValue(args []string, i *int) (int, error) {
	name := args[*i]
	value, err := flagValue(args, i)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s", name, value)
	}
	return n, nil
}

// normalizeSymbols trims and uppercases symbols, dropping blanks and repeats
func normalizeSymbols(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	var symbols []string
	for _, s := range raw {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		symbols = append(symbols, s)
	}
	return symbols
}

// loadConfig loads and validates the layered configuration
func loadConfig(ctx context.Context, configPath, envFile string) (*config.AppConfig, error) {
	cfg, err := config.NewConfigManager(configPath, nil).WithEnvFile(envFile).LoadConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// setupLogging routes console log output through the CLI's streams
func (cli *CLI) setupLogging(cfg config.LoggingConfig) (*logger.LoggerManager, error) {
	switch cfg.Output {
	case "stdout":
		return logger.NewLoggerManagerWithWriter(cfg, cli.stdout), nil
	case "stderr", "":
		return logger.NewLoggerManagerWithWriter(cfg, cli.stderr), nil
	default:
		return logger.NewLoggerManager(cfg)
	}
}

// progressPrinter writes one line per finished symbol. Results can arrive
// concurrently when the batch runs in parallel.
type progressPrinter struct {
	mu     sync.Mutex
	w      io.Writer
	dryRun bool
}

func (p *progressPrinter) print(r collector.SymbolResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !r.OK() {
		fmt.Fprintf(p.w, "Error processing %s: %v\n", r.Symbol, r.Err)
		return
	}
	if p.dryRun {
		fmt.Fprintf(p.w, "  -> %s: %d rows (dry run, not saved)\n", r.Symbol, r.Rows)
		return
	}
	fmt.Fprintf(p.w, "  -> %s: %d rows saved to %s\n", r.Symbol, r.Rows, r.Path)
}

// printSummary writes the end-of-batch report
func printSummary(w io.Writer, summary *collector.BatchSummary) {
	succeeded := summary.Succeeded()
	failed := summary.Failed()

	fmt.Fprintf(w, "\nSummary: %d succeeded, %d failed, %d rows, %d pages in %v\n",
		len(succeeded), len(failed), summary.TotalRows(), summary.Metrics.PagesFetched,
		summary.Duration.Round(time.Millisecond))

	for _, r := range succeeded {
		fmt.Fprintf(w, "  %-12s %6d rows  %s..%s\n", r.Symbol, r.Rows,
			r.First.Format(models.DateLayout), r.Last.Format(models.DateLayout))
	}
	for _, r := range failed {
		fmt.Fprintf(w, "  %-12s failed (%s)\n", r.Symbol, r.ErrorType())
	}
}

// printUsage prints the main usage information
func (cli *CLI) printUsage(w io.Writer) {
	fmt.Fprintf(w, `%s - Binance futures OHLCV extractor v%s

USAGE:
    %s <command> [options]

COMMANDS:
    extract     Download historical klines and write one file per symbol
    ping        Check that the futures API is reachable

GLOBAL OPTIONS:
    --help, -h     Show help information
    --version, -v  Show version information

EXAMPLES:
    # Daily candles for four symbols since 2021
    %s extract --symbols BTCUSDT ETHUSDT ADAUSDT XRPUSDT --start 2021-01-01

    # Hourly candles for January 2024 as Parquet
    %s extract --symbols BTCUSDT --start 2024-01-01 --end 2024-01-31 --interval 1h --format parquet

CONFIGURATION:
    Configuration can be provided via:
    - Config file: --config <file> (JSON, YAML or TOML)
    - Environment variables: %s_* (e.g., %s_EXTRACT_OUTPUT_DIR)
    - A .env file in the working directory
    BINANCE_API_KEY and BINANCE_API_SECRET are read but not needed by public endpoints.

For detailed help on any command, use: %s help <command>
`, AppName, Version, AppName, AppName, AppName, config.EnvPrefix, config.EnvPrefix, AppName)
}

// printCommandHelp prints detailed help for a specific command
func (cli *CLI) printCommandHelp(command string) int {
	switch command {
	case "extract":
		fmt.Fprintf(cli.stdout, `%s extract - Download historical klines

USAGE:
    %s extract --symbols <symbol>... --start <date> [options]

OPTIONS:
    --symbols <symbol>...     Symbols to extract, space or comma separated
                              Examples: BTCUSDT ETHUSDT, BTCUSDT,ETHUSDT
                              Defaults to extract.default_symbols from config

    --start, -s <date>        First day to include (YYYY-MM-DD, required)
    --end, -e <date>          Last day to include (YYYY-MM-DD, default: yesterday UTC)
    --interval, -i <interval> Kline interval (default: 1d)
                              Supported: %s

    --out, -o <dir>           Output directory (default: ./binance_futures_csvs)
    --format, -f <format>     csv or parquet (default: csv)
    --dry-run                 Fetch and check but write nothing
    --force-requests          Use the direct HTTP transport regardless of config
    --concurrency, -c <n>     Symbols extracted in parallel (default: 1)
    --retries, -r <n>         Retries per symbol after server or rate-limit errors (default: 0)
    --config <file>           Configuration file
    --env-file <file>         Dotenv file (default: .env)
    --help, -h                Show this help message

NOTES:
    - Each symbol is written to <out>/<SYMBOL>.<format>, replacing any previous file
    - A failed symbol is reported and the remaining symbols still run
    - Pages are requested 200ms apart and symbols 300ms apart
`, AppName, AppName, strings.Join(models.SupportedIntervals(), ", "))

	case "ping":
		fmt.Fprintf(cli.stdout, `%s ping - Check API connectivity

USAGE:
    %s ping [options]

OPTIONS:
    --config <file>           Configuration file
    --env-file <file>         Dotenv file (default: .env)
    --force-requests          Use the direct HTTP transport regardless of config
    --help, -h                Show this help message
`, AppName, AppName)

	default:
		fmt.Fprintf(cli.stderr, "No help available for command: %s\n", command)
		cli.printUsage(cli.stderr)
		return ExitUsageError
	}
	return ExitSuccess
}
