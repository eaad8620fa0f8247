package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/deusfinance/multicallable/src/caller"
	"github.com/deusfinance/multicallable/src/config"
	"github.com/deusfinance/multicallable/src/contract"
	"github.com/deusfinance/multicallable/src/decode"
	"github.com/deusfinance/multicallable/src/multicall"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/fatih/color"
	"github.com/rodaine/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	flagConfig       string
	flagABI          string
	flagTarget       string
	flagFunction     string
	flagArgs         []string
	flagBuckets      int
	flagParallel     bool
	flagAllowFailure bool
	flagBlock        int64
	flagDetailed     bool
	flagImpersonate  string
	flagCodeFile     string
)

var rootCmd = &cobra.Command{
	Use:   "multicallable",
	Short: "Batch read-only contract calls through a multicall aggregator",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", "config.yaml", "path to yaml config")
	rootCmd.Flags().StringVar(&flagABI, "abi", "", "path to the target contract's ABI json")
	rootCmd.Flags().StringVar(&flagTarget, "target", "", "target contract address")
	rootCmd.Flags().StringVar(&flagFunction, "function", "", "function name to call")
	rootCmd.Flags().StringArrayVar(&flagArgs, "args", nil, "one comma-separated argument set per call (repeatable)")
	rootCmd.Flags().IntVarP(&flagBuckets, "buckets", "n", 0, "number of aggregate buckets (default from config)")
	rootCmd.Flags().BoolVar(&flagParallel, "parallel", false, "dispatch buckets concurrently")
	rootCmd.Flags().BoolVar(&flagAllowFailure, "allow-failure", false, "report failed calls instead of aborting")
	rootCmd.Flags().Int64Var(&flagBlock, "block", -1, "block number to read at (-1 for latest)")
	rootCmd.Flags().BoolVar(&flagDetailed, "detailed", false, "group outputs by the block they were read at")
	rootCmd.Flags().StringVar(&flagImpersonate, "impersonate", "", "install the aggregator at this address via state override")
	rootCmd.Flags().StringVar(&flagCodeFile, "impersonate-code", "", "path to the aggregator runtime code (hex) for --impersonate")

	for _, name := range []string{"abi", "target", "function"} {
		_ = rootCmd.MarkFlagRequired(name)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.LogLevel)

	rpcClient, err := rpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
	}
	defer rpcClient.Close()
	client := ethclient.NewClient(rpcClient)

	mc, err := setupMulticall(ctx, cfg, client, rpcClient, logger)
	if err != nil {
		return err
	}
	logger.Info().Str("aggregator", mc.Contract().Hex()).Msg("aggregator bound")

	if !common.IsHexAddress(flagTarget) {
		return fmt.Errorf("invalid target address %q", flagTarget)
	}
	abiJSON, err := os.ReadFile(flagABI)
	if err != nil {
		return fmt.Errorf("read abi: %w", err)
	}
	target, err := contract.NewContract(common.HexToAddress(flagTarget), string(abiJSON))
	if err != nil {
		return err
	}

	m, err := caller.New(target, mc)
	if err != nil {
		return err
	}
	fn, err := m.Function(flagFunction)
	if err != nil {
		return err
	}

	paramSets := make([][]any, len(flagArgs))
	for i, argSet := range flagArgs {
		var raw []string
		if argSet != "" {
			raw = strings.Split(argSet, ",")
		}
		args, err := target.CoerceArgs(flagFunction, raw)
		if err != nil {
			return err
		}
		paramSets[i] = args
	}

	fcall, err := fn.Args(paramSets)
	if err != nil {
		return err
	}

	opts := &caller.CallOpts{
		Buckets:      cfg.Buckets,
		AllowFailure: flagAllowFailure,
		Parallel:     flagParallel,
		Progress:     progressBar,
	}
	if flagBuckets > 0 {
		opts.Buckets = flagBuckets
	}
	if flagBlock >= 0 {
		opts.BlockNumber = big.NewInt(flagBlock)
	}

	logger.Info().
		Str("function", flagFunction).
		Int("calls", len(paramSets)).
		Int("buckets", opts.Buckets).
		Bool("parallel", opts.Parallel).
		Msg("dispatching")

	if flagDetailed {
		groups, err := fcall.DetailedCall(ctx, opts)
		if err != nil {
			return err
		}
		printDetailed(groups)
		return nil
	}

	outputs, err := fcall.Call(ctx, opts)
	if err != nil {
		return err
	}
	printFlat(outputs)
	return nil
}

func setupMulticall(ctx context.Context, cfg *config.Config, client *ethclient.Client, rpcClient *rpc.Client, logger zerolog.Logger) (*multicall.Multicall, error) {
	var mc *multicall.Multicall
	var err error
	if cfg.MulticallAddress != "" {
		if !common.IsHexAddress(cfg.MulticallAddress) {
			return nil, fmt.Errorf("invalid multicall address %q", cfg.MulticallAddress)
		}
		mc, err = multicall.NewWithAddress(client, common.HexToAddress(cfg.MulticallAddress))
	} else {
		mc, err = multicall.New(ctx, client)
	}
	if err != nil {
		return nil, err
	}

	if flagImpersonate != "" {
		if flagCodeFile == "" {
			return nil, fmt.Errorf("--impersonate requires --impersonate-code")
		}
		raw, err := os.ReadFile(flagCodeFile)
		if err != nil {
			return nil, fmt.Errorf("read aggregator code: %w", err)
		}
		code, err := hexutil.Decode(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("decode aggregator code: %w", err)
		}
		mc.Impersonate(gethclient.New(rpcClient), common.HexToAddress(flagImpersonate), code)
		logger.Info().Str("address", flagImpersonate).Msg("impersonating aggregator")
	}

	return mc, nil
}

func setupLogger(level string) zerolog.Logger {
	logLevel := zerolog.InfoLevel
	switch strings.ToLower(level) {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	}

	writer := zerolog.ConsoleWriter{Out: os.Stderr}
	return zerolog.New(writer).Level(logLevel).With().Timestamp().Logger()
}

///
/// Output
///

const barSize = 40

func progressBar(done, total int) {
	if done >= total {
		fmt.Fprintf(os.Stderr, "\r    %s %d/%d buckets    \n",
			color.GreenString(strings.Repeat("━", barSize)), done, total)
		return
	}

	filled := barSize * done / total
	bar := color.HiMagentaString(strings.Repeat("━", filled)) +
		color.HiBlackString(strings.Repeat("━", barSize-filled))
	fmt.Fprintf(os.Stderr, "\r    %s %d/%d buckets    ", bar, done, total)
}

func printFlat(outputs []any) {
	headerFmt := color.New(color.FgGreen, color.Underline).SprintfFunc()
	tbl := table.New("#", "Output").WithHeaderFormatter(headerFmt)
	for i, output := range outputs {
		tbl.AddRow(i, formatOutput(output))
	}
	tbl.Print()
}

func printDetailed(groups []caller.BlockResult) {
	headerFmt := color.New(color.FgGreen, color.Underline).SprintfFunc()
	tbl := table.New("Block", "#", "Output").WithHeaderFormatter(headerFmt)
	for _, group := range groups {
		for i, output := range group.Outputs {
			tbl.AddRow(group.BlockNumber, i, formatOutput(output))
		}
	}
	tbl.Print()
}

func formatOutput(output any) string {
	if failure, ok := output.(decode.CallFailure); ok {
		return color.RedString("FAILED: %s", failure.Reason)
	}
	return fmt.Sprintf("%v", output)
}
