package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"letterbox/internal/application"
	"letterbox/internal/domain"
	"letterbox/internal/interfaces/httpapi"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newRootCommand() *cobra.Command {
	flags := &overrides{}
	root := &cobra.Command{
		Use:          "letterbox",
		Short:        "Send and read private letters through a node",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.nodeURL, "node-url", "", "node endpoint (overrides NODE_URL)")
	root.PersistentFlags().StringVar(&flags.contract, "contract", "", "letter contract address (overrides CONTRACT_ADDRESS)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")

	root.AddCommand(
		newSendCommand(flags),
		newLettersCommand(flags),
		newInboxCommand(flags),
		newWatchCommand(flags),
		newServeCommand(flags),
		newAccountsCommand(flags),
		newVersionCommand(),
	)
	return root
}

// withRuntime builds the shared runtime, runs fn and always releases it.
func withRuntime(cmd *cobra.Command, flags *overrides, opts runtimeOptions, fn func(ctx context.Context, rt *runtime) error) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx, *flags, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			slog.Warn("shutdown", "err", err)
		}
	}()
	return fn(ctx, rt)
}

func newSendCommand(flags *overrides) *cobra.Command {
	return &cobra.Command{
		Use:   "send <recipient> <message>",
		Short: "Send a letter of at most 31 bytes",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			recipient := args[0]
			message := strings.Join(args[1:], " ")
			return withRuntime(cmd, flags, runtimeOptions{}, func(ctx context.Context, rt *runtime) error {
				receipt, err := rt.sender.Send(ctx, recipient, message)
				if receipt.TxHash != "" {
					printReceipt(cmd.OutOrStdout(), receipt)
				}
				return err
			})
		},
	}
}

func newLettersCommand(flags *overrides) *cobra.Command {
	var fromBlock, numBlocks uint64
	cmd := &cobra.Command{
		Use:   "letters",
		Short: "Scan the chain for letters addressed to the default account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, flags, runtimeOptions{}, func(ctx context.Context, rt *runtime) error {
				defaults := rt.scanner.Config()
				if !cmd.Flags().Changed("from-block") {
					fromBlock = defaults.FromBlock
				}
				if !cmd.Flags().Changed("num-blocks") {
					numBlocks = defaults.NumBlocks
				}
				letters, err := rt.scanner.FetchRange(ctx, fromBlock, numBlocks)
				if err != nil {
					return err
				}
				printLetters(cmd.OutOrStdout(), letters)
				return nil
			})
		},
	}
	cmd.Flags().Uint64Var(&fromBlock, "from-block", 0, "first block to scan (default SCAN_FROM_BLOCK)")
	cmd.Flags().Uint64Var(&numBlocks, "num-blocks", 0, "number of blocks to scan (default SCAN_NUM_BLOCKS)")
	return cmd
}

func newInboxCommand(flags *overrides) *cobra.Command {
	var (
		limit     int
		fromBlock uint64
		sync      bool
		rewind    uint64
	)
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "List letters stored in the local inbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, flags, runtimeOptions{}, func(ctx context.Context, rt *runtime) error {
				inbox, _, err := rt.openInbox()
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("rewind") {
					if err := inbox.Rewind(ctx, rewind); err != nil {
						return err
					}
				}
				if sync {
					stored, err := inbox.SyncOnce(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "synced %d new letters\n", stored)
				}
				filter := application.LetterQueryFilter{Limit: limit}
				if cmd.Flags().Changed("from-block") {
					filter.FromBlock = &fromBlock
				}
				letters, err := inbox.Letters(ctx, filter)
				if err != nil {
					return err
				}
				out := make([]domain.Letter, 0, len(letters))
				for _, letter := range letters {
					out = append(out, letter.Letter)
				}
				printLetters(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum letters to list")
	cmd.Flags().Uint64Var(&fromBlock, "from-block", 0, "only list letters from this block on")
	cmd.Flags().BoolVar(&sync, "sync", false, "catch up with the chain before listing")
	cmd.Flags().Uint64Var(&rewind, "rewind", 0, "rescan from this block on the next sync")
	return cmd
}

func newWatchCommand(flags *overrides) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the inbox in sync until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, flags, runtimeOptions{}, func(ctx context.Context, rt *runtime) error {
				inbox, _, err := rt.openInbox()
				if err != nil {
					return err
				}
				return ignoreCanceled(inbox.Run(ctx))
			})
		},
	}
}

func newServeCommand(flags *overrides) *cobra.Command {
	var (
		addr    string
		noInbox bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and keep the inbox in sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, flags, runtimeOptions{withMetrics: true}, func(ctx context.Context, rt *runtime) error {
				deps := httpapi.Deps{
					Sender:   rt.sender,
					Scanner:  rt.scanner,
					Accounts: rt.sessions,
					Metrics:  rt.metrics,
				}
				var inbox *application.Inbox
				if !noInbox {
					var store application.InboxStore
					var err error
					inbox, store, err = rt.openInbox()
					if err != nil {
						return err
					}
					deps.Inbox = inbox
					deps.Store = store
				}
				server, err := httpapi.NewServer(deps, httpapi.BuildInfo{
					Version:   version,
					Commit:    commit,
					BuildTime: buildTime,
				})
				if err != nil {
					return err
				}
				if addr == "" {
					addr = rt.cfg.HTTPAddr
				}

				group, ctx := errgroup.WithContext(ctx)
				group.Go(func() error {
					return server.ListenAndServe(ctx, addr)
				})
				if inbox != nil {
					// A stopped inbox leaves the API up; /inbox keeps serving
					// what is already stored.
					group.Go(func() error {
						if err := ignoreCanceled(inbox.Run(ctx)); err != nil {
							slog.Error("inbox sync stopped", "err", err, "kind", domain.KindOf(err))
						}
						return nil
					})
				}
				return group.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default HTTP_ADDR)")
	cmd.Flags().BoolVar(&noInbox, "no-inbox", false, "serve without the background inbox sync")
	return cmd
}

func newAccountsCommand(flags *overrides) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List the accounts registered with the node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, flags, runtimeOptions{}, func(ctx context.Context, rt *runtime) error {
				accounts, err := rt.sessions.Accounts(ctx)
				if err != nil {
					return err
				}
				for i, account := range accounts {
					marker := " "
					if i == 0 {
						marker = "*"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, account.Hex())
				}
				return nil
			})
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "letterbox %s (commit %s, built %s)\n", version, commit, buildTime)
		},
	}
}

func printReceipt(w io.Writer, receipt domain.TransactionReceipt) {
	fmt.Fprintf(w, "tx %s status %s block %d", receipt.TxHash, receipt.Status, receipt.BlockNumber)
	if receipt.Reason != "" {
		fmt.Fprintf(w, " (%s)", receipt.Reason)
	}
	fmt.Fprintln(w)
}

func printLetters(w io.Writer, letters []domain.Letter) {
	if len(letters) == 0 {
		fmt.Fprintln(w, "no letters")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BLOCK\tTX\tMESSAGE")
	for _, letter := range letters {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", letter.BlockNumber, letter.TxHash, letter.Message)
	}
	_ = tw.Flush()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
