package main

import (
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pickline/internal/offline"
	"pickline/internal/picking"
)

func newDeviceCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Operate the handheld offline queue",
	}
	cmd.AddCommand(newDeviceRunCommand(ctx))
	cmd.AddCommand(newDeviceSyncCommand(ctx))
	cmd.AddCommand(newDeviceEnqueueCommand(ctx))
	cmd.AddCommand(newDeviceSessionCommand(ctx))
	cmd.AddCommand(newDeviceQueueCommand(ctx))
	cmd.AddCommand(newDeviceDeadLettersCommand(ctx))
	cmd.AddCommand(newDeviceResetCommand(ctx))
	return cmd
}

func newDeviceRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Drain the queue continuously until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDeviceDirectories(); err != nil {
				return err
			}
			lock, err := lockDevice(cfg)
			if err != nil {
				return err
			}
			defer lock.Unlock() //nolint:errcheck

			errOut := cmd.ErrOrStderr()
			dev, err := ctx.openDevice(offline.WithResetHook(func(dropped int) {
				fmt.Fprintf(errOut, "Server invalidated the session; discarded %d queued action(s)\n", dropped)
			}))
			if err != nil {
				return err
			}
			defer dev.Close()

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			fmt.Fprintf(cmd.OutOrStdout(), "Draining %s to %s (Ctrl+C to stop)\n", dev.queue.Path(), ctx.serverURL(cfg))
			return dev.agent.Run(runCtx)
		},
	}
}

func newDeviceSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one drain pass and refresh the cached session",
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := ctx.openDevice()
			if err != nil {
				return err
			}
			defer dev.Close()

			out := cmd.OutOrStdout()
			lock, err := tryLockDevice(dev.cfg)
			if err != nil {
				return err
			}
			if lock == nil {
				fmt.Fprintln(out, agentRunningNotice)
				refreshCachedSession(cmd, dev)
				return nil
			}
			result, err := dev.agent.Flush(cmd.Context())
			_ = lock.Unlock()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Delivered %d, dead-lettered %d\n", result.Delivered, result.DeadLettered)
			switch {
			case result.Reset:
				fmt.Fprintf(out, "Server invalidated the session; discarded %d queued action(s)\n", result.Dropped)
				return nil
			case result.Busy:
				fmt.Fprintln(out, "Another drain pass is in progress")
			case !result.RetryAt.IsZero():
				fmt.Fprintf(out, "Next retry at %s\n", result.RetryAt.Local().Format(time.Kitchen))
			}
			refreshCachedSession(cmd, dev)
			return nil
		},
	}
}

const agentRunningNotice = "A running device agent is draining the queue"

func refreshCachedSession(cmd *cobra.Command, dev *device) {
	if _, stale, err := dev.agent.RefreshSession(cmd.Context(), picking.ViewOptions{}); err == nil && stale {
		fmt.Fprintln(cmd.OutOrStdout(), "Server unreachable; cached session kept")
	}
}

type enqueueFlags struct {
	session         string
	order           string
	key             string
	weight          int
	substituteID    string
	substituteName  string
	substitutePrice int64
	reason          string
	code            string
	flush           bool
}

func newDeviceEnqueueCommand(ctx *commandContext) *cobra.Command {
	var flags enqueueFlags
	cmd := &cobra.Command{
		Use:   "enqueue <picked|substituted|short|reset> <product-id>",
		Short: "Record a picker action in the offline queue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := picking.ParseActionKind(args[0])
			if err != nil {
				return err
			}
			dev, err := ctx.openDevice()
			if err != nil {
				return err
			}
			defer dev.Close()

			sessionID := strings.TrimSpace(flags.session)
			if sessionID == "" {
				sessionID, err = cachedSessionID(dev)
				if err != nil {
					return err
				}
			}
			action := picking.Action{
				SessionID:         sessionID,
				OriginalProductID: args[1],
				Kind:              kind,
				IdempotencyKey:    flags.key,
				Actor:             dev.cfg.Device.PickerID,
				Payload: picking.ActionPayload{
					Reason:      flags.reason,
					ScannedCode: flags.code,
					OrderID:     flags.order,
				},
			}
			if cmd.Flags().Changed("weight") {
				weight := flags.weight
				action.Payload.WeightGrams = &weight
			}
			if kind == picking.ActionSubstituted {
				if strings.TrimSpace(flags.substituteID) == "" {
					return errors.New("--substitute-id is required for substituted actions")
				}
				action.Payload.Substitute = &picking.Substitute{
					ProductID:  flags.substituteID,
					Name:       flags.substituteName,
					PriceCents: flags.substitutePrice,
				}
			}

			entry, err := dev.queue.Enqueue(cmd.Context(), action)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Queued #%d %s %s (key %s)\n", entry.Seq, kind, args[1], entry.Action.IdempotencyKey)
			if !flags.flush {
				return nil
			}
			lock, err := tryLockDevice(dev.cfg)
			if err != nil {
				return err
			}
			if lock == nil {
				fmt.Fprintln(out, agentRunningNotice)
				return nil
			}
			defer lock.Unlock() //nolint:errcheck
			result, err := dev.agent.Flush(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Delivered %d, dead-lettered %d\n", result.Delivered, result.DeadLettered)
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.session, "session", "", "Session id (defaults to the cached session)")
	cmd.Flags().StringVar(&flags.order, "order", "", "Pin the action to one order of the session")
	cmd.Flags().StringVar(&flags.key, "key", "", "Idempotency key (generated when empty)")
	cmd.Flags().IntVar(&flags.weight, "weight", 0, "Measured weight in grams")
	cmd.Flags().StringVar(&flags.substituteID, "substitute-id", "", "Product handed out instead")
	cmd.Flags().StringVar(&flags.substituteName, "substitute-name", "", "Name of the substitute product")
	cmd.Flags().Int64Var(&flags.substitutePrice, "substitute-price", 0, "Substitute price in cents")
	cmd.Flags().StringVar(&flags.reason, "reason", "", "Free-text reason")
	cmd.Flags().StringVar(&flags.code, "code", "", "Scanned or typed code")
	cmd.Flags().BoolVar(&flags.flush, "flush", false, "Run a drain pass right after queueing")
	return cmd
}

func cachedSessionID(dev *device) (string, error) {
	view, err := dev.cache.Get(dev.cfg.Device.PickerID)
	if err != nil {
		return "", err
	}
	if view == nil {
		return "", errors.New("no cached session; pass --session or run pickline device sync")
	}
	return view.Session.ID, nil
}

func newDeviceSessionCommand(ctx *commandContext) *cobra.Command {
	var includeRemoved bool
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Show the active session, falling back to the cached copy",
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := ctx.openDevice()
			if err != nil {
				return err
			}
			defer dev.Close()

			view, stale, err := dev.agent.RefreshSession(cmd.Context(), picking.ViewOptions{IncludeRemoved: includeRemoved})
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, view)
			}
			out := cmd.OutOrStdout()
			if stale {
				fmt.Fprintln(out, "Offline: showing cached session")
			}
			fmt.Fprint(out, renderSessionView(*view))
			return nil
		},
	}
	cmd.Flags().BoolVar(&includeRemoved, "include-removed", false, "Include items removed by an admin")
	return cmd
}

func newDeviceQueueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List actions waiting for delivery",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := openQueueOnly(ctx)
			if err != nil {
				return err
			}
			defer q.Close()

			entries, err := q.List(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, entries)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "Queue is empty")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				next := ""
				if !e.NextAttemptAt.IsZero() {
					next = e.NextAttemptAt.Local().Format(time.DateTime)
				}
				rows = append(rows, []string{
					strconv.FormatInt(e.Seq, 10),
					e.Action.SessionID,
					e.Action.OriginalProductID,
					humanize(string(e.Action.Kind)),
					strconv.Itoa(e.Attempts),
					next,
					e.LastError,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Seq", "Session", "Product", "Kind", "Attempts", "Next Attempt", "Last Error"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
}

func newDeviceDeadLettersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "dead-letters",
		Short: "List actions the server rejected",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := openQueueOnly(ctx)
			if err != nil {
				return err
			}
			defer q.Close()

			letters, err := q.DeadLetters(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, letters)
			}
			out := cmd.OutOrStdout()
			if len(letters) == 0 {
				fmt.Fprintln(out, "No dead letters")
				return nil
			}
			rows := make([][]string, 0, len(letters))
			for _, l := range letters {
				rows = append(rows, []string{
					strconv.FormatInt(l.ID, 10),
					l.Action.SessionID,
					l.Action.OriginalProductID,
					humanize(string(l.Action.Kind)),
					strconv.Itoa(l.StatusCode),
					l.Reason,
					l.FailedAt.Local().Format(time.DateTime),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Session", "Product", "Kind", "Status", "Reason", "Failed"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
}

func newDeviceResetCommand(ctx *commandContext) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Discard queued actions and the cached session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("reset discards undelivered actions; rerun with --yes to confirm")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDeviceDirectories(); err != nil {
				return err
			}
			lock, err := lockDevice(cfg)
			if err != nil {
				return err
			}
			defer lock.Unlock() //nolint:errcheck

			dev, err := ctx.openDevice()
			if err != nil {
				return err
			}
			defer dev.Close()

			dropped, err := dev.agent.Reset(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Discarded %d queued action(s); dead letters kept\n", dropped)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the reset")
	return cmd
}

func openQueueOnly(ctx *commandContext) (*offline.Queue, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	return offline.Open(cfg)
}
