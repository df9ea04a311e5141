package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"asic_chain/config"
	"asic_chain/device"
	"asic_chain/device/asicio"
	"asic_chain/jsonrpc"
	"asic_chain/log"
	"asic_chain/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          version.Name,
		Short:        "Enumerate, configure and drive BM13xx hash board chains",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), newStatusCmd(), newVersionCmd(), newPortsCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		cfgPath   string
		debug     bool
		workEvery time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Bring the configured boards up and serve the status API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			log.SetDebug(debug || cfg.Log.Debug)
			return run(cmd.Context(), cfg, workEvery)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "chainctl.yaml", "configuration file")
	cmd.Flags().BoolVar(&debug, "debug", false, "debug logging")
	cmd.Flags().DurationVar(&workEvery, "test-work", 0, "submit a zero job to every board at this interval")
	return cmd
}

func run(parent context.Context, cfg *config.Config, workEvery time.Duration) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("=============== %s %s start ===============", version.Name, version.Version)
	boards, err := buildBoards(cfg)
	if err != nil {
		return err
	}

	mgr := device.NewDeviceManager()
	if err := mgr.Init(ctx, boards...); err != nil {
		mgr.Fini()
		return err
	}

	srv, err := jsonrpc.NewServer(cfg.API.Listen, jsonrpc.NewAPIHandler(mgr), false)
	if err != nil {
		mgr.Fini()
		return err
	}
	go srv.ListenAndServe()
	log.Infof("status API on %s", srv.Addr())

	go logResults(ctx, mgr)
	if workEvery > 0 {
		go feedTestWork(ctx, mgr, workEvery)
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	mgr.Fini()

	log.Infof("=============== %s stop ===============", version.Name)
	return nil
}

func logResults(ctx context.Context, mgr *device.DeviceManager) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-mgr.Results():
			log.Debugf("board %d chip %d job %d nonce 0x%08x version 0x%08x (%s)",
				r.Board, r.Position, r.JobID, r.Nonce, r.Version, r.Tag)
		}
	}
}

func feedTestWork(ctx context.Context, mgr *device.DeviceManager, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	var n uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		n++
		for _, b := range mgr.Boards() {
			if !b.Enabled() {
				continue
			}
			if _, err := b.Submit(ctx, testWork(b.Chain.Model().Name(), n)); err != nil {
				log.Debugf("board %d: test work: %v", b.ID, err)
			}
		}
	}
}

func newStatusCmd() *cobra.Command {
	var (
		addr  string
		board int
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running chainctl over the status API",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := jsonrpc.NewTCPClient(addr)
			defer c.Shutdown()

			command, param := "summary", interface{}(nil)
			if board >= 0 {
				command, param = "slots", board
			}
			resp, err := c.Command(command, param)
			if err != nil {
				return err
			}
			return printJSON(cmd, resp.Data)
		},
	}
	cmd.Flags().StringVarP(&addr, "api", "a", "127.0.0.1:4028", "status API address")
	cmd.Flags().IntVarP(&board, "slots", "s", -1, "show the chip slots of this board")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd, version.GetVersionConfig())
		},
	}
}

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := asicio.ListPorts()
			if err != nil {
				return err
			}
			for _, p := range ports {
				if p.IsUSB {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tusb %s:%s %s\n", p.Name, p.VID, p.PID, p.SerialNumber)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\n", p.Name)
				}
			}
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}
