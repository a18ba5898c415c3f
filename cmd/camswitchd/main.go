// Command camswitchd runs the camera session headless behind an HTTP control
// surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"camswitch/internal/bootstrap"
	"camswitch/internal/config"
	"camswitch/internal/remote"
)

const shutdownTimeout = 5 * time.Second

type options struct {
	addr        string
	device      string
	listDevices bool
	startLive   bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "camswitchd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	opts, err := parseFlags(args, cfg, stderr)
	if err != nil {
		return err
	}
	cfg.Remote.Addr = opts.addr
	cfg.Session.PreferredDeviceID = opts.device

	logger, err := bootstrap.NewLogger(cfg.Log, stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	hub := remote.NewHub(logger)
	services, err := bootstrap.BuildWith(cfg, stderr, hub)
	if err != nil {
		return err
	}
	controller := services.Controller

	if opts.listDevices {
		devices, err := controller.RefreshDevices(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Available cameras (%s backend):\n", cfg.Backend)
		for i, device := range devices {
			label := device.Label
			if label == "" {
				label = "(unnamed)"
			}
			fmt.Fprintf(stdout, "[%d] %s  %s\n", i, label, device.ID)
		}
		return nil
	}

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	server := remote.NewServer(cfg.Remote.Addr, controller, hub, logger)

	if opts.startLive {
		if _, err := controller.Start(ctx); err != nil {
			logger.Warn("initial camera start failed", "error", err)
		}
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.ListenAndServe() }()

	select {
	case err := <-serveErr:
		_ = controller.Close()
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := controller.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := <-serveErr; err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func parseFlags(args []string, cfg config.Config, output io.Writer) (options, error) {
	fs := flag.NewFlagSet("camswitchd", flag.ContinueOnError)
	fs.SetOutput(output)

	var opts options
	fs.StringVar(&opts.addr, "addr", cfg.Remote.Addr, "HTTP control address")
	fs.StringVar(&opts.device, "device", cfg.Session.PreferredDeviceID, "preferred camera device id")
	fs.BoolVar(&opts.listDevices, "list-devices", false, "list available cameras and exit")
	fs.BoolVar(&opts.startLive, "start", false, "start the camera immediately")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	opts.addr = strings.TrimSpace(opts.addr)
	if opts.addr == "" {
		return options{}, errors.New("-addr must not be empty")
	}
	opts.device = strings.TrimSpace(opts.device)
	return opts, nil
}
