// Command leap-shell is an interactive shell for controlling a paired
// Lutron Caseta bridge.
//
// Usage:
//
//	leap-shell [flags] [bridge-address]
//
// Flags:
//
//	-config string    Configuration file path
//	-cert-dir string  Credential directory (default "lutron_certs")
//	-log-file string  Protocol event capture file (CBOR)
//	-timeout duration Request timeout (default 10s)
//
// The bridge address may come from the positional argument, the
// configuration file, or the LUTRON_BRIDGE_IP environment variable.
// A lost connection is redialed automatically with backoff.
//
// Commands:
//
//	list                  - List devices with their current states
//	on <device>           - Turn a device on
//	off <device>          - Turn a device off
//	dim <device> <level>  - Set brightness (0-100)
//	scenes                - List scenes
//	activate <scene>      - Activate a scene
//	status                - Show connection status
//	help                  - Show help
//	quit                  - Exit
//
// Devices and scenes are addressed by id or by name; unique name
// prefixes work too.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/leap-protocol/leap-go/cmd/leap-shell/interactive"
	"github.com/leap-protocol/leap-go/pkg/bridge"
	"github.com/leap-protocol/leap-go/pkg/cert"
	"github.com/leap-protocol/leap-go/pkg/config"
	"github.com/leap-protocol/leap-go/pkg/connection"
	"github.com/leap-protocol/leap-go/pkg/log"
)

func main() {
	configFile := flag.String("config", "", "configuration file path")
	certDir := flag.String("cert-dir", "", "credential directory")
	logFile := flag.String("log-file", "", "protocol event capture file")
	timeout := flag.Duration("timeout", 0, "request timeout")
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			fatalf("%v", err)
		}
		cfg = loaded
	}
	cfg.ApplyEnv()
	if *certDir != "" {
		cfg.CertDir = *certDir
	}
	if *logFile != "" {
		cfg.LogFile = *logFile
	}
	if *timeout != 0 {
		cfg.RequestTimeout = config.Duration(*timeout)
	}
	if flag.NArg() == 1 {
		cfg.BridgeAddress = flag.Arg(0)
	} else if flag.NArg() > 1 {
		flag.Usage()
		os.Exit(2)
	}

	store := cert.NewFileStore(cfg.CertDir)
	if cfg.BridgeAddress == "" {
		// Fall back to the address recorded at pairing time.
		if identity, err := store.Identity(); err == nil {
			cfg.BridgeAddress = identity.Address
		}
	}
	if err := cfg.Validate(); err != nil {
		fatalf("%v", err)
	}

	if err := run(cfg, store); err != nil {
		fatalf("%v", err)
	}
}

func run(cfg config.Config, store cert.Store) error {
	var logger log.Logger = log.NoopLogger{}
	if cfg.LogFile != "" {
		fileLogger, err := log.NewFileLogger(cfg.LogFile)
		if err != nil {
			return err
		}
		defer fileLogger.Close()
		logger = fileLogger
	}

	b, err := bridge.New(bridge.Config{
		Address:        cfg.BridgeAddress,
		Store:          store,
		RequestTimeout: cfg.RequestTimeout.Std(),
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer b.Close()

	// Reconnection is this command's job, not the bridge session's.
	manager := connection.NewManager(connection.Config{
		Connect: b.Connect,
		Logger:  logger,
	})
	defer manager.Close()
	b.OnDisconnect(manager.ConnectionLost)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("Connecting to %s...\n", cfg.BridgeAddress)
	if err := manager.Connect(ctx); err != nil {
		return err
	}

	shell, err := interactive.New(b, manager)
	if err != nil {
		return err
	}
	shell.Run(ctx, cancel)
	return nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
