// Command leap-pair pairs with a Lutron Caseta bridge and saves the
// authentication credential used by every other command.
//
// Pairing requires physical access: after the command starts, press the
// small button on the back of the bridge within 30 seconds.
//
// Usage:
//
//	leap-pair [flags] <bridge-address>
//
// Flags:
//
//	-cert-dir string      Credential directory (default "lutron_certs")
//	-display-name string  Name shown in the bridge's client list (default "leap-go")
//	-window duration      How long to wait for the button press (default 30s)
//	-config string        Configuration file path
//
// Examples:
//
//	# Pair with the bridge at 192.168.1.50
//	leap-pair 192.168.1.50
//
//	# Pair into a shared credential directory
//	leap-pair -cert-dir /etc/leap/certs 192.168.1.50
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/leap-protocol/leap-go/pkg/cert"
	"github.com/leap-protocol/leap-go/pkg/config"
	"github.com/leap-protocol/leap-go/pkg/pairing"
)

func main() {
	certDir := flag.String("cert-dir", "", "credential directory")
	displayName := flag.String("display-name", pairing.DefaultDisplayName, "name shown in the bridge's client list")
	window := flag.Duration("window", pairing.DefaultWindow, "how long to wait for the button press")
	configFile := flag.String("config", "", "configuration file path")
	flag.Usage = usage
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

	address := cfg.BridgeAddress
	if flag.NArg() == 1 {
		address = flag.Arg(0)
	} else if flag.NArg() > 1 {
		usage()
		os.Exit(2)
	}
	if address == "" {
		usage()
		os.Exit(2)
	}

	if err := run(address, cfg.CertDir, *displayName, *window); err != nil {
		fatalf("%v", err)
	}
}

func run(address, certDir, displayName string, window time.Duration) error {
	store := cert.NewFileStore(certDir)

	fmt.Printf("Pairing with Lutron bridge at %s...\n\n", address)
	fmt.Println("  PRESS THE SMALL BUTTON ON YOUR BRIDGE NOW")
	fmt.Printf("  (you have %s)\n\n", window)

	_, err := pairing.Pair(context.Background(), pairing.Config{
		Address:     address,
		Store:       store,
		DisplayName: displayName,
		Window:      window,
	})
	if errors.Is(err, pairing.ErrPairingTimedOut) {
		return fmt.Errorf("pairing timed out; make sure you pressed the button on the bridge")
	}
	if err != nil {
		return err
	}

	fmt.Println("Pairing successful.")
	fmt.Printf("\nCredential saved to %s\n", store.Dir())
	fmt.Printf("  metadata: %s\n", filepath.Join(store.Dir(), "bridge.json"))
	fmt.Println("\nRun leap-shell to control the bridge.")
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: leap-pair [flags] <bridge-address>\n")
	fmt.Fprintf(os.Stderr, "Example: leap-pair 192.168.1.50\n\nFlags:\n")
	flag.PrintDefaults()
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
