// Command estakerneld hosts the ESTA kernel as a standalone process: it
// loads WebAssembly module descriptors from disk, executes a function in
// each, and prints status/audit output before shutting down.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Michiganman2353/ESTA-Logic/internal/audit"
	"github.com/Michiganman2353/ESTA-Logic/internal/config"
	"github.com/Michiganman2353/ESTA-Logic/internal/kernel"
	"github.com/Michiganman2353/ESTA-Logic/pkg/logger"
)

func main() {
	descriptors := flag.String("descriptors", "", "comma-separated list of module descriptor JSON files to launch at startup")
	entrypoint := flag.String("entrypoint", "_start", "exported function to invoke on each launched module")
	statusOnly := flag.Bool("status", false, "print kernel status and exit without waiting for a signal")
	printLogs := flag.Bool("logs", false, "print audit log entries alongside status")
	trustedKeyHex := flag.String("trusted-key", "", "hex-encoded Ed25519 public key; enables signature enforcement when set")
	flag.Parse()

	lg := logger.NewFromEnv("estakerneld")

	opts := config.KernelOptionsFromEnv()
	if *trustedKeyHex != "" {
		key, err := hex.DecodeString(strings.TrimPrefix(*trustedKeyHex, "0x"))
		if err != nil {
			log.Fatalf("invalid -trusted-key: %v", err)
		}
		opts.RequireSignatures = true
		opts.TrustedPublicKey = key
	}

	ctx := context.Background()
	k, err := kernel.New(ctx, opts, config.AuditOptionsFromEnv(), config.DefaultSupervisorDefaults(), lg)
	if err != nil {
		log.Fatalf("failed to start kernel: %v", err)
	}

	for _, path := range splitNonEmpty(*descriptors, ",") {
		if err := k.LaunchModule(ctx, path); err != nil {
			lg.WithError(err).WithFields(map[string]interface{}{"descriptor": path}).Error("failed to launch module")
			continue
		}
		name := moduleNameFromDescriptor(path)
		if err := k.Execute(ctx, name, *entrypoint, nil); err != nil {
			lg.WithError(err).WithFields(map[string]interface{}{"module": name, "function": *entrypoint}).Error("execution failed")
		}
	}

	printStatus(k)
	if *printLogs {
		printAuditLogs(k)
	}
	if *statusOnly {
		_ = k.Shutdown(ctx, "status-only run")
		return
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := k.Shutdown(shutdownCtx, "signal"); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func printStatus(k *kernel.Kernel) {
	status := k.Status()
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		log.Printf("marshal status: %v", err)
		return
	}
	fmt.Println(string(data))
}

func printAuditLogs(k *kernel.Kernel) {
	for _, entry := range k.GetLogs(audit.Filter{}) {
		data, err := json.Marshal(entry)
		if err != nil {
			log.Printf("marshal audit entry %d: %v", entry.Sequence, err)
			continue
		}
		fmt.Println(string(data))
	}
}

// moduleNameFromDescriptor loads a descriptor to recover the module name
// it was registered under; LaunchModule already validated the file once.
func moduleNameFromDescriptor(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	d, err := kernel.ParseDescriptor(data)
	if err != nil {
		return ""
	}
	return d.Name
}

func splitNonEmpty(s, sep string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
