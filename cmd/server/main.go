// Command server is the d-bee daemon: it owns the admin and client TCP
// listeners, the database registry, and the worker pool.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/d-bee/dbee/internal/server"
)

func defaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".d-bee"
	}
	return filepath.Join(home, ".d-bee")
}

func main() {
	base := flag.String("base", defaultBaseDir(), "base directory holding per-database subdirectories, the registry, and .env")
	clientAddr := flag.String("client-addr", ":7070", "client TCP listen address")
	adminAddr := flag.String("admin-addr", ":7071", "admin TCP listen address")
	workers := flag.Int("workers", 10, "worker pool size")
	flag.Parse()

	srv, err := server.New(server.Config{
		BaseDir:    *base,
		ClientAddr: *clientAddr,
		AdminAddr:  *adminAddr,
		Workers:    *workers,
	})
	if err != nil {
		log.Fatalf("server: %v", err)
	}

	log.Printf("d-bee: base=%s client=%s admin=%s workers=%d", *base, *clientAddr, *adminAddr, *workers)
	if err := srv.Run(); err != nil {
		log.Fatalf("server: %v", err)
	}
	log.Println("d-bee: terminated")
}
