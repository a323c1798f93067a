// ghostcart-mcp serves the purchase engine over MCP on stdio. It runs
// the full stack in-process against the shared SQLite database; start
// ghostcart-d alongside it to drive the monitoring jobs it creates.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ghostcart/ghostcart/pkg/engine"
	"github.com/ghostcart/ghostcart/pkg/ledger"
	"github.com/ghostcart/ghostcart/pkg/mcp"
	"github.com/ghostcart/ghostcart/pkg/provider"
	"github.com/ghostcart/ghostcart/pkg/signature"
	"github.com/ghostcart/ghostcart/pkg/store"
	"github.com/ghostcart/ghostcart/pkg/validator"
)

func main() {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get cwd: %v\n", err)
		os.Exit(1)
	}

	flagSet := flag.NewFlagSet("ghostcart-mcp", flag.ContinueOnError)
	dbPath := flagSet.String("db", envOrDefault("GHOSTCART_DB_PATH", filepath.Join(cwd, "ghostcart.db")), "path to SQLite database")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "invalid arguments: %v\n", err)
		os.Exit(1)
	}

	userKey := os.Getenv("GHOSTCART_USER_KEY")
	agentKey := os.Getenv("GHOSTCART_AGENT_KEY")
	engineKey := os.Getenv("GHOSTCART_ENGINE_KEY")
	if userKey == "" || agentKey == "" || engineKey == "" {
		fmt.Fprintln(os.Stderr, "GHOSTCART_USER_KEY, GHOSTCART_AGENT_KEY, and GHOSTCART_ENGINE_KEY must all be set")
		os.Exit(1)
	}

	st, err := store.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	signer := signature.NewService(signature.NewKeyring(userKey, agentKey, engineKey))
	vault := provider.NewMockVault()
	network := provider.NewMockNetwork()
	catalog := provider.NewMockCatalog()
	v := validator.New(signer, vault, network)
	recorder := ledger.NewRecorder(st)
	eng := engine.New(st, catalog, v, recorder, signer)

	srv := mcp.NewServer(eng, st)
	if err := srv.Serve(); err != nil {
		fmt.Fprintf(os.Stderr, "mcp server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
