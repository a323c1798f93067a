package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ghostcart/ghostcart/pkg/engine"
	"github.com/ghostcart/ghostcart/pkg/ledger"
	"github.com/ghostcart/ghostcart/pkg/provider"
	"github.com/ghostcart/ghostcart/pkg/signature"
	"github.com/ghostcart/ghostcart/pkg/store"
	storeredis "github.com/ghostcart/ghostcart/pkg/store/redis"
	"github.com/ghostcart/ghostcart/pkg/validator"
)

func main() {
	fmt.Println(`{"level":"info","msg":"system_started","component":"ghostcart-d"}`)

	config, err := LoadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Printf(`{"level":"fatal","msg":"invalid_config","error":"%v"}`+"\n", err)
		os.Exit(1)
	}

	st, err := store.NewStore(config.DBPath)
	if err != nil {
		fmt.Printf(`{"level":"fatal","msg":"failed_to_init_store","error":"%v"}`+"\n", err)
		os.Exit(1)
	}
	fmt.Printf(`{"level":"info","msg":"store_initialized","path":"%s"}`+"\n", config.DBPath)

	signer := signature.NewService(signature.NewKeyring(config.UserKey, config.AgentKey, config.EngineKey))
	catalog := provider.NewMockCatalog()
	vault := provider.NewMockVault()
	network := provider.NewMockNetwork()
	v := validator.New(signer, vault, network)
	recorder := ledger.NewRecorder(st)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := []engine.Option{}
	if config.RedisAddr != "" {
		client, err := storeredis.Connect(ctx, config.RedisAddr)
		if err != nil {
			fmt.Printf(`{"level":"fatal","msg":"failed_to_connect_redis","error":"%v"}`+"\n", err)
			os.Exit(1)
		}
		defer client.Close()
		holderID := "ghostcart-d-" + uuid.NewString()
		opts = append(opts, engine.WithLocker(storeredis.NewJobLock(client), holderID))
		fmt.Printf(`{"level":"info","msg":"job_lock_enabled","addr":"%s","holder":"%s"}`+"\n", config.RedisAddr, holderID)
	}

	eng := engine.New(st, catalog, v, recorder, signer, opts...)
	poller := engine.NewPoller(eng, config.CheckInterval, config.Workers)
	go poller.Start(ctx)
	fmt.Printf(`{"level":"info","msg":"poller_started","interval":"%s","workers":%d}`+"\n", config.CheckInterval, config.Workers)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	httpServer := &http.Server{Addr: config.Addr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf(`{"level":"error","msg":"http_server_failed","error":"%v"}`+"\n", err)
		}
	}()
	fmt.Printf(`{"level":"info","msg":"metrics_listening","addr":"%s"}`+"\n", config.Addr)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigs
	fmt.Printf(`{"level":"info","msg":"shutdown_initiated","signal":"%s"}`+"\n", sig)

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Printf(`{"level":"error","msg":"http_shutdown_failed","error":"%v"}`+"\n", err)
	}

	if err := st.Close(); err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_close_store","error":"%v"}`+"\n", err)
	} else {
		fmt.Println(`{"level":"info","msg":"store_closed"}`)
	}

	fmt.Println(`{"level":"info","msg":"shutdown_complete"}`)
}
