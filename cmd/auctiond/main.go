// Command auctiond runs the sealed-bid auction escrow daemon.
//
// The daemon hosts the auction state machine, the settlement engine and the
// HTTP API. Auction and bid records persist to Postgres when enabled, so the
// machine survives restarts; the escrow ledger itself is in-process and
// stands in for the hosting ledger runtime.
//
// # Oracle Modes
//
// simulated: An in-process oracle decrypts sealed bids and determines the
// winner, proving its result with an HMAC over the result digest. The
// oracle's exchange key is exposed at GET /oracle/key so bidders can seal
// bids against it.
//
// attested: No in-process oracle. An external confidential computation
// service posts results to POST /auctions/{address}/resolve; the result
// proof must be a DCAP-TDX attestation over the result digest.
//
// # Usage
//
//	go run ./cmd/auctiond --addr=:8080 --metrics-addr=:9090
//	go run ./cmd/auctiond --config=auctiond.yaml --log-json
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/shadowbid/shadowbid/api/httpserver"
	"github.com/shadowbid/shadowbid/auction"
	"github.com/shadowbid/shadowbid/cmd/common"
	pkg "github.com/shadowbid/shadowbid/common"
	"github.com/shadowbid/shadowbid/ledger"
	"github.com/shadowbid/shadowbid/metrics"
	"github.com/shadowbid/shadowbid/oracle"
	"github.com/shadowbid/shadowbid/services"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		addr        = flag.String("addr", ":8080", "HTTP listen address")
		metricsAddr = flag.String("metrics-addr", "", "Metrics listen address (empty disables)")
		enablePprof = flag.Bool("pprof", false, "Mount pprof debug endpoints")
		enableCORS  = flag.Bool("cors", false, "Allow cross-origin requests")
		logJSON     = flag.Bool("log-json", false, "Log in JSON format")
		logDebug    = flag.Bool("debug", false, "Log at debug level")
		oracleMode  = flag.String("oracle-mode", "", "Oracle mode: simulated or attested")
		tdxURL      = flag.String("tdx-url", "", "Remote TDX verification service URL (attested mode)")
		devFaucet   = flag.Bool("dev-faucet", false, "Mount POST /faucet for crediting test accounts")
	)
	flag.Parse()

	isFlagSet := func(name string) bool {
		found := false
		flag.Visit(func(f *flag.Flag) {
			if f.Name == name {
				found = true
			}
		})
		return found
	}

	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if isFlagSet("addr") || cfg.HTTPAddr == "" {
		cfg.HTTPAddr = *addr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *enablePprof {
		cfg.EnablePprof = true
	}
	if *enableCORS {
		cfg.EnableCORS = true
	}
	if *logJSON {
		cfg.Log.JSON = true
	}
	if *logDebug {
		cfg.Log.Debug = true
	}
	if *oracleMode != "" {
		cfg.Oracle.Mode = *oracleMode
	}
	if *tdxURL != "" {
		cfg.Oracle.TDXRemoteURL = *tdxURL
	}

	if err := run(cfg, *devFaucet); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfiguration(configPath string) (*common.Config, error) {
	if configPath != "" {
		return common.LoadConfig(configPath)
	}
	return common.DefaultConfig(), nil
}

func run(cfg *common.Config, devFaucet bool) error {
	log := common.SetupLogger(cfg.Log.JSON, cfg.Log.Debug)

	store, err := common.NewRecordStore(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("creating record store: %w", err)
	}
	defer store.Close()

	metricsSrv, err := metrics.New(pkg.PackageName, cfg.MetricsAddr)
	if err != nil {
		return fmt.Errorf("creating metrics server: %w", err)
	}

	led := ledger.NewInMemoryLedger()

	var (
		orc      auction.Oracle
		verifier auction.ProofVerifier
		keyHex   string
	)
	switch cfg.Oracle.Mode {
	case "", "simulated":
		sim, err := oracle.NewSimulatedOracle()
		if err != nil {
			return fmt.Errorf("creating simulated oracle: %w", err)
		}
		orc = sim
		verifier = sim.Verifier()
		keyHex = hex.EncodeToString(sim.ExchangeKey().Bytes())
		log.Info("Using simulated oracle", "exchangeKey", keyHex)
	case "attested":
		verifier = &oracle.AttestedVerifier{Provider: common.NewProofBackend(cfg.Oracle)}
		log.Info("Using attested oracle results via /resolve")
	default:
		return fmt.Errorf("unknown oracle mode %q", cfg.Oracle.Mode)
	}

	service, err := services.NewAuctionService(&services.ServiceConfig{
		Ledger:   led,
		Store:    store,
		Oracle:   orc,
		Verifier: verifier,
		Metrics:  metricsSrv,
	}, log)
	if err != nil {
		return fmt.Errorf("creating auction service: %w", err)
	}

	registrars := []httpserver.RouteRegistrar{
		services.NewHTTPAuctionService(service, log),
		&oracleKeyRoutes{keyHex: keyHex},
	}
	if devFaucet {
		log.Warn("Dev faucet enabled, POST /faucet credits arbitrary accounts")
		registrars = append(registrars, &faucetRoutes{ledger: led})
	}

	srv, err := httpserver.New(&httpserver.Config{
		ListenAddr:  cfg.HTTPAddr,
		MetricsAddr: cfg.MetricsAddr,
		EnablePprof: cfg.EnablePprof,
		EnableCORS:  cfg.EnableCORS,
		Log:         log,
		Metrics:     metricsSrv,
	}, registrars...)
	if err != nil {
		return fmt.Errorf("creating HTTP server: %w", err)
	}

	srv.RunInBackground()
	log.Info("auctiond started", "addr", cfg.HTTPAddr, "oracleMode", cfg.Oracle.Mode)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down")
	srv.Shutdown()
	return nil
}

// oracleKeyRoutes exposes the simulated oracle's exchange key so bidders can
// seal bids against it. Empty in attested mode.
type oracleKeyRoutes struct {
	keyHex string
}

func (o *oracleKeyRoutes) RegisterRoutes(r chi.Router) {
	r.Get("/oracle/key", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"exchange_key": o.keyHex})
	})
}

// faucetRoutes credits test accounts on the in-process ledger. Development
// only, mounted behind the --dev-faucet flag.
type faucetRoutes struct {
	ledger *ledger.InMemoryLedger
}

func (f *faucetRoutes) RegisterRoutes(r chi.Router) {
	r.Post("/faucet", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Identity string `json:"identity"`
			Asset    string `json:"asset"`
			Amount   uint64 `json:"amount"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if body.Identity == "" || body.Asset == "" || body.Amount == 0 {
			http.Error(w, "identity, asset and amount are required", http.StatusBadRequest)
			return
		}

		addr := ledger.AccountAddress(ledger.Identity(body.Identity))
		f.ledger.Credit(addr, body.Asset, body.Amount)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"address": addr.String(),
			"balance": f.ledger.Balance(addr, body.Asset),
		})
	})
}
