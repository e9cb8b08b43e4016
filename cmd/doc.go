// Package cmd provides CLI commands for the shadowbid services.
//
// # Commands
//
// auctiond: The escrow daemon. Hosts the auction state machine, the
// settlement engine and the HTTP API, with optional Postgres persistence
// and a Prometheus metrics listener.
//
//	go run ./cmd/auctiond --addr=:8080 --metrics-addr=:9090
//	go run ./cmd/auctiond --config=auctiond.yaml
//
// shadowbid-cli: CLI for interacting with a running auctiond.
//
//	go run ./cmd/shadowbid-cli create -d http://localhost:8080 --caller alice --name "rare item"
//	go run ./cmd/shadowbid-cli bid -d http://localhost:8080 --caller bob --auction <addr> --value 150 --deposit 150
//	go run ./cmd/shadowbid-cli monitor -d http://localhost:8080 --kind auction-closed
//
// # Configuration
//
// auctiond supports a YAML configuration file via the --config flag.
// Command-line flags override config file values.
//
// Example config:
//
//	http_addr: ":8080"
//	metrics_addr: ":9090"
//	log:
//	  json: true
//	  debug: false
//	oracle:
//	  mode: "simulated"   # simulated or attested
//	  tdx_remote_url: ""
//	postgres:
//	  enabled: false
//	  host: "localhost"
//	  port: 5432
//	  user: "shadowbid"
//	  password: ""
//	  database: "shadowbid"
package cmd
