// Command shadowbid-cli provides CLI tools for interacting with a running
// auctiond.
//
// # Commands
//
// create: Create an auction.
//
//	shadowbid-cli create -d http://localhost:8080 --caller alice --name "rare item" --duration 10m
//
// bid: Seal a bid against the daemon's oracle key and place it.
//
//	shadowbid-cli bid -d http://localhost:8080 --caller bob --auction <addr> --value 150 --deposit 150
//
// monitor: Stream auction events as they happen.
//
//	shadowbid-cli monitor -d http://localhost:8080 --kind auction-closed
//
// The start, close, settle, refund, cancel and status commands cover the
// rest of the auction lifecycle; fund credits a test account when the daemon
// runs with --dev-faucet.
package main

import (
	"bufio"
	"bytes"
	"crypto/ecdh"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/shadowbid/shadowbid/oracle"
	"github.com/shadowbid/shadowbid/services"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "create":
		err = runCreate(args)
	case "start":
		err = runLifecycle(args, "start")
	case "bid":
		err = runBid(args)
	case "close":
		err = runLifecycle(args, "close")
	case "settle":
		err = runSettle(args)
	case "refund":
		err = runRefund(args)
	case "cancel":
		err = runLifecycle(args, "cancel")
	case "status":
		err = runStatus(args)
	case "monitor":
		err = runMonitor(args)
	case "fund":
		err = runFund(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: shadowbid-cli <command> [flags]

Commands:
  create   Create an auction
  start    Activate a pending auction
  bid      Seal and place a bid
  close    Close an active auction (consults the oracle)
  settle   Release the winning deposit to the authority
  refund   Refund a losing bidder
  cancel   Cancel a bidless auction
  status   Show one auction or list auctions
  monitor  Stream auction events
  fund     Credit a test account (daemon must run with --dev-faucet)

Run 'shadowbid-cli <command> -h' for command flags.`)
}

func runCreate(args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	daemon := fs.String("d", "http://localhost:8080", "auctiond URL")
	caller := fs.String("caller", "", "Caller identity (auction authority)")
	id := fs.Uint64("id", uint64(time.Now().Unix()), "Auction ID, unique per authority")
	asset := fs.String("asset", "credits", "Escrow asset")
	name := fs.String("name", "", "Item name")
	desc := fs.String("desc", "", "Item description")
	reserve := fs.Uint64("reserve", 0, "Reserve price")
	startIn := fs.Duration("start-in", time.Minute, "Delay before the bidding window opens")
	duration := fs.Duration("duration", 10*time.Minute, "Length of the bidding window")
	fs.Parse(args)

	if *caller == "" || *name == "" {
		return fmt.Errorf("--caller and --name are required")
	}

	start := time.Now().Add(*startIn).Unix()
	req := services.CreateAuctionRequest{
		AuctionID:       *id,
		Asset:           *asset,
		StartTime:       start,
		EndTime:         start + int64(duration.Seconds()),
		ReservePrice:    *reserve,
		ItemName:        *name,
		ItemDescription: *desc,
	}

	var resp struct {
		services.MutationResponse
		Auction json.RawMessage `json:"auction"`
	}
	if err := post(*daemon+"/auctions", *caller, req, &resp); err != nil {
		return err
	}

	fmt.Printf("Auction created: %s (tx %s)\n", resp.Address, resp.TxID)
	return nil
}

// runLifecycle handles the body-less authority transitions.
func runLifecycle(args []string, action string) error {
	fs := flag.NewFlagSet(action, flag.ExitOnError)
	daemon := fs.String("d", "http://localhost:8080", "auctiond URL")
	caller := fs.String("caller", "", "Caller identity")
	auction := fs.String("auction", "", "Auction address")
	fs.Parse(args)

	if *caller == "" || *auction == "" {
		return fmt.Errorf("--caller and --auction are required")
	}

	var resp services.MutationResponse
	if err := post(fmt.Sprintf("%s/auctions/%s/%s", *daemon, *auction, action), *caller, nil, &resp); err != nil {
		return err
	}

	fmt.Printf("Auction %s: %s (tx %s)\n", action, resp.Address, resp.TxID)
	return nil
}

func runBid(args []string) error {
	fs := flag.NewFlagSet("bid", flag.ExitOnError)
	daemon := fs.String("d", "http://localhost:8080", "auctiond URL")
	caller := fs.String("caller", "", "Caller identity (bidder)")
	auctionAddr := fs.String("auction", "", "Auction address")
	value := fs.Uint64("value", 0, "Confidential bid value")
	deposit := fs.Uint64("deposit", 0, "Escrow deposit (disclosed)")
	fs.Parse(args)

	if *caller == "" || *auctionAddr == "" || *value == 0 || *deposit == 0 {
		return fmt.Errorf("--caller, --auction, --value and --deposit are required")
	}

	oracleKey, err := fetchOracleKey(*daemon)
	if err != nil {
		return err
	}

	var record struct {
		SessionID string `json:"session_id"`
	}
	if err := get(fmt.Sprintf("%s/auctions/%s", *daemon, *auctionAddr), &record); err != nil {
		return fmt.Errorf("fetching auction: %w", err)
	}

	sealed, err := oracle.Seal(oracleKey, record.SessionID, *value)
	if err != nil {
		return fmt.Errorf("sealing bid: %w", err)
	}

	var resp struct {
		services.MutationResponse
	}
	req := services.PlaceBidRequest{Deposit: *deposit, SealedBid: sealed}
	if err := post(fmt.Sprintf("%s/auctions/%s/bids", *daemon, *auctionAddr), *caller, req, &resp); err != nil {
		return err
	}

	fmt.Printf("Bid placed: %s (tx %s, deposit %d)\n", resp.Address, resp.TxID, *deposit)
	return nil
}

func runSettle(args []string) error {
	fs := flag.NewFlagSet("settle", flag.ExitOnError)
	daemon := fs.String("d", "http://localhost:8080", "auctiond URL")
	caller := fs.String("caller", "settler", "Caller identity")
	auction := fs.String("auction", "", "Auction address")
	fs.Parse(args)

	if *auction == "" {
		return fmt.Errorf("--auction is required")
	}

	var resp services.SettleResponse
	if err := post(fmt.Sprintf("%s/auctions/%s/settle", *daemon, *auction), *caller, nil, &resp); err != nil {
		return err
	}

	fmt.Printf("Settled: %d to %s (tx %s)\n", resp.Amount, resp.Winner, resp.TxID)
	return nil
}

func runRefund(args []string) error {
	fs := flag.NewFlagSet("refund", flag.ExitOnError)
	daemon := fs.String("d", "http://localhost:8080", "auctiond URL")
	caller := fs.String("caller", "refunder", "Caller identity")
	auction := fs.String("auction", "", "Auction address")
	bidder := fs.String("bidder", "", "Losing bidder to refund")
	fs.Parse(args)

	if *auction == "" || *bidder == "" {
		return fmt.Errorf("--auction and --bidder are required")
	}

	var resp services.RefundResponse
	if err := post(fmt.Sprintf("%s/auctions/%s/refund/%s", *daemon, *auction, *bidder), *caller, nil, &resp); err != nil {
		return err
	}

	fmt.Printf("Refunded: %d to %s (tx %s)\n", resp.Amount, resp.Bidder, resp.TxID)
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	daemon := fs.String("d", "http://localhost:8080", "auctiond URL")
	auction := fs.String("auction", "", "Auction address (empty lists all)")
	status := fs.String("status", "", "Filter list by status")
	fs.Parse(args)

	url := *daemon + "/auctions"
	if *auction != "" {
		url = fmt.Sprintf("%s/auctions/%s", *daemon, *auction)
	} else if *status != "" {
		url += "?status=" + *status
	}

	var out json.RawMessage
	if err := get(url, &out); err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, out, "", "  "); err != nil {
		return err
	}
	fmt.Println(pretty.String())
	return nil
}

func runMonitor(args []string) error {
	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	daemon := fs.String("d", "http://localhost:8080", "auctiond URL")
	kind := fs.String("kind", "auction-closed", "Event kind to stream")
	fs.Parse(args)

	resp, err := http.Get(fmt.Sprintf("%s/events/%s", *daemon, *kind))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}

	fmt.Printf("Streaming %s events (Ctrl-C to stop)\n", *kind)
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			fmt.Println(line)
		}
	}
	return scanner.Err()
}

func runFund(args []string) error {
	fs := flag.NewFlagSet("fund", flag.ExitOnError)
	daemon := fs.String("d", "http://localhost:8080", "auctiond URL")
	identity := fs.String("identity", "", "Account identity to credit")
	asset := fs.String("asset", "credits", "Asset")
	amount := fs.Uint64("amount", 1000, "Amount to credit")
	fs.Parse(args)

	if *identity == "" {
		return fmt.Errorf("--identity is required")
	}

	body := map[string]any{"identity": *identity, "asset": *asset, "amount": *amount}
	var resp map[string]any
	if err := post(*daemon+"/faucet", *identity, body, &resp); err != nil {
		return err
	}

	fmt.Printf("Funded %s: balance %v\n", *identity, resp["balance"])
	return nil
}

func fetchOracleKey(daemon string) (*ecdh.PublicKey, error) {
	var out struct {
		ExchangeKey string `json:"exchange_key"`
	}
	if err := get(daemon+"/oracle/key", &out); err != nil {
		return nil, fmt.Errorf("fetching oracle key: %w", err)
	}
	if out.ExchangeKey == "" {
		return nil, fmt.Errorf("daemon has no oracle exchange key (attested mode?)")
	}

	raw, err := hex.DecodeString(out.ExchangeKey)
	if err != nil {
		return nil, fmt.Errorf("invalid oracle key hex: %w", err)
	}
	return ecdh.X25519().NewPublicKey(raw)
}

func post(url, caller string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequest(http.MethodPost, url, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Caller", caller)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func get(url string, out any) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	var apiErr services.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("%s (status %d)", apiErr.Error, resp.StatusCode)
	}
	return fmt.Errorf("daemon returned status %d", resp.StatusCode)
}
