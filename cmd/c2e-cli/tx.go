package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"charge2earn/core/types"
	"charge2earn/crypto"
	"charge2earn/native/charge2earn"
)

var cliNow = time.Now

// submit signs ix with key and sends it. A receipt that reports a program
// error is printed and turns into a non-zero exit.
func submit(ix types.Instruction, key *crypto.PrivateKey, stdout, stderr io.Writer) int {
	tx := &types.Transaction{Instruction: ix, Nonce: uint64(cliNow().UnixNano())}
	if err := tx.Sign(key.PrivateKey); err != nil {
		fmt.Fprintf(stderr, "Error: sign transaction: %v\n", err)
		return 1
	}
	raw, err := call("c2e_sendTransaction", []interface{}{tx}, true)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	printJSON(stdout, raw)

	var result struct {
		Receipt *types.Receipt `json:"receipt"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		fmt.Fprintf(stderr, "Error: decode receipt: %v\n", err)
		return 1
	}
	if result.Receipt != nil && !result.Receipt.Success {
		fmt.Fprintf(stderr, "Transaction failed: %s\n", result.Receipt.ErrorKind)
		return 1
	}
	return 0
}

func requireAddress(flagName, raw string) (common.Address, error) {
	if raw == "" {
		return common.Address{}, fmt.Errorf("--%s is required", flagName)
	}
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("--%s: %w", flagName, err)
	}
	return addr, nil
}

func runAddCharger(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("add-charger", stderr)
	var (
		keyFile      string
		feeRecipient string
		station      charge2earn.AddCharger
		power        float64
	)
	fs.StringVar(&keyFile, "key", "wallet.json", "operator keystore")
	fs.StringVar(&station.Code, "code", "", "charger code")
	fs.StringVar(&station.Name, "name", "", "display name")
	fs.StringVar(&station.City, "city", "", "city")
	fs.StringVar(&station.Address, "address", "", "street address")
	fs.Float64Var(&station.Latitude, "lat", 0, "latitude")
	fs.Float64Var(&station.Longitude, "lon", 0, "longitude")
	fs.Float64Var(&power, "power", 0, "power in kW")
	fs.Uint64Var(&station.RewardRate, "reward", 0, "points per second")
	fs.Uint64Var(&station.PriceRate, "price", 0, "base units per second")
	fs.StringVar(&feeRecipient, "fee-recipient", "", "registration fee recipient wallet")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if station.Code == "" {
		fmt.Fprintln(stderr, "Error: --code is required")
		return 1
	}
	station.PowerKW = float32(power)
	recipient, err := requireAddress("fee-recipient", feeRecipient)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	key, err := loadKey(keyFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	record, err := charge2earn.ChargerAddress(station.Code, key.Address())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	ix, err := charge2earn.NewAddChargerInstruction(key.Address(), recipient, station)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Charger: %s\n", crypto.EncodeAddress(record))
	return submit(ix, key, stdout, stderr)
}

func runStartSession(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("start-session", stderr)
	keyFile := fs.String("key", "wallet.json", "driver keystore")
	chargerFlag := fs.String("charger", "", "charger record address")
	start := fs.Int64("start", 0, "session start as unix seconds (defaults to now)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	charger, err := requireAddress("charger", *chargerFlag)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	startTs := *start
	if !flagSet(fs, "start") {
		startTs = cliNow().Unix()
	}
	key, err := loadKey(*keyFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	ix, err := charge2earn.NewStartSessionInstruction(key.Address(), charger, startTs)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Start: %d\n", startTs)
	return submit(ix, key, stdout, stderr)
}

func runStopSession(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("stop-session", stderr)
	keyFile := fs.String("key", "wallet.json", "driver keystore")
	chargerFlag := fs.String("charger", "", "charger record address")
	operatorFlag := fs.String("operator", "", "charger operator wallet")
	start := fs.Int64("start", 0, "session start as unix seconds")
	end := fs.Int64("end", 0, "session end as unix seconds (defaults to now)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	charger, err := requireAddress("charger", *chargerFlag)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	operator, err := requireAddress("operator", *operatorFlag)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if !flagSet(fs, "start") {
		fmt.Fprintln(stderr, "Error: --start is required")
		return 1
	}
	endTs := *end
	if !flagSet(fs, "end") {
		endTs = cliNow().Unix()
	}
	key, err := loadKey(*keyFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	ix, err := charge2earn.NewStopSessionInstruction(key.Address(), charger, operator, *start, endTs)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return submit(ix, key, stdout, stderr)
}

func runCreateListing(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("create-listing", stderr)
	keyFile := fs.String("key", "wallet.json", "seller keystore")
	amount := fs.Uint64("amount", 0, "points to list")
	price := fs.Uint64("price", 0, "base units per point")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *amount == 0 {
		fmt.Fprintln(stderr, "Error: --amount must be positive")
		return 1
	}
	key, err := loadKey(*keyFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	ix, err := charge2earn.NewCreateListingInstruction(key.Address(), *amount, *price)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return submit(ix, key, stdout, stderr)
}

func runBuy(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("buy", stderr)
	keyFile := fs.String("key", "wallet.json", "buyer keystore")
	sellerFlag := fs.String("seller", "", "seller wallet")
	amount := fs.Uint64("amount", 0, "points to buy")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	seller, err := requireAddress("seller", *sellerFlag)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if *amount == 0 {
		fmt.Fprintln(stderr, "Error: --amount must be positive")
		return 1
	}
	key, err := loadKey(*keyFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	ix, err := charge2earn.NewBuyFromListingInstruction(key.Address(), seller, *amount)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return submit(ix, key, stdout, stderr)
}

func runCancelListing(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("cancel-listing", stderr)
	keyFile := fs.String("key", "wallet.json", "seller keystore")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	key, err := loadKey(*keyFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	ix, err := charge2earn.NewCancelListingInstruction(key.Address())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return submit(ix, key, stdout, stderr)
}

// flagSet reports whether name was given explicitly.
func flagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
