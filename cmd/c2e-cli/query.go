package main

import (
	"fmt"
	"io"

	"charge2earn/crypto"
)

func runBalance(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Usage: c2e-cli balance ADDRESS")
		return 1
	}
	addr, err := crypto.DecodeAddress(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return query(stdout, stderr, "c2e_getBalance", crypto.EncodeAddress(addr))
}

func runChargers(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("chargers", stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	return query(stdout, stderr, "c2e_listChargers")
}

func runListings(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("listings", stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	return query(stdout, stderr, "c2e_listListings")
}

func runLeaderboard(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("leaderboard", stderr)
	limit := fs.Uint64("limit", 10, "number of drivers to show")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	return query(stdout, stderr, "c2e_leaderboard", *limit)
}

func runSessions(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("sessions", stderr)
	driverFlag := fs.String("driver", "", "driver wallet")
	limit := fs.Uint64("limit", 20, "number of sessions to show")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	driver, err := requireAddress("driver", *driverFlag)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return query(stdout, stderr, "c2e_driverSessions", crypto.EncodeAddress(driver), *limit)
}

func runFaucet(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("faucet", stderr)
	to := fs.String("to", "", "wallet to fund")
	amount := fs.Uint64("amount", 0, "base units to credit")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	addr, err := requireAddress("to", *to)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if *amount == 0 {
		fmt.Fprintln(stderr, "Error: --amount must be positive")
		return 1
	}
	raw, err := call("c2e_faucet", []interface{}{crypto.EncodeAddress(addr), *amount}, true)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	printJSON(stdout, raw)
	return 0
}

func query(stdout, stderr io.Writer, method string, params ...interface{}) int {
	raw, err := call(method, params, false)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	printJSON(stdout, raw)
	return 0
}
