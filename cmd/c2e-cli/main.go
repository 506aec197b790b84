package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	rpcURLEnv     = "C2E_RPC_URL"
	rpcTokenEnv   = "C2E_RPC_TOKEN"
	keystorePass  = "C2E_KEYSTORE_PASS"
	defaultRPCURL = "http://127.0.0.1:8545"
)

var (
	rpcEndpoint  = defaultRPCEndpoint()
	rpcAuthToken = strings.TrimSpace(os.Getenv(rpcTokenEnv))
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}

	handlers := map[string]func([]string, io.Writer, io.Writer) int{
		"generate-key":   runGenerateKey,
		"address":        runAddress,
		"balance":        runBalance,
		"add-charger":    runAddCharger,
		"start-session":  runStartSession,
		"stop-session":   runStopSession,
		"create-listing": runCreateListing,
		"buy":            runBuy,
		"cancel-listing": runCancelListing,
		"chargers":       runChargers,
		"listings":       runListings,
		"leaderboard":    runLeaderboard,
		"sessions":       runSessions,
		"faucet":         runFaucet,
	}
	handler, ok := handlers[args[0]]
	if !ok {
		if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
			fmt.Fprintln(stdout, usage())
			return 0
		}
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
	return handler(args[1:], stdout, stderr)
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv(rpcURLEnv)); v != "" {
		return v
	}
	return defaultRPCURL
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func usage() string {
	return strings.TrimSpace(`
Usage: c2e-cli [--rpc URL] <command> [flags]

Keys:
  generate-key   --out FILE                 Create an encrypted keystore
  address        --key FILE                 Print the identity of a keystore

Wallet:
  balance        ADDRESS                    Show a wallet balance
  faucet         --to ADDRESS --amount N    Fund a development wallet (needs C2E_RPC_TOKEN)

Operators:
  add-charger    --key FILE --code CODE --name NAME --city CITY --address ADDR
                 --lat F --lon F --power KW --reward N --price N --fee-recipient ADDRESS

Drivers:
  start-session  --key FILE --charger ADDRESS [--start UNIX]
  stop-session   --key FILE --charger ADDRESS --operator ADDRESS --start UNIX [--end UNIX]
  sessions       --driver ADDRESS [--limit N]

Marketplace:
  create-listing --key FILE --amount N --price N
  buy            --key FILE --seller ADDRESS --amount N
  cancel-listing --key FILE

Queries:
  chargers | listings | leaderboard [--limit N]

Environment: C2E_RPC_URL, C2E_RPC_TOKEN, C2E_KEYSTORE_PASS`)
}
