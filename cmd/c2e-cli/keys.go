package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"charge2earn/cmd/internal/passphrase"
	"charge2earn/crypto"
)

var (
	keystoreStrength = crypto.StandardScrypt
	passphraseFn     = func() (string, error) {
		return passphrase.NewSource(keystorePass, "Enter keystore passphrase: ").Get()
	}
)

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func runGenerateKey(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("generate-key", stderr)
	out := fs.String("out", "wallet.json", "keystore file to create")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := os.Stat(*out); err == nil {
		fmt.Fprintf(stderr, "Error: %s already exists; refusing to overwrite\n", *out)
		return 1
	} else if !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	pass, err := passphraseFn()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(stderr, "Error: generate key: %v\n", err)
		return 1
	}
	if err := crypto.SaveToKeystoreWith(*out, key, pass, keystoreStrength); err != nil {
		fmt.Fprintf(stderr, "Error: write keystore: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Address: %s\n", crypto.EncodeAddress(key.Address()))
	fmt.Fprintf(stdout, "Keystore: %s\n", *out)
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("address", stderr)
	keyFile := fs.String("key", "wallet.json", "keystore file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	key, err := loadKey(*keyFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, crypto.EncodeAddress(key.Address()))
	fmt.Fprintln(stdout, key.Address().Hex())
	return 0
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("keystore %s not found; run c2e-cli generate-key first", path)
		}
		return nil, err
	}
	pass, err := passphraseFn()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return nil, fmt.Errorf("unlock %s: %w", path, err)
	}
	return key, nil
}
