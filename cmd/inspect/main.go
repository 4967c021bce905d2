package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"vaultgram/pkg/kms"
	"vaultgram/pkg/logger"
	"vaultgram/pkg/store"
)

// inspect lists record keys in a shadow store without unsealing values.
// Useful for checking what a store holds when the passphrase is not at
// hand; key material never appears in the output.
func main() {
	var dbPath string
	var prefix string
	flag.StringVar(&dbPath, "db", "", "db path (the directory passed to --db on the main binary)")
	flag.StringVar(&prefix, "prefix", "", "key prefix filter (msg:, rev:, del:, delid:)")
	flag.Parse()
	if dbPath == "" {
		fmt.Fprintln(os.Stderr, "--db required")
		os.Exit(2)
	}
	logger.Init()

	st, err := store.Open(filepath.Join(dbPath, "store"), kms.Disabled(), store.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if prefix != "" {
		keys, err := st.ListKeys(prefix)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list keys: %v\n", err)
			os.Exit(1)
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		return
	}

	for _, ns := range []string{"msg:", "rev:", "del:", "delid:"} {
		keys, err := st.ListKeys(ns)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list %s: %v\n", ns, err)
			os.Exit(1)
		}
		fmt.Printf("%-7s %d records\n", ns, len(keys))
	}
}
