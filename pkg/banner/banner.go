package banner

import (
	"fmt"
	"os"
	"time"

	"vaultgram/pkg/config"
)

const banner = `
██╗   ██╗ █████╗ ██╗   ██╗██╗  ████████╗ ██████╗ ██████╗  █████╗ ███╗   ███╗
██║   ██║██╔══██╗██║   ██║██║  ╚══██╔══╝██╔════╝ ██╔══██╗██╔══██╗████╗ ████║
██║   ██║███████║██║   ██║██║     ██║   ██║  ███╗██████╔╝███████║██╔████╔██║
╚██╗ ██╔╝██╔══██║██║   ██║██║     ██║   ██║   ██║██╔══██╗██╔══██║██║╚██╔╝██║
 ╚████╔╝ ██║  ██║╚██████╔╝███████╗██║   ╚██████╔╝██║  ██║██║  ██║██║ ╚═╝ ██║
  ╚═══╝  ╚═╝  ╚═╝ ╚═════╝ ╚══════╝╚═╝    ╚═════╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚═╝     ╚═╝
`

// PrintWithEff prints the startup banner with runtime info taken from the
// effective config (listen address, store path, encryption, ghost mode).
func PrintWithEff(eff config.Effective, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	dbPath := eff.DBPath
	if dbPath == "" && eff.Config != nil {
		dbPath = eff.Config.Storage.DBPath
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config:   %s\n", src)

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("GET  /v1/chats/{chat}/deleted - Deleted messages captured for a chat")
	fmt.Println("GET  /v1/chats/{chat}/messages/{id}/history - Edit history of a message")
	fmt.Println("POST /v1/messages - Send a message through the ghost filter")
	fmt.Println("GET  /v1/ghost - Current ghost flags; PUT to change them")
	fmt.Println("GET  /healthz, GET /metrics")

	fmt.Println("\n== Production? =================================================")

	if eff.Config != nil && eff.Config.Security.AllowPlaintext {
		fmt.Println("- Encryption: DISABLED (allow_plaintext is set; records land on disk in the clear)")
	} else {
		env := "VAULTGRAM_PASSPHRASE"
		if eff.Config != nil && eff.Config.Security.PassphraseEnv != "" {
			env = eff.Config.Security.PassphraseEnv
		}
		if os.Getenv(env) != "" {
			fmt.Printf("- Encryption: enabled (passphrase from %s)\n", env)
		} else {
			fmt.Printf("- Encryption: enabled but %s is EMPTY (startup will fail)\n", env)
		}
	}

	if eff.Config != nil && eff.Config.Ghost.Enabled {
		fmt.Println("- Ghost mode: ON (presence, typing and read receipts suppressed)")
	} else {
		fmt.Println("- Ghost mode: off")
	}

	if eff.Config != nil && eff.Config.Retention.Enabled {
		info := ""
		if eff.Config.Retention.Cron != "" {
			info = "cron=" + eff.Config.Retention.Cron
		} else if eff.Config.Retention.Period > 0 {
			info = "period=" + time.Duration(eff.Config.Retention.Period).String()
		}
		if info != "" {
			fmt.Printf("- Retention: enabled (%s)\n", info)
		} else {
			fmt.Println("- Retention: enabled")
		}
	} else {
		fmt.Println("- Retention: disabled (captured history kept forever)")
	}

	if eff.DBPath == "" {
		fmt.Println("- DB Path: not set (use --db or VAULTGRAM_DB_PATH)")
	}

	fmt.Println("\n== Logs: =================================================")
}
