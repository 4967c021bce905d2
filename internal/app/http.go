package app

import (
	"net/http"

	"vaultgram/pkg/api"
	"vaultgram/pkg/auth"
	"vaultgram/pkg/banner"
	"vaultgram/pkg/telemetry"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "" && a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, verStr)
}

// readyzHandler reports readiness: the store must be open and unsealed.
func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !a.st.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","version":"` + ver + `"}`))
}

// startHTTP mounts the query API, starts the server in a goroutine and
// returns a channel that will carry any server error.
func (a *App) startHTTP() <-chan error {
	mux := http.NewServeMux()
	mux.HandleFunc("/readyz", a.readyzHandler)
	mux.Handle("/", api.Handler(api.Deps{
		AntiDelete: a.anti,
		History:    a.hist,
		Ghost:      a.ghost,
	}))

	sec := a.eff.Config.Security
	wrapped := auth.Middleware(auth.SecConfig{
		APIKeys: append([]string{}, sec.APIKeys...),
		RPS:     sec.RateLimit.RPS,
		Burst:   sec.RateLimit.Burst,
	})(mux)
	wrapped = telemetry.Middleware(wrapped)

	a.srv = &http.Server{Addr: a.eff.Addr, Handler: wrapped}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.srv.ListenAndServe()
	}()
	return errCh
}
