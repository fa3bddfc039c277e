// ABOUTME: Admin CLI for ppa-gateway license and capability management.
// ABOUTME: Talks to the gateway's HTTP admin API with a bearer token from config.

package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fatih/color"
)

const banner = `
                                      _           _
  _ __  _ __   __ _        __ _  __| |_ __ ___  (_)_ __
 | '_ \| '_ \ / _' |_____ / _' |/ _' | '_ ' _ \ | | '_ \
 | |_) | |_) | (_| |_____| (_| | (_| | | | | | || | | | |
 | .__/| .__/ \__,_|      \__,_|\__,_|_| |_| |_||_|_| |_|
 |_|   |_|
`

// clientConfig is the admin CLI's own configuration file.
type clientConfig struct {
	GatewayURL string `toml:"gateway_url"`
	Token      string `toml:"token"`
}

func loadClientConfig() clientConfig {
	cfg := clientConfig{GatewayURL: "http://localhost:8787"}

	path := os.Getenv("PPA_ADMIN_CONFIG")
	if path == "" {
		configDir := os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			if home, err := os.UserHomeDir(); err == nil {
				configDir = filepath.Join(home, ".config")
			}
		}
		if configDir != "" {
			path = filepath.Join(configDir, "postpress", "admin.toml")
		}
	}
	if path != "" {
		// A missing file is fine; env vars and defaults cover it.
		toml.DecodeFile(path, &cfg)
	}

	if url := os.Getenv("PPA_GATEWAY_URL"); url != "" {
		cfg.GatewayURL = url
	}
	if token := os.Getenv("PPA_TOKEN"); token != "" {
		cfg.Token = token
	}
	cfg.GatewayURL = strings.TrimRight(cfg.GatewayURL, "/")
	return cfg
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := loadClientConfig()
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "status":
		err = runStatus(cfg)
	case "verify", "activate", "deactivate":
		err = runLicenseAction(cfg, cmd, args)
	case "reset-capability":
		err = runResetCapability(cfg, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		red := color.New(color.FgRed)
		red.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	fmt.Println("Usage: ppa-admin <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  status                        Show license truth and capability flags")
	fmt.Println("  verify [--key KEY]            Run a license verification")
	fmt.Println("  activate [--key KEY]          Activate the license for this site")
	fmt.Println("  deactivate                    Deactivate the license for this site")
	fmt.Println("  reset-capability [--scope S]  Clear a latched capability flag")
	fmt.Println()
	fmt.Println("Config: ~/.config/postpress/admin.toml (gateway_url, token)")
	fmt.Println("Env:    PPA_GATEWAY_URL, PPA_TOKEN, PPA_ADMIN_CONFIG")
}

func runStatus(cfg clientConfig) error {
	body, err := call(cfg, http.MethodGet, "/api/license/status", nil)
	if err != nil {
		return err
	}

	state, _ := body["state"].(string)
	stateColor := color.New(color.FgYellow)
	switch state {
	case "active":
		stateColor = color.New(color.FgGreen)
	case "inactive":
		stateColor = color.New(color.FgRed)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "State:\t")
	stateColor.Fprintf(w, "%s\n", state)
	if reason, ok := body["reason"].(string); ok {
		fmt.Fprintf(w, "Reason:\t%s\n", reason)
	}
	if source, ok := body["source"].(string); ok {
		fmt.Fprintf(w, "Source:\t%s\n", source)
	}
	if siteID, ok := body["site_id"].(string); ok {
		fmt.Fprintf(w, "Site:\t%s\n", siteID)
	}
	if bound, ok := body["bound_site"].(string); ok {
		fmt.Fprintf(w, "Bound to:\t%s\n", bound)
	}
	if checked, ok := body["checked_at"].(string); ok {
		fmt.Fprintf(w, "Checked:\t%s\n", checked)
	}
	if key, ok := body["license_key"].(string); ok {
		fmt.Fprintf(w, "Key:\t%s\n", key)
	}

	if caps, ok := body["capabilities"].(map[string]any); ok {
		scopes := make([]string, 0, len(caps))
		for scope := range caps {
			scopes = append(scopes, scope)
		}
		sort.Strings(scopes)
		for _, scope := range scopes {
			fmt.Fprintf(w, "Capability %s:\t%v\n", scope, caps[scope])
		}
	}
	return w.Flush()
}

func runLicenseAction(cfg clientConfig, action string, args []string) error {
	fs := flag.NewFlagSet(action, flag.ExitOnError)
	key := fs.String("key", "", "license key (defaults to the stored key)")
	site := fs.String("site", "", "site URL override")
	if err := fs.Parse(args); err != nil {
		return err
	}

	payload := map[string]any{}
	if *key != "" {
		payload["license_key"] = *key
	}
	if *site != "" {
		payload["site_url"] = *site
	}

	body, err := call(cfg, http.MethodPost, "/api/license/"+action, payload)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Print("    ✓ ")
	fmt.Printf("%s completed\n", action)

	pretty, _ := json.MarshalIndent(body, "    ", "  ")
	fmt.Printf("    %s\n", pretty)
	return nil
}

func runResetCapability(cfg clientConfig, args []string) error {
	fs := flag.NewFlagSet("reset-capability", flag.ExitOnError)
	scope := fs.String("scope", "content_proxy", "capability scope to clear")
	if err := fs.Parse(args); err != nil {
		return err
	}

	body, err := call(cfg, http.MethodPost, "/api/license/capability-reset",
		map[string]any{"scope": *scope})
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Print("    ✓ ")
	fmt.Printf("capability %v cleared\n", body["scope"])
	return nil
}

// call performs one authenticated request against the gateway admin API and
// decodes the JSON answer. Error envelopes become readable errors.
func call(cfg clientConfig, method, path string, payload map[string]any) (map[string]any, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("no token configured; set PPA_TOKEN or token in admin.toml")
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, cfg.GatewayURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+cfg.Token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 120 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("unexpected response (status %d): %s", resp.StatusCode, raw)
	}

	if ok, has := body["ok"].(bool); has && !ok {
		msg := fmt.Sprintf("%v", body["error"])
		if meta, isMap := body["meta"].(map[string]any); isMap {
			if m, hasMsg := meta["message"].(string); hasMsg && m != "" {
				msg = msg + ": " + m
			}
		}
		return nil, fmt.Errorf("%s (status %d)", msg, resp.StatusCode)
	}

	return body, nil
}
