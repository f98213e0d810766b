package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/nostric/connectr/pkg/nostr/client"
	"github.com/urfave/cli/v2"
)

var defaultRelays = []string{
	"wss://relay.damus.io",
	"wss://nos.lol",
	"wss://relay.nostr.band",
}

func configDir() (dir string, err error) {
	switch runtime.GOOS {
	case "darwin":
		if dir, err = os.UserHomeDir(); chk.E(err) {
			return
		}
		return filepath.Join(dir, ".config"), nil
	default:
		return os.UserConfigDir()
	}
}

func configPath(profile string) (fp string, err error) {
	var dir string
	if dir, err = configDir(); chk.E(err) {
		return
	}
	dir = filepath.Join(dir, appName)
	switch profile {
	case "":
		fp = filepath.Join(dir, "config.json")
	case "?":
		var nn []string
		p := filepath.Join(dir, "config-*.json")
		if nn, err = filepath.Glob(p); chk.E(err) {
			return
		}
		for _, n := range nn {
			n = filepath.Base(n)
			n = strings.TrimLeft(n[6:len(n)-5], "-")
			fmt.Println(n)
		}
		os.Exit(0)
	default:
		fp = filepath.Join(dir, "config-"+profile+".json")
	}
	return fp, os.MkdirAll(filepath.Dir(fp), 0700)
}

func loadConfig(profile string) (cfg *client.Config, err error) {
	var fp string
	if fp, err = configPath(profile); chk.E(err) {
		return
	}
	cfg = &client.Config{
		Relays:       defaultRelays,
		Capabilities: client.AllCapabilities,
	}
	var b []byte
	if b, err = os.ReadFile(fp); err != nil {
		// a missing config is fine, the defaults apply
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err = json.Unmarshal(b, cfg); chk.E(err) {
		return nil, err
	}
	if len(cfg.Relays) == 0 {
		cfg.Relays = defaultRelays
	}
	return cfg, nil
}

func saveConfig(profile string, cfg *client.Config) (err error) {
	var fp string
	if fp, err = configPath(profile); chk.E(err) {
		return
	}
	var b []byte
	if b, err = json.MarshalIndent(cfg, "", "  "); chk.E(err) {
		return
	}
	return os.WriteFile(fp, b, 0600)
}

func getConfig(cCtx *cli.Context) *client.Config {
	return cCtx.App.Metadata["config"].(*client.Config)
}

func getProfileName(cCtx *cli.Context) string {
	p, _ := cCtx.App.Metadata["profile"].(string)
	return p
}
