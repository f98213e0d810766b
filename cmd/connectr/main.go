package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/nostric/connectr/pkg/nostr/client"
	"github.com/nostric/connectr/pkg/slog"
	"github.com/urfave/cli/v2"
)

var log, chk = slog.New(os.Stderr)

const appName = "connectr"

const version = "0.1.0"

func doVersion(_ *cli.Context) error {
	fmt.Println(version)
	return nil
}

func main() {
	app := &cli.App{
		Usage:       "a nostr client protocol engine",
		Description: "publish notes, follow feeds and exchange encrypted direct messages over nostr relays",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "a", Usage: "config profile name"},
			&cli.StringFlag{Name: "relays",
				Usage: "comma separated relay URLs, overrides config"},
			&cli.BoolFlag{Name: "V", Usage: "verbose"},
		},
		Commands: []*cli.Command{
			{
				Name:      "keygen",
				Usage:     "generate a key pair and store it in the config",
				UsageText: appName + " keygen",
				HelpName:  "keygen",
				Action:    Keygen,
			},
			{
				Name:    "post",
				Aliases: []string{"n"},
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "stdin",
						Usage: "read the note text from stdin"},
				},
				Usage:     "post a new note",
				UsageText: appName + " post [note text]",
				HelpName:  "post",
				ArgsUsage: "[note text]",
				Action:    Post,
			},
			{
				Name:    "timeline",
				Aliases: []string{"tl"},
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "n", Value: 30,
						Usage: "number of items"},
					&cli.StringFlag{Name: "u", Usage: "only this author"},
					&cli.BoolFlag{Name: "json", Usage: "output JSON"},
				},
				Usage:     "show recent notes",
				UsageText: appName + " timeline",
				HelpName:  "timeline",
				Action:    Timeline,
			},
			{
				Name: "dm",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "u", Required: true,
						Usage: "recipient public key"},
					&cli.BoolFlag{Name: "stdin",
						Usage: "read the message from stdin"},
				},
				Usage:     "send an encrypted direct message",
				UsageText: appName + " dm --u [pubkey] [message]",
				HelpName:  "dm",
				ArgsUsage: "[message]",
				Action:    DM,
			},
			{
				Name: "dm-list",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "output JSON"},
					&cli.IntFlag{Name: "wait", Value: 5,
						Usage: "seconds to wait for messages"},
				},
				Usage:     "show received direct messages",
				UsageText: appName + " dm-list",
				HelpName:  "dm-list",
				Action:    DMList,
			},
			{
				Name: "profile",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "u",
						Usage: "public key, default own"},
					&cli.BoolFlag{Name: "json", Usage: "output JSON"},
				},
				Usage:     "show a profile",
				UsageText: appName + " profile",
				HelpName:  "profile",
				Action:    Profile,
			},
			{
				Name: "set-profile",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name"},
					&cli.StringFlag{Name: "about"},
					&cli.StringFlag{Name: "picture"},
					&cli.StringFlag{Name: "website"},
					&cli.StringFlag{Name: "nip05"},
				},
				Usage:     "publish the profile",
				UsageText: appName + " set-profile --name [name]",
				HelpName:  "set-profile",
				Action:    SetProfile,
			},
			{
				Name: "contacts",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "u",
						Usage: "public key, default own"},
					&cli.BoolFlag{Name: "json", Usage: "output JSON"},
				},
				Usage:     "show the follow list",
				UsageText: appName + " contacts",
				HelpName:  "contacts",
				Action:    Contacts,
			},
			{
				Name:      "relays",
				Usage:     "show relay connection states",
				UsageText: appName + " relays",
				HelpName:  "relays",
				Action:    RelayStates,
			},
			{
				Name:      "version",
				Usage:     "show version",
				UsageText: appName + " version",
				HelpName:  "version",
				Action:    doVersion,
			},
		},
		Before: func(cCtx *cli.Context) (err error) {
			if cCtx.Args().Get(0) == "version" {
				return nil
			}
			profile := cCtx.String("a")
			var cfg *client.Config
			if cfg, err = loadConfig(profile); chk.E(err) {
				return err
			}
			if cCtx.Bool("V") {
				slog.SetLogLevel(slog.Debug)
			}
			relays := cCtx.String("relays")
			if strings.TrimSpace(relays) != "" {
				cfg.Relays = strings.Split(relays, ",")
			}
			cCtx.App.Metadata = map[string]any{
				"config":  cfg,
				"profile": profile,
			}
			return nil
		},
	}
	if err := app.Run(os.Args); chk.E(err) {
		os.Exit(1)
	}
}
