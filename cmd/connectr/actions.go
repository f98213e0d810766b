package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nostric/connectr/pkg/nostr/client"
	"github.com/nostric/connectr/pkg/nostr/dm"
	"github.com/nostric/connectr/pkg/nostr/event"
	"github.com/nostric/connectr/pkg/nostr/filter"
	"github.com/nostric/connectr/pkg/nostr/filters"
	"github.com/nostric/connectr/pkg/nostr/kind"
	"github.com/urfave/cli/v2"
)

// connect builds a ready client from the CLI config.
func connect(cCtx *cli.Context) (cl *client.T, err error) {
	cfg := getConfig(cCtx)
	if cl, err = client.New(cCtx.Context, *cfg); chk.E(err) {
		return
	}
	if err = cl.Initialize(cCtx.Context); chk.E(err) {
		return nil, err
	}
	return cl, nil
}

func argText(cCtx *cli.Context) (text string, err error) {
	if cCtx.Bool("stdin") {
		var b []byte
		if b, err = io.ReadAll(os.Stdin); chk.E(err) {
			return
		}
		return strings.TrimSpace(string(b)), nil
	}
	return strings.Join(cCtx.Args().Slice(), " "), nil
}

// Keygen generates a key pair, saves it in the config file and prints the
// public key.
func Keygen(cCtx *cli.Context) (err error) {
	cfg := getConfig(cCtx)
	var cl *client.T
	if cl, err = client.New(cCtx.Context, *cfg); chk.E(err) {
		return
	}
	var pub string
	if pub, err = cl.GenerateKeyPair(); chk.E(err) {
		return
	}
	var sk string
	if sk, err = cl.Signer().RequireSecret(); chk.E(err) {
		return
	}
	cfg.SecretKey = sk
	if err = saveConfig(getProfileName(cCtx), cfg); chk.E(err) {
		return
	}
	fmt.Println(pub)
	return nil
}

// Post publishes a kind 1 note from the arguments or stdin.
func Post(cCtx *cli.Context) (err error) {
	var text string
	if text, err = argText(cCtx); err != nil {
		return
	}
	if text == "" {
		return fmt.Errorf("nothing to post")
	}
	var cl *client.T
	if cl, err = connect(cCtx); err != nil {
		return
	}
	defer cl.Close()
	var ev *event.T
	if ev, err = cl.PublishNote(cCtx.Context, text); chk.E(err) {
		return
	}
	fmt.Println(ev.ID)
	return nil
}

// collectUntilEose subscribes with the filter and returns the events
// received up to the end of stored events, or until the wait expires.
func collectUntilEose(cl *client.T, f filter.T,
	wait time.Duration) (evs []*event.T, err error) {

	var mu sync.Mutex
	done := make(chan struct{})
	var id string
	id, err = cl.Subscribe(filters.T{f},
		func(ev *event.T, _ string) {
			mu.Lock()
			evs = append(evs, ev)
			mu.Unlock()
		},
		func() { close(done) },
	)
	if chk.E(err) {
		return
	}
	defer cl.Unsubscribe(id)
	select {
	case <-done:
	case <-time.After(wait):
	}
	mu.Lock()
	defer mu.Unlock()
	sort.Sort(event.Descending(evs))
	return evs, nil
}

// Timeline prints recent notes from the configured relays, newest first.
func Timeline(cCtx *cli.Context) (err error) {
	var cl *client.T
	if cl, err = connect(cCtx); err != nil {
		return
	}
	defer cl.Close()

	f := filter.T{
		Kinds: []kind.T{kind.TextNote},
		Limit: cCtx.Int("n"),
	}
	if u := cCtx.String("u"); u != "" {
		f.Authors = []string{u}
	}
	var evs []*event.T
	if evs, err = collectUntilEose(cl, f, 10*time.Second); err != nil {
		return
	}
	if len(evs) > f.Limit && f.Limit > 0 {
		evs = evs[:f.Limit]
	}
	asJson := cCtx.Bool("json")
	for _, ev := range evs {
		if asJson {
			fmt.Println(ev.String())
			continue
		}
		fmt.Printf("%s %s\n  %s\n",
			ev.CreatedAt.Time().Format(time.RFC3339),
			ev.PubKey, ev.Content)
	}
	return nil
}

// DM sends an encrypted direct message.
func DM(cCtx *cli.Context) (err error) {
	var text string
	if text, err = argText(cCtx); err != nil {
		return
	}
	if text == "" {
		return fmt.Errorf("nothing to send")
	}
	var cl *client.T
	if cl, err = connect(cCtx); err != nil {
		return
	}
	defer cl.Close()
	var id string
	if id, err = cl.SendDirectMessage(cCtx.Context, cCtx.String("u"),
		text); chk.E(err) {
		return
	}
	fmt.Println(id)
	return nil
}

// DMList waits for direct messages addressed to the local key and prints
// them.
func DMList(cCtx *cli.Context) (err error) {
	var cl *client.T
	if cl, err = connect(cCtx); err != nil {
		return
	}
	defer cl.Close()

	time.Sleep(time.Duration(cCtx.Int("wait")) * time.Second)
	var msgs []dm.Message
	if msgs, err = cl.GetDirectMessages(); chk.E(err) {
		return
	}
	asJson := cCtx.Bool("json")
	for _, msg := range msgs {
		if asJson {
			var b []byte
			if b, err = json.Marshal(msg); chk.E(err) {
				return
			}
			fmt.Println(string(b))
			continue
		}
		fmt.Printf("%s %s: %s\n",
			msg.CreatedAt.Time().Format(time.RFC3339),
			msg.From, msg.Plaintext)
	}
	return nil
}

// Profile prints the newest known profile of a user, defaulting to the
// local key.
func Profile(cCtx *cli.Context) (err error) {
	var cl *client.T
	if cl, err = connect(cCtx); err != nil {
		return
	}
	defer cl.Close()

	pubkey := cCtx.String("u")
	if pubkey == "" {
		if pubkey, err = cl.GetPublicKey(); chk.E(err) {
			return
		}
	}
	var meta *client.Metadata
	if meta, err = cl.GetUserProfile(cCtx.Context, pubkey); chk.E(err) {
		return
	}
	if meta == nil {
		return fmt.Errorf("no profile found for %s", pubkey)
	}
	if cCtx.Bool("json") {
		var b []byte
		if b, err = json.Marshal(meta); chk.E(err) {
			return
		}
		fmt.Println(string(b))
		return nil
	}
	fmt.Printf("name: %s\nabout: %s\npicture: %s\nwebsite: %s\nnip05: %s\n",
		meta.Name, meta.About, meta.Picture, meta.Website, meta.NIP05)
	return nil
}

// SetProfile publishes a kind 0 profile built from the flags.
func SetProfile(cCtx *cli.Context) (err error) {
	var cl *client.T
	if cl, err = connect(cCtx); err != nil {
		return
	}
	defer cl.Close()

	meta := client.Metadata{
		Name:    cCtx.String("name"),
		About:   cCtx.String("about"),
		Picture: cCtx.String("picture"),
		Website: cCtx.String("website"),
		NIP05:   cCtx.String("nip05"),
	}
	_, err = cl.PublishProfile(cCtx.Context, meta)
	return
}

// Contacts prints the follow list of a user, defaulting to the local key.
func Contacts(cCtx *cli.Context) (err error) {
	var cl *client.T
	if cl, err = connect(cCtx); err != nil {
		return
	}
	defer cl.Close()

	pubkey := cCtx.String("u")
	if pubkey == "" {
		if pubkey, err = cl.GetPublicKey(); chk.E(err) {
			return
		}
	}
	var contacts []client.Contact
	if contacts, err = cl.GetContacts(cCtx.Context, pubkey); chk.E(err) {
		return
	}
	asJson := cCtx.Bool("json")
	for _, contact := range contacts {
		if asJson {
			var b []byte
			if b, err = json.Marshal(contact); chk.E(err) {
				return
			}
			fmt.Println(string(b))
			continue
		}
		line := contact.PubKey
		if contact.LocalAlias != "" {
			line += " (" + contact.LocalAlias + ")"
		}
		if contact.RelayHint != "" {
			line += " @ " + contact.RelayHint
		}
		fmt.Println(line)
	}
	return nil
}

// RelayStates prints a connection state line per configured relay.
func RelayStates(cCtx *cli.Context) (err error) {
	var cl *client.T
	if cl, err = connect(cCtx); err != nil {
		return
	}
	defer cl.Close()

	for _, rec := range cl.RelayRecords() {
		line := fmt.Sprintf("%s %s", rec.URL, rec.State)
		if !rec.LastConnectedAt.IsZero() {
			line += " since " + rec.LastConnectedAt.Format(time.RFC3339)
		}
		if rec.LastError != "" {
			line += " lastError=" + rec.LastError
		}
		fmt.Println(line)
	}
	return nil
}
