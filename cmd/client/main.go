/*
Package main is a terminal client for dmchat.

It signs in, keeps the websocket channel connected, opens a conversation with one peer
and sends every line read from stdin. Incoming pushes and presence changes are printed
as they arrive.
*/
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"dmchat/internal/app/user"
	"dmchat/internal/client"
	"dmchat/internal/pkg/logx"
)

func main() {
	var (
		server   = flag.String("server", "http://localhost:8080", "dmchat server base URL")
		email    = flag.String("email", "", "account email")
		password = flag.String("password", "", "account password")
		fullName = flag.String("signup", "", "create the account with this full name before signing in")
		peerName = flag.String("peer", "", "username or id of the user to talk to")
		debug    = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logx.InitGlobalLogger(*debug)

	if *email == "" || *password == "" || *peerName == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.NewAPI(*server)

	var me user.Identity
	var err error
	if *fullName != "" {
		me, err = api.Signup(ctx, *fullName, *email, *password)
	} else {
		me, err = api.Login(ctx, *email, *password)
	}
	if err != nil {
		logx.Fatal(err, "Sign-in failed")
	}

	peer, err := findPeer(ctx, api, *peerName)
	if err != nil {
		logx.Fatal(err, "Cannot open conversation", "peer", *peerName)
	}

	wsURL, err := api.WebsocketURL()
	if err != nil {
		logx.Fatal(err, "Invalid server URL")
	}

	socket := client.NewSocket(wsURL, api.Token)
	presence := socket.Subscribe(client.EventOnlineUsers, func(json.RawMessage) {
		state := "offline"
		if socket.IsOnline(peer.ID) {
			state = "online"
		}
		fmt.Printf("* %s is %s\n", peer.FullName, state)
	})
	defer presence.Close()

	go func() {
		if err := socket.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logx.Error(err, "Websocket channel stopped")
			stop()
		}
	}()

	conv := client.NewConversation(api, socket, me.ID)
	var printMu sync.Mutex
	printed := make(map[string]bool)
	conv.OnChange = func(t *client.Thread) {
		printMu.Lock()
		defer printMu.Unlock()

		for _, e := range t.Visible() {
			if e.Status == client.StatusSending || printed[e.ID] {
				continue
			}
			printed[e.ID] = true

			author := peer.FullName
			if e.SenderID == me.ID {
				author = "me"
			}
			suffix := ""
			if e.Status == client.StatusFailed {
				suffix = "  [failed]"
			}
			fmt.Printf("[%s] %s: %s%s\n", e.CreatedAt.Local().Format("15:04"), author, body(e), suffix)
		}
	}
	defer conv.Close()

	if _, err := conv.Open(ctx, peer.ID); err != nil {
		logx.Fatal(err, "Failed to load conversation")
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if _, err := conv.Send(ctx, text, ""); err != nil {
				fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
			}
		}
	}
}

func findPeer(ctx context.Context, api *client.API, name string) (user.Identity, error) {
	users, err := api.Users(ctx)
	if err != nil {
		return user.Identity{}, err
	}

	for _, u := range users {
		if u.ID == name || strings.EqualFold(u.Username, name) {
			return u, nil
		}
	}
	return user.Identity{}, fmt.Errorf("no user %q", name)
}

func body(e client.Entry) string {
	switch {
	case e.Image != "" && e.Text != "":
		return e.Text + " <" + e.Image + ">"
	case e.Image != "":
		return "<" + e.Image + ">"
	}
	return e.Text
}
