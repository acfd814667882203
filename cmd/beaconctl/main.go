// cmd/beaconctl/main.go
//
// beaconctl is the operator CLI for a beacon server.
//
// Usage:
//
//	beaconctl hash-token --token <plaintext>
//	beaconctl rotate --content "Question text" [--server http://localhost:8080] [--token <admin token>]
//	beaconctl register --address <btc-address> --name <display name> [--token <admin token>]
//	beaconctl payout --address <btc-address> --message <id> --txid <hex> --satoshis <n> [--token <admin token>]
//	beaconctl message [--server http://localhost:8080]
//	beaconctl agent --address <btc-address>
//	beaconctl watch [--server http://localhost:8080]
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/halcyonics/beacon/internal/auth"
	"github.com/halcyonics/beacon/internal/validate"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "hash-token":
		cmdHashToken(os.Args[2:])
	case "rotate":
		cmdRotate(os.Args[2:])
	case "register":
		cmdRegister(os.Args[2:])
	case "payout":
		cmdPayout(os.Args[2:])
	case "message":
		cmdMessage(os.Args[2:])
	case "agent":
		cmdAgent(os.Args[2:])
	case "watch":
		cmdWatch(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `beaconctl - beacon operator CLI

Commands:
  hash-token   Hash an admin token for the server config
  rotate       Close the current task message and publish a new one
  register     Register an agent name for an address
  payout       Record a reward payout for a response
  message      Show the current task message
  agent        Show everything recorded for one agent
  watch        Stream live protocol events`)
}

func cmdHashToken(args []string) {
	fs := flag.NewFlagSet("hash-token", flag.ExitOnError)
	token := fs.String("token", "", "plaintext admin token")
	fs.Parse(args)
	if *token == "" {
		fatal("--token is required")
	}
	fmt.Println(auth.HashToken(*token))
}

func cmdRotate(args []string) {
	fs := flag.NewFlagSet("rotate", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "beacon server URL")
	token := fs.String("token", os.Getenv("BEACON_ADMIN_TOKEN"), "admin token")
	content := fs.String("content", "", "new task message content")
	fs.Parse(args)
	if *content == "" {
		fatal("--content is required")
	}

	body, _ := json.Marshal(map[string]string{"content": *content})
	resp := mustPost(*serverURL+"/api/admin/message", *token, body)
	fmt.Println(resp)
}

func cmdRegister(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "beacon server URL")
	token := fs.String("token", os.Getenv("BEACON_ADMIN_TOKEN"), "admin token")
	address := fs.String("address", "", "agent BTC address")
	name := fs.String("name", "", "agent display name")
	fs.Parse(args)
	if *address == "" || *name == "" {
		fatal("--address and --name are required")
	}

	body, _ := json.Marshal(map[string]string{"address": *address, "name": *name})
	resp := mustPost(*serverURL+"/api/admin/agents", *token, body)
	fmt.Println(resp)
}

func cmdPayout(args []string) {
	fs := flag.NewFlagSet("payout", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "beacon server URL")
	token := fs.String("token", os.Getenv("BEACON_ADMIN_TOKEN"), "admin token")
	address := fs.String("address", "", "recipient BTC address")
	messageID := fs.String("message", "", "message id the response belongs to")
	txid := fs.String("txid", "", "reward transaction id (64 hex chars)")
	satoshis := fs.Int64("satoshis", 0, "reward amount in satoshis")
	fs.Parse(args)

	if *address == "" || *messageID == "" || *txid == "" || *satoshis <= 0 {
		fatal("--address, --message, --txid and --satoshis are required")
	}

	body, _ := json.Marshal(map[string]any{
		"btcAddress":     *address,
		"messageId":      *messageID,
		"rewardTxid":     *txid,
		"rewardSatoshis": *satoshis,
		"paidAt":         time.Now().UTC().Format(validate.TimestampLayout),
	})
	resp := mustPost(*serverURL+"/api/admin/payout", *token, body)
	fmt.Println(resp)
}

func cmdMessage(args []string) {
	fs := flag.NewFlagSet("message", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "beacon server URL")
	fs.Parse(args)
	fmt.Println(mustGet(*serverURL + "/api/message"))
}

func cmdAgent(args []string) {
	fs := flag.NewFlagSet("agent", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "beacon server URL")
	address := fs.String("address", "", "agent BTC address")
	fs.Parse(args)
	if *address == "" {
		fatal("--address is required")
	}
	fmt.Println(mustGet(*serverURL + "/api/agents/" + *address))
}

func cmdWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "beacon server URL")
	fs.Parse(args)

	wsURL := strings.Replace(*serverURL, "http", "ws", 1) + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		fatal("connect: " + err.Error())
	}
	defer conn.Close()

	fmt.Fprintln(os.Stderr, "watching events (ctrl-c to stop)")
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			fatal("read: " + err.Error())
		}
		fmt.Println(string(msg))
	}
}

func mustPost(url, token string, body []byte) string {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Admin-Token", token)
	}
	return doRequest(req)
}

func mustGet(url string) string {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		fatal(err.Error())
	}
	return doRequest(req)
}

func doRequest(req *http.Request) string {
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		fatal(err.Error())
	}
	if resp.StatusCode >= 400 {
		fatal(fmt.Sprintf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(out))))
	}
	return strings.TrimSpace(string(out))
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, "error: "+msg)
	os.Exit(1)
}
