package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"rafflechain/cmd/internal/secret"
	"rafflechain/crypto"
	"rafflechain/rpc"
)

const (
	rpcURLEnv    = "RAFFLE_RPC_URL"
	jwtSecretEnv = "RAFFLE_RPC_JWT_SECRET"
	issuerEnv    = "RAFFLE_RPC_JWT_ISSUER"
	audienceEnv  = "RAFFLE_RPC_JWT_AUDIENCE"
)

type cli struct {
	endpoint string
	auth     rpc.AuthConfig
	secret   *secret.Source
	client   *http.Client
	out      io.Writer
	now      func() time.Time
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func newCLI(out io.Writer) *cli {
	return &cli{
		endpoint: envOr(rpcURLEnv, "http://localhost:8547/rpc"),
		auth: rpc.AuthConfig{
			Issuer:   envOr(issuerEnv, "rafflechain"),
			Audience: envOr(audienceEnv, "lottery-rpc"),
		},
		secret: secret.NewSource(jwtSecretEnv, "RPC token signing secret"),
		client: &http.Client{Timeout: 30 * time.Second},
		out:    out,
		now:    time.Now,
	}
}

func main() {
	c := newCLI(os.Stdout)
	if err := c.run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: lottery-cli [--rpc URL] <command> [flags]

Commands:
  keygen   -out FILE                              create a signing key and print its address
  address  -key FILE                              print the account address of a key file
  token    -key FILE [-ttl 1h]                    print a bearer token for the key's account
  call     [-key FILE] METHOD [JSON]              send a raw JSON-RPC call
  get      ID                                     show a lottery
  balance  OWNER MINT                             show a token balance
  events   [ID]                                   list journaled events
  buy      -key FILE -id ID -mint MINT -count N   buy tickets
  reveal   -key FILE -id ID [-winners N]          draw winners
  claim    -key FILE -id ID -mint MINT            claim a prize
  collect  -key FILE -id ID -mint MINT            collect proceeds`)
}

func (c *cli) run(args []string) error {
	if len(args) >= 2 && (args[0] == "--rpc" || args[0] == "-rpc") {
		c.endpoint = args[1]
		args = args[2:]
	}
	if len(args) < 1 {
		printUsage(c.out)
		return nil
	}
	command, rest := args[0], args[1:]
	switch command {
	case "keygen":
		return c.keygen(rest)
	case "address":
		return c.address(rest)
	case "token":
		return c.token(rest)
	case "call":
		return c.rawCall(rest)
	case "get":
		if len(rest) != 1 {
			return errors.New("get requires a lottery id")
		}
		return c.call("", "lottery_get", map[string]string{"id": rest[0]})
	case "balance":
		if len(rest) != 2 {
			return errors.New("balance requires an owner and a mint")
		}
		return c.call("", "lottery_balance", map[string]string{"owner": rest[0], "mint": rest[1]})
	case "events":
		params := map[string]string{}
		if len(rest) > 0 {
			params["id"] = rest[0]
		}
		return c.call("", "lottery_events", params)
	case "buy":
		return c.lotteryAction(command, "lottery_buyTickets", rest, true, true)
	case "reveal":
		return c.lotteryAction(command, "lottery_reveal", rest, false, false)
	case "claim":
		return c.lotteryAction(command, "lottery_claimPrize", rest, true, false)
	case "collect":
		return c.lotteryAction(command, "lottery_collectProceeds", rest, true, false)
	case "help", "-h", "--help":
		printUsage(c.out)
		return nil
	default:
		printUsage(c.out)
		return fmt.Errorf("unknown command %q", command)
	}
}

func (c *cli) keygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	out := fs.String("out", "lottery.key", "Path for the new key file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveKeyFile(*out, key); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	fmt.Fprintln(c.out, key.PubKey().Address().String())
	return nil
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("-key is required")
	}
	return crypto.LoadKeyFile(path)
}

func (c *cli) address(args []string) error {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	keyFile := fs.String("key", "", "Key file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := loadKey(*keyFile)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, key.PubKey().Address().String())
	return nil
}

// bearer signs a token whose subject is the key file's account.
func (c *cli) bearer(keyFile string, ttl time.Duration) (string, error) {
	key, err := loadKey(keyFile)
	if err != nil {
		return "", err
	}
	signing, err := c.secret.Get()
	if err != nil {
		return "", err
	}
	cfg := c.auth
	cfg.HMACSecret = signing
	return rpc.IssueToken(cfg, key.PubKey().Address().String(), ttl, c.now())
}

func (c *cli) token(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	keyFile := fs.String("key", "", "Key file")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	tok, err := c.bearer(*keyFile, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, tok)
	return nil
}

func (c *cli) rawCall(args []string) error {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	keyFile := fs.String("key", "", "Key file used to sign the bearer token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) < 1 {
		return errors.New("call requires a method")
	}
	var params interface{}
	if len(rest) > 1 {
		raw := json.RawMessage(rest[1])
		if !json.Valid(raw) {
			return errors.New("params must be a JSON object")
		}
		params = raw
	}
	tok := ""
	if *keyFile != "" {
		var err error
		if tok, err = c.bearer(*keyFile, time.Hour); err != nil {
			return err
		}
	}
	return c.call(tok, rest[0], params)
}

func (c *cli) lotteryAction(name, method string, args []string, needsMint, needsCount bool) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	keyFile := fs.String("key", "", "Key file of the acting account")
	id := fs.String("id", "", "Lottery id")
	mint := fs.String("mint", "", "Token mint")
	count := fs.String("count", "", "Ticket count")
	winners := fs.Int("winners", 0, "Number of winners to draw")
	if err := fs.Parse(args); err != nil {
		return err
	}
	params := map[string]interface{}{"id": *id}
	if needsMint {
		params["mint"] = *mint
	}
	if needsCount {
		params["count"] = *count
	}
	if method == "lottery_reveal" && *winners > 0 {
		params["winners"] = *winners
	}
	tok, err := c.bearer(*keyFile, time.Hour)
	if err != nil {
		return err
	}
	return c.call(tok, method, params)
}

func (c *cli) call(token, method string, params interface{}) error {
	body := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		body["params"] = []interface{}{params}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  *rpc.RPCError   `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if decoded.Error != nil {
		if decoded.Error.Data != nil {
			return fmt.Errorf("rpc error %d: %s (%v)", decoded.Error.Code, decoded.Error.Message, decoded.Error.Data)
		}
		return fmt.Errorf("rpc error %d: %s", decoded.Error.Code, decoded.Error.Message)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, decoded.Result, "", "  "); err != nil {
		_, err = c.out.Write(append(decoded.Result, '\n'))
		return err
	}
	pretty.WriteByte('\n')
	_, err = c.out.Write(pretty.Bytes())
	return err
}
