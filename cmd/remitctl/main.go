package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"remitlend/cmd/internal/passphrase"
	"remitlend/config"
	"remitlend/core"
	"remitlend/crypto"
	"remitlend/exports"
	"remitlend/gateway/auth"
	gwconfig "remitlend/gateway/config"
	"remitlend/gateway/middleware"
	"remitlend/storage"
)

const (
	defaultConfig  = "./config.toml"
	defaultPassEnv = "REMITLEND_KEYSTORE_PASS"
	stateDir       = "state"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}
	var err error
	switch os.Args[1] {
	case "keygen":
		err = runKeygen(os.Args[2:], os.Stdout)
	case "address":
		err = runAddress(os.Args[2:], os.Stdout)
	case "token":
		err = runToken(os.Args[2:], os.Stdout)
	case "sign":
		err = runSign(os.Args[2:], os.Stdout)
	case "export":
		err = runExport(os.Args[2:], os.Stdout)
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	default:
		usage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: remitctl <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  keygen    generate a key and write it to an encrypted keystore")
	fmt.Fprintln(w, "  address   print the address stored in a keystore")
	fmt.Fprintln(w, "  token     issue a gateway bearer token for an address")
	fmt.Fprintln(w, "  sign      print operator signature headers for a gateway request")
	fmt.Fprintln(w, "  export    write the loan book and lender positions to parquet")
}

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	path := fs.String("out", "admin.keystore", "output path for the keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "environment variable containing the keystore passphrase")
	force := fs.Bool("force", false, "overwrite an existing keystore file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := os.Stat(*path); err == nil && !*force {
		return fmt.Errorf("keystore %s already exists; use --force to overwrite", *path)
	}
	pass, err := passphrase.NewSource(*passEnv, "new keystore").Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	addr, err := crypto.SaveToKeystore(*path, key, pass)
	if err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	fmt.Fprintf(out, "Address:  %s\nKeystore: %s\n", addr, *path)
	return nil
}

func runAddress(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	path := fs.String("keystore", "admin.keystore", "keystore file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := crypto.KeystoreAddress(*path)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, addr)
	return nil
}

func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("subject", "", "address the token authenticates")
	gatewayCfg := fs.String("gateway-config", "", "gateway config supplying secret, issuer and audience")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := crypto.ParseAddress(*subject)
	if err != nil {
		return fmt.Errorf("subject: %w", err)
	}
	cfg, err := gwconfig.Load(*gatewayCfg)
	if err != nil {
		return err
	}
	token, err := middleware.IssueToken(cfg.Auth.HMACSecret, cfg.Auth.Issuer, cfg.Auth.Audience, addr, *ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func runSign(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	apiKey := fs.String("api-key", "", "operator API key")
	secretEnv := fs.String("secret-env", "REMITLEND_OPERATOR_SECRET", "environment variable containing the operator secret")
	method := fs.String("method", http.MethodPost, "HTTP method")
	target := fs.String("path", "", "request path including any query, e.g. /v1/oracle/remittances")
	body := fs.String("body", "", "request body; @file reads it from a file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*apiKey) == "" || strings.TrimSpace(*target) == "" {
		return fmt.Errorf("--api-key and --path are required")
	}
	secret := strings.TrimSpace(os.Getenv(*secretEnv))
	if secret == "" {
		return fmt.Errorf("%s is not set", *secretEnv)
	}
	payload := []byte(*body)
	if strings.HasPrefix(*body, "@") {
		data, err := os.ReadFile(strings.TrimPrefix(*body, "@"))
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		payload = data
	}
	req, err := http.NewRequest(strings.ToUpper(*method), "http://gateway"+*target, nil)
	if err != nil {
		return fmt.Errorf("parse path: %w", err)
	}
	auth.SignRequest(req, *apiKey, secret, uuid.NewString(), time.Now(), payload)
	for _, header := range []string{auth.HeaderAPIKey, auth.HeaderTimestamp, auth.HeaderNonce, auth.HeaderSignature} {
		fmt.Fprintf(out, "%s: %s\n", header, req.Header.Get(header))
	}
	return nil
}

func runExport(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	cfgPath := fs.String("config", defaultConfig, "node configuration")
	dir := fs.String("out", "./exports", "output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, stateDir))
	if err != nil {
		return fmt.Errorf("open state (is remitlendd running?): %w", err)
	}
	defer db.Close()
	protocol, err := core.New(db)
	if err != nil {
		return err
	}
	loans, lenders, err := exports.WriteAll(*dir, protocol)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %d loans and %d lenders to %s\n", loans, lenders, *dir)
	return nil
}
