package main

import (
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"veil/bang"
	"veil/internal/proxy"
)

func main() {
	addrFlag := flag.String("addr", "", "listen address, e.g. :8000 (overrides VEIL_ADDR)")
	bangFlag := flag.String("bangs", "", "path to the operator table (overrides VEIL_BANG_FILE)")
	genBangs := flag.Bool("generate-bangs", false, "fetch the upstream operator list, write the table file, and exit")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetOutput(os.Stdout)

	// Optional; a missing .env is the normal case in production.
	_ = godotenv.Load()

	cfg, err := proxy.ConfigFromEnv()
	if err != nil {
		log.Fatal(err)
	}
	if *addrFlag != "" {
		cfg.Addr = *addrFlag
	}
	if *bangFlag != "" {
		cfg.BangFile = *bangFlag
	}
	if env := os.Getenv("PORT"); env != "" {
		cfg.Addr = ":" + env
	}

	if *genBangs {
		client := &http.Client{Timeout: cfg.FetchTimeout}
		if err := bang.Generate(client, cfg.BangFile); err != nil {
			log.Fatalf("generate operator table: %v", err)
		}
		log.Printf("operator table written to %s", cfg.BangFile)
		return
	}

	server, err := proxy.New(cfg)
	if err != nil {
		log.Fatal(err)
	}

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Handler(),
		// Conservative timeouts to avoid slowloris and leaked connections blocking the server
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          log.New(os.Stdout, "HTTPERR ", log.LstdFlags|log.Lmicroseconds),
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		log.Fatalf("Listen error on %s: %v", cfg.Addr, err)
	}

	log.Println("Listening on", cfg.Addr)
	log.Fatal(srv.Serve(ln))
}
