package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	req, _ := http.NewRequest(http.MethodGet, endpoint(*baseURL, "/admin/v1/state"), nil)
	doAndPrint(req, 5*time.Second)
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	req, _ := http.NewRequest(http.MethodPost, endpoint(*baseURL, "/admin/v1/snapshot"), nil)
	doAndPrint(req, 10*time.Second)
}

func metadataCmd(args []string) {
	fs := flag.NewFlagSet("metadata", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	gen := fs.Uint64("gen", 0, "generation (0 for collection info)")
	_ = fs.Parse(args)

	u := endpoint(*baseURL, "/v1/metadata")
	if *gen != 0 {
		u += "?" + url.Values{"gen": {fmt.Sprint(*gen)}}.Encode()
	}
	req, _ := http.NewRequest(http.MethodGet, u, nil)
	doAndPrint(req, 5*time.Second)
}

func endpoint(base, path string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/") + path
}

func doAndPrint(req *http.Request, timeout time.Duration) {
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
