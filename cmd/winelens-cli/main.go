// Command winelens-cli sends a wine list photo to a running winelens server
// and prints what it found.
package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/vbonduro/winelens/internal/domain"
)

type analyzeRequest struct {
	Image     string `json:"image"`
	MediaType string `json:"mediaType"`
	Filter    string `json:"filter,omitempty"`
	Lookup    bool   `json:"lookup,omitempty"`
}

type analyzeResponse struct {
	Wines []domain.Wine `json:"wines"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("winelens-cli", flag.ContinueOnError)
	fs.SetOutput(stderr)
	server := fs.String("server", envOr("WINELENS_SERVER", "http://localhost:8080"), "winelens server URL")
	filter := fs.String("filter", "all", "only report this category: all, red, white, rose, sparkling, dessert")
	lookup := fs.Bool("lookup", false, "let the model search the web for each wine")
	timeout := fs.Duration("timeout", 2*time.Minute, "request timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: winelens-cli [flags] photo")
		return 2
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "read photo: %v\n", err)
		return 1
	}
	mediaType, ok := detectMediaType(data)
	if !ok {
		mediaType, ok = mediaTypeFromExt(fs.Arg(0))
	}
	if !ok {
		fmt.Fprintln(stderr, "unsupported image format: use JPEG, PNG, WebP or GIF")
		return 1
	}

	client := resty.New().
		SetBaseURL(*server).
		SetTimeout(*timeout)

	wines, err := analyze(ctx, client, analyzeRequest{
		Image:     base64.StdEncoding.EncodeToString(data),
		MediaType: mediaType,
		Filter:    *filter,
		Lookup:    *lookup,
	})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	printWines(stdout, wines)
	return 0
}

func analyze(ctx context.Context, client *resty.Client, req analyzeRequest) ([]domain.Wine, error) {
	var out analyzeResponse
	var apiErr errorResponse
	res, err := client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post("/api/analyze")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if res.IsError() {
		if apiErr.Error != "" {
			return nil, errors.New(apiErr.Error)
		}
		return nil, fmt.Errorf("server returned status %d", res.StatusCode())
	}
	return out.Wines, nil
}

func printWines(w io.Writer, wines []domain.Wine) {
	if len(wines) == 0 {
		fmt.Fprintln(w, "No wines found.")
		return
	}
	plural := "s"
	if len(wines) == 1 {
		plural = ""
	}
	fmt.Fprintf(w, "%d wine%s found\n", len(wines), plural)

	for _, wine := range wines {
		fmt.Fprintf(w, "\n%s  %s\n", wine.Name, wine.Price)
		if wine.Vibe != "" {
			fmt.Fprintf(w, "  vibe: %s\n", wine.Vibe)
		}
		if wine.RegionNotes != "" {
			fmt.Fprintf(w, "  %s\n", wine.RegionNotes)
		}
		if len(wine.TastingNotes) > 0 {
			notes := make([]string, 0, len(wine.TastingNotes))
			for _, n := range wine.TastingNotes {
				notes = append(notes, fmt.Sprintf("%d/10 %s", n.Rating, n.Descriptor))
			}
			fmt.Fprintf(w, "  %s\n", strings.Join(notes, ", "))
		}
		if wine.Story != "" {
			fmt.Fprintf(w, "  %s\n", wine.Story)
		}
	}
}

// detectMediaType sniffs the image format. net/http.DetectContentType
// handles JPEG, PNG and GIF; WebP is checked separately because the stdlib
// sniffer has no WebP signature.
func detectMediaType(data []byte) (string, bool) {
	if isWebP(data) {
		return string(domain.MediaTypeWebP), true
	}
	mt := domain.MediaType(http.DetectContentType(data))
	if mt.Valid() {
		return string(mt), true
	}
	return "", false
}

// mediaTypeFromExt is the fallback for files the sniffer does not recognise.
func mediaTypeFromExt(path string) (string, bool) {
	mt := domain.MediaType(mime.TypeByExtension(strings.ToLower(filepath.Ext(path))))
	if mt.Valid() {
		return string(mt), true
	}
	return "", false
}

// isWebP reports whether data is a RIFF container with "WEBP" at offset 8.
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
