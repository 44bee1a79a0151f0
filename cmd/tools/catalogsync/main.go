// Command catalogsync regenerates the catalog file from the note folders in Google Drive.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/api/option"

	"github.com/maxnotes/storefront/internal/catalog"
	"github.com/maxnotes/storefront/internal/obs"
)

func main() {
	_ = godotenv.Load()
	logger := obs.NewLogger("console", "info")

	folder := flag.String("folder", os.Getenv("DRIVE_MASTER_FOLDER_ID"), "master Drive folder id")
	creds := flag.String("credentials", envOr("GOOGLE_APPLICATION_CREDENTIALS", "credentials.json"), "service account key file")
	out := flag.String("out", envOr("CATALOG_FILE", "data/products.json"), "output file")
	flag.Parse()

	if *folder == "" {
		logger.Fatal().Msg("DRIVE_MASTER_FOLDER_ID or -folder is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ds, err := catalog.NewDriveSync(ctx, option.WithCredentialsFile(*creds))
	if err != nil {
		logger.Fatal().Err(err).Msg("connect drive")
	}
	logger.Info().Str("folder", *folder).Msg("scanning drive")
	products, err := ds.Products(ctx, *folder)
	if err != nil {
		logger.Fatal().Err(err).Msg("sync catalog")
	}

	raw, err := json.MarshalIndent(products, "", "  ")
	if err != nil {
		logger.Fatal().Err(err).Msg("encode products")
	}
	// The file must load through the same decoder the API uses.
	if _, err := catalog.Decode(raw); err != nil {
		logger.Fatal().Err(err).Msg("generated catalog does not decode")
	}
	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		logger.Fatal().Err(err).Msg("create output dir")
	}
	if err := os.WriteFile(*out, raw, 0o644); err != nil {
		logger.Fatal().Err(err).Msg("write catalog")
	}
	logger.Info().Int("products", len(products)).Str("file", *out).Msg("catalog written")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
