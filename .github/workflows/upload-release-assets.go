package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	buildDir   = "./build"
	repository = "gclaussn/go-extask"
)

var contentTypes = map[string]string{
	".gz":     "application/gzip",
	".json":   "application/json",
	".sha256": "text/plain",
}

func main() {
	log.SetFlags(0)

	var releaseId string
	flag.StringVar(&releaseId, "release-id", "", "ID of the Github release")
	flag.Parse()

	if releaseId == "" {
		log.Fatal("please provide a release ID")
	}

	githubToken := os.Getenv("GITHUB_TOKEN")
	if githubToken == "" {
		log.Fatal("please set environment variable GITHUB_TOKEN")
	}

	entries, err := os.ReadDir(buildDir)
	if err != nil {
		log.Fatalf("failed to read build directory: %v", err)
	}

	uploader := assetUploader{
		client:    &http.Client{Timeout: 5 * time.Minute},
		releaseId: releaseId,
		token:     githubToken,
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		contentType, ok := contentTypes[filepath.Ext(name)]
		if !ok {
			log.Fatalf("file %s has an unsupported extension", name)
		}

		if err := uploader.upload(name, contentType); err != nil {
			log.Fatalf("failed to upload %s: %v", name, err)
		}
		log.Printf("uploaded %s", name)
	}
}

type assetUploader struct {
	client    *http.Client
	releaseId string
	token     string
}

func (u assetUploader) upload(name string, contentType string) error {
	f, err := os.Open(filepath.Join(buildDir, name))
	if err != nil {
		return err
	}

	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("https://uploads.github.com/repos/%s/releases/%s/assets?name=%s", repository, u.releaseId, url.QueryEscape(name))

	req, err := http.NewRequest(http.MethodPost, endpoint, f)
	if err != nil {
		return err
	}

	req.ContentLength = info.Size()
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+u.token)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	res, err := u.client.Do(req)
	if err != nil {
		return err
	}

	defer res.Body.Close()

	if res.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
