package main

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const buildDir = "./build"

// binary is a command, which is part of every release archive.
type binary struct {
	name       string
	pkg        string
	versionVar string
}

var binaries = []binary{
	{name: "go-extask", pkg: "./cmd/go-extask", versionVar: "main.version"},
	{name: "go-extask-memd", pkg: "./cmd/go-extask-memd", versionVar: "github.com/gclaussn/go-extask/daemon.version"},
	{name: "go-extask-pgd", pkg: "./cmd/go-extask-pgd", versionVar: "github.com/gclaussn/go-extask/daemon.version"},
}

type platform struct {
	goos   string
	goarch string
}

func (p platform) String() string {
	return p.goos + "-" + p.goarch
}

// executable returns the file name of a binary on the platform.
func (p platform) executable(b binary) string {
	if p.goos == "windows" {
		return b.name + ".exe"
	}
	return b.name
}

var platforms = []platform{
	{goos: "linux", goarch: "amd64"},
	{goos: "linux", goarch: "arm64"},
	{goos: "windows", goarch: "amd64"},
}

func main() {
	log.SetFlags(0)

	var tagName string
	flag.StringVar(&tagName, "tag-name", "", "name of the tag to build")
	flag.Parse()

	if tagName == "" {
		log.Fatal("please provide a tag name")
	}

	if err := os.RemoveAll(buildDir); err != nil {
		log.Fatalf("failed to delete build directory: %v", err)
	}
	if err := os.MkdirAll(buildDir, 0700); err != nil {
		log.Fatalf("failed to create build directory: %v", err)
	}

	for _, p := range platforms {
		if err := release(p, tagName); err != nil {
			log.Fatalf("%s: %v", p, err)
		}
	}
}

// release builds all binaries for a platform and packs them into a checksummed archive.
func release(p platform, tagName string) error {
	stagingDir, err := os.MkdirTemp("", "go-extask-"+p.String())
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %v", err)
	}

	defer os.RemoveAll(stagingDir)

	var files []string
	for _, b := range binaries {
		output := filepath.Join(stagingDir, p.executable(b))
		if err := compile(p, b, tagName, output); err != nil {
			return err
		}
		files = append(files, output)
	}

	archiveName := fmt.Sprintf("go-extask-%s.tar.gz", p)
	archivePath := filepath.Join(buildDir, archiveName)
	if err := writeTarGz(archivePath, files); err != nil {
		return fmt.Errorf("failed to write %s: %v", archiveName, err)
	}

	checksum, err := sha256File(archivePath)
	if err != nil {
		return fmt.Errorf("failed to compute checksum of %s: %v", archiveName, err)
	}

	checksumPath := filepath.Join(buildDir, fmt.Sprintf("go-extask-%s.sha256", p))
	if err := os.WriteFile(checksumPath, []byte(checksum+"  "+archiveName+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write checksum file: %v", err)
	}

	log.Printf("%s: %s %s", p, archiveName, checksum)
	return nil
}

func compile(p platform, b binary, tagName string, output string) error {
	args := []string{"build", "-trimpath", "-ldflags", "-X " + b.versionVar + "=" + tagName, "-o", output, b.pkg}

	cmd := exec.Command("go", args...)
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0", "GOOS="+p.goos, "GOARCH="+p.goarch)
	cmd.Stderr = os.Stderr

	log.Printf("%s: go %s", p, strings.Join(args, " "))

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to build %s: %v", b.name, err)
	}
	return nil
}

// writeTarGz writes the files, flattened to their base names, into a gzip compressed tar archive.
func writeTarGz(path string, files []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	defer f.Close()

	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)

	for _, file := range files {
		if err := addFile(tw, file); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	if err := gw.Close(); err != nil {
		return err
	}
	return f.Close()
}

func addFile(tw *tar.Writer, file string) error {
	info, err := os.Stat(file)
	if err != nil {
		return err
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Mode = 0755

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	src, err := os.Open(file)
	if err != nil {
		return err
	}

	defer src.Close()

	_, err = io.Copy(tw, src)
	return err
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}

	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
