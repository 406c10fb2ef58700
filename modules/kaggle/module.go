// Package kaggle provides the 'kaggle_download' action: it fetches a
// dataset archive from the Kaggle API, unpacks it, and publishes the path
// of the extracted CSV for downstream tasks.
package kaggle

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/operator13/spotify-datapipeline/internal/ctxlog"
	"github.com/operator13/spotify-datapipeline/internal/registry"
	"github.com/operator13/spotify-datapipeline/internal/runctx"
	"github.com/operator13/spotify-datapipeline/internal/task"
)

const apiBaseURL = "https://www.kaggle.com/api/v1"

// Module implements the registry.Module interface for this package.
type Module struct {
	// BaseURL overrides the Kaggle API endpoint. Tests point it at a local
	// server.
	BaseURL string
}

// Input defines the arguments for a kaggle_download task.
type Input struct {
	// Dataset is the owner/slug pair, e.g. "tomigelo/spotify-audio-features".
	Dataset string `hcl:"dataset"`
	// File selects one file from the archive. Empty means the first CSV.
	File string `hcl:"file,optional"`
	// DestDir is where the archive is unpacked.
	DestDir string `hcl:"dest_dir"`
	// Username and Key are the Kaggle API credentials.
	Username string `hcl:"username"`
	Key      string `hcl:"key"`
}

// Run downloads and unpacks the dataset, then publishes "dataset_path".
func (m *Module) Run(ctx context.Context, rc *runctx.Context, input any) (*task.Output, error) {
	in, ok := input.(*Input)
	if !ok {
		return nil, fmt.Errorf("kaggle_download: unexpected input type %T", input)
	}
	logger := ctxlog.FromContext(ctx)

	baseURL := m.BaseURL
	if baseURL == "" {
		baseURL = apiBaseURL
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetBasicAuth(in.Username, in.Key).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	if err := os.MkdirAll(in.DestDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating destination dir: %w", err)
	}
	archivePath := filepath.Join(in.DestDir, "dataset.zip")

	logger.Info("Downloading Kaggle dataset.", "dataset", in.Dataset)
	resp, err := client.R().
		SetContext(ctx).
		SetOutput(archivePath).
		Get("/datasets/download/" + in.Dataset)
	if err != nil {
		return nil, fmt.Errorf("downloading dataset %q: %w", in.Dataset, err)
	}
	if resp.StatusCode() >= 400 {
		return nil, fmt.Errorf("downloading dataset %q: kaggle returned %s", in.Dataset, resp.Status())
	}

	csvPath, err := unpack(archivePath, in.DestDir, in.File)
	if err != nil {
		return nil, err
	}
	logger.Info("Dataset unpacked.", "path", csvPath)

	return &task.Output{
		Values: map[string]any{"dataset_path": csvPath},
	}, nil
}

// unpack extracts the archive into destDir and returns the path of the
// selected file (or the first CSV when want is empty).
func unpack(archivePath, destDir, want string) (string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", fmt.Errorf("opening dataset archive: %w", err)
	}
	defer zr.Close()

	var found string
	for _, f := range zr.File {
		name := filepath.Base(f.Name)
		if f.FileInfo().IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		dest := filepath.Join(destDir, name)
		if err := extractFile(f, dest); err != nil {
			return "", err
		}
		if want != "" && name == want {
			found = dest
		}
		if want == "" && found == "" && strings.HasSuffix(name, ".csv") {
			found = dest
		}
	}
	if found == "" {
		return "", fmt.Errorf("archive %s has no file matching %q", archivePath, want)
	}
	return found, nil
}

func extractFile(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("reading %s from archive: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("extracting %s: %w", f.Name, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("extracting %s: %w", f.Name, err)
	}
	return nil
}

// Register registers the handler with the app registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("kaggle_download", &registry.Handler{
		NewInput: func() any { return new(Input) },
		Run:      m.Run,
	})
}
