package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// VideoExtension is the only output type the pipeline publishes.
const VideoExtension = ".mp4"

// ListVideos returns the paths of regular .mp4 files directly inside dir, in
// directory listing order. A missing dir holds no videos.
func ListVideos(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list output directory '%s': %w", dir, err)
	}

	var videos []string

	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasSuffix(entry.Name(), VideoExtension) {
			continue
		}

		videos = append(videos, filepath.Join(dir, entry.Name()))
	}

	return videos, nil
}
