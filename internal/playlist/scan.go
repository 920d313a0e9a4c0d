package playlist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/afero"
)

var ErrEmptyArgs = errors.New("no file or directory given")

// Scan expands args into a playlist. A directory contributes its regular
// files in name order; hidden files are skipped unless includeHidden is set.
func Scan(fs afero.Fs, args []string, includeHidden bool) ([]string, error) {
	if len(args) == 0 {
		return nil, ErrEmptyArgs
	}

	var files []string
	for _, arg := range args {
		info, err := fs.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("playlist: reading %s failed: %w", arg, err)
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}

		entries, err := afero.ReadDir(fs, arg)
		if err != nil {
			return nil, fmt.Errorf("playlist: listing %s failed: %w", arg, err)
		}
		entries = lo.Filter(entries, func(e os.FileInfo, _ int) bool {
			return !e.IsDir() && (includeHidden || !strings.HasPrefix(e.Name(), "."))
		})
		files = append(files, lo.Map(entries, func(e os.FileInfo, _ int) string {
			return filepath.Join(arg, e.Name())
		})...)
	}
	return files, nil
}
