package metadata

import (
	"os"
	"path/filepath"

	"github.com/sharedcode/anydb/internal/wireformat"
)

func openRawPage(dir string, slot int) ([]byte, error) {
	f, err := os.OpenFile(filepath.Join(dir, fileName), os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	page := make([]byte, wireformat.PageSize)
	if _, err := f.ReadAt(page, int64(slot)*wireformat.PageSize); err != nil {
		return nil, err
	}
	return page, nil
}

func writeRawPage(dir string, slot int, page []byte) error {
	f, err := os.OpenFile(filepath.Join(dir, fileName), os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteAt(page, int64(slot)*wireformat.PageSize)
	return err
}
