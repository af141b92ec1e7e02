package disk

import (
	"os"

	"github.com/pkg/errors"
)

// openFile opens the page file at path, creating it when absent
func openFile(path string) (storage, error) {
	fd, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0700)
	if err != nil {
		return nil, errors.Wrap(err, "os.OpenFile failed")
	}
	return fileStorage{fd}, nil
}
