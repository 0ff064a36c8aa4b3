package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"

	"github.com/rudransh-shrivastava/peer-chat/internal/protocol"
)

var ErrPhotoTooLarge = errors.New("photo too large")

// LoadPhoto reads an image file, drawing a byte progress bar on progress.
// A nil progress writer disables the bar.
func LoadPhoto(path string, progress io.Writer) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a file", path)
	}
	if info.Size() > protocol.MaxImageSize {
		return nil, fmt.Errorf("%w: %s (limit is %s)", ErrPhotoTooLarge,
			humanize.IBytes(uint64(info.Size())), humanize.IBytes(protocol.MaxImageSize))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if progress == nil {
		progress = io.Discard
	}
	bar := progressbar.NewOptions64(info.Size(),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetDescription("Loading "+filepath.Base(path)),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)

	var buf bytes.Buffer
	buf.Grow(int(info.Size()))
	if _, err := io.Copy(io.MultiWriter(&buf, bar), f); err != nil {
		return nil, err
	}
	_ = bar.Finish()

	data := buf.Bytes()
	if _, err := checkImage(data, filepath.Base(path)); err != nil {
		return nil, err
	}
	return data, nil
}
