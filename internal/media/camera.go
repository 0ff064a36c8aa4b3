// Package media provides the camera and geolocation collaborators used by
// the terminal client.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/samber/lo"

	"github.com/rudransh-shrivastava/peer-chat/internal/chat"
)

var (
	ErrNoDevices     = errors.New("no video inputs")
	ErrUnknownDevice = errors.New("unknown video input")
	ErrNoFrames      = errors.New("video input has no frames")
	ErrNotImage      = errors.New("frame is not an image")
	ErrStreamStopped = errors.New("stream stopped")
	ErrForeignStream = errors.New("stream was not acquired from this camera")
)

const jpegQuality = 85

// DirectoryCamera treats each configured directory as a video input whose
// frames are the image files inside it.
type DirectoryCamera struct {
	dirs []string
}

func NewDirectoryCamera(dirs []string) *DirectoryCamera {
	dirs = lo.Uniq(lo.Compact(lo.Map(dirs, func(d string, _ int) string {
		return strings.TrimSpace(d)
	})))
	return &DirectoryCamera{dirs: dirs}
}

func deviceID(i int) string {
	return fmt.Sprintf("video%d", i)
}

type input struct {
	device chat.DeviceDescriptor
	dir    string
}

// inputs returns the configured directories that exist. Device IDs follow
// configuration order so they stay stable when a directory is missing.
func (c *DirectoryCamera) inputs(ctx context.Context) ([]input, error) {
	inputs := make([]input, 0, len(c.dirs))
	for i, dir := range c.dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		inputs = append(inputs, input{
			device: chat.DeviceDescriptor{ID: deviceID(i), Label: filepath.Base(dir)},
			dir:    dir,
		})
	}
	return inputs, nil
}

func (c *DirectoryCamera) ListVideoInputs(ctx context.Context) ([]chat.DeviceDescriptor, error) {
	inputs, err := c.inputs(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(inputs, func(in input, _ int) chat.DeviceDescriptor { return in.device }), nil
}

// Acquire opens the input with the given ID, or the first available input
// when id is empty.
func (c *DirectoryCamera) Acquire(ctx context.Context, id string) (chat.Stream, error) {
	inputs, err := c.inputs(ctx)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, ErrNoDevices
	}

	in := inputs[0]
	if id != "" {
		var ok bool
		in, ok = lo.Find(inputs, func(in input) bool { return in.device.ID == id })
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
		}
	}

	frames, err := listFrames(in.dir)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFrames, in.dir)
	}

	return &DirectoryStream{id: in.device.ID, frames: frames}, nil
}

func (c *DirectoryCamera) Release(s chat.Stream) error {
	ds, ok := s.(*DirectoryStream)
	if !ok {
		return ErrForeignStream
	}
	ds.stop()
	return nil
}

func listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	frames := lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			return "", false
		}
		return filepath.Join(dir, e.Name()), true
	})
	slices.Sort(frames)
	return frames, nil
}

// DirectoryStream cycles through the frames of one input.
type DirectoryStream struct {
	id     string
	frames []string

	mu      sync.Mutex
	next    int
	stopped bool
}

func (s *DirectoryStream) DeviceID() string {
	return s.id
}

// Capture returns the next frame as JPEG. Other image formats are
// transcoded.
func (s *DirectoryStream) Capture() ([]byte, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, ErrStreamStopped
	}
	path := s.frames[s.next%len(s.frames)]
	s.next++
	s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return toJPEG(data, filepath.Base(path))
}

func (s *DirectoryStream) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func checkImage(data []byte, name string) (*mimetype.MIME, error) {
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotImage, name, mt.String())
	}
	return mt, nil
}

func toJPEG(data []byte, name string) ([]byte, error) {
	mt, err := checkImage(data, name)
	if err != nil {
		return nil, err
	}
	if mt.Is("image/jpeg") {
		return data, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNotImage, name, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
