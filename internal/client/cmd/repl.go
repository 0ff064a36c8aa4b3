package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rudransh-shrivastava/peer-chat/internal/chat"
	"github.com/rudransh-shrivastava/peer-chat/internal/geo"
	"github.com/rudransh-shrivastava/peer-chat/internal/media"
)

const helpText = `Commands:
  <text>               send a message
  /connect <id>        connect to a peer
  /buzz                make the peer's terminal beep
  /photo [path]        send an image file, or a frame from the active camera
  /camera [device]     turn on a video input (the first one by default)
  /camera off          turn the camera off
  /location [lat lon]  share your location, optionally setting it first
  /devices             list video inputs
  /end                 end the chat and start advertising again
  /quit                leave`

// chatter is the part of chat.Controller the command loop drives.
type chatter interface {
	State() chat.State
	ClaimIdentity(ctx context.Context, id, displayName string) error
	ConnectTo(ctx context.Context, remoteID string) error
	Teardown()
	SendText(text string) error
	SendBuzz() error
	SendPhoto(data []byte) error
	CapturePhoto() error
	ShareLocation(ctx context.Context) error
	StartCamera(ctx context.Context, deviceID string) error
	StopCamera()
	ActiveCamera() string
	VideoInputs(ctx context.Context) ([]chat.DeviceDescriptor, error)
}

type noticer interface {
	SystemNotice(text string)
	Devices(devices []chat.DeviceDescriptor, active string)
}

type positioner interface {
	Set(pos geo.Coordinates)
}

type repl struct {
	chat       chatter
	presenter  noticer
	geolocator positioner
	id         string
	name       string
	progress   io.Writer
}

func (r *repl) claim(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, claimTimeout)
	defer cancel()
	return r.chat.ClaimIdentity(ctx, r.id, r.name)
}

// run handles lines from in until /quit, end of input or ctx is done.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := r.handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// handle runs one input line and reports whether the loop should stop.
// Controller errors are already shown as notices.
func (r *repl) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	if r.chat.State() == chat.StateIdle && line != "/quit" {
		if err := r.claim(ctx); err != nil {
			return false
		}
	}

	if !strings.HasPrefix(line, "/") {
		_ = r.chat.SendText(line)
		return false
	}

	fields := strings.Fields(line)
	command, args := fields[0], fields[1:]

	switch command {
	case "/quit":
		return true
	case "/help":
		r.presenter.SystemNotice(helpText)
	case "/connect":
		if len(args) != 1 {
			r.usage("/connect <id>")
			return false
		}
		_ = r.chat.ConnectTo(ctx, args[0])
	case "/buzz":
		_ = r.chat.SendBuzz()
	case "/photo":
		r.photo(args)
	case "/camera":
		switch {
		case len(args) == 0:
			_ = r.chat.StartCamera(ctx, "")
		case len(args) == 1 && args[0] == "off":
			r.chat.StopCamera()
		case len(args) == 1:
			_ = r.chat.StartCamera(ctx, args[0])
		default:
			r.usage("/camera [device|off]")
		}
	case "/location":
		r.location(ctx, args)
	case "/devices":
		devices, err := r.chat.VideoInputs(ctx)
		if err == nil {
			r.presenter.Devices(devices, r.chat.ActiveCamera())
		}
	case "/end":
		r.chat.Teardown()
		_ = r.claim(ctx)
	default:
		r.presenter.SystemNotice(fmt.Sprintf("Unknown command %s, type /help for the list.", command))
	}
	return false
}

func (r *repl) photo(args []string) {
	if len(args) == 0 {
		_ = r.chat.CapturePhoto()
		return
	}

	data, err := media.LoadPhoto(strings.Join(args, " "), r.progress)
	if err != nil {
		r.presenter.SystemNotice(fmt.Sprintf("⚠ %v", err))
		return
	}
	_ = r.chat.SendPhoto(data)
}

func (r *repl) location(ctx context.Context, args []string) {
	switch len(args) {
	case 0:
	case 2:
		pos, err := parseCoordinates(args[0], args[1])
		if err != nil {
			r.presenter.SystemNotice(fmt.Sprintf("⚠ %v", err))
			return
		}
		r.geolocator.Set(pos)
	default:
		r.usage("/location [lat lon]")
		return
	}
	_ = r.chat.ShareLocation(ctx)
}

func (r *repl) usage(text string) {
	r.presenter.SystemNotice("Usage: " + text)
}

func parseCoordinates(lat, lon string) (geo.Coordinates, error) {
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil || la < -90 || la > 90 {
		return geo.Coordinates{}, fmt.Errorf("invalid latitude %q", lat)
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil || lo < -180 || lo > 180 {
		return geo.Coordinates{}, fmt.Errorf("invalid longitude %q", lon)
	}
	return geo.Coordinates{Lat: la, Lon: lo}, nil
}
