// Package terminal renders a conversation on a text terminal.
package terminal

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"github.com/rudransh-shrivastava/peer-chat/internal/chat"
)

var _ chat.Presenter = (*Presenter)(nil)

type Options struct {
	// ImageDir, when set, receives a copy of every image shown.
	ImageDir string
	Colors   bool
	Now      func() time.Time
}

// Presenter writes one line per event to out. It is safe for concurrent
// use.
type Presenter struct {
	out      io.Writer
	imageDir string
	colors   bool
	now      func() time.Time

	mu    sync.Mutex
	saved int
}

func New(out io.Writer, opts Options) *Presenter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Presenter{
		out:      out,
		imageDir: opts.ImageDir,
		colors:   opts.Colors,
		now:      opts.Now,
	}
}

func (p *Presenter) SystemNotice(text string) {
	p.println(p.paint(color.FgCyan, text))
}

func (p *Presenter) ChatMessage(text string) {
	sender, body, ok := strings.Cut(text, ": ")
	if !ok {
		p.println(text)
		return
	}

	c := color.FgMagenta
	if strings.HasPrefix(sender, "Me (") {
		c = color.FgGreen
	}
	p.println(p.paint(c, sender+":") + " " + body)
}

// Image describes the image and optionally saves it to the image directory.
func (p *Presenter) Image(data []byte, sender string) {
	mt := mimetype.Detect(data)
	desc := fmt.Sprintf("🖼  %s sent an image (%s, %s", sender, mt.String(), humanize.Bytes(uint64(len(data))))
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		desc += fmt.Sprintf(", %dx%d", cfg.Width, cfg.Height)
	}
	desc += ")"

	if p.imageDir != "" {
		path, err := p.save(data, sender, mt.Extension())
		if err != nil {
			desc += " " + p.paint(color.FgRed, "not saved: "+err.Error())
		} else {
			desc += " saved to " + path
		}
	}
	p.println(p.paint(color.FgYellow, desc))
}

func (p *Presenter) Alert() {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, _ = io.WriteString(p.out, "\a")
	p.printlnLocked(p.paint(color.FgRed, "🔔 BUZZ!"))
}

func (p *Presenter) Distance(km float64) {
	p.println(p.paint(color.FgCyan, fmt.Sprintf("📏 Distance between you: %.2f km", km)))
}

// Devices renders the video inputs as a table, marking the active one.
func (p *Presenter) Devices(devices []chat.DeviceDescriptor, active string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(devices) == 0 {
		p.printlnLocked(p.paint(color.FgCyan, "No video inputs."))
		return
	}

	table := tablewriter.NewWriter(p.out)
	table.SetHeader([]string{"ID", "Label", "Active"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, d := range devices {
		mark := ""
		if d.ID == active {
			mark = "*"
		}
		table.Append([]string{d.ID, d.Label, mark})
	}
	table.Render()
}

func (p *Presenter) println(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printlnLocked(line)
}

func (p *Presenter) printlnLocked(line string) {
	stamp := p.paint(color.FgGray, p.now().Format(time.TimeOnly))
	_, _ = fmt.Fprintf(p.out, "%s %s\n", stamp, line)
}

func (p *Presenter) paint(c color.Color, s string) string {
	if !p.colors {
		return s
	}
	return c.Render(s)
}

func (p *Presenter) save(data []byte, sender, ext string) (string, error) {
	if err := os.MkdirAll(p.imageDir, 0o755); err != nil {
		return "", err
	}

	p.mu.Lock()
	p.saved++
	n := p.saved
	p.mu.Unlock()

	name := fmt.Sprintf("%s-%s-%d%s", slug(sender), p.now().Format("20060102-150405"), n, ext)
	path := filepath.Join(p.imageDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func slug(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return '-'
	}, s)
	s = strings.Trim(s, "-")
	if s == "" {
		return "image"
	}
	return s
}
