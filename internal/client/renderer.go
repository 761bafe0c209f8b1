package client

import (
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/attachments"
	"github.com/vovakirdan/wirerelay/internal/proto"
)

// Renderer prints received messages and local notices. Attachments are
// written to the downloads store before being announced.
type Renderer struct {
	mu    sync.Mutex
	out   io.Writer
	files *attachments.Store
	log   *zerolog.Logger
}

// NewRenderer creates a renderer. files may be nil to skip saving attachments.
func NewRenderer(out io.Writer, files *attachments.Store, logger *zerolog.Logger) *Renderer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Renderer{out: out, files: files, log: logger}
}

// Render shows one message received from the relay.
func (r *Renderer) Render(m proto.Message) {
	switch m.Kind {
	case proto.KindText:
		r.printf("%s\n", m.Body)
	case proto.KindFile:
		r.attachment(fmt.Sprintf("file %s (%d bytes)", m.Name, len(m.Data)), func() (string, error) {
			return r.files.WriteFile(m.Name, m.Data)
		})
	case proto.KindImage:
		r.attachment(fmt.Sprintf("image (%d bytes)", len(m.Data)), func() (string, error) {
			return r.files.WriteImage(m.Data)
		})
	case proto.KindError:
		r.printf("! server: %s\n", m.Body)
	case proto.KindAuth:
		r.log.Debug().Str("identifier", m.Body).Msg("unexpected auth frame")
	}
}

// Notice prints a local message.
func (r *Renderer) Notice(format string, args ...any) {
	r.printf("* "+format+"\n", args...)
}

func (r *Renderer) attachment(what string, save func() (string, error)) {
	if r.files == nil {
		r.printf("received %s\n", what)
		return
	}
	path, err := save()
	if err != nil {
		r.log.Error().Err(err).Msg("save attachment")
		r.printf("received %s, not saved: %v\n", what, err)
		return
	}
	r.printf("received %s -> %s\n", what, path)
}

func (r *Renderer) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := fmt.Fprintf(r.out, format, args...); err != nil {
		r.log.Warn().Err(err).Msg("render output")
	}
}
