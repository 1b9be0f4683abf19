package asset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Magick converts textures to PNG using ImageMagick. The texture is piped
// to the command's stdin and the PNG read from its stdout.
type Magick struct {
	// Command defaults to "magick" (ImageMagick 7+).
	Command string
	// Formats maps extensions to ImageMagick input coders and defaults to
	// dds and tga.
	Formats map[string]string
}

// NewMagick returns the default texture collaborator.
func NewMagick() *Magick {
	return &Magick{
		Command: "magick",
		Formats: map[string]string{"dds": "dds", "tga": "tga"},
	}
}

func (m *Magick) Extensions() []string {
	exts := make([]string, 0, len(m.Formats))
	for ext := range m.Formats {
		exts = append(exts, ext)
	}
	return exts
}

func (m *Magick) OutputExtension() string { return "png" }

// Available reports whether the command can be found.
func (m *Magick) Available() bool {
	_, err := exec.LookPath(m.command())
	return err == nil
}

func (m *Magick) command() string {
	if m.Command == "" {
		return "magick"
	}
	return m.Command
}

// DecodeTexture converts one texture and writes the PNG to w.
func (m *Magick) DecodeTexture(ctx context.Context, name string, data []byte, w io.Writer) error {
	coder, ok := m.Formats[extOf(name)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoCollaborator, name)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, m.command(), coder+":-", "png:-")
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = w
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("imagemagick exited with code %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("ImageMagick is not installed or not found in PATH: %w", err)
		}
		return fmt.Errorf("running imagemagick: %w", err)
	}
	return nil
}
