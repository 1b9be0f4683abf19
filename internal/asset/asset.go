// Package asset hands decoded entry bytes to the texture and mesh
// collaborators that turn them into formats usable outside the game.
package asset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
)

// ErrNoCollaborator is returned for entries no collaborator handles.
var ErrNoCollaborator = errors.New("no collaborator for entry")

// Kind classifies an entry by what it holds.
type Kind int

const (
	KindOther Kind = iota
	KindTexture
	KindMesh
)

func (k Kind) String() string {
	switch k {
	case KindTexture:
		return "texture"
	case KindMesh:
		return "mesh"
	default:
		return "other"
	}
}

// TextureDecoder converts game textures to a portable image format.
type TextureDecoder interface {
	// Extensions lists the lower-case extensions, without dot, handled.
	Extensions() []string
	// OutputExtension is the extension of the converted file.
	OutputExtension() string
	DecodeTexture(ctx context.Context, name string, data []byte, w io.Writer) error
}

// MeshDecoder converts game meshes to a portable model format.
type MeshDecoder interface {
	Extensions() []string
	OutputExtension() string
	DecodeMesh(ctx context.Context, name string, data []byte, w io.Writer) error
}

// Dispatcher routes entries to collaborators by extension. Later
// registrations win.
type Dispatcher struct {
	mu       sync.RWMutex
	textures map[string]TextureDecoder
	meshes   map[string]MeshDecoder
}

// NewDispatcher returns a dispatcher with no collaborators.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		textures: make(map[string]TextureDecoder),
		meshes:   make(map[string]MeshDecoder),
	}
}

// RegisterTexture adds a texture collaborator for its extensions.
func (d *Dispatcher) RegisterTexture(dec TextureDecoder) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ext := range dec.Extensions() {
		d.textures[normalizeExt(ext)] = dec
	}
}

// RegisterMesh adds a mesh collaborator for its extensions.
func (d *Dispatcher) RegisterMesh(dec MeshDecoder) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ext := range dec.Extensions() {
		d.meshes[normalizeExt(ext)] = dec
	}
}

// Classify reports which collaborator, if any, takes name.
func (d *Dispatcher) Classify(name string) Kind {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ext := extOf(name)
	if _, ok := d.textures[ext]; ok {
		return KindTexture
	}
	if _, ok := d.meshes[ext]; ok {
		return KindMesh
	}
	return KindOther
}

// Target returns the name the converted entry is written under. Names no
// collaborator takes are returned unchanged.
func (d *Dispatcher) Target(name string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ext := extOf(name)
	var out string
	if dec, ok := d.textures[ext]; ok {
		out = dec.OutputExtension()
	} else if dec, ok := d.meshes[ext]; ok {
		out = dec.OutputExtension()
	} else {
		return name
	}
	return strings.TrimSuffix(name, path.Ext(name)) + "." + out
}

// Convert writes the converted form of the named entry to w.
func (d *Dispatcher) Convert(ctx context.Context, name string, data []byte, w io.Writer) error {
	d.mu.RLock()
	ext := extOf(name)
	tex, isTex := d.textures[ext]
	mesh, isMesh := d.meshes[ext]
	d.mu.RUnlock()

	switch {
	case isTex:
		if err := tex.DecodeTexture(ctx, name, data, w); err != nil {
			return fmt.Errorf("converting texture %s: %w", name, err)
		}
	case isMesh:
		if err := mesh.DecodeMesh(ctx, name, data, w); err != nil {
			return fmt.Errorf("converting mesh %s: %w", name, err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrNoCollaborator, name)
	}
	return nil
}

func extOf(name string) string {
	return normalizeExt(path.Ext(strings.ReplaceAll(name, "\\", "/")))
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
