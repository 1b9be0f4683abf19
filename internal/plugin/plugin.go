// Package plugin loads Lua scripts that register extra loaders with a
// registry at runtime.
//
// A plugin script returns a table:
//
//	return {
//	  name = "mypak",
//	  abi = "1.0",
//	  init = function(host)
//	    host.register("mpk", function(file, pkg)
//	      if file:bytes(4) ~= "MPK1" then return false, "bad magic" end
//	      local count = file:u32()
//	      for i = 1, count do
//	        pkg:add{name = file:cstring(64), offset = file:u32(), size = file:u32()}
//	      end
//	    end)
//	  end,
//	}
//
// The abi field is checked against registry.InterfaceVersion before init
// runs. A parser fails its attempt by returning false and a message or by
// raising an error, and the registry moves on to the next loader.
package plugin

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Shopify/go-lua"
	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/registry"
	"github.com/jchantrell/gamepak/internal/vfile"
)

// ErrPlugin is returned for scripts that do not follow the plugin layout.
var ErrPlugin = errors.New("invalid plugin")

const (
	parsersKey   = "gamepak.parsers"
	fileTypeName = "gamepak.file"
	pkgTypeName  = "gamepak.package"
)

// Plugin describes a loaded script.
type Plugin struct {
	Name       string
	Path       string
	ABI        registry.Version
	Extensions []string
}

// script is one Lua state. go-lua states are not safe for concurrent use,
// so every call into a state holds mu.
type script struct {
	mu    sync.Mutex
	state *lua.State
	info  Plugin

	pending []registration
}

type registration struct {
	ext string
	id  int
}

// Host owns the Lua states of every loaded plugin.
type Host struct {
	mu      sync.Mutex
	scripts []*script
}

// NewHost returns a host with no plugins.
func NewHost() *Host {
	return &Host{}
}

// Plugins returns the loaded plugins in load order.
func (h *Host) Plugins() []Plugin {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Plugin, len(h.scripts))
	for i, s := range h.scripts {
		out[i] = s.info
	}
	return out
}

// LoadDir loads every *.lua file in dir, in name order. Scripts that fail
// to load are logged and skipped. A missing directory holds no plugins.
func (h *Host) LoadDir(dir string, reg *registry.Registry) ([]Plugin, error) {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("No plugin directory", "dir", dir)
		return nil, nil
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.lua"))
	if err != nil {
		return nil, fmt.Errorf("listing plugins in %s: %w", dir, err)
	}
	sort.Strings(paths)

	var loaded []Plugin
	for _, path := range paths {
		p, err := h.LoadFile(path, reg)
		if err != nil {
			slog.Warn("Skipping plugin", "path", path, "error", err)
			continue
		}
		loaded = append(loaded, p)
	}
	return loaded, nil
}

// LoadFile runs one plugin script and registers its loaders with reg. No
// loader is registered unless init completes.
func (h *Host) LoadFile(path string, reg *registry.Registry) (Plugin, error) {
	s := &script{state: lua.NewState(), info: Plugin{Path: path}}
	l := s.state
	lua.OpenLibraries(l)
	registerTypes(l)

	l.NewTable()
	l.SetField(lua.RegistryIndex, parsersKey)

	if err := lua.LoadFile(l, path, ""); err != nil {
		return Plugin{}, fmt.Errorf("%w: loading %s: %v", ErrPlugin, path, err)
	}
	if err := l.ProtectedCall(0, 1, 0); err != nil {
		return Plugin{}, fmt.Errorf("%w: running %s: %v", ErrPlugin, path, err)
	}
	if l.TypeOf(-1) != lua.TypeTable {
		return Plugin{}, fmt.Errorf("%w: %s must return a table", ErrPlugin, path)
	}

	name := stringField(l, -1, "name")
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	s.info.Name = name

	abi := stringField(l, -1, "abi")
	if abi == "" {
		return Plugin{}, fmt.Errorf("%w: plugin %s declares no abi", registry.ErrPluginVersion, name)
	}
	version, err := registry.ParseVersion(abi)
	if err != nil {
		return Plugin{}, fmt.Errorf("plugin %s: %w", name, err)
	}
	if err := registry.CheckVersion(version); err != nil {
		return Plugin{}, fmt.Errorf("plugin %s: %w", name, err)
	}
	s.info.ABI = version

	l.Field(-1, "init")
	if l.TypeOf(-1) != lua.TypeFunction {
		return Plugin{}, fmt.Errorf("%w: plugin %s has no init function", ErrPlugin, name)
	}
	s.pushHost()
	if err := l.ProtectedCall(1, 0, 0); err != nil {
		return Plugin{}, fmt.Errorf("%w: plugin %s init: %v", ErrPlugin, name, err)
	}
	l.SetTop(0)

	for _, r := range s.pending {
		reg.Register(r.ext, registry.HandleParser{Name: name, Parse: s.parser(r.id)})
		s.info.Extensions = append(s.info.Extensions, r.ext)
	}
	s.pending = nil

	h.mu.Lock()
	h.scripts = append(h.scripts, s)
	h.mu.Unlock()

	slog.Info("Loaded plugin", "name", name, "abi", version.String(), "extensions", s.info.Extensions)
	return s.info, nil
}

// pushHost pushes the table passed to init.
func (s *script) pushHost() {
	l := s.state
	l.NewTable()

	l.PushString(registry.InterfaceVersion.String())
	l.SetField(-2, "abi")

	l.PushGoFunction(func(l *lua.State) int {
		ext := lua.CheckString(l, 1)
		lua.CheckType(l, 2, lua.TypeFunction)

		l.Field(lua.RegistryIndex, parsersKey)
		id := len(s.pending) + 1
		l.PushValue(2)
		l.RawSetInt(-2, id)
		l.Pop(1)

		s.pending = append(s.pending, registration{ext: ext, id: id})
		return 0
	})
	l.SetField(-2, "register")

	l.PushGoFunction(func(l *lua.State) int {
		msg := lua.CheckString(l, 1)
		slog.Debug(msg, "plugin", s.info.Name)
		return 0
	})
	l.SetField(-2, "log")
}

// parser adapts the Lua function stored under id to a handle parser.
func (s *script) parser(id int) func(f *vfile.File) (*archive.Package, error) {
	return func(f *vfile.File) (*archive.Package, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		l := s.state
		top := l.Top()
		defer l.SetTop(top)

		lf := &luaFile{f: f, d: vfile.NewDecoder(f)}
		lp := &luaPackage{pkg: archive.New(f, s.info.Name)}

		l.Field(lua.RegistryIndex, parsersKey)
		l.RawGetInt(-1, id)
		l.PushUserData(lf)
		lua.SetMetaTableNamed(l, fileTypeName)
		l.PushUserData(lp)
		lua.SetMetaTableNamed(l, pkgTypeName)

		callErr := l.ProtectedCall(2, 2, 0)

		// errors the host raised on the script's behalf keep their kind
		if err := lf.d.Err(); err != nil {
			return nil, fmt.Errorf("plugin %s: %w", s.info.Name, err)
		}
		if lp.err != nil {
			return nil, fmt.Errorf("plugin %s: %w", s.info.Name, lp.err)
		}
		if callErr != nil {
			return nil, fmt.Errorf("%w: plugin %s: %v", archive.ErrFileType, s.info.Name, callErr)
		}

		if l.TypeOf(-2) == lua.TypeBoolean && !l.ToBoolean(-2) {
			msg, _ := l.ToString(-1)
			if msg == "" {
				msg = "rejected"
			}
			return nil, fmt.Errorf("%w: plugin %s: %s", archive.ErrFileType, s.info.Name, msg)
		}
		return lp.pkg, nil
	}
}

func stringField(l *lua.State, index int, name string) string {
	l.Field(index, name)
	defer l.Pop(1)
	if l.TypeOf(-1) != lua.TypeString {
		return ""
	}
	s, _ := l.ToString(-1)
	return strings.TrimSpace(s)
}
