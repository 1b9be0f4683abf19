package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/vfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func rejecting(name string, err error) HandleParser {
	return HandleParser{Name: name, Parse: func(f *vfile.File) (*archive.Package, error) {
		return nil, err
	}}
}

func accepting(name string) HandleParser {
	return HandleParser{Name: name, Parse: func(f *vfile.File) (*archive.Package, error) {
		return archive.New(f, name), nil
	}}
}

func TestOpenChainsLoaders(t *testing.T) {
	path := writeFile(t, "game.PAK", []byte("payload"))

	var calls []string
	record := func(l HandleParser) HandleParser {
		parse := l.Parse
		l.Parse = func(f *vfile.File) (*archive.Package, error) {
			calls = append(calls, l.Name)
			assert.Equal(t, int64(0), f.Tell(), "every attempt gets a fresh handle")
			_, _ = f.Seek(3, 0)
			return parse(f)
		}
		return l
	}

	r := New()
	r.Register("pak", record(accepting("first")))
	r.Register(".PAK", record(rejecting("second", archive.ErrFileType)))
	r.Register("pak", record(rejecting("third", archive.ErrFileType)))

	pkg, err := r.Open(path)
	require.NoError(t, err)
	assert.Equal(t, "first", pkg.Format())
	assert.Equal(t, []string{"third", "second", "first"}, calls)
}

func TestOpenOnlyLastOfManyAccepts(t *testing.T) {
	path := writeFile(t, "data.wad", []byte("WAD"))

	r := New()
	r.Register("wad", accepting("real"))
	for i := 0; i < 50; i++ {
		r.Register("wad", rejecting(fmt.Sprintf("decoy%d", i), archive.ErrFileType))
	}

	pkg, err := r.Open(path)
	require.NoError(t, err)
	assert.Equal(t, "real", pkg.Format())
}

func TestOpenAllFail(t *testing.T) {
	path := writeFile(t, "bad.pak", make([]byte, 16))

	r := New()
	r.Register("pak", rejecting("a", archive.ErrFileType))
	r.Register("pak", rejecting("b", fmt.Errorf("%w: directory", archive.ErrBounds)))

	_, err := r.Open(path)
	require.ErrorIs(t, err, archive.ErrUnsupportedFormat)
	// the last loader tried is the oldest registration
	assert.ErrorIs(t, err, archive.ErrFileType)
	assert.False(t, errors.Is(err, archive.ErrBounds))
}

func TestOpenUnknownExtension(t *testing.T) {
	r := New()
	r.Register("pak", accepting("pak"))

	for _, name := range []string{"file.zzz", "noext"} {
		path := writeFile(t, name, []byte("x"))
		_, err := r.Open(path)
		assert.ErrorIs(t, err, archive.ErrUnsupportedFormat, name)
	}
}

func TestOpenMissingFile(t *testing.T) {
	r := New()
	r.Register("pak", accepting("pak"))

	_, err := r.Open(filepath.Join(t.TempDir(), "missing.pak"))
	require.ErrorIs(t, err, fs.ErrNotExist)
	assert.Equal(t, archive.KindNotFound, archive.KindOf(err))
}

func TestPathLoader(t *testing.T) {
	var got string
	r := New()
	r.Register("vpk", PathLoader{Name: "vpk", Load: func(path string) (*archive.Package, error) {
		got = path
		return archive.NewDetached(path, "vpk"), nil
	}})

	pkg, err := r.Open("pak01_dir.vpk")
	require.NoError(t, err)
	assert.Equal(t, "pak01_dir.vpk", got)
	assert.Equal(t, "vpk", pkg.Format())
	assert.Equal(t, "path", r.Records()[0].Kind())
}

func TestRegistryGrowth(t *testing.T) {
	r := New()
	l := accepting("same")
	for i := 0; i < 3; i++ {
		r.Register("pak", l)
	}
	r.Register("wad", l)

	assert.Equal(t, 4, r.Len())
	assert.Equal(t, []string{"pak", "wad"}, r.Extensions())
}

func TestWithCache(t *testing.T) {
	path := writeFile(t, "x.bin", []byte("cached"))

	r := New(WithCache(true))
	r.Register("bin", HandleParser{Name: "probe", Parse: func(f *vfile.File) (*archive.Package, error) {
		assert.True(t, f.Cached())
		return archive.New(f, "probe"), nil
	}})

	_, err := r.Open(path)
	require.NoError(t, err)
}

func TestWithReporter(t *testing.T) {
	var kinds []archive.Kind
	r := New(WithReporter(archive.ReporterFunc(func(kind archive.Kind, msg string) {
		kinds = append(kinds, kind)
	})))
	r.Register("pak", rejecting("a", fmt.Errorf("%w: table", archive.ErrBounds)))

	_, err := r.Open(writeFile(t, "x.pak", []byte("x")))
	require.Error(t, err)
	assert.Equal(t, []archive.Kind{archive.KindBounds}, kinds)
}

func TestExt(t *testing.T) {
	assert.Equal(t, "pak", Ext("/games/quake/id1/PAK0.PAK"))
	assert.Equal(t, "bin", Ext(`C:\poe\Bundles2\_.index.bin`))
	assert.Equal(t, "", Ext("/games/my.dir/README"))
	assert.Equal(t, "", Ext("trailing."))
}

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{in: InterfaceVersion.String()},
		{in: fmt.Sprintf("%d.0", InterfaceVersion.Major)},
		{in: fmt.Sprintf("%d.%d.7", InterfaceVersion.Major, InterfaceVersion.Minor)},
		{in: fmt.Sprintf("%d.%d", InterfaceVersion.Major, InterfaceVersion.Minor+1), wantErr: true},
		{in: fmt.Sprintf("%d.0", InterfaceVersion.Major+1), wantErr: true},
		{in: "0.9", wantErr: true},
		{in: "one", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := ParseVersion(tt.in)
			if err == nil {
				err = CheckVersion(v)
			}
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrPluginVersion)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
