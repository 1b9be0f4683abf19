package plugin

import (
	"fmt"

	"github.com/Shopify/go-lua"
	"github.com/jchantrell/gamepak/internal/archive"
	"github.com/jchantrell/gamepak/internal/codec"
	"github.com/jchantrell/gamepak/internal/vfile"
)

const defaultCStringLimit = 256

// luaFile is the file handle a parser script reads from. Reads go through
// a sticky decoder; the first failure raises a Lua error and is kept so the
// host can report it with its original kind.
type luaFile struct {
	f *vfile.File
	d *vfile.Decoder
}

type luaPackage struct {
	pkg *archive.Package
	err error
}

func registerTypes(l *lua.State) {
	lua.NewMetaTable(l, fileTypeName)
	l.NewTable()
	lua.SetFunctions(l, fileMethods, 0)
	l.SetField(-2, "__index")
	l.Pop(1)

	lua.NewMetaTable(l, pkgTypeName)
	l.NewTable()
	lua.SetFunctions(l, packageMethods, 0)
	l.SetField(-2, "__index")
	l.Pop(1)
}

var fileMethods = []lua.RegistryFunction{
	{Name: "size", Function: fileSize},
	{Name: "tell", Function: fileTell},
	{Name: "seek", Function: fileSeek},
	{Name: "skip", Function: fileSkip},
	{Name: "u8", Function: fileReader(func(d *vfile.Decoder) int { return int(d.U8()) })},
	{Name: "u16", Function: fileReader(func(d *vfile.Decoder) int { return int(d.U16()) })},
	{Name: "u32", Function: fileReader(func(d *vfile.Decoder) int { return int(d.U32()) })},
	{Name: "u16be", Function: fileReader(func(d *vfile.Decoder) int { return int(d.U16BE()) })},
	{Name: "u32be", Function: fileReader(func(d *vfile.Decoder) int { return int(d.U32BE()) })},
	{Name: "bytes", Function: fileBytes},
	{Name: "cstring", Function: fileCString},
}

var packageMethods = []lua.RegistryFunction{
	{Name: "add", Function: packageAdd},
	{Name: "len", Function: packageLen},
}

func checkFile(l *lua.State) *luaFile {
	if f, ok := lua.CheckUserData(l, 1, fileTypeName).(*luaFile); ok && f != nil {
		return f
	}
	lua.ArgumentError(l, 1, "file expected")
	return nil
}

func checkPackage(l *lua.State) *luaPackage {
	if p, ok := lua.CheckUserData(l, 1, pkgTypeName).(*luaPackage); ok && p != nil {
		return p
	}
	lua.ArgumentError(l, 1, "package expected")
	return nil
}

// raise turns a decoder failure into a Lua error.
func raise(l *lua.State, d *vfile.Decoder) {
	if err := d.Err(); err != nil {
		lua.Errorf(l, "%s", err.Error())
	}
}

func fileSize(l *lua.State) int {
	l.PushInteger(int(checkFile(l).f.Size()))
	return 1
}

func fileTell(l *lua.State) int {
	l.PushInteger(int(checkFile(l).d.Tell()))
	return 1
}

func fileSeek(l *lua.State) int {
	f := checkFile(l)
	f.d.SeekTo(int64(lua.CheckInteger(l, 2)))
	raise(l, f.d)
	return 0
}

func fileSkip(l *lua.State) int {
	f := checkFile(l)
	f.d.Skip(int64(lua.CheckInteger(l, 2)))
	raise(l, f.d)
	return 0
}

func fileReader(read func(d *vfile.Decoder) int) lua.Function {
	return func(l *lua.State) int {
		f := checkFile(l)
		v := read(f.d)
		raise(l, f.d)
		l.PushInteger(v)
		return 1
	}
}

func fileBytes(l *lua.State) int {
	f := checkFile(l)
	b := f.d.Bytes(int64(lua.CheckInteger(l, 2)))
	raise(l, f.d)
	l.PushString(string(b))
	return 1
}

func fileCString(l *lua.State) int {
	f := checkFile(l)
	s := f.d.CString(lua.OptInteger(l, 2, defaultCStringLimit))
	raise(l, f.d)
	l.PushString(s)
	return 1
}

// packageAdd takes {name, offset, size, csize, method}. csize defaults to
// size and method to "none".
func packageAdd(l *lua.State) int {
	p := checkPackage(l)
	lua.CheckType(l, 2, lua.TypeTable)

	name, ok := tableString(l, "name")
	if !ok || name == "" {
		lua.ArgumentError(l, 2, "entry needs a name")
	}
	offset := tableInteger(l, "offset", 0)
	size := tableInteger(l, "size", 0)
	csize := tableInteger(l, "csize", size)

	method := codec.None
	if m, ok := tableString(l, "method"); ok {
		parsed, err := codec.ParseMethod(m)
		if err != nil {
			lua.ArgumentError(l, 2, err.Error())
		}
		method = parsed
	}

	e := archive.Entry{
		Name:           name,
		Offset:         int64(offset),
		Size:           int64(size),
		CompressedSize: int64(csize),
		Compression:    method,
	}
	if err := p.pkg.Add(e); err != nil {
		if p.err == nil {
			p.err = fmt.Errorf("entry %d: %w", p.pkg.Len(), err)
		}
		lua.Errorf(l, "%s", err.Error())
	}
	l.PushInteger(p.pkg.Len())
	return 1
}

func packageLen(l *lua.State) int {
	l.PushInteger(checkPackage(l).pkg.Len())
	return 1
}

// tableString reads a string field of the table at index 2.
func tableString(l *lua.State, key string) (string, bool) {
	l.Field(2, key)
	defer l.Pop(1)
	if l.TypeOf(-1) != lua.TypeString {
		return "", false
	}
	return l.ToString(-1)
}

func tableInteger(l *lua.State, key string, def int) int {
	l.Field(2, key)
	defer l.Pop(1)
	if l.TypeOf(-1) != lua.TypeNumber {
		return def
	}
	v, _ := l.ToInteger(-1)
	return v
}
