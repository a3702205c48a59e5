// Package plugin hosts user-authored Lua scripts that hook into the
// import pipeline. Each script returns a table with metadata and hook
// functions; hooks run in load order and answer with a verdict.
//
// Plugin format:
//
//	local plugin = {
//	    name = "my_plugin",
//	    version = "1.0.0",
//	    description = "What it does",
//	    author = "Someone",
//	}
//
//	function plugin.on_import(track)
//	    if track.artist == "" then
//	        track.artist = "Unknown Artist"
//	    end
//	    return "continue" -- or "skip" or "abort", plus an optional reason
//	end
//
//	return plugin
package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/ariejan/apollo/internal/music"
)

// VerdictKind is a hook's decision about the current subject.
type VerdictKind int

const (
	Continue VerdictKind = iota
	Skip
	Abort
)

// Verdict carries a hook chain's decision and optional reason.
type Verdict struct {
	Kind   VerdictKind
	Reason string
}

// Hook names, also the Lua function names scripts define.
const (
	HookOnInit          = "on_init"
	HookOnClose         = "on_close"
	HookOnImport        = "on_import"
	HookPostImport      = "post_import"
	HookOnUpdate        = "on_update"
	HookPostUpdate      = "post_update"
	HookOnAlbumImport   = "on_album_import"
	HookPostAlbumImport = "post_album_import"
)

var hookNames = []string{
	HookOnInit, HookOnClose,
	HookOnImport, HookPostImport,
	HookOnUpdate, HookPostUpdate,
	HookOnAlbumImport, HookPostAlbumImport,
}

// DefaultHookTimeout bounds a single hook invocation.
const DefaultHookTimeout = 30 * time.Second

// Plugin is one loaded script.
type Plugin struct {
	Name        string
	Version     string
	Description string
	Author      string
	Path        string

	state *lua.LState
	hooks map[string]*lua.LFunction
}

// Hooks lists the hook names this plugin registers, in canonical order.
func (p *Plugin) Hooks() []string {
	var out []string
	for _, name := range hookNames {
		if _, ok := p.hooks[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Host loads plugins and runs their hook chains.
type Host struct {
	plugins []*Plugin
	timeout time.Duration
	log     *zap.Logger
}

// NewHost creates an empty host. A zero timeout falls back to
// DefaultHookTimeout.
func NewHost(timeout time.Duration, log *zap.Logger) *Host {
	if timeout <= 0 {
		timeout = DefaultHookTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Host{timeout: timeout, log: log}
}

// Plugins returns the loaded plugins in load order.
func (h *Host) Plugins() []*Plugin { return h.plugins }

// LoadDir loads every *.lua file in dir, lexicographically by filename.
// A missing directory loads nothing. A script that fails to load is
// logged and skipped; it never aborts startup.
func (h *Host) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return &music.IoError{Path: dir, Err: err}
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".lua") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		path := filepath.Join(dir, name)
		p, err := h.loadFile(path)
		if err != nil {
			h.log.Warn("plugin load failed", zap.String("path", path), zap.Error(err))
			continue
		}
		h.plugins = append(h.plugins, p)
		h.log.Info("plugin loaded",
			zap.String("name", p.Name),
			zap.String("version", p.Version),
			zap.Strings("hooks", p.Hooks()))
	}
	return nil
}

func (h *Host) loadFile(path string) (*Plugin, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: false})
	registerLog(L, h.log.Named(filepath.Base(path)))

	if err := L.DoFile(path); err != nil {
		L.Close()
		return nil, fmt.Errorf("run script: %w", err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("script did not return a plugin table")
	}

	p := &Plugin{
		Path:  path,
		state: L,
		hooks: make(map[string]*lua.LFunction),
	}
	p.Name = lua.LVAsString(tbl.RawGetString("name"))
	if p.Name == "" {
		L.Close()
		return nil, fmt.Errorf("plugin table has no name")
	}
	p.Version = lua.LVAsString(tbl.RawGetString("version"))
	if p.Version == "" {
		p.Version = "0.0.0"
	}
	p.Description = lua.LVAsString(tbl.RawGetString("description"))
	p.Author = lua.LVAsString(tbl.RawGetString("author"))

	for _, name := range hookNames {
		if fn, ok := tbl.RawGetString(name).(*lua.LFunction); ok {
			p.hooks[name] = fn
		}
	}
	return p, nil
}

// Close releases every plugin's interpreter. Run the on_close chain
// first if shutdown hooks should fire.
func (h *Host) Close() {
	for _, p := range h.plugins {
		p.state.Close()
	}
	h.plugins = nil
}

// RunLifecycle runs a no-subject chain (on_init, on_close). Verdicts are
// ignored; failures are logged.
func (h *Host) RunLifecycle(ctx context.Context, hook string) {
	for _, p := range h.plugins {
		fn, ok := p.hooks[hook]
		if !ok {
			continue
		}
		if _, err := h.call(ctx, p, fn); err != nil {
			h.logFailure(p, hook, err)
		}
	}
}

// RunTrackChain presents a mutable track to every registered hook in
// load order. On Continue the (possibly mutated) record proceeds to the
// next hook; Skip and Abort terminate the chain. A hook error or timeout
// is logged and treated as Continue. Mutations are validated against the
// domain invariants before they are accepted.
func (h *Host) RunTrackChain(ctx context.Context, hook string, track *music.Track) Verdict {
	mutable := hook == HookOnImport || hook == HookOnUpdate
	for _, p := range h.plugins {
		fn, ok := p.hooks[hook]
		if !ok {
			continue
		}
		tbl := trackToLua(p.state, track)
		verdict, err := h.call(ctx, p, fn, tbl)
		if err != nil {
			h.logFailure(p, hook, err)
			continue
		}
		if mutable {
			if err := applyTrackTable(tbl, track); err != nil {
				h.logFailure(p, hook, err)
				continue
			}
		}
		if verdict.Kind != Continue {
			return verdict
		}
	}
	return Verdict{Kind: Continue}
}

// RunTrackPairChain runs a (old, new) chain (on_update); old is passed
// by value so scripts can only mutate new.
func (h *Host) RunTrackPairChain(ctx context.Context, hook string, old, updated *music.Track) Verdict {
	for _, p := range h.plugins {
		fn, ok := p.hooks[hook]
		if !ok {
			continue
		}
		oldTbl := trackToLua(p.state, old)
		newTbl := trackToLua(p.state, updated)
		verdict, err := h.call(ctx, p, fn, oldTbl, newTbl)
		if err != nil {
			h.logFailure(p, hook, err)
			continue
		}
		if err := applyTrackTable(newTbl, updated); err != nil {
			h.logFailure(p, hook, err)
			continue
		}
		if verdict.Kind != Continue {
			return verdict
		}
	}
	return Verdict{Kind: Continue}
}

// RunAlbumChain presents an album to every registered hook in load order.
func (h *Host) RunAlbumChain(ctx context.Context, hook string, album *music.Album) Verdict {
	mutable := hook == HookOnAlbumImport
	for _, p := range h.plugins {
		fn, ok := p.hooks[hook]
		if !ok {
			continue
		}
		tbl := albumToLua(p.state, album)
		verdict, err := h.call(ctx, p, fn, tbl)
		if err != nil {
			h.logFailure(p, hook, err)
			continue
		}
		if mutable {
			if err := applyAlbumTable(tbl, album); err != nil {
				h.logFailure(p, hook, err)
				continue
			}
		}
		if verdict.Kind != Continue {
			return verdict
		}
	}
	return Verdict{Kind: Continue}
}

func (h *Host) call(ctx context.Context, p *Plugin, fn *lua.LFunction, args ...lua.LValue) (Verdict, error) {
	callCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	L := p.state
	L.SetContext(callCtx)
	defer L.RemoveContext()

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 2, Protect: true}, args...); err != nil {
		return Verdict{Kind: Continue}, err
	}
	reason := L.Get(-1)
	result := L.Get(-2)
	L.Pop(2)

	v := Verdict{Kind: Continue}
	switch strings.ToLower(lua.LVAsString(result)) {
	case "skip":
		v.Kind = Skip
	case "abort":
		v.Kind = Abort
	}
	if reason != lua.LNil {
		v.Reason = lua.LVAsString(reason)
	}
	return v, nil
}

func (h *Host) logFailure(p *Plugin, hook string, err error) {
	failure := &music.HookFailureError{Script: p.Name, Hook: hook, Err: err}
	h.log.Warn("hook failed, continuing", zap.Error(failure))
}

// registerLog exposes a log table with debug/info/warn/error to scripts.
func registerLog(L *lua.LState, log *zap.Logger) {
	tbl := L.NewTable()
	bind := func(name string, sink func(msg string, fields ...zap.Field)) {
		tbl.RawSetString(name, L.NewFunction(func(L *lua.LState) int {
			parts := make([]string, 0, L.GetTop())
			for i := 1; i <= L.GetTop(); i++ {
				parts = append(parts, lua.LVAsString(L.ToStringMeta(L.Get(i))))
			}
			sink(strings.Join(parts, " "))
			return 0
		}))
	}
	bind("debug", log.Debug)
	bind("info", log.Info)
	bind("warn", log.Warn)
	bind("error", log.Error)
	L.SetGlobal("log", tbl)
}
