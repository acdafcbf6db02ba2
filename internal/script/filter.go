// Package script runs the optional user-provided Lua hook that reorders or
// prunes correction suggestions before they become quick-fix actions.
//
// The script must define a global function:
//
//	function filter(word, suggestions)
//	  return suggestions
//	end
//
// receiving the misspelled word and a list of candidate corrections, and
// returning the list to offer. A missing function, a runtime error, or a
// malformed return value leaves the suggestions unchanged.
package script

import (
	"errors"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"spellfix/internal/app"
)

// ErrFilterClosed is returned when applying a filter after Close.
var ErrFilterClosed = errors.New("script filter is closed")

const filterFunction = "filter"

// Filter wraps a Lua state holding the user's filter script.
//
// gopher-lua's LState is not goroutine-safe; all calls into the state are
// serialized behind a mutex.
type Filter struct {
	mu     sync.Mutex
	state  *lua.LState
	closed bool
	logger *app.Logger
}

// NewFilter loads the Lua script at path and verifies it defines the filter
// function.
func NewFilter(path string, logger *app.Logger) (*Filter, error) {
	if logger == nil {
		logger = app.NullLogger
	}

	L := lua.NewState()
	if err := L.DoFile(path); err != nil {
		L.Close()
		return nil, fmt.Errorf("load filter script %s: %w", path, err)
	}

	if L.GetGlobal(filterFunction).Type() != lua.LTFunction {
		L.Close()
		return nil, fmt.Errorf("filter script %s does not define function %q", path, filterFunction)
	}

	return &Filter{
		state:  L,
		logger: logger.WithComponent("script"),
	}, nil
}

// Apply runs the filter over the suggestions for one misspelled word. Any
// script failure is logged and the input is returned unchanged.
func (f *Filter) Apply(word string, suggestions []string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return suggestions
	}

	filtered, err := f.call(word, suggestions)
	if err != nil {
		f.logger.Warn("filter script failed for %q: %v", word, err)
		return suggestions
	}
	return filtered
}

// call invokes filter(word, suggestions) on the Lua state.
func (f *Filter) call(word string, suggestions []string) (result []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()

	L := f.state

	table := L.NewTable()
	for _, s := range suggestions {
		table.Append(lua.LString(s))
	}

	if err := L.CallByParam(lua.P{
		Fn:      L.GetGlobal(filterFunction),
		NRet:    1,
		Protect: true,
	}, lua.LString(word), table); err != nil {
		return nil, err
	}

	ret := L.Get(-1)
	L.Pop(1)

	retTable, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("filter returned %s, want table", ret.Type())
	}

	out := make([]string, 0, retTable.Len())
	var badValue error
	retTable.ForEach(func(_, v lua.LValue) {
		str, ok := v.(lua.LString)
		if !ok {
			badValue = fmt.Errorf("filter returned non-string element %s", v.Type())
			return
		}
		if str != "" {
			out = append(out, string(str))
		}
	})
	if badValue != nil {
		return nil, badValue
	}

	return out, nil
}

// Close releases the Lua state.
func (f *Filter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrFilterClosed
	}
	f.closed = true
	f.state.Close()
	return nil
}
