package script

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/ales-tsurko/hexagon/internal/route"
	"github.com/ales-tsurko/hexagon/internal/route/address"
)

// luaCallback is a Lua function registered with hexagon.listen.
type luaCallback struct {
	host    *Host
	gen     uint64
	fn      *lua.LFunction
	pattern string
}

// Call runs the Lua function as fn(payload, pattern, address).
// A Lua error is returned as the callback error.
func (c *luaCallback) Call(ctx context.Context, payload []byte) error {
	h := c.host
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHostClosed
	}
	if c.gen != h.gen {
		h.mu.Unlock()
		return ErrStaleCallback
	}

	callCtx := ctx
	if h.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	addr := c.pattern
	if msg, ok := route.MessageFromContext(ctx); ok {
		addr = string(msg.Address)
	}
	h.L.SetContext(callCtx)
	err := h.call(c.fn, lua.LString(payload), lua.LString(c.pattern), lua.LString(addr))
	h.L.RemoveContext()
	out := h.takeOutbox()
	h.mu.Unlock()

	h.flush(ctx, out)
	if err != nil {
		return &ScriptError{Name: c.pattern, Err: err}
	}
	return nil
}

// call invokes fn in protected mode. The caller must hold h.mu.
func (h *Host) call(fn *lua.LFunction, args ...lua.LValue) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return h.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...)
}

// luaListen implements hexagon.listen(pattern, fn).
func (h *Host) luaListen(L *lua.LState) int {
	pattern := L.CheckString(1)
	fn := L.CheckFunction(2)

	cb := &luaCallback{host: h, gen: h.gen, fn: fn, pattern: pattern}
	if err := h.router.Listen(pattern, cb); err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	h.patterns[pattern] = struct{}{}
	return 0
}

// luaUnlisten implements hexagon.unlisten(pattern).
func (h *Host) luaUnlisten(L *lua.LState) int {
	pattern := L.CheckString(1)
	h.router.Unlisten(pattern)
	delete(h.patterns, pattern)
	return 0
}

// luaSend implements hexagon.send(address, payload). The address may be a
// pattern addressing every matching literal listener.
func (h *Host) luaSend(L *lua.LState) int {
	addr, err := address.ParseTarget(L.CheckString(1))
	if err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	payload := L.OptString(2, "")
	h.outbox = append(h.outbox, outgoing{msg: route.Message{Address: addr, Payload: []byte(payload)}})
	return 0
}

// luaEmit implements hexagon.emit(event, value): a single-target send of a
// Lua value serialized by the router.
func (h *Host) luaEmit(L *lua.LState) int {
	event := L.CheckString(1)
	value := toGoValue(L.Get(2), make(map[*lua.LTable]bool))
	h.outbox = append(h.outbox, outgoing{event: event, value: value})
	return 0
}

// luaLog implements hexagon.log(message).
func (h *Host) luaLog(L *lua.LState) int {
	msg := L.CheckAny(1).String()
	h.logger.Info(msg, zap.String("source", "lua"))
	return 0
}

// toGoValue converts a Lua value to a Go value for serialization.
// Tables with keys 1..n become slices, other tables become maps; cycles and
// functions become nil.
func toGoValue(lv lua.LValue, visited map[*lua.LTable]bool) any {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if visited[v] {
			return nil
		}
		visited[v] = true
		defer delete(visited, v)
		return tableToGo(v, visited)
	default:
		return nil
	}
}

func tableToGo(t *lua.LTable, visited map[*lua.LTable]bool) any {
	count := 0
	isArray := true
	t.ForEach(func(k, _ lua.LValue) {
		count++
		if n, ok := k.(lua.LNumber); !ok || n < 1 || float64(n) != float64(int(n)) {
			isArray = false
		}
	})

	if isArray && count > 0 && t.MaxN() == count {
		arr := make([]any, count)
		for i := 1; i <= count; i++ {
			arr[i-1] = toGoValue(t.RawGetInt(i), visited)
		}
		return arr
	}

	m := make(map[string]any, count)
	t.ForEach(func(k, v lua.LValue) {
		m[k.String()] = toGoValue(v, visited)
	})
	return m
}
