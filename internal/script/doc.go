// Package script hosts Lua scripts that listen and send on a router.
//
// A Host owns one sandboxed Lua state. Scripts see a global module named
// hexagon:
//
//	hexagon.listen(pattern, function(payload, pattern, address) ... end)
//	hexagon.unlisten(pattern)
//	hexagon.send(address, payload)
//	hexagon.emit(event, value)
//	hexagon.log(message)
//
// emit serializes a Lua value with the router serializer and delivers it to
// the callback registered under the exact event name.
//
// Only the base, table, string and math libraries are available; dofile,
// loadfile, load, loadstring and require are removed.
//
// The Lua state is single-threaded, so the host serializes every call into it.
// Messages sent from Lua are routed after the running chunk or callback
// returns, which lets a callback send to addresses that other Lua callbacks
// listen on.
//
// A Watcher reloads the host whenever one of its script files changes on disk.
package script
