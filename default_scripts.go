package ghsd

import _ "embed"

// DefaultValueLuaScript is the value script used when the lua source has no script of its own.
//
//go:embed scripts/spo2.lua
var DefaultValueLuaScript string
