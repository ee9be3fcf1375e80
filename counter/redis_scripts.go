package counter

import "github.com/gomodule/redigo/redis"

// Lua的布尔返回值
const (
	luaFalse int = 0
	luaTrue  int = 1
)

// The calendar alignment of the tallies is decided by comparing prefixes of
// the formatted timestamp stored in the `cal` field: positions 1-7 cover the
// month, 1-10 the day, 1-13 the hour, 1-16 the minute and 1-19 the second. A
// mismatch on a coarse prefix implies a mismatch on every finer one, so the
// prefix walk cascades the resets exactly like a nested calendar comparison.
var incrLua = `
local key = KEYS[1]
local cal = ARGV[1]
local millis = ARGV[2]
local delta = tonumber(ARGV[3])
local field = ARGV[4]
local limit = tonumber(ARGV[5])
local expire_seconds = tonumber(ARGV[6])

local fields = {"mnt", "day", "hr", "min", "sec"}
local prefix_lens = {7, 10, 13, 16, 19}

local old_cal = redis.call("HGET", key, "cal")
if not old_cal then
    old_cal = ""
end

local next = {}
for i = 1, 5 do
    local f = fields[i]
    if string.sub(old_cal, 1, prefix_lens[i]) == string.sub(cal, 1, prefix_lens[i]) then
        next[f] = (tonumber(redis.call("HGET", key, f)) or 0) + delta
    else
        next[f] = delta
    end
end

if limit >= 0 and next[field] > limit then
    return { 0, next[field] }
end

redis.call("HMSET", key,
    "sec", next["sec"],
    "min", next["min"],
    "hr", next["hr"],
    "day", next["day"],
    "mnt", next["mnt"],
    "last_update", millis,
    "cal", cal)
if expire_seconds > 0 then
    redis.call("EXPIRE", key, expire_seconds)
end

return { 1, next[field] }
`

var incrScript = redis.NewScript(1, incrLua)

var decrLua = `
local key = KEYS[1]
local delta = tonumber(ARGV[1])

redis.call("HINCRBY", key, "sec", -delta)
redis.call("HINCRBY", key, "min", -delta)
redis.call("HINCRBY", key, "hr", -delta)
redis.call("HINCRBY", key, "day", -delta)
redis.call("HINCRBY", key, "mnt", -delta)

return 1
`

var decrScript = redis.NewScript(1, decrLua)

var resetLua = `
local key = KEYS[1]
local cal = ARGV[1]
local millis = ARGV[2]

redis.call("HMSET", key,
    "sec", 0,
    "min", 0,
    "hr", 0,
    "day", 0,
    "mnt", 0,
    "last_update", millis,
    "cal", cal)

return 1
`

var resetScript = redis.NewScript(1, resetLua)
