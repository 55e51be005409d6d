package kredis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const LuaScanType = `
	local results = {}
	local scan_result = redis.call('SCAN', unpack(ARGV, 2))
	for i = 1, #scan_result[2] do
		local key = scan_result[2][i]
		if redis.call('TYPE', key).ok == ARGV[1] then
			table.insert(results, key)
		end
	end
	return {scan_result[1], results}
`

// ScanTypeByScript runs SCAN and filters its batch by value type inside one script, for servers whose SCAN
// does not take a TYPE argument.
func ScanTypeByScript(ctx context.Context, client redis.UniversalClient, cursor uint64, match string, count int64,
	keyType string) *redis.ScanCmd {
	args := []any{"eval", LuaScanType, 0, keyType, cursor}
	if match != "" {
		args = append(args, "match", match)
	}
	if count > 0 {
		args = append(args, "count", count)
	}
	c := client.Process
	cmd := redis.NewScanCmd(ctx, c, args...)
	_ = c(ctx, cmd)
	return cmd
}
