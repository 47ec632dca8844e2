package common

import "strconv"

// FormatID renders a numeric id the way audit entity ids and API payloads carry it.
func FormatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
