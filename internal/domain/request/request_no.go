package request

import (
	"fmt"
	"strconv"
	"strings"
)

const requestNoPrefix = "REQ-"

func FormatRequestNo(seq int) string {
	return fmt.Sprintf("%s%05d", requestNoPrefix, seq)
}

// ParseRequestNo returns the numeric sequence of a REQ-##### number.
func ParseRequestNo(requestNo string) (int, bool) {
	trimmed := strings.ToUpper(strings.TrimSpace(requestNo))
	if !strings.HasPrefix(trimmed, requestNoPrefix) {
		return 0, false
	}
	seq, err := strconv.Atoi(strings.TrimPrefix(trimmed, requestNoPrefix))
	if err != nil || seq <= 0 {
		return 0, false
	}
	return seq, true
}
