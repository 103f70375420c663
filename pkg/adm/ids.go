// ABOUTME: ADM identifier parsing
// ABOUTME: Converts audio programme ids such as AP_1001 to integers
package adm

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseAudioProgrammeID converts an ADM audioProgramme id such as "AP_1001" to its
// numeric form. The numeric part is hexadecimal. An empty string means NoProgramme.
func ParseAudioProgrammeID(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return NoProgramme, nil
	}
	digits := strings.TrimPrefix(strings.ToUpper(s), "AP_")
	v, err := strconv.ParseUint(digits, 16, 16)
	if err != nil {
		return NoProgramme, fmt.Errorf("invalid audio programme id %q: %w", s, err)
	}
	return int(v), nil
}

// FormatAudioProgrammeID renders a numeric programme id as "AP_xxxx"
func FormatAudioProgrammeID(id int) string {
	if id == NoProgramme {
		return ""
	}
	return fmt.Sprintf("AP_%04X", id)
}
