package agent

import (
	"fmt"
	"math/rand"
	"strings"
	"unicode"
)

const uidWidth = 5

// GenerateUID derives the terminal uid for an employee id that has no
// native device id. The digits of the id are zero padded (or cut down to
// their last five) to a five digit uid. Ids with fewer than two digits
// get a random uid starting with 1.
func GenerateUID(employeeID string) string {
	return generateUID(employeeID, rand.Intn)
}

func generateUID(employeeID string, intn func(int) int) string {
	var b strings.Builder
	for _, r := range employeeID {
		if unicode.IsDigit(r) && r <= unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if len(digits) < 2 {
		return fmt.Sprintf("1%04d", intn(10000))
	}
	if len(digits) > uidWidth {
		return digits[len(digits)-uidWidth:]
	}
	return strings.Repeat("0", uidWidth-len(digits)) + digits
}
