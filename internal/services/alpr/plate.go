package alpr

import (
	"regexp"
	"strings"

	"platewatch/internal/services/detector"
)

const plateLength = 6

var (
	motorcyclePlatePattern = regexp.MustCompile(`^[A-Z]{3}[0-9]{2}[A-Z]$`)
	defaultPlatePattern    = regexp.MustCompile(`^[A-Z]{3}[0-9]{3}$`)
)

// NormalizePlate uppercases recognized text and strips separators the OCR
// stage tends to introduce.
func NormalizePlate(text string) string {
	cleaned := strings.ToUpper(strings.TrimSpace(text))
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, "-", "")
	return cleaned
}

// ValidPlate reports whether recognized text matches the plate format for the
// vehicle class. Motorcycles use the three-letters, two-digits, one-letter
// format; every other class uses three letters followed by three digits.
func ValidPlate(text string, class detector.Class) bool {
	plate := NormalizePlate(text)
	if len(plate) != plateLength {
		return false
	}
	if class == detector.ClassMotorcycle {
		return motorcyclePlatePattern.MatchString(plate)
	}
	return defaultPlatePattern.MatchString(plate)
}
