package services

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var dedicationPolicy = bluemonday.StrictPolicy()

const (
	maxDedicationNameLength     = 120
	maxDedicationOccasionLength = 120
	maxDedicationMessageLength  = 500
)

// SanitizeDedication strips markup, NFC-normalises, trims, and bounds every
// dedication field. It returns nil when nothing survives, so empty dedications
// never reach storage or the backend.
func SanitizeDedication(d *Dedication) *Dedication {
	if d == nil {
		return nil
	}
	clean := Dedication{
		Name:     sanitizeDedicationField(d.Name, maxDedicationNameLength),
		Occasion: sanitizeDedicationField(d.Occasion, maxDedicationOccasionLength),
		Message:  sanitizeDedicationField(d.Message, maxDedicationMessageLength),
	}
	if clean == (Dedication{}) {
		return nil
	}
	return &clean
}

func sanitizeDedicationField(value string, limit int) string {
	value = dedicationPolicy.Sanitize(value)
	value = strings.TrimSpace(norm.NFC.String(value))
	runes := []rune(value)
	if len(runes) > limit {
		value = strings.TrimSpace(string(runes[:limit]))
	}
	return value
}
