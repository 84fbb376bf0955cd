package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult contains the result of an injection check on a measurement label.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Category    string // The label that was checked
}

// CheckCategoryForInjection uses libinjection to detect SQL injection patterns
// in a measurement label before it is turned into a column identifier.
//
// Returns nil if no injection is detected.
//
// Example:
//
//	result := CheckCategoryForInjection("ph")
//	// result == nil
//
//	result := CheckCategoryForInjection("x' OR '1'='1")
//	// result.IsSQLi == true
func CheckCategoryForInjection(category string) *InjectionCheckResult {
	isSQLi, fingerprint := libinjection.IsSQLi(category)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			Category:    category,
		}
	}

	return nil
}

// CheckAllCategories runs CheckCategoryForInjection over a label set and
// returns one result per flagged label.
func CheckAllCategories(categories []string) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for _, c := range categories {
		if result := CheckCategoryForInjection(c); result != nil {
			results = append(results, result)
		}
	}
	return results
}
