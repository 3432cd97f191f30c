package utils

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Payload limits
const (
	MaxScriptLength = 1 << 20 // characters in one script
	MaxModuleSize   = 8 << 20 // bytes in one binary module
	MaxArgCount     = 64      // top-level arguments per call
	MaxArgDepth     = 16      // nesting of arrays, records and JSON values
)

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if value == "" && !required {
		return nil
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	// Null bytes truncate engine source text
	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}

	return nil
}

// ValidateScript checks a script body
func ValidateScript(script string) error {
	return ValidateString(script, "script", 0, MaxScriptLength, false)
}

// ValidateModuleSize checks a decoded module
func ValidateModuleSize(size int) error {
	if size > MaxModuleSize {
		return fmt.Errorf("module size %d bytes exceeds maximum %d bytes", size, MaxModuleSize)
	}
	return nil
}

// ValidateJSONDepth checks that decoded JSON nests no deeper than maxDepth
func ValidateJSONDepth(data interface{}, maxDepth int) error {
	return checkDepth(data, 0, maxDepth)
}

func checkDepth(data interface{}, currentDepth int, maxDepth int) error {
	if currentDepth > maxDepth {
		return fmt.Errorf("JSON nesting depth %d exceeds maximum %d", currentDepth, maxDepth)
	}

	switch v := data.(type) {
	case map[string]interface{}:
		for _, value := range v {
			if err := checkDepth(value, currentDepth+1, maxDepth); err != nil {
				return err
			}
		}
	case []interface{}:
		for _, value := range v {
			if err := checkDepth(value, currentDepth+1, maxDepth); err != nil {
				return err
			}
		}
	}

	return nil
}
