package cmd

import (
	"fmt"
	"strings"
)

// validateID validates that the argument is a non-empty invoice ID
func validateID(arg string) (string, error) {
	id := strings.TrimSpace(arg)
	if id == "" {
		return "", fmt.Errorf("ID cannot be empty")
	}
	return id, nil
}
