// Package id generates short prefixed identifiers for scheduler tasks.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// taskIDLength keeps task ids short enough to read in console logs.
const taskIDLength = 12

// Generate creates a prefixed id such as "task-V1StGXR8_Z5j".
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New(taskIDLength)
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}
