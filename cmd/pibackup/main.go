// Package main is the entry point for pibackup.
package main

import (
	"errors"
	"os"

	"github.com/jdekker/pibackup/internal/models"
)

func main() {
	if err := Execute(); err != nil {
		var fatal *models.FatalError
		if errors.As(err, &fatal) {
			os.Exit(fatal.Code)
		}
		os.Exit(1)
	}
}
