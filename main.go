package main

import (
	"log"

	"github.com/vira-platform/vira-engine/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
