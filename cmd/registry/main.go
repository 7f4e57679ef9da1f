package main

import (
	"os"

	"horse.fit/registry/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
