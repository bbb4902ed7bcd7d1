package main

import (
	"fmt"
	"os"

	"github.com/alihajali918/sanadedu-sub000/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "sanad: %v\n", err)
		os.Exit(1)
	}
}
