package main

import (
	"os"

	"github.com/yourneighborhoodchef/veilfetch/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
