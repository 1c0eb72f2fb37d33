package main

import (
	"github.com/AzielCF/az-autopost/cmd"
)

func main() {
	cmd.Execute()
}
