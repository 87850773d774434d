package main

import (
	"github.com/krowlandson/AzureStateManager/cmd"
)

func main() {
	cmd.Execute()
}
