package main

import "github.com/derickschaefer/agrobot/cmd"

func main() {
	cmd.Execute()
}
