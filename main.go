package main

import "github.com/frahmantamala/kb-management/cmd"

func main() {
	cmd.Execute()
}
