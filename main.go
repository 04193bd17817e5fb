package main

import "github.com/VinayK8866/project-phoenix/cmd"

func main() {
	cmd.Execute()
}
